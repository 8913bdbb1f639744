package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the API's Prometheus collectors.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quads",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Document API requests by resource, method and status code.",
		}, []string{"resource", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "quads",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Document API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

func (m *Metrics) observe(resource, method string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(resource, method, strconv.Itoa(status)).Inc()
}

func (m *Metrics) since(method string, start time.Time) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// RegisterMetrics registers the Prometheus handler for g in provided mux.
func RegisterMetrics(mux *http.ServeMux, g prometheus.Gatherer) {
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}
