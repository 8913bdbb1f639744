package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/devghori1264/quads/internal/models"
	"github.com/devghori1264/quads/internal/server"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// maxBody caps request bodies.
const maxBody = 2 << 20

var errNestedValue = errors.New("nested objects are not accepted as field values")

type Handler struct {
	srv     *server.Server
	log     *zap.Logger
	metrics *Metrics
}

// NewHTTPHandler mounts the v2 document API:
//
//	GET    /api/v2/{resource}
//	POST   /api/v2/{resource}            (PUT is the same)
//	DELETE /api/v2/{resource}/{name}
//	DELETE /api/v2/{property}/{item}/{name}
func NewHTTPHandler(srv *server.Server, log *zap.Logger, m *Metrics) http.Handler {
	h := &Handler{srv: srv, log: log, metrics: m}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(h.requestLog)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Route("/api/v2", func(r chi.Router) {
		r.Get("/{resource}", h.handleList)
		r.Post("/{resource}", h.handleSave)
		r.Put("/{resource}", h.handleSave)
		r.Delete("/{resource}/{name}", h.handleDelete)
		r.Delete("/{resource}/{item}/{name}", h.handleRemoveItem)
	})
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "resource")
	if res, ok := h.srv.Resource(name); ok {
		h.respond(w, r, name, res.List(r.Context(), queryFields(r)))
		return
	}
	if prop, ok := h.srv.Property(name); ok {
		h.respond(w, r, name, prop.List(r.Context()))
		return
	}
	h.unknown(w, r, name)
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "resource")
	res, isResource := h.srv.Resource(name)
	prop, isProperty := h.srv.Property(name)
	if !isResource && !isProperty {
		h.unknown(w, r, name)
		return
	}

	fields, err := readFields(w, r)
	if err != nil {
		h.log.Debug("bad request body", zap.String("resource", name), zap.Error(err))
		writeError(w, http.StatusBadRequest, "Data validation failed: "+err.Error())
		h.metrics.observe(name, r.Method, http.StatusBadRequest)
		return
	}
	if isResource {
		h.respond(w, r, name, res.Save(r.Context(), fields))
		return
	}
	h.respond(w, r, name, prop.Save(r.Context(), fields))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "resource")
	res, ok := h.srv.Resource(name)
	if !ok {
		h.unknown(w, r, name)
		return
	}
	h.respond(w, r, name, res.Delete(r.Context(), chi.URLParam(r, "name")))
}

func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "resource")
	prop, ok := h.srv.Property(name)
	if !ok {
		h.unknown(w, r, name)
		return
	}
	h.respond(w, r, name, prop.Remove(r.Context(), chi.URLParam(r, "item"), chi.URLParam(r, "name")))
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, resource string, res server.Result) {
	h.metrics.observe(resource, r.Method, res.Status)
	writeJSON(w, res.Status, res.Payload())
}

func (h *Handler) unknown(w http.ResponseWriter, r *http.Request, name string) {
	h.metrics.observe("unknown", r.Method, http.StatusNotFound)
	writeError(w, http.StatusNotFound, fmt.Sprintf("unknown resource %s", name))
}

func (h *Handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())))
		h.metrics.since(r.Method, start)
	})
}

func queryFields(r *http.Request) models.Fields {
	return flatten(r.URL.Query())
}

// readFields merges the query string with a form or JSON object body. Body
// values win over query values of the same name.
func readFields(w http.ResponseWriter, r *http.Request) (models.Fields, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct != "application/json" {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return flatten(r.Form), nil
	}

	fields := queryFields(r)
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid JSON payload")
	}
	for k, v := range body {
		s, err := fieldText(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		fields[k] = s
	}
	return fields, nil
}

func flatten(values map[string][]string) models.Fields {
	out := make(models.Fields, len(values))
	for k, vs := range values {
		out[k] = strings.Join(vs, ",")
	}
	return out
}

func fieldText(v any) (string, error) {
	switch tv := v.(type) {
	case nil:
		return "", nil
	case string:
		return tv, nil
	case bool:
		return strconv.FormatBool(tv), nil
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64), nil
	case []any:
		parts := make([]string, 0, len(tv))
		for _, e := range tv {
			s, err := fieldText(e)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	default:
		return "", errNestedValue
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string][]string{"result": {msg}})
}
