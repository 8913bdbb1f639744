package server

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/devghori1264/quads/internal/models"
	"github.com/devghori1264/quads/internal/schema"
	"github.com/devghori1264/quads/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/devghori1264/quads/internal/server"

// EventPublisher receives change events after successful mutations.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev models.Event) error
}

// Server owns the resource registry and the collaborators every handler
// shares. Handlers keep no per-request state; the store holds it all.
type Server struct {
	store  storage.Store
	log    *zap.Logger
	events EventPublisher
	tracer trace.Tracer

	resources  map[string]*ResourceHandler
	properties map[string]*PropertyHandler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithEvents sets where change events go; the default drops them.
func WithEvents(p EventPublisher) Option {
	return func(s *Server) { s.events = p }
}

// New creates a server with the fixed resource table bound to store.
func New(store storage.Store, opts ...Option) (*Server, error) {
	s := &Server{
		store:      store,
		log:        zap.NewNop(),
		tracer:     otel.Tracer(tracerName),
		resources:  make(map[string]*ResourceHandler),
		properties: make(map[string]*PropertyHandler),
	}
	for _, o := range opts {
		o(s)
	}

	host := schema.NewHost(store)
	for _, field := range []string{"cloud", "owner", "ccuser", "ticket", "qinq", "wipe"} {
		s.bindResource(field, models.Clouds, field, schema.Cloud{})
	}
	s.bindResource("host", models.Hosts, "host", host)

	validators := schema.Properties(store)
	for _, prop := range []string{"schedule", "interfaces"} {
		if err := s.bindProperty("host", prop, models.Hosts, "host", validators[prop]); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Server) bindResource(name string, c models.Collection, field string, v schema.Validator) {
	s.resources[name] = &ResourceHandler{
		Resource:   name,
		Collection: c,
		Field:      field,
		validator:  v,
		srv:        s,
	}
}

func (s *Server) bindProperty(resource, prop string, c models.Collection, field string, v schema.PropertyValidator) error {
	if v == nil {
		return fmt.Errorf("no validator for property %s", prop)
	}
	s.properties[prop] = &PropertyHandler{
		Resource:   resource,
		Property:   prop,
		Collection: c,
		Field:      field,
		validator:  v,
		srv:        s,
	}
	return nil
}

// Resource returns the handler bound to name.
func (s *Server) Resource(name string) (*ResourceHandler, bool) {
	h, ok := s.resources[name]
	return h, ok
}

// Property returns the handler bound to the property name.
func (s *Server) Property(name string) (*PropertyHandler, bool) {
	h, ok := s.properties[name]
	return h, ok
}

// Resources lists the bound resource names, sorted.
func (s *Server) Resources() []string {
	out := make([]string, 0, len(s.resources))
	for name := range s.resources {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Properties lists the bound property names, sorted.
func (s *Server) Properties() []string {
	out := make([]string, 0, len(s.properties))
	for name := range s.properties {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *Server) start(ctx context.Context, op, resource string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("resource", resource))
	return s.tracer.Start(ctx, op, trace.WithAttributes(attrs...))
}

// finish records the result on the span and logs it.
func (s *Server) finish(span trace.Span, resource, op string, res Result) Result {
	span.SetAttributes(attribute.Int("http.status_code", res.Status))
	fields := []zap.Field{
		zap.String("resource", resource),
		zap.String("op", op),
		zap.Int("status", res.Status),
	}
	if res.list {
		fields = append(fields, zap.Int("documents", len(res.Docs)))
	} else {
		fields = append(fields, zap.Strings("result", res.Messages))
	}
	if res.Status >= 500 {
		span.SetStatus(codes.Error, firstMessage(res))
		s.log.Error("request failed", fields...)
		return res
	}
	s.log.Info("request handled", fields...)
	return res
}

// emit publishes ev; failures are logged and never fail the request.
func (s *Server) emit(ctx context.Context, ev models.Event) {
	if s.events == nil {
		return
	}
	ev.Time = time.Now().UTC()
	if err := s.events.PublishEvent(ctx, ev); err != nil {
		s.log.Warn("publish event failed",
			zap.String("event", ev.Event),
			zap.String("resource", ev.Resource),
			zap.Error(err))
	}
}

func firstMessage(res Result) string {
	if len(res.Messages) == 0 {
		return ""
	}
	return res.Messages[0]
}
