package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/devghori1264/quads/internal/models"
	"github.com/devghori1264/quads/internal/schema"
	"github.com/devghori1264/quads/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

// CloudOnly is the list filter that fetches a single cloud by name.
const CloudOnly = "cloudonly"

// ResourceHandler serves whole documents of one collection, addressed by
// Field. Several resources may share a collection with different fields.
type ResourceHandler struct {
	Resource   string
	Collection models.Collection
	Field      string

	validator schema.Validator
	srv       *Server
}

// List returns the documents matching the query's field filters.
func (h *ResourceHandler) List(ctx context.Context, query models.Fields) Result {
	ctx, span := h.srv.start(ctx, "resource.list", h.Resource)
	defer span.End()

	if name, ok := query[CloudOnly]; ok {
		docs, err := h.srv.store.Find(ctx, models.Clouds, storage.Filter{models.Clouds.Key: name})
		if err != nil {
			return h.srv.finish(span, h.Resource, "list", failed(err))
		}
		if len(docs) == 0 {
			res := message(http.StatusNotFound, fmt.Sprintf("Cloud %s Not Found", name))
			res.bare = true
			return h.srv.finish(span, h.Resource, "list", res)
		}
		return h.srv.finish(span, h.Resource, "list", listed(docs))
	}

	filter := storage.Filter{}
	for k, v := range query {
		filter[k] = v
	}
	docs, err := h.srv.store.Find(ctx, h.Collection, filter)
	if err != nil {
		return h.srv.finish(span, h.Resource, "list", failed(err))
	}
	return h.srv.finish(span, h.Resource, "list", listed(docs))
}

// Save creates the document, or updates it in place when force is set and
// a document with the same name field value exists. PUT and POST both land
// here.
func (h *ResourceHandler) Save(ctx context.Context, in models.Fields) Result {
	ctx, span := h.srv.start(ctx, "resource.save", h.Resource)
	defer span.End()

	fields := make(models.Fields, len(in))
	for k, v := range in {
		fields[k] = v
	}
	force := false
	if raw, ok := fields["force"]; ok {
		force, _ = strconv.ParseBool(raw)
		delete(fields, "force")
	}
	span.SetAttributes(attribute.Bool("force", force))

	problems, p, err := h.validator.Prepare(ctx, fields)
	if err != nil {
		return h.srv.finish(span, h.Resource, "save", failed(err))
	}
	if len(problems) > 0 {
		return h.srv.finish(span, h.Resource, "save", invalid(problems))
	}

	value := p.Fields.Text(h.Field)
	if value == "" {
		value = p.Defaults.Text(h.Field)
	}
	if value == "" {
		return h.srv.finish(span, h.Resource, "save", invalid([]string{h.Field + " is required"}))
	}

	outcome, err := h.srv.store.Upsert(ctx, h.Collection, h.Field, p.Fields, p.Defaults, force)
	var res Result
	switch {
	case errors.Is(err, storage.ErrExists):
		res = message(http.StatusConflict, fmt.Sprintf("%s %s already exists", h.Collection.Key, p.Fields.Text(h.Collection.Key)))
	case err != nil:
		res = failed(err)
	case outcome == storage.Exists:
		res = message(http.StatusConflict, fmt.Sprintf("%s %s already exists", h.Field, value))
	case outcome == storage.Updated:
		res = message(http.StatusOK, fmt.Sprintf("Updated %s %s", h.Field, value))
		h.srv.emit(ctx, models.Event{Event: models.EventUpdated, Resource: h.Resource, Name: value})
	default:
		res = message(http.StatusCreated, fmt.Sprintf("Created %s %s", h.Field, value))
		h.srv.emit(ctx, models.Event{Event: models.EventCreated, Resource: h.Resource, Name: value})
	}
	return h.srv.finish(span, h.Resource, "save", res)
}

// Delete removes the document whose name field equals name.
func (h *ResourceHandler) Delete(ctx context.Context, name string) Result {
	ctx, span := h.srv.start(ctx, "resource.delete", h.Resource, attribute.String("name", name))
	defer span.End()

	err := h.srv.store.DeleteFirst(ctx, h.Collection, storage.Filter{h.Field: name})
	var res Result
	switch {
	case errors.Is(err, storage.ErrNotFound):
		res = message(http.StatusNotFound, fmt.Sprintf("%s %s Not Found", h.Field, name))
	case err != nil:
		res = failed(err)
	default:
		res = message(http.StatusOK, fmt.Sprintf("deleted %s %s", h.Field, name))
		h.srv.emit(ctx, models.Event{Event: models.EventDeleted, Resource: h.Resource, Name: name})
	}
	return h.srv.finish(span, h.Resource, "delete", res)
}
