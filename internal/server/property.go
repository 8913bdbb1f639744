package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/devghori1264/quads/internal/models"
	"github.com/devghori1264/quads/internal/schema"
	"github.com/devghori1264/quads/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

// PropertyHandler serves the items of one nested property of the documents
// of a parent resource, e.g. a host's schedule.
type PropertyHandler struct {
	Resource   string
	Property   string
	Collection models.Collection
	Field      string

	validator schema.PropertyValidator
	srv       *Server
}

// List returns every parent document, unfiltered.
func (h *PropertyHandler) List(ctx context.Context) Result {
	ctx, span := h.srv.start(ctx, "property.list", h.Property)
	defer span.End()

	docs, err := h.srv.store.Find(ctx, h.Collection, nil)
	if err != nil {
		return h.srv.finish(span, h.Property, "list", failed(err))
	}
	return h.srv.finish(span, h.Property, "list", listed(docs))
}

// Save adds an item, or replaces the item with the same key. Checks against
// the parent's other items run inside the store transaction.
func (h *PropertyHandler) Save(ctx context.Context, in models.Fields) Result {
	ctx, span := h.srv.start(ctx, "property.save", h.Property)
	defer span.End()

	problems, item, err := h.validator.PrepareItem(ctx, in)
	if err != nil {
		return h.srv.finish(span, h.Property, "save", failed(err))
	}
	if len(problems) > 0 {
		return h.srv.finish(span, h.Property, "save", invalid(problems))
	}
	span.SetAttributes(attribute.String("name", item.Parent))

	var key string
	problems, err = h.srv.store.ModifyFirst(ctx, h.Collection, storage.Filter{h.Collection.Key: item.Parent},
		func(parent models.Document) (models.Update, []string, error) {
			k, u, problems := item.Resolve(parent)
			key = k
			return u, problems, nil
		})
	var res Result
	switch {
	case errors.Is(err, storage.ErrNotFound):
		res = h.notFound(item.Parent)
	case err != nil:
		res = failed(err)
	case len(problems) > 0:
		res = invalid(problems)
	default:
		span.SetAttributes(attribute.String("item", key))
		res = message(http.StatusCreated, fmt.Sprintf("Added %s %s to %s %s", h.Property, key, h.Resource, item.Parent))
		h.srv.emit(ctx, models.Event{
			Event:    models.EventPropertyAdded,
			Resource: h.Resource,
			Name:     item.Parent,
			Property: h.Property,
			Item:     key,
		})
	}
	return h.srv.finish(span, h.Property, "save", res)
}

// Remove drops item from the property of the parent named name. Removing an
// item that is not there still succeeds.
func (h *PropertyHandler) Remove(ctx context.Context, item, name string) Result {
	ctx, span := h.srv.start(ctx, "property.remove", h.Property,
		attribute.String("name", name), attribute.String("item", item))
	defer span.End()

	u := models.Update{Unset: []string{h.Property + "." + item}}
	err := h.srv.store.UpdateFirst(ctx, h.Collection, storage.Filter{h.Field: name}, u)
	var res Result
	switch {
	case errors.Is(err, storage.ErrNotFound):
		res = h.notFound(name)
	case err != nil:
		res = failed(err)
	default:
		res = message(http.StatusOK, fmt.Sprintf("deleted %s from %s", h.Property, name))
		h.srv.emit(ctx, models.Event{
			Event:    models.EventPropertyRemoved,
			Resource: h.Resource,
			Name:     name,
			Property: h.Property,
			Item:     item,
		})
	}
	return h.srv.finish(span, h.Property, "remove", res)
}

func (h *PropertyHandler) notFound(name string) Result {
	return message(http.StatusNotFound, fmt.Sprintf("%s Not Found for %s %s", h.Property, h.Resource, name))
}
