// Package schema turns raw request fields into documents ready for the store.
//
// Validators never write. They report every problem they find as a
// human-readable message and reserve the error return for lookups that
// failed for reasons unrelated to the input.
package schema

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/devghori1264/quads/internal/models"
	"github.com/devghori1264/quads/internal/storage"
)

// Lookup is the read side of storage.Store the validators need.
type Lookup interface {
	First(ctx context.Context, c models.Collection, f storage.Filter) (models.Document, error)
}

// Prepared is a validated document. Fields holds what the client sent,
// Defaults what the validator filled in for omitted fields.
type Prepared struct {
	Fields   models.Document
	Defaults models.Document
}

// Validator prepares whole documents of one collection.
type Validator interface {
	Prepare(ctx context.Context, in models.Fields) ([]string, Prepared, error)
}

// Item is a validated sub-property change on the parent document whose key
// is Parent. Checks that depend on the other items of the property live in
// Resolve, which the store runs on the parent as it is stored inside the
// write transaction. Resolve may run more than once.
type Item struct {
	Parent  string
	Resolve func(parent models.Document) (key string, u models.Update, problems []string)
}

// fixedItem resolves to the same key and update whatever the parent holds.
func fixedItem(parent, key string, u models.Update) Item {
	return Item{
		Parent: parent,
		Resolve: func(models.Document) (string, models.Update, []string) {
			return key, u, nil
		},
	}
}

// PropertyValidator prepares one item of a named sub-property.
type PropertyValidator interface {
	PrepareItem(ctx context.Context, in models.Fields) ([]string, Item, error)
}

// Properties returns the property validators by property name.
func Properties(l Lookup) map[string]PropertyValidator {
	return map[string]PropertyValidator{
		"schedule":   &Schedule{lookup: l},
		"interfaces": &Interfaces{lookup: l},
	}
}

// unknown reports fields outside allowed, sorted for stable output.
func unknown(in models.Fields, allowed ...string) []string {
	known := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		known[a] = true
	}
	var out []string
	for k := range in {
		if !known[k] {
			out = append(out, "unknown field "+k)
		}
	}
	sort.Strings(out)
	return out
}

func required(in models.Fields, field string) (string, string) {
	v := strings.TrimSpace(in[field])
	if v == "" {
		return "", field + " is required"
	}
	return v, ""
}

func parseBool(field, raw string) (bool, string) {
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Sprintf("invalid boolean for %s: %q", field, raw)
	}
	return b, ""
}

func splitList(raw string) []any {
	out := []any{}
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// mustExist checks that a document with key value exists in c.
func mustExist(ctx context.Context, l Lookup, c models.Collection, value string) (models.Document, string, error) {
	doc, err := l.First(ctx, c, storage.Filter{c.Key: value})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Sprintf("%s %s not found", c.Key, value), nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("lookup %s %s: %w", c.Key, value, err)
	}
	return doc, "", nil
}

type problems []string

func (p *problems) add(msg string) {
	if msg != "" {
		*p = append(*p, msg)
	}
}
