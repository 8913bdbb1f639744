package storage

import (
	"context"
	"errors"

	"github.com/devghori1264/quads/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

// Filter selects documents by field equality, see models.Document.Match.
type Filter map[string]string

// Outcome reports what Upsert did.
type Outcome int

const (
	Created Outcome = iota + 1
	Updated
	Exists
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Exists:
		return "exists"
	default:
		return "unknown"
	}
}

// Modifier computes the change for doc, the matched document as it is
// stored inside the write transaction. Returning problems rejects the change
// without writing. A Modifier may run more than once.
type Modifier func(doc models.Document) (models.Update, []string, error)

// Store interface (kept minimal, allows swapping implementations).
// Every mutating call is a single atomic transaction.
type Store interface {
	// Find returns the documents of c matching f, ordered by primary key.
	Find(ctx context.Context, c models.Collection, f Filter) ([]models.Document, error)
	// First returns the first match or ErrNotFound.
	First(ctx context.Context, c models.Collection, f Filter) (models.Document, error)
	// Upsert looks up a document whose field equals the value in the merged
	// fields and defaults. Without a match it creates the document from fields
	// plus defaults. With a match it returns Exists, unless overwrite is set,
	// in which case fields (never defaults) are merged into it.
	Upsert(ctx context.Context, c models.Collection, field string, fields, defaults models.Document, overwrite bool) (Outcome, error)
	// UpdateFirst applies u to the first match or returns ErrNotFound.
	UpdateFirst(ctx context.Context, c models.Collection, f Filter, u models.Update) error
	// ModifyFirst runs fn on the first match and applies the update it
	// returns, or returns ErrNotFound. Problems reported by fn are returned
	// and nothing is written.
	ModifyFirst(ctx context.Context, c models.Collection, f Filter, fn Modifier) ([]string, error)
	// DeleteFirst removes the first match or returns ErrNotFound.
	DeleteFirst(ctx context.Context, c models.Collection, f Filter) error
	Close() error
}
