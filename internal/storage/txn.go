package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/devghori1264/quads/internal/models"
	"github.com/google/uuid"
)

// txn is the transactional view both backends expose to the shared
// document logic below. scan returns documents ordered by key; get returns
// ErrNotFound for a missing key.
type txn interface {
	scan(c models.Collection) ([]models.Document, error)
	get(c models.Collection, key string) (models.Document, error)
	exists(c models.Collection, key string) (bool, error)
	put(c models.Collection, key string, doc models.Document) error
	del(c models.Collection, key string) error
}

var now = func() time.Time { return time.Now().UTC() }

func (f Filter) match(doc models.Document) bool {
	for field, want := range f {
		if !doc.Match(field, want) {
			return false
		}
	}
	return true
}

func find(tx txn, c models.Collection, f Filter) ([]models.Document, error) {
	docs, err := tx.scan(c)
	if err != nil {
		return nil, err
	}
	out := make([]models.Document, 0, len(docs))
	for _, d := range docs {
		if f.match(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

// first resolves filters on the primary key with a point read, so a write
// transaction only reads the one document it touches.
func first(tx txn, c models.Collection, f Filter) (models.Document, error) {
	if key, ok := f[c.Key]; ok {
		doc, err := tx.get(c, key)
		if err != nil {
			return nil, err
		}
		if !f.match(doc) {
			return nil, ErrNotFound
		}
		return doc, nil
	}
	docs, err := tx.scan(c)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		if f.match(d) {
			return d, nil
		}
	}
	return nil, ErrNotFound
}

func upsert(tx txn, c models.Collection, field string, fields, defaults models.Document, overwrite bool) (Outcome, error) {
	merged := make(models.Document, len(fields)+len(defaults))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	existing, err := first(tx, c, Filter{field: merged.Text(field)})
	switch {
	case err == nil && !overwrite:
		return Exists, nil
	case err == nil:
		return Updated, replace(tx, c, existing, fields)
	case !errors.Is(err, ErrNotFound):
		return 0, err
	}

	key := merged.Text(c.Key)
	if key == "" {
		return 0, fmt.Errorf("%s: missing %s", c.Name, c.Key)
	}
	taken, err := tx.exists(c, key)
	if err != nil {
		return 0, err
	}
	if taken {
		return 0, fmt.Errorf("%s %s: %w", c.Key, key, ErrExists)
	}
	ts := now().Format(time.RFC3339)
	merged["id"] = uuid.NewString()
	merged["created_at"] = ts
	merged["updated_at"] = ts
	return Created, tx.put(c, key, merged)
}

// replace merges fields into existing and rewrites it, moving it when the
// primary key changes.
func replace(tx txn, c models.Collection, existing, fields models.Document) error {
	oldKey := existing.Text(c.Key)
	doc := existing.Clone()
	for k, v := range fields {
		doc[k] = v
	}
	doc["updated_at"] = now().Format(time.RFC3339)

	newKey := doc.Text(c.Key)
	if newKey != oldKey {
		taken, err := tx.exists(c, newKey)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%s %s: %w", c.Key, newKey, ErrExists)
		}
		if err := tx.del(c, oldKey); err != nil {
			return err
		}
	}
	return tx.put(c, newKey, doc)
}

func modifyFirst(tx txn, c models.Collection, f Filter, fn Modifier) ([]string, error) {
	existing, err := first(tx, c, f)
	if err != nil {
		return nil, err
	}
	u, problems, err := fn(existing.Clone())
	if err != nil || len(problems) > 0 {
		return problems, err
	}
	doc := existing.Clone()
	u.Apply(doc)
	doc[c.Key] = existing[c.Key]
	doc["updated_at"] = now().Format(time.RFC3339)
	return nil, tx.put(c, existing.Text(c.Key), doc)
}

func updateFirst(tx txn, c models.Collection, f Filter, u models.Update) error {
	_, err := modifyFirst(tx, c, f, func(models.Document) (models.Update, []string, error) {
		return u, nil, nil
	})
	return err
}

func deleteFirst(tx txn, c models.Collection, f Filter) error {
	existing, err := first(tx, c, f)
	if err != nil {
		return err
	}
	return tx.del(c, existing.Text(c.Key))
}
