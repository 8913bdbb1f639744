package storage

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"time"

	"github.com/devghori1264/quads/internal/models"
	badger "github.com/dgraph-io/badger/v4"
)

// conflictRetries bounds how often a transaction is replayed after Badger
// reports a write conflict; replays back off by conflictBackoff per attempt
// plus jitter.
const (
	conflictRetries = 10
	conflictBackoff = 2 * time.Millisecond
)

// BadgerStore implements Store with Badger DB. Write transactions are
// serialized by writeMu, like the single SQLite connection.
type BadgerStore struct {
	db      *badger.DB
	writeMu sync.Mutex
}

// NewBadgerStore opens a store at path. An empty path keeps everything in
// memory.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Clean(path))
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil                         // disable badger logs, zap owns logging
	opts = opts.WithValueLogFileSize(1 << 20) // smaller value log for local dev
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func docPrefix(c models.Collection) []byte {
	return []byte("doc:" + c.Name + ":")
}

func docKey(c models.Collection, key string) []byte {
	return append(docPrefix(c), key...)
}

type badgerTxn struct {
	txn *badger.Txn
}

func (t badgerTxn) scan(c models.Collection) ([]models.Document, error) {
	it := t.txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var out []models.Document
	prefix := docPrefix(c)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var doc models.Document
		err := it.Item().Value(func(v []byte) error {
			return json.Unmarshal(v, &doc)
		})
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (t badgerTxn) get(c models.Collection, key string) (models.Document, error) {
	item, err := t.txn.Get(docKey(c, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var doc models.Document
	if err := item.Value(func(v []byte) error {
		return json.Unmarshal(v, &doc)
	}); err != nil {
		return nil, err
	}
	return doc, nil
}

func (t badgerTxn) exists(c models.Collection, key string) (bool, error) {
	_, err := t.txn.Get(docKey(c, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (t badgerTxn) put(c models.Collection, key string, doc models.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return t.txn.Set(docKey(c, key), data)
}

func (t badgerTxn) del(c models.Collection, key string) error {
	return t.txn.Delete(docKey(c, key))
}

func (s *BadgerStore) view(ctx context.Context, fn func(txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *badger.Txn) error {
		return fn(badgerTxn{txn: tx})
	})
}

func (s *BadgerStore) update(ctx context.Context, fn func(txn) error) error {
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt)*conflictBackoff + rand.N(conflictBackoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err = ctx.Err(); err != nil {
			return err
		}
		s.writeMu.Lock()
		err = s.db.Update(func(tx *badger.Txn) error {
			return fn(badgerTxn{txn: tx})
		})
		s.writeMu.Unlock()
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func (s *BadgerStore) Find(ctx context.Context, c models.Collection, f Filter) ([]models.Document, error) {
	var out []models.Document
	err := s.view(ctx, func(tx txn) error {
		var err error
		out, err = find(tx, c, f)
		return err
	})
	return out, err
}

func (s *BadgerStore) First(ctx context.Context, c models.Collection, f Filter) (models.Document, error) {
	var out models.Document
	err := s.view(ctx, func(tx txn) error {
		var err error
		out, err = first(tx, c, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) Upsert(ctx context.Context, c models.Collection, field string, fields, defaults models.Document, overwrite bool) (Outcome, error) {
	var out Outcome
	err := s.update(ctx, func(tx txn) error {
		var err error
		out, err = upsert(tx, c, field, fields, defaults, overwrite)
		return err
	})
	if err != nil {
		return 0, err
	}
	return out, nil
}

func (s *BadgerStore) UpdateFirst(ctx context.Context, c models.Collection, f Filter, u models.Update) error {
	return s.update(ctx, func(tx txn) error {
		return updateFirst(tx, c, f, u)
	})
}

func (s *BadgerStore) ModifyFirst(ctx context.Context, c models.Collection, f Filter, fn Modifier) ([]string, error) {
	var problems []string
	err := s.update(ctx, func(tx txn) error {
		var err error
		problems, err = modifyFirst(tx, c, f, fn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return problems, nil
}

func (s *BadgerStore) DeleteFirst(ctx context.Context, c models.Collection, f Filter) error {
	return s.update(ctx, func(tx txn) error {
		return deleteFirst(tx, c, f)
	})
}
