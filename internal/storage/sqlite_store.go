package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/devghori1264/quads/internal/models"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single SQLite table holding JSON
// documents. The pool is capped at one connection so every transaction is
// serialized.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			key TEXT NOT NULL,
			body TEXT NOT NULL,
			PRIMARY KEY (collection, key)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteTxn struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t sqliteTxn) scan(c models.Collection) ([]models.Document, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT body FROM documents WHERE collection = ? ORDER BY key`, c.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var doc models.Document
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (t sqliteTxn) get(c models.Collection, key string) (models.Document, error) {
	var body string
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT body FROM documents WHERE collection = ? AND key = ?`, c.Name, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var doc models.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (t sqliteTxn) exists(c models.Collection, key string) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT 1 FROM documents WHERE collection = ? AND key = ?`, c.Name, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (t sqliteTxn) put(c models.Collection, key string, doc models.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(t.ctx,
		`INSERT INTO documents (collection, key, body) VALUES (?, ?, ?)
		 ON CONFLICT (collection, key) DO UPDATE SET body = excluded.body`,
		c.Name, key, string(body))
	return err
}

func (t sqliteTxn) del(c models.Collection, key string) error {
	_, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM documents WHERE collection = ? AND key = ?`, c.Name, key)
	return err
}

func (s *SQLiteStore) run(ctx context.Context, fn func(txn) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(sqliteTxn{ctx: ctx, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Find(ctx context.Context, c models.Collection, f Filter) ([]models.Document, error) {
	var out []models.Document
	err := s.run(ctx, func(tx txn) error {
		var err error
		out, err = find(tx, c, f)
		return err
	})
	return out, err
}

func (s *SQLiteStore) First(ctx context.Context, c models.Collection, f Filter) (models.Document, error) {
	var out models.Document
	err := s.run(ctx, func(tx txn) error {
		var err error
		out, err = first(tx, c, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, c models.Collection, field string, fields, defaults models.Document, overwrite bool) (Outcome, error) {
	var out Outcome
	err := s.run(ctx, func(tx txn) error {
		var err error
		out, err = upsert(tx, c, field, fields, defaults, overwrite)
		return err
	})
	if err != nil {
		return 0, err
	}
	return out, nil
}

func (s *SQLiteStore) UpdateFirst(ctx context.Context, c models.Collection, f Filter, u models.Update) error {
	return s.run(ctx, func(tx txn) error {
		return updateFirst(tx, c, f, u)
	})
}

func (s *SQLiteStore) ModifyFirst(ctx context.Context, c models.Collection, f Filter, fn Modifier) ([]string, error) {
	var problems []string
	err := s.run(ctx, func(tx txn) error {
		var err error
		problems, err = modifyFirst(tx, c, f, fn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return problems, nil
}

func (s *SQLiteStore) DeleteFirst(ctx context.Context, c models.Collection, f Filter) error {
	return s.run(ctx, func(tx txn) error {
		return deleteFirst(tx, c, f)
	})
}
