// Package store is the durable local database: named collections of JSON
// documents with secondary indexes, backed by SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fekuna/omnipos-offline/internal/apperror"
	"github.com/fekuna/omnipos-offline/internal/logger"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const MemoryPath = ":memory:"

type Config struct {
	// Path of the database file, or MemoryPath.
	Path string
}

type Store struct {
	db          *sqlx.DB
	collections map[string]Collection
	logger      logger.ZapLogger
}

// Open opens or creates the database at cfg.Path and migrates it to SchemaVersion.
func Open(ctx context.Context, cfg Config, log logger.ZapLogger) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = MemoryPath
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, apperror.Storage("store.open", fmt.Errorf("create data directory: %w", err))
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, apperror.Storage("store.open", err)
	}
	// One connection serializes writers and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperror.Storage("store.open", err)
	}
	if path != MemoryPath {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			db.Close()
			return nil, apperror.Storage("store.open", fmt.Errorf("enable WAL mode: %w", err))
		}
	}

	s := &Store{db: db, collections: make(map[string]Collection, len(Schema)), logger: log}
	for _, c := range Schema {
		s.collections[c.Name] = c
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, apperror.Storage("store.migrate", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) collection(name string) (Collection, error) {
	c, ok := s.collections[name]
	if !ok {
		return Collection{}, apperror.Validation("store", "unknown collection %q", name)
	}
	return c, nil
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func column(ix Index) string {
	return quote("ix_" + ix.Name)
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperror.Storage("store.begin", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperror.Storage("store.commit", err)
	}
	return nil
}

// Put inserts or replaces record by primary key and returns the key. For
// auto-increment collections a missing or zero key is assigned by the store.
func (s *Store) Put(ctx context.Context, collection string, record any) (any, error) {
	c, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	var key any
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		key, err = s.put(ctx, tx, c, record)
		return err
	})
	if err != nil {
		return nil, err
	}
	return key, nil
}

// BulkPut writes all records in one transaction; any failure rolls back the batch.
func (s *Store) BulkPut(ctx context.Context, collection string, records []any) (int, error) {
	c, err := s.collection(collection)
	if err != nil {
		return 0, err
	}
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		for i, r := range records {
			if _, err := s.put(ctx, tx, c, r); err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *Store) put(ctx context.Context, tx *sqlx.Tx, c Collection, record any) (any, error) {
	doc, fields, err := encode(record)
	if err != nil {
		return nil, apperror.Validation("store.put", "%s: %v", c.Name, err)
	}

	cols := []string{"doc"}
	vals := []any{string(doc)}
	for _, ix := range c.Indexes {
		cols = append(cols, column(ix))
		vals = append(vals, normalize(fields[ix.Field]))
	}
	key := normalize(fields[c.KeyPath])

	if c.AutoIncrement && isZeroKey(key) {
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(c.Name), strings.Join(cols, ", "), placeholders(len(cols)))
		res, err := tx.ExecContext(ctx, q, vals...)
		if err != nil {
			return nil, fmt.Errorf("insert into %s: %w", c.Name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		q = fmt.Sprintf("UPDATE %s SET doc = json_set(doc, '$.%s', pk) WHERE pk = ?", quote(c.Name), c.KeyPath)
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return nil, fmt.Errorf("assign key in %s: %w", c.Name, err)
		}
		return id, nil
	}

	if isZeroKey(key) {
		return nil, apperror.Validation("store.put", "%s: record has no %q", c.Name, c.KeyPath)
	}

	cols = append([]string{"pk"}, cols...)
	vals = append([]any{key}, vals...)
	q := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)", quote(c.Name), strings.Join(cols, ", "), placeholders(len(cols)))
	if _, err := tx.ExecContext(ctx, q, vals...); err != nil {
		return nil, fmt.Errorf("put into %s: %w", c.Name, err)
	}
	return key, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Get returns the document stored under key, or nil if there is none.
func (s *Store) Get(ctx context.Context, collection string, key any) (json.RawMessage, error) {
	c, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	k, err := arg(key)
	if err != nil {
		return nil, err
	}
	var doc string
	err = s.db.GetContext(ctx, &doc, fmt.Sprintf("SELECT doc FROM %s WHERE pk = ?", quote(c.Name)), k)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get from %s: %w", c.Name, err)
	}
	return json.RawMessage(doc), nil
}

func (s *Store) index(c Collection, name string) (Index, error) {
	for _, ix := range c.Indexes {
		if ix.Name == name {
			return ix, nil
		}
	}
	return Index{}, apperror.Validation("store", "%s has no index %q", c.Name, name)
}

// GetByIndex returns the first document, in key order, whose indexed field equals value.
func (s *Store) GetByIndex(ctx context.Context, collection, index string, value any) (json.RawMessage, error) {
	docs, err := s.byIndex(ctx, collection, index, value, 1)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// GetAllByIndex returns every document whose indexed field equals value.
func (s *Store) GetAllByIndex(ctx context.Context, collection, index string, value any) ([]json.RawMessage, error) {
	return s.byIndex(ctx, collection, index, value, 0)
}

func (s *Store) byIndex(ctx context.Context, collection, index string, value any, limit int) ([]json.RawMessage, error) {
	c, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	ix, err := s.index(c, index)
	if err != nil {
		return nil, err
	}
	v, err := arg(value)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf("SELECT doc FROM %s WHERE %s = ? ORDER BY pk", quote(c.Name), column(ix))
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.selectDocs(ctx, q, v)
}

func (s *Store) GetAll(ctx context.Context, collection string) ([]json.RawMessage, error) {
	c, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	return s.selectDocs(ctx, fmt.Sprintf("SELECT doc FROM %s ORDER BY pk", quote(c.Name)))
}

func (s *Store) selectDocs(ctx context.Context, q string, args ...any) ([]json.RawMessage, error) {
	var docs []string
	if err := s.db.SelectContext(ctx, &docs, q, args...); err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, len(docs))
	for i, d := range docs {
		out[i] = json.RawMessage(d)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, collection string, key any) error {
	c, err := s.collection(collection)
	if err != nil {
		return err
	}
	k, err := arg(key)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE pk = ?", quote(c.Name)), k)
	return err
}

func (s *Store) Clear(ctx context.Context, collection string) error {
	c, err := s.collection(collection)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", quote(c.Name)))
	return err
}

func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	c, err := s.collection(collection)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.GetContext(ctx, &n, fmt.Sprintf("SELECT COUNT(*) FROM %s", quote(c.Name)))
	return n, err
}

// Reset empties every collection in a single transaction.
func (s *Store) Reset(ctx context.Context) error {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, c := range Schema {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", quote(c.Name))); err != nil {
				return fmt.Errorf("clear %s: %w", c.Name, err)
			}
		}
		return nil
	})
	if err == nil {
		s.logger.Info("Local store reset")
	}
	return err
}

// Version reports the schema version recorded in the database.
func (s *Store) Version(ctx context.Context) (int, error) {
	var v int
	err := s.db.GetContext(ctx, &v, "PRAGMA user_version")
	if err != nil {
		s.logger.Error("Failed to read store version", zap.Error(err))
	}
	return v, err
}
