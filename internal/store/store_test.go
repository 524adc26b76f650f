package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/fekuna/omnipos-offline/internal/apperror"
	"github.com/fekuna/omnipos-offline/internal/logger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Barcode *string `json:"barcode,omitempty"`
	Price   float64 `json:"price"`
}

type action struct {
	ID       int64  `json:"id,omitempty"`
	Type     string `json:"actionType"`
	Priority int    `json:"priority"`
	Synced   bool   `json:"synced"`
}

func str(s string) *string { return &s }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Path: MemoryPath}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesSchema(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)

	for _, c := range Schema {
		n, err := s.Count(ctx, c.Name)
		require.NoError(t, err, c.Name)
		assert.Zero(t, n)
	}
}

func TestPutAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key, err := s.Put(ctx, Items, item{ID: 7, Name: "Paracetamol", Barcode: str("111")})
	require.NoError(t, err)
	assert.Equal(t, int64(7), key)

	got, err := One[item](ctx, s, Items, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Paracetamol", got.Name)

	// replace by key
	_, err = s.Put(ctx, Items, item{ID: 7, Name: "Paracetamol 500mg"})
	require.NoError(t, err)
	got, err = One[item](ctx, s, Items, int64(7))
	require.NoError(t, err)
	assert.Equal(t, "Paracetamol 500mg", got.Name)
	assert.Nil(t, got.Barcode)

	missing, err := One[item](ctx, s, Items, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAutoIncrementAssignsKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	k1, err := s.Put(ctx, PendingActions, action{Type: "sale", Priority: 5})
	require.NoError(t, err)
	k2, err := s.Put(ctx, PendingActions, action{Type: "sale", Priority: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), k1)
	assert.Equal(t, int64(2), k2)

	got, err := One[action](ctx, s, PendingActions, k2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ID, "assigned key is written back into the document")
}

func TestPutWithoutKeyRejected(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Put(context.Background(), Items, map[string]any{"name": "no id"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestUnknownCollection(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "nope", 1)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestDuplicateBarcodesTolerated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := PutAll(ctx, s, Items, []item{
		{ID: 2, Name: "B", Barcode: str("X")},
		{ID: 1, Name: "A", Barcode: str("X")},
		{ID: 3, Name: "C", Barcode: str("Y")},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, err := AllByIndex[item](ctx, s, Items, "barcode", "X")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(1), all[0].ID)
	assert.Equal(t, int64(2), all[1].ID)

	first, err := ByIndex[item](ctx, s, Items, "barcode", "X")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.ID)

	none, err := ByIndex[item](ctx, s, Items, "barcode", "Z")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestBooleanIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := PutAll(ctx, s, PendingActions, []action{
		{Type: "a", Synced: false},
		{Type: "b", Synced: true},
		{Type: "c", Synced: false},
	})
	require.NoError(t, err)

	pending, err := AllByIndex[action](ctx, s, PendingActions, "synced", false)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a", pending[0].Type)
	assert.Equal(t, "c", pending[1].Type)
}

func TestBulkPutRollsBackOnFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.BulkPut(ctx, Items, []any{
		item{ID: 1, Name: "ok"},
		map[string]any{"name": "missing key"},
	})
	require.Error(t, err)

	n, err := s.Count(ctx, Items)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUniqueIndexViolationRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.BulkPut(ctx, Receipts, []any{
		map[string]any{"receipt_id": "R-1"},
		map[string]any{"receipt_id": "R-1"},
	})
	require.Error(t, err)

	n, err := s.Count(ctx, Receipts)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteClearReset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := PutAll(ctx, s, Items, []item{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}})
	require.NoError(t, err)
	_, err = s.Put(ctx, SyncMetadata, map[string]any{"key": "lastFullSync", "value": "x"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, Items, 1))
	n, _ := s.Count(ctx, Items)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Clear(ctx, Items))
	n, _ = s.Count(ctx, Items)
	assert.Zero(t, n)

	meta, err := s.Get(ctx, SyncMetadata, "lastFullSync")
	require.NoError(t, err)
	assert.NotNil(t, meta)

	require.NoError(t, s.Reset(ctx))
	n, _ = s.Count(ctx, SyncMetadata)
	assert.Zero(t, n)
}

func TestGetAllKeepsRawDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, Customers, json.RawMessage(`{"id":4,"name":"Ann","phone":"555","loyalty":{"points":3}}`))
	require.NoError(t, err)

	docs, err := s.GetAll(ctx, Customers)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.JSONEq(t, `{"id":4,"name":"Ann","phone":"555","loyalty":{"points":3}}`, string(docs[0]))

	byPhone, err := s.GetByIndex(ctx, Customers, "phone", "555")
	require.NoError(t, err)
	assert.NotNil(t, byPhone)
}

func TestUnknownIndex(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetAllByIndex(context.Background(), Suppliers, "phone", "1")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestMigrationFromOlderVersionKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pos.db")

	// A version 3 database: items existed without a barcode column and
	// customBarcodes did not exist yet.
	old, err := sqlx.Open("sqlite", path)
	require.NoError(t, err)
	_, err = old.Exec(`CREATE TABLE "items" (pk NOT NULL PRIMARY KEY, doc TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = old.Exec(`INSERT INTO "items" (pk, doc) VALUES (5, '{"id":5,"name":"Amoxicillin","barcode":"777"}')`)
	require.NoError(t, err)
	_, err = old.Exec(`PRAGMA user_version = 3`)
	require.NoError(t, err)
	require.NoError(t, old.Close())

	s, err := Open(ctx, Config{Path: path}, logger.NewNop())
	require.NoError(t, err)

	v, err := s.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)

	got, err := ByIndex[item](ctx, s, Items, "barcode", "777")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Amoxicillin", got.Name)

	n, err := s.Count(ctx, CustomBarcodes)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, s.Close())

	// reopening at the current version is a no-op
	s, err = Open(ctx, Config{Path: path}, logger.NewNop())
	require.NoError(t, err)
	defer s.Close()
	n, err = s.Count(ctx, Items)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pos.db")
	db, err := sqlx.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`PRAGMA user_version = 99`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(context.Background(), Config{Path: path}, logger.NewNop())
	assert.ErrorIs(t, err, apperror.ErrStorageUnavailable)
}
