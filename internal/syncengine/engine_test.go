package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-offline/internal/api"
	"github.com/fekuna/omnipos-offline/internal/apperror"
	"github.com/fekuna/omnipos-offline/internal/logger"
	"github.com/fekuna/omnipos-offline/internal/model"
	"github.com/fekuna/omnipos-offline/internal/queue"
	"github.com/fekuna/omnipos-offline/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu       sync.Mutex
	posts    map[string][][]model.PendingAction
	failFor  map[string]error
	snapshot *api.InitialData
	pullErr  error
	block    chan struct{}
	entered  chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{posts: map[string][][]model.PendingAction{}, failFor: map[string]error{}}
}

func (f *fakeTransport) PostSync(ctx context.Context, endpoint string, actions []model.PendingAction) error {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts[endpoint] = append(f.posts[endpoint], actions)
	return f.failFor[endpoint]
}

func (f *fakeTransport) InitialData(ctx context.Context) (*api.InitialData, error) {
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return f.snapshot, nil
}

func (f *fakeTransport) batches(endpoint string) [][]model.PendingAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.posts[endpoint]
}

type staticOnline bool

func (s staticOnline) IsOnline() bool { return bool(s) }

func setup(t *testing.T, tr Transport, opts ...Option) (*Engine, *queue.Queue, *store.Store) {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{Path: store.MemoryPath}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	q := queue.New(s, logger.NewNop())
	return New(q, s, tr, logger.NewNop(), opts...), q, s
}

func enqueueRecord(t *testing.T, q *queue.Queue, typ string) *model.PendingAction {
	t.Helper()
	rec, err := queue.NewRecord(typ, map[string]any{"ref": typ})
	require.NoError(t, err)
	a, err := q.Enqueue(context.Background(), rec)
	require.NoError(t, err)
	return a
}

func TestSyncPendingActionsByCategory(t *testing.T) {
	tr := newFakeTransport()
	e, q, _ := setup(t, tr)
	ctx := context.Background()

	item, err := q.Enqueue(ctx, queue.CreateItem{Barcode: "5000123456", Mode: model.ModeRetail})
	require.NoError(t, err)
	enqueueRecord(t, q, "sale")
	enqueueRecord(t, q, "sale")
	enqueueRecord(t, q, "lookup_when_online")

	res, err := e.SyncPendingActions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Delivered())
	assert.Equal(t, 1, res.Unrouted)

	inv := tr.batches("/api/inventory/sync/")
	require.Len(t, inv, 1)
	assert.Equal(t, item.ID, inv[0][0].ID)
	assert.Len(t, tr.batches("/api/sales/sync/")[0], 2)

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1, "unrouted actions stay queued")
	assert.Equal(t, "lookup_when_online", pending[0].ActionType)
}

func TestFailingCategoryDoesNotBlockOthers(t *testing.T) {
	tr := newFakeTransport()
	tr.failFor["/api/sales/sync/"] = apperror.Delivery("api.post_sync", errors.New("status 500"))
	e, q, _ := setup(t, tr)
	ctx := context.Background()

	sale := enqueueRecord(t, q, "sale")
	customer := enqueueRecord(t, q, "customer")

	res, err := e.SyncPendingActions(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrSyncDelivery)
	require.Len(t, res.Categories, 2)

	got, err := q.Get(ctx, customer.ID)
	require.NoError(t, err)
	assert.True(t, got.Synced)

	got, err = q.Get(ctx, sale.ID)
	require.NoError(t, err)
	assert.False(t, got.Synced)
	assert.Equal(t, 1, got.RetryCount)
	assert.Contains(t, got.LastError, "status 500")
}

func TestRetryCeilingStopsRedelivery(t *testing.T) {
	tr := newFakeTransport()
	tr.failFor["/api/receipts/sync/"] = errors.New("down")
	e, q, _ := setup(t, tr)
	ctx := context.Background()

	enqueueRecord(t, q, "receipt")
	for i := 0; i < 3; i++ {
		_, err := e.SyncPendingActions(ctx)
		require.Error(t, err)
	}

	res, err := e.SyncPendingActions(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Categories)
	assert.Len(t, tr.batches("/api/receipts/sync/"), 3)

	failed, err := q.ListFailed(ctx)
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

func TestConcurrentTriggerIsSkipped(t *testing.T) {
	tr := newFakeTransport()
	tr.block = make(chan struct{})
	tr.entered = make(chan struct{}, 1)
	e, q, _ := setup(t, tr)
	ctx := context.Background()

	enqueueRecord(t, q, "sale")

	done := make(chan error, 1)
	go func() {
		_, err := e.SyncPendingActions(ctx)
		done <- err
	}()
	<-tr.entered
	assert.True(t, e.Syncing())

	res, err := e.SyncPendingActions(ctx)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	close(tr.block)
	require.NoError(t, <-done)
	assert.Len(t, tr.batches("/api/sales/sync/"), 1)
	assert.False(t, e.Syncing())
}

func TestMarkSyncedPreventsRedelivery(t *testing.T) {
	tr := newFakeTransport()
	e, q, _ := setup(t, tr)
	ctx := context.Background()

	enqueueRecord(t, q, "supplier")
	_, err := e.SyncPendingActions(ctx)
	require.NoError(t, err)
	_, err = e.SyncPendingActions(ctx)
	require.NoError(t, err)

	assert.Len(t, tr.batches("/api/suppliers/sync/"), 1)
}

func TestOfflineShortCircuit(t *testing.T) {
	tr := newFakeTransport()
	tr.pullErr = errors.New("must not be called")
	e, q, _ := setup(t, tr, WithOnlineChecker(staticOnline(false)))
	ctx := context.Background()

	enqueueRecord(t, q, "sale")
	full, err := e.PerformFullSync(ctx)
	require.NoError(t, err)
	assert.True(t, full.Push.Offline)
	assert.True(t, full.Pull.Offline)
	assert.Empty(t, tr.batches("/api/sales/sync/"))
}

func snapshot() *api.InitialData {
	return &api.InitialData{
		Inventory: []json.RawMessage{
			json.RawMessage(`{"id":1,"name":"Paracetamol","barcode":"111"}`),
			json.RawMessage(`{"id":2,"name":"Ibuprofen","barcode":"222"}`),
			json.RawMessage(`{"id":3,"name":"Cetirizine"}`),
		},
		Wholesale: []json.RawMessage{json.RawMessage(`{"id":1,"name":"Paracetamol x100"}`)},
		Customers: []json.RawMessage{json.RawMessage(`{"id":5,"name":"Ann","phone":"555"}`)},
		Suppliers: []json.RawMessage{},
	}
}

func TestSyncFromServer(t *testing.T) {
	tr := newFakeTransport()
	tr.snapshot = snapshot()
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	e, _, s := setup(t, tr, WithClock(func() time.Time { return at }))
	ctx := context.Background()

	var events []Event
	e.Subscribe(func(ev Event) { events = append(events, ev) })

	res, err := e.SyncFromServer(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Counts[store.Items])
	assert.Equal(t, 1, res.Counts[store.WholesaleItems])

	items, err := s.GetAll(ctx, store.Items)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	last, ok, err := e.LastFullSync(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, last.Equal(at))

	require.Len(t, events, 2)
	assert.Equal(t, StatusSyncing, events[0].Status)
	assert.Equal(t, StatusSuccess, events[1].Status)
}

func TestSnapshotLeavesStaleRecords(t *testing.T) {
	tr := newFakeTransport()
	tr.snapshot = snapshot()
	e, _, s := setup(t, tr)
	ctx := context.Background()

	_, err := s.Put(ctx, store.Items, json.RawMessage(`{"id":99,"name":"Discontinued"}`))
	require.NoError(t, err)

	_, err = e.SyncFromServer(ctx)
	require.NoError(t, err)
	n, err := s.Count(ctx, store.Items)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestFullSyncPullRunsAfterPushFailure(t *testing.T) {
	tr := newFakeTransport()
	tr.failFor["/api/sales/sync/"] = errors.New("down")
	tr.snapshot = snapshot()
	e, q, _ := setup(t, tr)
	ctx := context.Background()

	enqueueRecord(t, q, "sale")
	full, err := e.PerformFullSync(ctx)
	require.Error(t, err)
	require.NotNil(t, full.Pull)
	assert.Equal(t, 3, full.Pull.Counts[store.Items])
}

func TestEnsureInitialData(t *testing.T) {
	tr := newFakeTransport()
	tr.snapshot = snapshot()
	e, _, _ := setup(t, tr)
	ctx := context.Background()

	ran, err := e.EnsureInitialData(ctx)
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = e.EnsureInitialData(ctx)
	require.NoError(t, err)
	assert.False(t, ran, "metadata present")
}

func TestEnsureInitialDataOffline(t *testing.T) {
	tr := newFakeTransport()
	e, _, _ := setup(t, tr, WithOnlineChecker(staticOnline(false)))

	ran, err := e.EnsureInitialData(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
}
