// Package syncengine drains the pending action queue to the server and pulls
// catalog snapshots into the local store.
package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fekuna/omnipos-offline/internal/api"
	"github.com/fekuna/omnipos-offline/internal/logger"
	"github.com/fekuna/omnipos-offline/internal/model"
	"github.com/fekuna/omnipos-offline/internal/queue"
	"github.com/fekuna/omnipos-offline/internal/store"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const LastFullSyncKey = "lastFullSync"

// Transport is the slice of the server API the engine needs.
type Transport interface {
	PostSync(ctx context.Context, endpoint string, actions []model.PendingAction) error
	InitialData(ctx context.Context) (*api.InitialData, error)
}

type OnlineChecker interface {
	IsOnline() bool
}

type Engine struct {
	queue     *queue.Queue
	store     *store.Store
	transport Transport
	online    OnlineChecker
	now       func() time.Time
	logger    logger.ZapLogger

	syncing atomic.Bool

	mu      sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

type Option func(*Engine)

// WithOnlineChecker makes the engine skip network work while offline.
func WithOnlineChecker(c OnlineChecker) Option {
	return func(e *Engine) { e.online = c }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(q *queue.Queue, s *store.Store, t Transport, log logger.ZapLogger, opts ...Option) *Engine {
	e := &Engine{
		queue:     q,
		store:     s,
		transport: t,
		now:       time.Now,
		logger:    log,
		subs:      make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) offline() bool {
	return e.online != nil && !e.online.IsOnline()
}

// Syncing reports whether a pending-action drain is in flight.
func (e *Engine) Syncing() bool {
	return e.syncing.Load()
}

// SyncPendingActions delivers every pending action, one POST per category.
// A call made while another drain is running returns a skipped result. A
// failing category does not stop the others; its actions have a failure
// recorded and the combined error is returned.
func (e *Engine) SyncPendingActions(ctx context.Context) (*Result, error) {
	if !e.syncing.CompareAndSwap(false, true) {
		e.logger.Debug("Sync already in progress, skipping")
		return &Result{Skipped: true}, nil
	}
	defer e.syncing.Store(false)

	res := &Result{StartedAt: e.now()}
	if e.offline() {
		res.Offline = true
		res.FinishedAt = e.now()
		return res, nil
	}

	e.publish(Event{Phase: PhasePush, Status: StatusSyncing, At: res.StartedAt})

	pending, err := e.queue.ListPending(ctx)
	if err != nil {
		e.publish(Event{Phase: PhasePush, Status: StatusError, Error: err.Error(), At: e.now()})
		return nil, fmt.Errorf("list pending actions: %w", err)
	}

	groups, unrouted := queue.GroupByCategory(pending)
	res.Unrouted = len(unrouted)
	for _, a := range unrouted {
		e.logger.Warn("Pending action has no sync category",
			zap.Int64("action_id", a.ID),
			zap.String("action_type", a.ActionType),
		)
	}

	var errs error
	for _, category := range queue.Categories() {
		batch, ok := groups[category]
		if !ok {
			continue
		}
		cr := e.deliver(ctx, category, batch)
		res.Categories = append(res.Categories, cr)
		errs = multierr.Append(errs, cr.Err)
	}
	res.FinishedAt = e.now()

	if errs != nil {
		e.publish(Event{Phase: PhasePush, Status: StatusError, Result: res, Error: errs.Error(), At: res.FinishedAt})
		return res, errs
	}
	e.publish(Event{Phase: PhasePush, Status: StatusSuccess, Result: res, At: res.FinishedAt})
	return res, nil
}

func (e *Engine) deliver(ctx context.Context, category string, batch []model.PendingAction) CategoryResult {
	endpoint := queue.Endpoint(category)
	cr := CategoryResult{Category: category, Endpoint: endpoint}

	if err := e.transport.PostSync(ctx, endpoint, batch); err != nil {
		e.logger.Error("Failed to deliver pending actions",
			zap.String("category", category),
			zap.Int("count", len(batch)),
			zap.Error(err),
		)
		for _, a := range batch {
			if _, ferr := e.queue.RecordFailure(ctx, a.ID, err); ferr != nil {
				err = multierr.Append(err, ferr)
			}
		}
		cr.Failed = len(batch)
		cr.Err = err
		return cr
	}

	for _, a := range batch {
		if err := e.queue.MarkSynced(ctx, a.ID); err != nil {
			cr.Err = multierr.Append(cr.Err, err)
			continue
		}
		cr.Delivered++
	}
	e.logger.Info("Pending actions delivered",
		zap.String("category", category),
		zap.Int("count", cr.Delivered),
	)
	return cr
}

// SyncFromServer pulls the catalog snapshot and upserts it collection by
// collection. Local records missing from the snapshot are left in place.
func (e *Engine) SyncFromServer(ctx context.Context) (*PullResult, error) {
	if e.offline() {
		return &PullResult{Offline: true}, nil
	}
	e.publish(Event{Phase: PhasePull, Status: StatusSyncing, At: e.now()})

	data, err := e.transport.InitialData(ctx)
	if err != nil {
		e.publish(Event{Phase: PhasePull, Status: StatusError, Error: err.Error(), At: e.now()})
		return nil, fmt.Errorf("fetch initial data: %w", err)
	}

	res := &PullResult{Counts: make(map[string]int)}
	for _, part := range []struct {
		collection string
		records    []json.RawMessage
	}{
		{store.Items, data.Inventory},
		{store.WholesaleItems, data.Wholesale},
		{store.Customers, data.Customers},
		{store.WholesaleCustomers, data.WholesaleCustomers},
		{store.Suppliers, data.Suppliers},
	} {
		n, err := store.PutAll(ctx, e.store, part.collection, part.records)
		if err != nil {
			e.publish(Event{Phase: PhasePull, Status: StatusError, Error: err.Error(), At: e.now()})
			return nil, fmt.Errorf("store %s: %w", part.collection, err)
		}
		res.Counts[part.collection] = n
	}

	res.At = e.now()
	if err := e.setLastFullSync(ctx, res.At); err != nil {
		return nil, err
	}

	e.logger.Info("Catalog snapshot stored",
		zap.Int("items", res.Counts[store.Items]),
		zap.Int("wholesale_items", res.Counts[store.WholesaleItems]),
		zap.Int("customers", res.Counts[store.Customers]),
	)
	e.publish(Event{Phase: PhasePull, Status: StatusSuccess, Pull: res, At: res.At})
	return res, nil
}

// PerformFullSync drains pending actions and then pulls the snapshot. The
// pull runs even if the drain failed.
func (e *Engine) PerformFullSync(ctx context.Context) (*FullResult, error) {
	push, pushErr := e.SyncPendingActions(ctx)
	pull, pullErr := e.SyncFromServer(ctx)
	return &FullResult{Push: push, Pull: pull}, multierr.Combine(pushErr, pullErr)
}

// EnsureInitialData pulls the snapshot when no full sync has ever completed
// and the client is online. It reports whether a pull ran.
func (e *Engine) EnsureInitialData(ctx context.Context) (bool, error) {
	_, ok, err := e.LastFullSync(ctx)
	if err != nil {
		return false, err
	}
	if ok || e.offline() {
		return false, nil
	}
	if _, err := e.SyncFromServer(ctx); err != nil {
		return false, err
	}
	return true, nil
}

type lastSyncValue struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e *Engine) setLastFullSync(ctx context.Context, at time.Time) error {
	value, err := json.Marshal(lastSyncValue{Timestamp: at})
	if err != nil {
		return err
	}
	_, err = e.store.Put(ctx, store.SyncMetadata, model.SyncMetadata{
		Key:       LastFullSyncKey,
		Value:     value,
		UpdatedAt: at,
	})
	return err
}

// LastFullSync returns when the last snapshot pull completed.
func (e *Engine) LastFullSync(ctx context.Context) (time.Time, bool, error) {
	meta, err := store.One[model.SyncMetadata](ctx, e.store, store.SyncMetadata, LastFullSyncKey)
	if err != nil {
		return time.Time{}, false, err
	}
	if meta == nil {
		return time.Time{}, false, nil
	}
	var v lastSyncValue
	if err := json.Unmarshal(meta.Value, &v); err != nil {
		return time.Time{}, false, errors.New("malformed lastFullSync metadata")
	}
	return v.Timestamp, true, nil
}
