// Package queue persists actions that could not reach the server and tracks
// their delivery state.
package queue

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/fekuna/omnipos-offline/internal/apperror"
	"github.com/fekuna/omnipos-offline/internal/logger"
	"github.com/fekuna/omnipos-offline/internal/model"
	"github.com/fekuna/omnipos-offline/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultMaxRetries = 3

type Queue struct {
	store      *store.Store
	logger     logger.ZapLogger
	now        func() time.Time
	maxRetries int

	// serializes read-modify-write updates of a single action
	mu sync.Mutex
}

type Option func(*Queue)

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxRetries = n
		}
	}
}

func New(s *store.Store, log logger.ZapLogger, opts ...Option) *Queue {
	q := &Queue{
		store:      s,
		logger:     log,
		now:        time.Now,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

type enqueueOptions struct {
	priority int
}

type EnqueueOption func(*enqueueOptions)

// WithPriority sets the delivery priority; lower is more urgent.
func WithPriority(p int) EnqueueOption {
	return func(o *enqueueOptions) { o.priority = p }
}

// Enqueue validates and persists a new pending action.
func (q *Queue) Enqueue(ctx context.Context, p Payload, opts ...EnqueueOption) (*model.PendingAction, error) {
	o := enqueueOptions{priority: model.DefaultPriority}
	for _, opt := range opts {
		opt(&o)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, apperror.Validation("queue.enqueue", "marshal %s payload: %v", p.ActionType(), err)
	}

	a := &model.PendingAction{
		ClientID:   uuid.New().String(),
		ActionType: p.ActionType(),
		Data:       data,
		Priority:   o.priority,
		Timestamp:  q.now(),
	}
	key, err := q.store.Put(ctx, store.PendingActions, a)
	if err != nil {
		return nil, apperror.New("queue.enqueue", apperror.KindQueuePersist, err)
	}
	a.ID = key.(int64)

	q.logger.Debug("Pending action queued",
		zap.Int64("action_id", a.ID),
		zap.String("action_type", a.ActionType),
		zap.Int("priority", a.Priority),
	)
	return a, nil
}

func (q *Queue) Get(ctx context.Context, id int64) (*model.PendingAction, error) {
	return store.One[model.PendingAction](ctx, q.store, store.PendingActions, id)
}

func (q *Queue) unsynced(ctx context.Context) ([]model.PendingAction, error) {
	return store.AllByIndex[model.PendingAction](ctx, q.store, store.PendingActions, "synced", false)
}

// ListPending returns undelivered, non-failed actions ordered by priority,
// then creation time.
func (q *Queue) ListPending(ctx context.Context) ([]model.PendingAction, error) {
	all, err := q.unsynced(ctx)
	if err != nil {
		return nil, err
	}
	pending := make([]model.PendingAction, 0, len(all))
	for _, a := range all {
		if !a.Failed {
			pending = append(pending, a)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.ID < b.ID
	})
	return pending, nil
}

// ListFailed returns actions frozen after reaching the retry ceiling.
func (q *Queue) ListFailed(ctx context.Context) ([]model.PendingAction, error) {
	all, err := q.unsynced(ctx)
	if err != nil {
		return nil, err
	}
	failed := []model.PendingAction{}
	for _, a := range all {
		if a.Failed {
			failed = append(failed, a)
		}
	}
	return failed, nil
}

func (q *Queue) update(ctx context.Context, id int64, fn func(a *model.PendingAction) bool) (*model.PendingAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	a, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apperror.Validation("queue.update", "pending action %d not found", id)
	}
	if !fn(a) {
		return a, nil
	}
	if _, err := q.store.Put(ctx, store.PendingActions, a); err != nil {
		return nil, err
	}
	return a, nil
}

// MarkSynced flags an action as delivered. Marking an already synced action is a no-op.
func (q *Queue) MarkSynced(ctx context.Context, id int64) error {
	_, err := q.update(ctx, id, func(a *model.PendingAction) bool {
		if a.Synced {
			return false
		}
		now := q.now()
		a.Synced = true
		a.SyncedAt = &now
		return true
	})
	return err
}

// RecordFailure counts a failed delivery attempt. Once the retry count
// reaches the ceiling the action is marked failed and no longer listed as pending.
func (q *Queue) RecordFailure(ctx context.Context, id int64, cause error) (*model.PendingAction, error) {
	return q.update(ctx, id, func(a *model.PendingAction) bool {
		if a.Synced {
			return false
		}
		now := q.now()
		a.RetryCount++
		a.LastAttempt = &now
		if cause != nil {
			a.LastError = cause.Error()
		}
		if a.RetryCount >= q.maxRetries && !a.Failed {
			a.Failed = true
			q.logger.Warn("Pending action reached retry ceiling",
				zap.Int64("action_id", a.ID),
				zap.String("action_type", a.ActionType),
				zap.Int("retry_count", a.RetryCount),
				zap.String("last_error", a.LastError),
			)
		}
		return true
	})
}

// RetryFailed returns a failed action to the pending set.
func (q *Queue) RetryFailed(ctx context.Context, id int64) error {
	_, err := q.update(ctx, id, func(a *model.PendingAction) bool {
		if !a.Failed {
			return false
		}
		a.Failed = false
		a.RetryCount = 0
		a.LastError = ""
		return true
	})
	return err
}

type Counts struct {
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
	Synced  int `json:"synced"`
}

func (q *Queue) Counts(ctx context.Context) (Counts, error) {
	all, err := store.All[model.PendingAction](ctx, q.store, store.PendingActions)
	if err != nil {
		return Counts{}, err
	}
	var c Counts
	for _, a := range all {
		switch {
		case a.Synced:
			c.Synced++
		case a.Failed:
			c.Failed++
		default:
			c.Pending++
		}
	}
	return c, nil
}

// PurgeSynced deletes synced actions delivered more than olderThan ago.
func (q *Queue) PurgeSynced(ctx context.Context, olderThan time.Duration) (int, error) {
	synced, err := store.AllByIndex[model.PendingAction](ctx, q.store, store.PendingActions, "synced", true)
	if err != nil {
		return 0, err
	}
	cutoff := q.now().Add(-olderThan)
	purged := 0
	for _, a := range synced {
		if a.SyncedAt == nil || a.SyncedAt.After(cutoff) {
			continue
		}
		if err := q.store.Delete(ctx, store.PendingActions, a.ID); err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}
