// Package agent runs sync work in the background: tagged triggers, a
// periodic drain and backoff retries after failed drains.
package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fekuna/omnipos-offline/internal/apperror"
	"github.com/fekuna/omnipos-offline/internal/logger"
	"github.com/fekuna/omnipos-offline/internal/syncengine"
	"go.uber.org/zap"
)

const (
	TagSyncPending    = "sync-pending-actions"
	TagSyncFromServer = "sync-from-server"

	DefaultAutoInterval = 5 * time.Minute
	DefaultRetryInitial = time.Second
	DefaultRetryMax     = 30 * time.Second
	DefaultRetryLimit   = 5
)

type Syncer interface {
	SyncPendingActions(ctx context.Context) (*syncengine.Result, error)
	SyncFromServer(ctx context.Context) (*syncengine.PullResult, error)
	PerformFullSync(ctx context.Context) (*syncengine.FullResult, error)
}

// ValidTag accepts the two named tags and any other "sync-" tag, which
// runs a full sync.
func ValidTag(tag string) bool {
	return strings.HasPrefix(tag, "sync-") && len(tag) > len("sync-")
}

type Agent struct {
	syncer       Syncer
	logger       logger.ZapLogger
	autoInterval time.Duration
	retryInitial time.Duration
	retryMax     time.Duration
	retryLimit   int

	mu     sync.Mutex
	queued map[string]bool
	order  []string
	wake   chan struct{}
}

type Option func(*Agent)

// WithAutoInterval sets the periodic drain; zero disables it.
func WithAutoInterval(d time.Duration) Option {
	return func(a *Agent) { a.autoInterval = d }
}

func WithRetry(initial, max time.Duration, limit int) Option {
	return func(a *Agent) {
		a.retryInitial = initial
		a.retryMax = max
		a.retryLimit = limit
	}
}

func New(s Syncer, log logger.ZapLogger, opts ...Option) *Agent {
	a := &Agent{
		syncer:       s,
		logger:       log,
		autoInterval: DefaultAutoInterval,
		retryInitial: DefaultRetryInitial,
		retryMax:     DefaultRetryMax,
		retryLimit:   DefaultRetryLimit,
		queued:       make(map[string]bool),
		wake:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Trigger schedules tag without blocking. A tag already waiting is not
// queued twice.
func (a *Agent) Trigger(tag string) error {
	if !ValidTag(tag) {
		return apperror.Validation("agent.trigger", "unknown sync tag %q", tag)
	}
	a.mu.Lock()
	if !a.queued[tag] {
		a.queued[tag] = true
		a.order = append(a.order, tag)
	}
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
	return nil
}

func (a *Agent) next() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.order) == 0 {
		return "", false
	}
	tag := a.order[0]
	a.order = a.order[1:]
	delete(a.queued, tag)
	return tag, true
}

// Run processes triggers until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) {
	a.logger.Info("Starting background sync agent", zap.Duration("auto_interval", a.autoInterval))

	var tick <-chan time.Time
	if a.autoInterval > 0 {
		ticker := time.NewTicker(a.autoInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	retry := time.NewTimer(time.Hour)
	retry.Stop()
	defer retry.Stop()
	attempts := 0

	handle := func(tag string) {
		err := a.Handle(ctx, tag)
		if tag == TagSyncFromServer {
			return
		}
		if err == nil {
			attempts = 0
			return
		}
		if ctx.Err() != nil {
			return
		}
		if attempts >= a.retryLimit {
			a.logger.Warn("Giving up on sync retries", zap.Int("attempts", attempts), zap.Error(err))
			attempts = 0
			return
		}
		delay := a.backoff(attempts)
		attempts++
		a.logger.Info("Scheduling sync retry", zap.Int("attempt", attempts), zap.Duration("delay", delay))
		retry.Reset(delay)
	}

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Stopping background sync agent")
			return
		case <-a.wake:
			for {
				tag, ok := a.next()
				if !ok {
					break
				}
				handle(tag)
			}
		case <-tick:
			handle(TagSyncPending)
		case <-retry.C:
			handle(TagSyncPending)
		}
	}
}

func (a *Agent) backoff(attempt int) time.Duration {
	d := a.retryInitial
	for i := 0; i < attempt && d < a.retryMax; i++ {
		d *= 2
	}
	return min(d, a.retryMax)
}

// Handle runs the sync entry point bound to tag.
func (a *Agent) Handle(ctx context.Context, tag string) error {
	var err error
	switch {
	case tag == TagSyncPending:
		_, err = a.syncer.SyncPendingActions(ctx)
	case tag == TagSyncFromServer:
		_, err = a.syncer.SyncFromServer(ctx)
	case ValidTag(tag):
		_, err = a.syncer.PerformFullSync(ctx)
	default:
		return apperror.Validation("agent.handle", "unknown sync tag %q", tag)
	}
	if err != nil {
		a.logger.Error("Background sync failed", zap.String("tag", tag), zap.Error(err))
	}
	return err
}
