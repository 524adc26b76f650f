// Package connectivity tracks whether the POS server is reachable and fires
// a full sync whenever the client comes back online.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/fekuna/omnipos-offline/internal/logger"
	"go.uber.org/zap"
)

type State int32

const (
	Offline State = iota
	Online
)

func (s State) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event describes a state transition.
type Event struct {
	State    State     `json:"state"`
	Previous State     `json:"previous"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	onOnline func(ctx context.Context)
	now      func() time.Time
	logger   logger.ZapLogger

	// held across a transition and its subscriber calls so events arrive in state order
	deliver sync.Mutex

	mu      sync.Mutex
	state   State
	subs    map[int]func(Event)
	nextSub int
	runCtx  context.Context

	// in-flight sync triggers
	wg sync.WaitGroup
}

type Option func(*Monitor)

func WithProbeInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithOnOnline registers the sync entry point run once per transition into Online.
func WithOnOnline(fn func(ctx context.Context)) Option {
	return func(m *Monitor) { m.onOnline = fn }
}

func WithInitialState(s State) Option {
	return func(m *Monitor) { m.state = s }
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

func NewMonitor(prober Prober, log logger.ZapLogger, opts ...Option) *Monitor {
	m := &Monitor{
		prober:   prober,
		interval: 30 * time.Second,
		timeout:  5 * time.Second,
		now:      time.Now,
		logger:   log,
		state:    Offline,
		subs:     make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) IsOnline() bool {
	return m.State() == Online
}

// SetOnOnline replaces the sync entry point. It is used when the sync engine
// is built after the monitor.
func (m *Monitor) SetOnOnline(fn func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOnline = fn
}

// Subscribe registers fn for state transitions and returns a function that
// removes it. Events are delivered one at a time in transition order; fn must
// not change the monitor state.
func (m *Monitor) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// SetPlatformOnline applies an online/offline signal from the host platform.
func (m *Monitor) SetPlatformOnline(online bool) {
	if online {
		m.transition(Online, "platform")
		return
	}
	m.transition(Offline, "platform")
}

// Probe runs one health check and applies its outcome.
func (m *Monitor) Probe(ctx context.Context) State {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.prober.Probe(ctx); err != nil {
		if m.State() == Online {
			m.logger.Debug("Health probe failed", zap.Error(err))
		}
		m.transition(Offline, "probe")
	} else {
		m.transition(Online, "probe")
	}
	return m.State()
}

// Run probes immediately and then on every interval until ctx is done. It
// waits for any sync it triggered before returning.
func (m *Monitor) Run(ctx context.Context) {
	m.mu.Lock()
	m.runCtx = ctx
	m.mu.Unlock()

	m.logger.Info("Starting connectivity monitor", zap.Duration("probe_interval", m.interval))
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Stopping connectivity monitor")
			m.wg.Wait()
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// Wait blocks until every triggered sync has returned.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

func (m *Monitor) transition(to State, reason string) {
	m.deliver.Lock()
	defer m.deliver.Unlock()

	m.mu.Lock()
	from := m.state
	if from == to {
		m.mu.Unlock()
		return
	}
	m.state = to
	subs := make([]func(Event), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	onOnline := m.onOnline
	ctx := m.runCtx
	if to == Online && onOnline != nil {
		m.wg.Add(1)
	}
	m.mu.Unlock()

	m.logger.Info("Connectivity changed",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.String("reason", reason),
	)

	ev := Event{State: to, Previous: from, Reason: reason, At: m.now()}
	for _, fn := range subs {
		fn(ev)
	}

	if to == Online && onOnline != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		go func() {
			defer m.wg.Done()
			onOnline(ctx)
		}()
	}
}
