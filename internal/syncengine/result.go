package syncengine

import "time"

type CategoryResult struct {
	Category  string `json:"category"`
	Endpoint  string `json:"endpoint"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
	Err       error  `json:"-"`
}

// Result describes one pending-action drain.
type Result struct {
	Skipped    bool             `json:"skipped"`
	Offline    bool             `json:"offline"`
	Categories []CategoryResult `json:"categories,omitempty"`
	Unrouted   int              `json:"unrouted"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

func (r *Result) Delivered() int {
	n := 0
	for _, c := range r.Categories {
		n += c.Delivered
	}
	return n
}

type PullResult struct {
	Offline bool           `json:"offline"`
	Counts  map[string]int `json:"counts,omitempty"`
	At      time.Time      `json:"at"`
}

type FullResult struct {
	Push *Result     `json:"push,omitempty"`
	Pull *PullResult `json:"pull,omitempty"`
}

const (
	PhasePush = "push"
	PhasePull = "pull"

	StatusSyncing = "syncing"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Event is published to subscribers as a sync phase progresses.
type Event struct {
	Phase  string      `json:"phase"`
	Status string      `json:"status"`
	Result *Result     `json:"result,omitempty"`
	Pull   *PullResult `json:"pull,omitempty"`
	Error  string      `json:"error,omitempty"`
	At     time.Time   `json:"at"`
}

// Subscribe registers fn for sync events and returns a function that removes it.
func (e *Engine) Subscribe(fn func(Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

func (e *Engine) publish(ev Event) {
	e.mu.Lock()
	subs := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}
