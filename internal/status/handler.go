// Package status exposes sync and connectivity state over HTTP, a
// websocket feed and the gRPC health service.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fekuna/omnipos-offline/internal/agent"
	"github.com/fekuna/omnipos-offline/internal/apperror"
	"github.com/fekuna/omnipos-offline/internal/connectivity"
	"github.com/fekuna/omnipos-offline/internal/logger"
	"github.com/fekuna/omnipos-offline/internal/model"
	"github.com/fekuna/omnipos-offline/internal/queue"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type StateSource interface {
	State() connectivity.State
}

type QueueCounter interface {
	Counts(ctx context.Context) (queue.Counts, error)
}

// FailedActions is the manual recovery surface for actions past the retry ceiling.
type FailedActions interface {
	ListFailed(ctx context.Context) ([]model.PendingAction, error)
	RetryFailed(ctx context.Context, id int64) error
	PurgeSynced(ctx context.Context, olderThan time.Duration) (int, error)
}

type ActionQueue interface {
	QueueCounter
	FailedActions
}

// CatalogReports serves the stock and expiry views of the local catalog.
type CatalogReports interface {
	LowStock(ctx context.Context, mode model.Mode) ([]model.CatalogItem, error)
	ExpiringWithin(ctx context.Context, mode model.Mode, days int, now time.Time) ([]model.CatalogItem, error)
	Search(ctx context.Context, mode model.Mode, term string) ([]model.CatalogItem, error)
}

type SyncInfo interface {
	Syncing() bool
	LastFullSync(ctx context.Context) (time.Time, bool, error)
}

type Triggerer interface {
	Trigger(tag string) error
}

const (
	defaultExpiryDays  = 30
	defaultPurgeWindow = 7 * 24 * time.Hour
)

type Handler struct {
	monitor StateSource
	queue   ActionQueue
	sync    SyncInfo
	agent   Triggerer
	catalog CatalogReports
	hub     *Hub
	logger  logger.ZapLogger
	now     func() time.Time
}

func NewHandler(monitor StateSource, q ActionQueue, s SyncInfo, agent Triggerer, catalog CatalogReports, hub *Hub, log logger.ZapLogger) *Handler {
	return &Handler{monitor: monitor, queue: q, sync: s, agent: agent, catalog: catalog, hub: hub, logger: log, now: time.Now}
}

type Snapshot struct {
	State        string       `json:"state"`
	Syncing      bool         `json:"syncing"`
	Actions      queue.Counts `json:"actions"`
	LastFullSync *time.Time   `json:"last_full_sync,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/status", h.GetStatus)
	r.Post("/sync/{tag}", h.TriggerSync)

	r.Route("/actions", func(r chi.Router) {
		r.Get("/failed", h.ListFailed)
		r.Post("/{id}/retry", h.RetryFailed)
		r.Delete("/synced", h.PurgeSynced)
	})

	if h.catalog != nil {
		r.Route("/catalog/{mode}", func(r chi.Router) {
			r.Get("/low-stock", h.LowStock)
			r.Get("/expiring", h.Expiring)
			r.Get("/search", h.Search)
		})
	}
	if h.hub != nil {
		r.Get("/ws", h.hub.ServeWS)
	}
	return r
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	counts, err := h.queue.Counts(ctx)
	if err != nil {
		h.logger.Error("Failed to count pending actions", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: string(apperror.KindOf(err)), Message: err.Error()})
		return
	}
	snap := Snapshot{
		State:   h.monitor.State().String(),
		Syncing: h.sync.Syncing(),
		Actions: counts,
	}
	if at, ok, err := h.sync.LastFullSync(ctx); err == nil && ok {
		snap.LastFullSync = &at
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	if err := h.agent.Trigger(tag); err != nil {
		if errors.Is(err, apperror.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_tag", Message: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "trigger_failed", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"tag": tag})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, apperror.ErrValidation) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(apperror.KindValidation), Message: err.Error()})
		return
	}
	h.logger.Error("Status request failed", zap.Error(err))
	writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: string(apperror.KindOf(err)), Message: err.Error()})
}

func (h *Handler) ListFailed(w http.ResponseWriter, r *http.Request) {
	actions, err := h.queue.ListFailed(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actions)
}

// RetryFailed puts a failed action back in the pending set and schedules a push.
func (h *Handler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_id", Message: "action id must be a positive integer"})
		return
	}
	if err := h.queue.RetryFailed(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.agent.Trigger(agent.TagSyncPending); err != nil {
		h.logger.Warn("Failed to schedule push after retry", zap.Int64("action_id", id), zap.Error(err))
	}
	writeJSON(w, http.StatusAccepted, map[string]int64{"id": id})
}

func (h *Handler) PurgeSynced(w http.ResponseWriter, r *http.Request) {
	window := defaultPurgeWindow
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_duration", Message: "older_than must be a non-negative duration"})
			return
		}
		window = d
	}
	n, err := h.queue.PurgeSynced(r.Context(), window)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"purged": n})
}

func modeParam(r *http.Request) (model.Mode, bool) {
	m := model.Mode(chi.URLParam(r, "mode"))
	return m, m.Valid()
}

func (h *Handler) writeItems(w http.ResponseWriter, items []model.CatalogItem, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	mode, ok := modeParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_mode"})
		return
	}
	items, err := h.catalog.LowStock(r.Context(), mode)
	h.writeItems(w, items, err)
}

func (h *Handler) Expiring(w http.ResponseWriter, r *http.Request) {
	mode, ok := modeParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_mode"})
		return
	}
	days := defaultExpiryDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_days"})
			return
		}
		days = n
	}
	items, err := h.catalog.ExpiringWithin(r.Context(), mode, days, h.now())
	h.writeItems(w, items, err)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	mode, ok := modeParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_mode"})
		return
	}
	items, err := h.catalog.Search(r.Context(), mode, r.URL.Query().Get("q"))
	h.writeItems(w, items, err)
}
