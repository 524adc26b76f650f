package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fekuna/omnipos-offline/config"
	"github.com/fekuna/omnipos-offline/internal/api"
	"github.com/fekuna/omnipos-offline/internal/connectivity"
	"github.com/fekuna/omnipos-offline/internal/logger"
	"github.com/fekuna/omnipos-offline/internal/model"
	"github.com/fekuna/omnipos-offline/internal/queue"
	"github.com/fekuna/omnipos-offline/internal/scan"
	"github.com/fekuna/omnipos-offline/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type posServer struct {
	healthy atomic.Bool
	lookup  func(req api.LookupRequest) (int, any)

	mu       sync.Mutex
	synced   map[string][]model.PendingAction
	cartAdds int
	snapshot api.InitialData
}

func newPOSServer(t *testing.T) (*posServer, *httptest.Server) {
	t.Helper()
	ps := &posServer{synced: map[string][]model.PendingAction{}}
	ps.lookup = func(api.LookupRequest) (int, any) { return http.StatusNotFound, map[string]string{"status": "error"} }

	mux := http.NewServeMux()
	mux.HandleFunc(api.PathHealth, func(w http.ResponseWriter, r *http.Request) {
		if !ps.healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc(api.PathLookup, func(w http.ResponseWriter, r *http.Request) {
		var req api.LookupRequest
		json.NewDecoder(r.Body).Decode(&req)
		code, body := ps.lookup(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc(api.PathInitialData, func(w http.ResponseWriter, r *http.Request) {
		ps.mu.Lock()
		defer ps.mu.Unlock()
		json.NewEncoder(w).Encode(ps.snapshot)
	})
	mux.HandleFunc(api.PathCartAdd, func(w http.ResponseWriter, r *http.Request) {
		ps.mu.Lock()
		ps.cartAdds++
		ps.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sync/") {
			http.NotFound(w, r)
			return
		}
		var req api.SyncRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		ps.mu.Lock()
		ps.synced[r.URL.Path] = append(ps.synced[r.URL.Path], req.PendingActions...)
		ps.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return ps, srv
}

func (ps *posServer) delivered(path string) []model.PendingAction {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.synced[path]
}

func testConfig(baseURL string) *config.Config {
	cfg := config.LoadEnv()
	cfg.Store.Path = store.MemoryPath
	cfg.API.BaseURL = baseURL
	cfg.API.LookupTimeout = 2 * time.Second
	cfg.API.RequestTimeout = 2 * time.Second
	cfg.Connectivity.ProbeInterval = time.Hour
	cfg.Connectivity.ProbeTimeout = time.Second
	cfg.Connectivity.GRPCTarget = ""
	cfg.Scanner.Mode = string(model.ModeRetail)
	cfg.Scanner.AutoAdd = false
	cfg.Scanner.LookupAttempts = 1
	cfg.Sync.AutoInterval = time.Hour
	cfg.Redis.Addr = ""
	return cfg
}

func newService(t *testing.T, cfg *config.Config, opts ...Option) *Service {
	t.Helper()
	svc, err := New(context.Background(), cfg, logger.NewNop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

// Offline scan of an unknown code queues create_item, which is delivered to
// the inventory endpoint once connectivity returns.
func TestScenarioOfflineCreateDeliveredOnReconnect(t *testing.T) {
	ps, srv := newPOSServer(t)
	svc := newService(t, testConfig(srv.URL))
	ctx := context.Background()

	require.Equal(t, connectivity.Offline, svc.Monitor.Probe(ctx))

	res := svc.Pipeline.Scan(ctx, "5000123456")
	require.Equal(t, scan.NotFound, res.Outcome)

	pending, err := svc.Queue.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, queue.TypeCreateItem, pending[0].ActionType)

	ps.healthy.Store(true)
	require.Equal(t, connectivity.Online, svc.Monitor.Probe(ctx))
	svc.Monitor.Wait()

	got := ps.delivered("/api/inventory/sync/")
	require.Len(t, got, 1)
	assert.Equal(t, pending[0].ClientID, got[0].ClientID)

	pending, err = svc.Queue.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestScenarioAmbiguousSelection(t *testing.T) {
	ps, srv := newPOSServer(t)
	ps.healthy.Store(true)
	ps.lookup = func(api.LookupRequest) (int, any) {
		return http.StatusOK, api.LookupResponse{Status: api.LookupStatusPartial, Matches: []api.Match{
			{ID: 31, Name: "Amoxicillin 250", Confidence: 1.0},
			{ID: 32, Name: "Amoxicillin 500", Confidence: 0.8},
			{ID: 33, Name: "Amoxiclav", Confidence: 0.6},
		}}
	}
	cfg := testConfig(srv.URL)
	cfg.Scanner.AutoAdd = true
	svc := newService(t, cfg)
	ctx := context.Background()

	require.Equal(t, connectivity.Online, svc.Monitor.Probe(ctx))
	svc.Monitor.Wait()

	res := svc.Pipeline.Scan(ctx, "8901234567890")
	require.Equal(t, scan.Ambiguous, res.Outcome)
	require.Len(t, res.Matches, 3)

	picked, err := svc.Pipeline.Select(ctx, res, 1)
	require.NoError(t, err)
	assert.Equal(t, res.Matches[1].ID, picked.Item.ID)

	ps.mu.Lock()
	assert.Equal(t, 1, ps.cartAdds, "selection is auto-added to the server cart")
	ps.mu.Unlock()
}

func TestScenarioInitialLoadOnStart(t *testing.T) {
	ps, srv := newPOSServer(t)
	ps.healthy.Store(true)
	ps.snapshot = api.InitialData{
		Inventory: []json.RawMessage{
			json.RawMessage(`{"id":1,"name":"Paracetamol","barcode":"111"}`),
			json.RawMessage(`{"id":2,"name":"Ibuprofen","barcode":"222"}`),
			json.RawMessage(`{"id":3,"name":"Cetirizine"}`),
		},
	}
	svc := newService(t, testConfig(srv.URL), WithInitialState(connectivity.Online))
	ctx := context.Background()

	n, err := svc.Store.Count(ctx, store.Items)
	require.NoError(t, err)
	require.Zero(t, n)

	svc.Start(ctx)
	require.Eventually(t, func() bool {
		_, ok, err := svc.Engine.LastFullSync(ctx)
		return err == nil && ok
	}, 2*time.Second, 10*time.Millisecond)

	items, err := svc.Store.GetAll(ctx, store.Items)
	require.NoError(t, err)
	assert.Len(t, items, len(ps.snapshot.Inventory))

	ran, err := svc.Engine.EnsureInitialData(ctx)
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestInitialLoadSkippedWhileOffline(t *testing.T) {
	ps, srv := newPOSServer(t)
	ps.snapshot = api.InitialData{Inventory: []json.RawMessage{json.RawMessage(`{"id":1,"name":"Paracetamol"}`)}}
	svc := newService(t, testConfig(srv.URL))
	ctx := context.Background()

	svc.initialLoad(ctx)

	_, ok, err := svc.Engine.LastFullSync(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	n, err := svc.Store.Count(ctx, store.Items)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStartAndClose(t *testing.T) {
	ps, srv := newPOSServer(t)
	ps.healthy.Store(true)
	svc, err := New(context.Background(), testConfig(srv.URL), logger.NewNop())
	require.NoError(t, err)

	svc.Start(context.Background())
	require.Eventually(t, svc.Monitor.IsOnline, 2*time.Second, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	svc.Status.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"online"`)

	require.NoError(t, svc.Close())
}

func TestInvalidMode(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Scanner.Mode = "online"
	_, err := New(context.Background(), cfg, logger.NewNop())
	assert.Error(t, err)
}
