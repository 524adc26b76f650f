// Package app wires the offline subsystem together for one execution context.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/fekuna/omnipos-offline/config"
	"github.com/fekuna/omnipos-offline/internal/agent"
	"github.com/fekuna/omnipos-offline/internal/api"
	"github.com/fekuna/omnipos-offline/internal/cart"
	cartrepo "github.com/fekuna/omnipos-offline/internal/cart/repository"
	cartuc "github.com/fekuna/omnipos-offline/internal/cart/usecase"
	"github.com/fekuna/omnipos-offline/internal/catalog"
	catalogrepo "github.com/fekuna/omnipos-offline/internal/catalog/repository"
	"github.com/fekuna/omnipos-offline/internal/connectivity"
	"github.com/fekuna/omnipos-offline/internal/logger"
	"github.com/fekuna/omnipos-offline/internal/model"
	"github.com/fekuna/omnipos-offline/internal/queue"
	"github.com/fekuna/omnipos-offline/internal/scan"
	"github.com/fekuna/omnipos-offline/internal/status"
	"github.com/fekuna/omnipos-offline/internal/store"
	"github.com/fekuna/omnipos-offline/internal/syncengine"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type Service struct {
	Store    *store.Store
	Catalog  catalog.Repository
	Queue    *queue.Queue
	API      *api.Client
	Monitor  *connectivity.Monitor
	Engine   *syncengine.Engine
	Pipeline *scan.Pipeline
	Cart     cart.UseCase
	Agent    *agent.Agent
	Hub      *status.Hub
	Health   *status.Health
	Status   *status.Handler

	logger   logger.ZapLogger
	redis    *redis.Client
	grpcConn *grpc.ClientConn

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type options struct {
	prober       connectivity.Prober
	initialState connectivity.State
	scanOpts     []scan.Option
}

type Option func(*options)

// WithProber replaces the probe derived from configuration.
func WithProber(p connectivity.Prober) Option {
	return func(o *options) { o.prober = p }
}

func WithInitialState(s connectivity.State) Option {
	return func(o *options) { o.initialState = s }
}

// WithScanOptions appends pipeline options after the configured ones.
func WithScanOptions(opts ...scan.Option) Option {
	return func(o *options) { o.scanOpts = append(o.scanOpts, opts...) }
}

func New(ctx context.Context, cfg *config.Config, log logger.ZapLogger, opts ...Option) (*Service, error) {
	o := &options{initialState: connectivity.Offline}
	for _, opt := range opts {
		opt(o)
	}

	mode := model.Mode(cfg.Scanner.Mode)
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid scanner mode %q", cfg.Scanner.Mode)
	}

	// 1. Durable store
	s, err := store.Open(ctx, store.Config{Path: cfg.Store.Path}, log)
	if err != nil {
		return nil, err
	}
	svc := &Service{Store: s, logger: log}

	// 2. Repositories and queue
	svc.Catalog = catalogrepo.NewStoreRepository(s)
	svc.Queue = queue.New(s, log, queue.WithMaxRetries(cfg.Sync.MaxRetries))

	// 3. Server client and connectivity
	svc.API = api.NewClient(cfg.API.BaseURL, log,
		api.WithLookupTimeout(cfg.API.LookupTimeout),
		api.WithRequestTimeout(cfg.API.RequestTimeout),
	)
	prober := o.prober
	if prober == nil {
		prober, err = svc.prober(cfg)
		if err != nil {
			svc.Close()
			return nil, err
		}
	}
	svc.Monitor = connectivity.NewMonitor(prober, log,
		connectivity.WithProbeInterval(cfg.Connectivity.ProbeInterval),
		connectivity.WithProbeTimeout(cfg.Connectivity.ProbeTimeout),
		connectivity.WithInitialState(o.initialState),
	)

	// 4. Sync
	svc.Engine = syncengine.New(svc.Queue, s, svc.API, log, syncengine.WithOnlineChecker(svc.Monitor))
	svc.Monitor.SetOnOnline(func(ctx context.Context) {
		if _, err := svc.Engine.PerformFullSync(ctx); err != nil {
			log.Warn("Sync after reconnect finished with errors", zap.Error(err))
		}
	})
	svc.Agent = agent.New(svc.Engine, log,
		agent.WithAutoInterval(cfg.Sync.AutoInterval),
		agent.WithRetry(cfg.Sync.RetryInitial, cfg.Sync.RetryMax, agent.DefaultRetryLimit),
	)

	// 5. Cart and scanning
	svc.Cart = cartuc.NewCartUseCase(cartrepo.NewStoreRepository(s), svc.Queue, svc.API, svc.Monitor, log)

	var cache scan.Cache
	if cfg.Redis.Addr != "" {
		svc.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache = scan.NewRedisCache(svc.redis, "omnipos:"+cfg.Scanner.ScannerID+":", cfg.Scanner.CacheTTL, log)
	} else {
		cache = scan.NewMemoryCache(cfg.Scanner.CacheTTL, nil)
	}

	svc.Hub = status.NewHub(log)
	svc.Health = status.NewHealth()

	scanOpts := append([]scan.Option{
		scan.WithMode(mode),
		scan.WithScannerID(cfg.Scanner.ScannerID),
		scan.WithStructuredPrefix(cfg.Scanner.StructuredPrefix),
		scan.WithCooldown(cfg.Scanner.Cooldown),
		scan.WithLookupAttempts(cfg.Scanner.LookupAttempts, scan.DefaultRetryBackoff),
		scan.WithCache(cache),
		scan.WithCart(svc.Cart, cfg.Scanner.AutoAdd),
		scan.WithHandler(&scanHandler{queue: svc.Queue, online: svc.Monitor, hub: svc.Hub, logger: log}),
	}, o.scanOpts...)
	svc.Pipeline = scan.New(svc.Catalog, svc.API, svc.Monitor, log, scanOpts...)

	// 6. Status surfaces
	svc.Health.Update(svc.Monitor.State())
	svc.Monitor.Subscribe(func(ev connectivity.Event) {
		svc.Health.Update(ev.State)
		svc.Hub.Publish("connectivity", ev)
	})
	svc.Engine.Subscribe(func(ev syncengine.Event) {
		svc.Hub.Publish("sync", ev)
	})
	svc.Status = status.NewHandler(svc.Monitor, svc.Queue, svc.Engine, svc.Agent, svc.Catalog, svc.Hub, log)

	return svc, nil
}

func (svc *Service) prober(cfg *config.Config) (connectivity.Prober, error) {
	if cfg.Connectivity.GRPCTarget == "" {
		return connectivity.HTTPProber(svc.API), nil
	}
	cc, err := grpc.NewClient(cfg.Connectivity.GRPCTarget, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial health target: %w", err)
	}
	svc.grpcConn = cc
	return connectivity.NewGRPCProber(cc, ""), nil
}

// Start runs the connectivity monitor, the background agent and the status
// feed, and pulls the first snapshot when none has been recorded yet.
func (svc *Service) Start(ctx context.Context) {
	ctx, svc.cancel = context.WithCancel(ctx)
	for _, run := range []func(context.Context){svc.Monitor.Run, svc.Agent.Run, svc.Hub.Run, svc.initialLoad} {
		svc.wg.Add(1)
		go func(run func(context.Context)) {
			defer svc.wg.Done()
			run(ctx)
		}(run)
	}
	svc.logger.Info("Offline service started", zap.String("mode", string(svc.Pipeline.Mode())))
}

func (svc *Service) initialLoad(ctx context.Context) {
	ran, err := svc.Engine.EnsureInitialData(ctx)
	if err != nil {
		svc.logger.Warn("Initial catalog load failed", zap.Error(err))
		return
	}
	if ran {
		svc.logger.Info("Initial catalog loaded")
	}
}

// Close stops background work and releases the store.
func (svc *Service) Close() error {
	if svc.cancel != nil {
		svc.cancel()
	}
	svc.wg.Wait()
	if svc.Monitor != nil {
		svc.Monitor.Wait()
	}

	var err error
	if svc.redis != nil {
		err = multierr.Append(err, svc.redis.Close())
	}
	if svc.grpcConn != nil {
		err = multierr.Append(err, svc.grpcConn.Close())
	}
	return multierr.Append(err, svc.Store.Close())
}
