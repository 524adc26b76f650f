package main

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fekuna/omnipos-offline/config"
	"github.com/fekuna/omnipos-offline/internal/app"
	"github.com/fekuna/omnipos-offline/internal/auth"
	"github.com/fekuna/omnipos-offline/internal/logger"
	"github.com/fekuna/omnipos-offline/internal/scan"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	// 1. Load Configuration
	_ = godotenv.Load() // Load .env file if it exists
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          cfg.Logger.Encoding,
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}
	if cfg.Server.AppEnv == "development" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = "console"
		logConfig.Level = "debug"
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = auth.WithUser(ctx, auth.UserContext{UserID: cfg.Server.UserID, MerchantID: cfg.Server.MerchantID})

	// 3. Build the offline service
	svc, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Could not initialize offline service", zap.Error(err))
	}
	defer svc.Close()
	appLogger.Info("Durable store opened", zap.String("path", cfg.Store.Path))

	svc.Start(ctx)

	// 4. Status HTTP server
	httpServer := &http.Server{
		Addr:              normalizePort(cfg.Server.HTTPPort),
		Handler:           svc.Status.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		appLogger.Info("Starting status HTTP server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("failed to serve http", zap.Error(err))
		}
	}()

	// 5. gRPC health server
	port := normalizePort(cfg.Server.GRPCPort)
	lis, err := net.Listen("tcp", port)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, svc.Health)
	reflection.Register(grpcServer)

	appLogger.Info("Starting gRPC server", zap.String("port", port))
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	// 6. Scanner input: a keyboard-wedge scanner types into stdin
	go readScanner(ctx, svc, appLogger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	httpServer.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
	appLogger.Info("Server stopped")
}

func normalizePort(port string) string {
	if !strings.HasPrefix(port, ":") && !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}

func readScanner(ctx context.Context, svc *app.Service, log logger.ZapLogger) {
	keys := make(chan rune)
	go func() {
		defer close(keys)
		r := bufio.NewReader(os.Stdin)
		for {
			ch, _, err := r.ReadRune()
			if err != nil {
				return
			}
			select {
			case keys <- ch:
			case <-ctx.Done():
				return
			}
		}
	}()

	buf := scan.NewKeystrokeBuffer()
	console := newScanConsole(svc.Pipeline, buf, log)
	buf.Run(ctx, keys, func(line string) {
		console.handle(ctx, line)
	})
}
