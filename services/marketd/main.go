package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nftmarket/config"
	"nftmarket/core/state"
	"nftmarket/native/assets"
	nativecommon "nftmarket/native/common"
	"nftmarket/native/market"
	"nftmarket/observability/logging"
	"nftmarket/observability/otel"
	"nftmarket/storage"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./config.toml", "path to the marketd config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logging.Setup("marketd", "dev").Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup("marketd", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := otel.Init(ctx, otel.Config{
		ServiceName: "marketd",
		Environment: cfg.Env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     otel.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		logger.Error("init telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("create data dir", "error", err, "dir", cfg.DataDir)
		os.Exit(1)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		logger.Error("open state database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	if err := manager.EnsureSchemaVersion(); err != nil {
		logger.Error("verify schema version", "error", err)
		os.Exit(1)
	}
	if cfg.Pauses.Market {
		if err := manager.SetPaused("market", true); err != nil {
			logger.Error("apply market pause", "error", err)
			os.Exit(1)
		}
	}
	if cfg.Pauses.Assets {
		if err := manager.SetPaused("assets", true); err != nil {
			logger.Error("apply assets pause", "error", err)
			os.Exit(1)
		}
	}

	store, err := NewSQLiteStore(filepath.Join(cfg.DataDir, cfg.DatabasePath))
	if err != nil {
		logger.Error("open service database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	hub := NewEventHub(store, logger)
	registry := assets.NewRegistry(manager)
	registry.SetPauses(state.NewPauses(manager))

	engine := market.NewEngine(manager)
	engine.SetLedger(market.NewLedger(manager))
	engine.SetAssets(registry)
	engine.SetEmitter(hub)
	engine.SetPauses(state.NewPauses(manager))
	engine.SetFeeRates(market.StaticFeeBps(cfg.Fees.FeeBps))
	engine.SetRoyalties(registry, cfg.Fees.RoyaltiesEnabled)
	if cfg.Fees.FeeRecipient != "" {
		recipient, err := config.ParseAddress(cfg.Fees.FeeRecipient)
		if err != nil {
			logger.Error("parse fee recipient", "error", err)
			os.Exit(1)
		}
		engine.SetFeeRecipient(recipient)
	}

	auth := NewAdminAuth(cfg.AdminJWTSecret)
	if auth == nil {
		logger.Warn("admin surface disabled: no AdminJWTSecret configured")
	}
	quota := NewOfferQuota(nativecommon.Quota{
		MaxRequestsPerEpoch: cfg.Quota.MaxRequestsPerEpoch,
		MaxValuePerEpoch:    cfg.Quota.MaxValuePerEpoch,
		EpochSeconds:        cfg.Quota.EpochSeconds,
	})
	limiter := NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)

	server := NewServer(engine, manager, registry, store, hub, auth, quota, limiter, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(server, "marketd"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("marketd listening", "address", cfg.ListenAddress, "env", cfg.Env)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", "error", err)
	}
}
