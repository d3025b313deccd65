package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nftmarket/observability/logging"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./archiver.yaml", "path to the archiver config file")
	flag.Parse()

	cfg, err := LoadConfig(configPath)
	if err != nil {
		logging.Setup("market-archiverd", "dev").Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup("market-archiverd", cfg.Env)

	store, err := OpenStore(cfg.Database)
	if err != nil {
		logger.Error("open archive store", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := NewConsumer(cfg.SourceURL, store, cfg.ReconnectBackoff.Duration, logger)
	go consumer.Run(ctx)

	exporter := NewExporter(store, cfg.Export.Dir, logger)
	ticker := time.NewTicker(cfg.Export.Interval.Duration)
	defer ticker.Stop()

	logger.Info("market-archiverd running", "source", cfg.SourceURL, "driver", cfg.Database.Driver)
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			if _, err := exporter.Run(); err != nil {
				logger.Warn("final export", "error", err)
			}
			return
		case <-ticker.C:
			if _, err := exporter.Run(); err != nil {
				logger.Error("periodic export", "error", err)
			}
		}
	}
}
