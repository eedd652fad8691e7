package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/config"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/ingest"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/normalize"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/server"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/storage"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// A missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("failed to resolve timezone", zap.Error(err))
	}

	normalizer := normalize.New(loc)
	opts := storage.Options{Normalizer: normalizer, Logger: logger, Now: time.Now}

	hotStore, err := storage.New(cfg.Storage, cfg.Storage.HotJobsTable, opts)
	if err != nil {
		logger.Fatal("failed to initialize hot jobs storage", zap.Error(err))
	}
	defer hotStore.Close()

	govStore, err := storage.New(cfg.Storage, cfg.Storage.GovtJobsTable, opts)
	if err != nil {
		logger.Fatal("failed to initialize govt jobs storage", zap.Error(err))
	}
	defer govStore.Close()

	hotStrategy, err := ingest.ParseStrategy(cfg.HotJobsStrategy)
	if err != nil {
		logger.Fatal("invalid hot jobs strategy", zap.Error(err))
	}
	govStrategy, err := ingest.ParseStrategy(cfg.GovtJobsStrategy)
	if err != nil {
		logger.Fatal("invalid govt jobs strategy", zap.Error(err))
	}

	domains := []server.Domain{
		{
			Name:   "hotjobs",
			Engine: ingest.NewEngine(hotStore, normalizer, hotStrategy, logger),
			Store:  hotStore,
		},
		{
			Name:   "govjobs",
			Engine: ingest.NewEngine(govStore, normalizer, govStrategy, logger),
			Store:  govStore,
			Stats:  true,
		},
	}

	httpServer := server.New(cfg.Server, domains, loc, time.Now, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("starting HTTP server", zap.Int("port", cfg.Server.Port))
		if err := httpServer.Start(); err != nil {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	<-sigChan
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
