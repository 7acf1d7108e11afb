package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/markdave123-py/Kaleem/internal/app"
	"github.com/markdave123-py/Kaleem/internal/config"
	"github.com/markdave123-py/Kaleem/internal/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync()

	// Handle SIGINT/SIGTERM for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg, lg)
	if err != nil {
		lg.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	application.DocProcessor.Start(workerCtx, cfg.IngestWorkers)

	serverErr := make(chan error, 1)
	go func() { serverErr <- application.Server.Start() }()

	lg.Info("Kaleem is running", "port", cfg.Port, "env", cfg.AppEnv)

	select {
	case <-ctx.Done():
		lg.Info("shutting down...")
	case err := <-serverErr:
		if err != nil {
			lg.Error("server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.Server.Shutdown(shutdownCtx); err != nil {
		lg.Warn("server shutdown incomplete", "error", err)
	}

	cancelWorkers()
	if err := application.DocProcessor.Wait(); err != nil {
		lg.Warn("ingest workers stopped with error", "error", err)
	}
}
