package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-booking-assistant/cmd/mainconfig"
	"github.com/wolfman30/clinic-booking-assistant/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-booking-assistant/internal/config"
	"github.com/wolfman30/clinic-booking-assistant/internal/queue"
	"github.com/wolfman30/clinic-booking-assistant/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: .env not loaded: %v\n", err)
	}
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("turn worker failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *appconfig.Config, logger *logging.Logger) error {
	if cfg.UseMemoryQueue {
		return errors.New("the in-memory queue is drained by the API process; set TURN_QUEUE_URL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		return err
	}
	res := &bootstrap.Resources{
		Redis:    bootstrap.BuildRedisClient(ctx, cfg, logger, true),
		Postgres: pool,
		Registry: registry,
	}
	defer res.Close()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}
	res.AWS = &awsCfg

	assistant, err := bootstrap.BuildAssistant(ctx, cfg, res, logger)
	if err != nil {
		return err
	}
	q, err := bootstrap.BuildTurnQueue(cfg, res, logger)
	if err != nil {
		return err
	}
	if q == nil {
		return errors.New("TURN_QUEUE_URL is required")
	}

	worker := queue.NewWorker(assistant.Orchestrator, q, queue.NewLogReplySender(logger), logger,
		queue.WithWorkerCount(cfg.WorkerCount),
	)
	worker.Start(ctx)
	logger.Info("turn worker started", "workers", cfg.WorkerCount)

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down turn worker...")

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()
	_ = metricsSrv.Shutdown(doneCtx)

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("turn worker stopped")
	case <-doneCtx.Done():
		logger.Error("turn worker shutdown timed out", "error", doneCtx.Err())
	}
	return nil
}
