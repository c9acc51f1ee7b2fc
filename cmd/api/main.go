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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-booking-assistant/cmd/mainconfig"
	"github.com/wolfman30/clinic-booking-assistant/internal/api/router"
	"github.com/wolfman30/clinic-booking-assistant/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-booking-assistant/internal/config"
	"github.com/wolfman30/clinic-booking-assistant/internal/http/handlers"
	"github.com/wolfman30/clinic-booking-assistant/internal/queue"
	"github.com/wolfman30/clinic-booking-assistant/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: .env not loaded: %v\n", err)
	}

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-booking-assistant API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsHandler, registry := setupMetrics()
	res, err := buildResources(ctx, cfg, registry, logger)
	if err != nil {
		logger.Error("failed to initialize resources", "error", err)
		os.Exit(1)
	}
	defer res.Close()

	assistant, err := bootstrap.BuildAssistant(ctx, cfg, res, logger)
	if err != nil {
		logger.Error("failed to build booking assistant", "error", err)
		os.Exit(1)
	}

	publisher, inlineWorker, err := setupQueue(ctx, cfg, res, assistant, logger)
	if err != nil {
		logger.Error("failed to set up turn queue", "error", err)
		os.Exit(1)
	}

	var turnOpts []handlers.TurnHandlerOption
	if publisher != nil {
		turnOpts = append(turnOpts, handlers.WithEnqueuer(publisher))
	}
	turnHandler := handlers.NewTurnHandler(assistant.Orchestrator, assistant.Sessions, logger, turnOpts...)

	// Setup router
	r := router.New(&router.Config{
		Logger:             logger,
		Turns:              turnHandler,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		TurnRateLimit:      cfg.TurnRateLimit,
		TurnRateBurst:      cfg.TurnRateBurst,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.TurnTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if inlineWorker != nil {
		waitForInlineWorker(inlineWorker, logger)
	}

	logger.Info("server stopped")
}

// setupMetrics builds a dedicated registry so tests never collide with the
// global default one.
func setupMetrics() (http.Handler, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), registry
}

func buildResources(ctx context.Context, cfg *appconfig.Config, registry prometheus.Registerer, logger *logging.Logger) (*bootstrap.Resources, error) {
	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	res := &bootstrap.Resources{
		Redis:    bootstrap.BuildRedisClient(ctx, cfg, logger, true),
		Postgres: pool,
		Registry: registry,
	}
	if mainconfig.NeedsAWS(cfg) {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		res.AWS = &awsCfg
	}
	return res, nil
}

// setupQueue returns the publisher behind POST /v1/messages. With the
// in-memory queue the API also runs the worker that drains it.
func setupQueue(ctx context.Context, cfg *appconfig.Config, res *bootstrap.Resources, assistant *bootstrap.Assistant, logger *logging.Logger) (*queue.Publisher, *queue.Worker, error) {
	q, err := bootstrap.BuildTurnQueue(cfg, res, logger)
	if err != nil || q == nil {
		return nil, nil, err
	}
	publisher := queue.NewPublisher(q, logger)
	if !cfg.UseMemoryQueue {
		return publisher, nil, nil
	}
	worker := queue.NewWorker(assistant.Orchestrator, q, queue.NewLogReplySender(logger), logger,
		queue.WithWorkerCount(cfg.WorkerCount),
	)
	worker.Start(ctx)
	logger.Info("inline turn worker started", "workers", cfg.WorkerCount)
	return publisher, worker, nil
}

func waitForInlineWorker(worker *queue.Worker, logger *logging.Logger) {
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("inline turn worker stopped")
	case <-time.After(30 * time.Second):
		logger.Error("inline turn worker shutdown timed out")
	}
}
