package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dunamismax/grayblur/internal/config"
	"github.com/dunamismax/grayblur/internal/logging"
	"github.com/dunamismax/grayblur/internal/pipeline"
	"github.com/dunamismax/grayblur/internal/storage"
	"github.com/dunamismax/grayblur/internal/store"
	"github.com/dunamismax/grayblur/internal/telemetry"
	"github.com/dunamismax/grayblur/internal/webhook"
	"github.com/dunamismax/grayblur/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", "err", err)
	}
	logger := logging.New(os.Stdout, "worker", cfg.Log.Level)
	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "grayblur-worker",
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatal("tracing setup failed", "err", err)
	}
	defer pipeline.Shutdown()

	deps := worker.Deps{
		Webhook: webhook.NewClient(webhook.Config{
			SigningSecret:  cfg.Webhook.SigningSecret,
			Timeout:        cfg.Webhook.Timeout,
			MaxAttempts:    cfg.Webhook.MaxAttempts,
			InitialBackoff: cfg.Webhook.InitialBackoff,
			MaxBackoff:     cfg.Webhook.MaxBackoff,
		}),
	}

	if cfg.Database.Driver == "postgres" {
		pg, err := store.NewPostgresJobStore(ctx, cfg.Database.DSN)
		if err != nil {
			logger.Fatal("job store init failed", "err", err)
		}
		defer pg.Close()
		deps.JobStore = pg
		deps.UsageStore = pg
	} else {
		// The in-memory store is process-local; status set by the API is not
		// visible here, but usage is still recorded.
		mem := store.NewMemoryJobStore()
		deps.JobStore = mem
		deps.UsageStore = mem
	}

	if cfg.Storage.Enabled {
		objectStore, err := storage.NewClient(storage.FromConfig(cfg.Storage))
		if err != nil {
			logger.Fatal("object storage init failed", "err", err)
		}
		if err := objectStore.EnsureBucket(ctx); err != nil {
			logger.Fatal("object storage bucket check failed", "err", err)
		}
		deps.Storage = objectStore
	}

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, deps)
	if err != nil {
		logger.Fatal("worker init failed", "err", err)
	}

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           srv.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	logger.Info("starting worker",
		"concurrency", cfg.Worker.Concurrency,
		"max_active_jobs", cfg.Worker.MaxActiveJobs,
		"raster_workers", cfg.Worker.RasterWorkers,
		"queue", cfg.Queue.Name,
		"redis", cfg.Queue.RedisAddr,
		"metrics", cfg.Worker.MetricsAddr,
	)

	runErr := srv.Run()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown failed", "err", err)
	}
	if runErr != nil {
		logger.Error("worker failed", "err", runErr)
		os.Exit(1)
	}
}
