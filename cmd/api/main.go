package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dunamismax/grayblur/internal/api"
	"github.com/dunamismax/grayblur/internal/config"
	"github.com/dunamismax/grayblur/internal/logging"
	"github.com/dunamismax/grayblur/internal/queue"
	"github.com/dunamismax/grayblur/internal/ratelimit"
	"github.com/dunamismax/grayblur/internal/storage"
	"github.com/dunamismax/grayblur/internal/store"
	"github.com/dunamismax/grayblur/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", "err", err)
	}
	logger := logging.New(os.Stdout, "api", cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "grayblur-api",
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatal("tracing setup failed", "err", err)
	}

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", "err", err)
		}
	}()

	jobStore, closeStore, err := openJobStore(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("job store init failed", "err", err)
	}
	defer closeStore()

	opts := api.Options{
		Logger:         logger,
		Queue:          queueClient,
		JobStore:       jobStore,
		Tracer:         otel.Tracer("grayblur/api"),
		Config:         cfg.API,
		RasterWorkers:  cfg.Worker.RasterWorkers,
		PixelsPerToken: int64(cfg.RateLimit.PixelsPerToken),
	}

	if cfg.Storage.Enabled {
		objectStore, err := storage.NewClient(storage.FromConfig(cfg.Storage))
		if err != nil {
			logger.Fatal("object storage init failed", "err", err)
		}
		if err := objectStore.EnsureBucket(ctx); err != nil {
			logger.Fatal("object storage bucket check failed", "err", err)
		}
		opts.Storage = objectStore
	}

	if cfg.RateLimit.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		defer redisClient.Close()

		limiter, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.RateLimit.Capacity, cfg.RateLimit.Window, "")
		if err != nil {
			logger.Fatal("rate limiter init failed", "err", err)
		}
		opts.RateLimiter = limiter
	}

	app := api.NewServer(opts)

	httpServer := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.API.Addr, "db", cfg.Database.Driver, "storage", cfg.Storage.Enabled, "rate_limit", cfg.RateLimit.Enabled)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", "err", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown failed", "err", err)
	}
}

func openJobStore(ctx context.Context, cfg config.DatabaseConfig) (store.JobStore, func(), error) {
	if cfg.Driver != "postgres" {
		return store.NewMemoryJobStore(), func() {}, nil
	}
	pg, err := store.NewPostgresJobStore(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	return pg, func() { _ = pg.Close() }, nil
}
