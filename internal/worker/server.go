package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dunamismax/grayblur/internal/config"
	"github.com/dunamismax/grayblur/internal/domain"
	"github.com/dunamismax/grayblur/internal/pipeline"
	"github.com/dunamismax/grayblur/internal/queue"
	"github.com/dunamismax/grayblur/internal/raster"
	"github.com/dunamismax/grayblur/internal/storage"
	"github.com/dunamismax/grayblur/internal/store"
	"github.com/dunamismax/grayblur/internal/webhook"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var errObjectStorageDisabled = errors.New("object storage is not configured")

type Server struct {
	logger          *log.Logger
	server          *asynq.Server
	sem             chan struct{}
	localProcessor  jobProcessor
	objectProcessor jobProcessor
	webhookClient   webhookSender
	jobStore        store.JobStore
	usageStore      store.UsageStore
	metrics         *metrics
	tracer          trace.Tracer
}

type jobProcessor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

// Deps are the optional collaborators of a worker. A nil Storage disables
// object-store sources; a nil UsageStore falls back to JobStore when it
// also records usage.
type Deps struct {
	Storage    *storage.Client
	Webhook    *webhook.Client
	JobStore   store.JobStore
	UsageStore store.UsageStore
}

func NewServer(logger *log.Logger, queueCfg config.QueueConfig, workerCfg config.WorkerConfig, deps Deps) (*Server, error) {
	opts := pipeline.Options{RasterWorkers: workerCfg.RasterWorkers}

	localProcessor, err := pipeline.NewLocalProcessor(workerCfg.LocalOutputDir, opts)
	if err != nil {
		return nil, fmt.Errorf("initialize pipeline processor: %w", err)
	}

	s := &Server{
		logger:         logger,
		sem:            make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		localProcessor: localProcessor,
		jobStore:       deps.JobStore,
		usageStore:     deps.UsageStore,
		metrics:        newMetrics(),
		tracer:         otel.Tracer("grayblur/worker"),
	}

	if deps.Storage != nil {
		objectProcessor, err := pipeline.NewObjectStoreProcessor(
			pipeline.ObjectStoreFetcher{Storage: deps.Storage},
			pipeline.ObjectStoreEmitter{Storage: deps.Storage, OutputPrefix: "outputs"},
			opts,
		)
		if err != nil {
			return nil, fmt.Errorf("initialize object-store processor: %w", err)
		}
		s.objectProcessor = objectProcessor
	}
	if deps.Webhook != nil {
		s.webhookClient = deps.Webhook
	}
	if s.usageStore == nil {
		if jobAndUsageStore, ok := deps.JobStore.(store.UsageStore); ok {
			s.usageStore = jobAndUsageStore
		}
	}

	s.server = asynq.NewServer(
		queueCfg.RedisClientOpt(),
		asynq.Config{
			Concurrency: workerCfg.Concurrency,
			Queues: map[string]int{
				queueCfg.Name: 1,
			},
			LogLevel: asynq.InfoLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Error("task failed", "type", task.Type(), "retry", retried, "max_retry", maxRetry, "err", err)
			}),
		},
	)
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeGrayBlur, s.handleGrayBlur)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleGrayBlur(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.JobStatusFailed

	payload, err := queue.ParseGrayBlurPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.grayblur", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("job.source_type", payload.SourceType),
		attribute.Int("job.pipeline_steps", len(payload.Pipeline)),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(payload.SourceType, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(payload.SourceType, outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	s.logger.Info("working",
		"job_id", payload.JobID,
		"source_type", payload.SourceType,
		"steps", len(payload.Pipeline),
		"object_key", payload.ObjectKey,
	)

	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusProcessing)

	request := pipeline.Request{
		JobID:      payload.JobID,
		SourceType: payload.SourceType,
		ObjectKey:  payload.ObjectKey,
		Pipeline:   payload.Pipeline,
	}

	var result pipeline.Result
	switch {
	case payload.SourceType == domain.SourceTypeLocalFile:
		result, err = s.localProcessor.Process(ctx, request)
	case s.objectProcessor == nil:
		err = fmt.Errorf("%w: source_type=%s", errObjectStorageDisabled, payload.SourceType)
	default:
		result, err = s.objectProcessor.Process(ctx, request)
	}
	if err != nil {
		s.updateJobStatus(ctx, payload.JobID, domain.JobStatusFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		_ = s.dispatchWebhook(ctx, payload, "job.failed", map[string]any{
			"job_id":       payload.JobID,
			"status":       domain.JobStatusFailed,
			"source_type":  payload.SourceType,
			"object_key":   payload.ObjectKey,
			"requested_at": payload.RequestedAt,
			"failed_at":    time.Now().UTC(),
			"error":        err.Error(),
		})
		if errors.Is(err, errObjectStorageDisabled) || errors.Is(err, pipeline.ErrInvalidStepAction) ||
			errors.Is(err, domain.ErrInvalidQuality) || raster.IsValidationError(err) {
			err = fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("run pipeline: %w", err)
	}

	s.logger.Info("processed", "job_id", payload.JobID, "outputs", len(result.Outputs))
	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusSucceeded)
	s.metrics.pipelineOutputsTotal.Add(float64(len(result.Outputs)))
	for _, output := range result.Outputs {
		s.metrics.rasterDuration.WithLabelValues(output.Action).Observe(float64(output.DurationMS) / 1000)
	}
	s.recordUsage(ctx, payload.JobID, result)
	outcome = domain.JobStatusSucceeded

	// Outputs are already written and billed; a failed completion webhook
	// must not fail the task.
	if err := s.dispatchWebhook(ctx, payload, "job.completed", map[string]any{
		"job_id":       payload.JobID,
		"status":       domain.JobStatusSucceeded,
		"source_type":  payload.SourceType,
		"object_key":   payload.ObjectKey,
		"requested_at": payload.RequestedAt,
		"completed_at": time.Now().UTC(),
		"outputs":      result.Outputs,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		return nil
	}

	span.SetStatus(codes.Ok, "processed")
	return nil
}

func (s *Server) updateJobStatus(ctx context.Context, jobID, status string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		s.logger.Warn("job status update failed", "job_id", jobID, "status", status, "err", err)
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.GrayBlurPayload, event string, body map[string]any) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.logger.Error("webhook delivery failed", "job_id", payload.JobID, "event", event, "err", err)
		s.metrics.webhookFailures.WithLabelValues(event).Inc()
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	return nil
}

// recordUsage writes one usage log per output. Each log bills the step's
// raster work and compute time, not the fetch and encode overhead around it.
func (s *Server) recordUsage(ctx context.Context, jobID string, result pipeline.Result) {
	if s.usageStore == nil {
		return
	}

	userID := s.jobOwner(ctx, jobID)
	now := time.Now().UTC()
	for _, output := range result.Outputs {
		pixels := int64(output.Width) * int64(output.Height)
		usage := domain.UsageLog{
			UserID:          userID,
			JobID:           jobID,
			StepID:          output.StepID,
			Action:          output.Action,
			BlurRadius:      output.BlurRadius,
			PixelsProcessed: pixels,
			RasterWork:      domain.RasterWork(output.Action, output.BlurRadius, pixels),
			BytesSaved:      max(int64(result.SourceBytes-output.Bytes), 0),
			ComputeTimeMS:   max(output.DurationMS, 1),
			CreatedAt:       now,
		}
		if err := s.usageStore.CreateUsageLog(ctx, usage); err != nil {
			s.logger.Error("usage log write failed", "job_id", jobID, "step_id", output.StepID, "err", err)
			continue
		}

		s.metrics.pixelsProcessedTotal.Add(float64(usage.PixelsProcessed))
		s.metrics.rasterWorkTotal.WithLabelValues(usage.Action).Add(float64(usage.RasterWork))
		s.metrics.bytesSavedTotal.Add(float64(usage.BytesSaved))
		s.metrics.computeTimeMSTotal.Add(float64(usage.ComputeTimeMS))
	}
}

func (s *Server) jobOwner(ctx context.Context, jobID string) string {
	if s.jobStore == nil {
		return "anonymous"
	}
	job, ok, err := s.jobStore.Get(ctx, jobID)
	if err != nil {
		s.logger.Warn("usage lookup failed", "job_id", jobID, "err", err)
		return "anonymous"
	}
	if !ok || strings.TrimSpace(job.UserID) == "" {
		return "anonymous"
	}
	return job.UserID
}
