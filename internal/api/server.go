package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dunamismax/grayblur/internal/config"
	"github.com/dunamismax/grayblur/internal/domain"
	"github.com/dunamismax/grayblur/internal/id"
	"github.com/dunamismax/grayblur/internal/queue"
	"github.com/dunamismax/grayblur/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
)

var errSourceMissing = errors.New("source object is missing")

type Server struct {
	logger        *log.Logger
	queueClient   queueEnqueuer
	jobStore      store.JobStore
	storage       objectStorage
	rateLimiter   RateLimiter
	tracer        trace.Tracer
	metrics       *metrics
	cfg           config.APIConfig
	rasterWorkers int
	pixelsPerTok  int64
	router        chi.Router
}

type queueEnqueuer interface {
	EnqueueGrayBlur(ctx context.Context, payload queue.GrayBlurPayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

// Options wires a Server. Storage, RateLimiter and Tracer are optional.
type Options struct {
	Logger      *log.Logger
	Queue       queueEnqueuer
	JobStore    store.JobStore
	Storage     objectStorage
	RateLimiter RateLimiter
	Tracer      trace.Tracer
	Config      config.APIConfig
	// RasterWorkers is the stripe count for /v1/process requests that do
	// not set workers.
	RasterWorkers int
	// PixelsPerToken prices /v1/process in rate limit tokens. Zero charges
	// one token per request.
	PixelsPerToken int64
}

func NewServer(opts Options) *Server {
	cfg := opts.Config
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 15 * time.Minute
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 20
	}
	if strings.TrimSpace(cfg.UserIDHeader) == "" {
		cfg.UserIDHeader = "X-User-ID"
	}

	storage := opts.Storage
	if storage == nil {
		storage = unavailableObjectStorage{}
	}

	s := &Server{
		logger:        opts.Logger,
		queueClient:   opts.Queue,
		jobStore:      opts.JobStore,
		storage:       storage,
		rateLimiter:   opts.RateLimiter,
		tracer:        opts.Tracer,
		metrics:       newMetrics(),
		cfg:           cfg,
		rasterWorkers: opts.RasterWorkers,
		pixelsPerTok:  opts.PixelsPerToken,
	}
	s.routes()
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) PresignedPutURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) ObjectExists(_ context.Context, _ string) (bool, error) {
	return false, errors.New("object storage is unavailable")
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(s.withTracing, s.metrics.withHTTPMetrics)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", s.metrics.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		// process and start charge by raster work inside the handler.
		r.Post("/process", s.handleProcess)
		r.With(s.withRateLimit).Post("/jobs", s.handleCreateJob)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Post("/jobs/{id}/start", s.handleStartJob)
	})

	s.router = r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateJobRequest
	if err := decodeJSON(w, r, &req, 1<<20); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	jobID := id.New()
	sourceType := strings.ToLower(strings.TrimSpace(req.SourceType))
	objectKey := strings.TrimSpace(req.ObjectKey)
	uploadState := "not_required"
	presignedPutURL := ""

	if sourceType == domain.SourceTypeS3Presigned {
		objectKey = fmt.Sprintf("uploads/%s/source", jobID)
		url, err := s.storage.PresignedPutURL(r.Context(), objectKey, s.cfg.PresignTTL)
		if err != nil {
			s.logger.Error("presign upload failed", "job_id", jobID, "err", err)
			writeError(w, http.StatusInternalServerError, "failed to generate upload URL")
			return
		}
		presignedPutURL = url
		uploadState = "ready"
	}

	job := domain.Job{
		ID:         jobID,
		UserID:     s.userID(r),
		Status:     domain.JobStatusCreated,
		SourceType: sourceType,
		WebhookURL: req.WebhookURL,
		Pipeline:   req.Pipeline,
		ObjectKey:  objectKey,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.jobStore.Create(r.Context(), job); err != nil {
		s.logger.Error("create job failed", "job_id", job.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
		"upload": map[string]string{
			"object_key":          job.ObjectKey,
			"presigned_put_url":   presignedPutURL,
			"presigned_url_state": uploadState,
		},
		"start_url": fmt.Sprintf("/v1/jobs/%s/start", job.ID),
	})
}

type jobView struct {
	ID         string                `json:"job_id"`
	UserID     string                `json:"user_id,omitempty"`
	Status     string                `json:"status"`
	SourceType string                `json:"source_type"`
	ObjectKey  string                `json:"object_key"`
	Pipeline   []domain.PipelineStep `json:"pipeline"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, jobView{
		ID:         job.ID,
		UserID:     job.UserID,
		Status:     job.Status,
		SourceType: job.SourceType,
		ObjectKey:  job.ObjectKey,
		Pipeline:   job.Pipeline,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	})
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if !s.charge(w, r, pipelineCost(job.Pipeline)) {
		return
	}

	if err := s.verifySourceExists(r.Context(), job); err != nil {
		if errors.Is(err, errSourceMissing) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("source check failed", "job_id", job.ID, "err", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	payload := queue.GrayBlurPayload{
		JobID:       job.ID,
		SourceType:  job.SourceType,
		WebhookURL:  job.WebhookURL,
		ObjectKey:   job.ObjectKey,
		Pipeline:    job.Pipeline,
		RequestedAt: time.Now().UTC(),
	}

	taskInfo, err := s.queueClient.EnqueueGrayBlur(r.Context(), payload)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			writeError(w, http.StatusConflict, "job already started")
			return
		}
		s.logger.Error("enqueue failed", "job_id", job.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	if _, err := s.jobStore.UpdateStatus(r.Context(), job.ID, domain.JobStatusQueued); err != nil {
		s.logger.Warn("status update failed", "job_id", job.ID, "err", err)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":      job.ID,
		"status":      domain.JobStatusQueued,
		"queue":       taskInfo.Queue,
		"task_id":     taskInfo.ID,
		"state":       taskInfo.State.String(),
		"enqueued_at": taskInfo.NextProcessAt,
	})
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (domain.Job, bool) {
	jobID := strings.TrimSpace(chi.URLParam(r, "id"))
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job id is required")
		return domain.Job{}, false
	}

	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Error("fetch job failed", "job_id", jobID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return domain.Job{}, false
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return domain.Job{}, false
	}
	return job, true
}

func (s *Server) verifySourceExists(ctx context.Context, job domain.Job) error {
	switch job.SourceType {
	case domain.SourceTypeLocalFile:
		if _, err := os.Stat(job.ObjectKey); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%w: %s", errSourceMissing, job.ObjectKey)
			}
			return fmt.Errorf("source object check failed: %w", err)
		}
		return nil
	default:
		exists, err := s.storage.ObjectExists(ctx, job.ObjectKey)
		if err != nil {
			return fmt.Errorf("source object check failed: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: %s", errSourceMissing, job.ObjectKey)
		}
		return nil
	}
}

func (s *Server) userID(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(s.cfg.UserIDHeader)); v != "" {
		return v
	}
	return "anonymous"
}

func decodeJSON(w http.ResponseWriter, r *http.Request, into any, maxBodyBytes int64) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
