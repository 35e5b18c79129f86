package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dunamismax/grayblur/internal/raster"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"

	ActionGrayscaleBlur = "grayscale_blur"
	ActionGrayscale     = "grayscale"
	ActionBlur          = "blur"

	MinQuality = 1
	MaxQuality = 100
)

var ErrInvalidQuality = errors.New("quality must be in [1,100]")

type CreateJobRequest struct {
	SourceType string         `json:"source_type"`
	WebhookURL string         `json:"webhook_url,omitempty"`
	ObjectKey  string         `json:"object_key,omitempty"`
	Pipeline   []PipelineStep `json:"pipeline"`
}

type PipelineStep struct {
	ID     string `json:"id"`
	Action string `json:"action"`
	// BlurRadius is optional; nil means raster.DefaultBlurRadius.
	BlurRadius *int   `json:"blur_radius,omitempty"`
	Workers    int    `json:"workers,omitempty"`
	Format     string `json:"format,omitempty"`
	Quality    int    `json:"quality,omitempty"`
}

// Radius resolves the step's blur radius, applying the default when unset.
func (s PipelineStep) Radius() int {
	if s.BlurRadius == nil {
		return raster.DefaultBlurRadius
	}
	return *s.BlurRadius
}

type Job struct {
	ID         string
	UserID     string
	Status     string
	SourceType string
	WebhookURL string
	Pipeline   []PipelineStep
	ObjectKey  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r CreateJobRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeLocalFile && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if sourceType == SourceTypeLocalFile && strings.TrimSpace(r.ObjectKey) == "" {
		return errors.New("object_key is required for source_type=local_file")
	}
	if len(r.Pipeline) == 0 {
		return errors.New("pipeline must contain at least one step")
	}
	for i, step := range r.Pipeline {
		if strings.TrimSpace(step.ID) == "" {
			return fmt.Errorf("pipeline[%d].id is required", i)
		}
		if err := step.Validate(); err != nil {
			return fmt.Errorf("pipeline[%d]: %w", i, err)
		}
	}
	return nil
}

func (s PipelineStep) Validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Action)) {
	case "":
		return errors.New("action is required")
	case ActionGrayscaleBlur, ActionGrayscale, ActionBlur:
	default:
		return fmt.Errorf("unsupported action: %s", s.Action)
	}

	if radius := s.Radius(); radius < raster.MinBlurRadius || radius > raster.MaxBlurRadius {
		return fmt.Errorf("%w: got %d", raster.ErrInvalidBlurRadius, radius)
	}
	if err := raster.ValidateWorkers(s.Workers); err != nil {
		return err
	}
	// Zero leaves the encoder default in place.
	if s.Quality != 0 && (s.Quality < MinQuality || s.Quality > MaxQuality) {
		return fmt.Errorf("%w: got %d", ErrInvalidQuality, s.Quality)
	}
	return nil
}
