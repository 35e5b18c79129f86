package domain

import (
	"errors"
	"testing"

	"github.com/dunamismax/grayblur/internal/raster"
)

func TestCreateJobRequestValidate(t *testing.T) {
	valid := CreateJobRequest{
		SourceType: SourceTypeS3Presigned,
		Pipeline: []PipelineStep{
			{
				ID:     "gray_soft",
				Action: ActionGrayscaleBlur,
			},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got error: %v", err)
	}

	invalid := CreateJobRequest{}
	if err := invalid.Validate(); err == nil {
		t.Fatal("expected validation error for empty request")
	}

	missingObjectKey := CreateJobRequest{
		SourceType: SourceTypeLocalFile,
		Pipeline:   []PipelineStep{{ID: "gray_soft", Action: ActionGrayscaleBlur}},
	}
	if err := missingObjectKey.Validate(); err == nil {
		t.Fatal("expected validation error for local_file object_key")
	}

	unsupportedSourceType := CreateJobRequest{
		SourceType: "http_url",
		Pipeline:   []PipelineStep{{ID: "gray_soft", Action: ActionGrayscaleBlur}},
	}
	if err := unsupportedSourceType.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported source_type")
	}

	unsupportedAction := CreateJobRequest{
		SourceType: SourceTypeS3Presigned,
		Pipeline:   []PipelineStep{{ID: "thumb", Action: "resize"}},
	}
	if err := unsupportedAction.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported action")
	}
}

func TestPipelineStepRadius(t *testing.T) {
	step := PipelineStep{ID: "a", Action: ActionBlur}
	if got := step.Radius(); got != raster.DefaultBlurRadius {
		t.Fatalf("expected default radius %d, got %d", raster.DefaultBlurRadius, got)
	}

	for _, radius := range []int{0, 51} {
		r := radius
		step.BlurRadius = &r
		if err := step.Validate(); !errors.Is(err, raster.ErrInvalidBlurRadius) {
			t.Fatalf("radius %d: expected ErrInvalidBlurRadius, got %v", radius, err)
		}
	}

	r := 50
	step.BlurRadius = &r
	if err := step.Validate(); err != nil {
		t.Fatalf("radius 50 should be valid: %v", err)
	}
}

func TestPipelineStepWorkersBounds(t *testing.T) {
	for _, workers := range []int{-1, raster.MaxWorkers + 1, 1 << 60} {
		step := PipelineStep{ID: "a", Action: ActionGrayscaleBlur, Workers: workers}
		if err := step.Validate(); !errors.Is(err, raster.ErrInvalidWorkers) {
			t.Fatalf("workers %d: expected ErrInvalidWorkers, got %v", workers, err)
		}
	}

	step := PipelineStep{ID: "a", Action: ActionGrayscaleBlur, Workers: raster.MaxWorkers}
	if err := step.Validate(); err != nil {
		t.Fatalf("workers %d should be valid: %v", raster.MaxWorkers, err)
	}
}

func TestPipelineStepQualityBounds(t *testing.T) {
	for _, quality := range []int{-5, 101} {
		step := PipelineStep{ID: "a", Action: ActionGrayscale, Format: "jpeg", Quality: quality}
		if err := step.Validate(); !errors.Is(err, ErrInvalidQuality) {
			t.Fatalf("quality %d: expected ErrInvalidQuality, got %v", quality, err)
		}
	}

	for _, quality := range []int{0, 1, 100} {
		step := PipelineStep{ID: "a", Action: ActionGrayscale, Format: "jpeg", Quality: quality}
		if err := step.Validate(); err != nil {
			t.Fatalf("quality %d should be valid: %v", quality, err)
		}
	}
}
