package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dunamismax/grayblur/internal/domain"
	"github.com/dunamismax/grayblur/internal/raster"
)

// Transformed is one encoded step output.
type Transformed struct {
	Data   []byte
	Format string
	Width  int
	Height int
	// ComputeMS is the time spent in the raster transform only.
	ComputeMS int64
}

type Transformer interface {
	Transform(ctx context.Context, input []byte, step domain.PipelineStep) (Transformed, error)
}

// applyStep runs the raster action named by step over a straight-alpha RGBA
// buffer and returns a fresh output buffer.
func applyStep(pix []byte, width, height int, step domain.PipelineStep, defaultWorkers int) ([]byte, int64, error) {
	workers := step.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	switch strings.ToLower(strings.TrimSpace(step.Action)) {
	case domain.ActionGrayscaleBlur:
		res, err := raster.Run(raster.Request{
			Pixels:     pix,
			Width:      width,
			Height:     height,
			BlurRadius: step.Radius(),
			Workers:    workers,
		})
		if err != nil {
			return nil, 0, err
		}
		return res.Data, res.DurationMS, nil
	case domain.ActionGrayscale:
		if err := raster.ValidateBuffer(pix, width, height); err != nil {
			return nil, 0, err
		}
		out := make([]byte, len(pix))
		start := time.Now()
		raster.Grayscale(out, pix, width, height)
		return out, time.Since(start).Milliseconds(), nil
	case domain.ActionBlur:
		if err := raster.Validate(pix, width, height, step.Radius()); err != nil {
			return nil, 0, err
		}
		out := make([]byte, len(pix))
		start := time.Now()
		raster.BoxBlur(out, pix, width, height, step.Radius())
		return out, time.Since(start).Milliseconds(), nil
	default:
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidStepAction, step.Action)
	}
}

func normalizeOutputFormat(format string) string {
	switch format {
	case "jpg":
		return "jpeg"
	case "jpeg", "png", "webp":
		return format
	default:
		return "png"
	}
}

// outputFormat picks the step's requested format, falling back to the
// decoded source format.
func outputFormat(stepFormat, sourceFormat string) string {
	if f := strings.ToLower(strings.TrimSpace(stepFormat)); f != "" {
		return normalizeOutputFormat(f)
	}
	return normalizeOutputFormat(strings.ToLower(sourceFormat))
}

func contentTypeForFormat(format string) string {
	switch normalizeOutputFormat(strings.ToLower(strings.TrimSpace(format))) {
	case "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
