// Package raster implements the grayscale and box-blur transforms over raw
// 8-bit RGBA pixel buffers.
//
// Buffers are row-major with four bytes per pixel in R, G, B, A order. The
// transforms assume the caller validated the buffer against its dimensions
// (see Validate); they perform no bounds checks beyond their own loops.
package raster

import (
	"errors"
	"fmt"
	"math"
)

const (
	BytesPerPixel = 4

	MinBlurRadius     = 1
	MaxBlurRadius     = 50
	DefaultBlurRadius = 5

	// MaxWorkers bounds the stripe count a caller may request.
	MaxWorkers = 256
)

var (
	ErrInvalidArgumentCount = errors.New("invalid argument count")
	ErrBufferSizeMismatch   = errors.New("buffer size mismatch")
	ErrInvalidDimensions    = errors.New("width/height must be positive")
	ErrInvalidBlurRadius    = errors.New("blur radius must be in [1,50]")
	ErrInvalidWorkers       = errors.New("workers must be in [0,256]")
)

// BufferLen returns the byte length of a width x height RGBA buffer.
func BufferLen(width, height int) int {
	return width * height * BytesPerPixel
}

// Validate checks the contract the transforms rely on. It must run before
// Process or ProcessParallel is handed caller-supplied data.
func Validate(pix []byte, width, height, radius int) error {
	if err := ValidateBuffer(pix, width, height); err != nil {
		return err
	}
	return ValidateRadius(radius)
}

// ValidateBuffer checks dimensions and buffer length only, for callers that
// run Grayscale on its own.
func ValidateBuffer(pix []byte, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: got %dx%d", ErrInvalidDimensions, width, height)
	}
	if width > math.MaxInt/BytesPerPixel/height {
		return fmt.Errorf("%w: %dx%d overflows buffer length", ErrInvalidDimensions, width, height)
	}
	if want := BufferLen(width, height); len(pix) != want {
		return fmt.Errorf("%w: expected %d bytes for %dx%d, got %d", ErrBufferSizeMismatch, want, width, height, len(pix))
	}
	return nil
}

func ValidateRadius(radius int) error {
	if radius < MinBlurRadius || radius > MaxBlurRadius {
		return fmt.Errorf("%w: got %d", ErrInvalidBlurRadius, radius)
	}
	return nil
}

// ValidateWorkers accepts 0 and 1 (sequential) up to MaxWorkers.
func ValidateWorkers(workers int) error {
	if workers < 0 || workers > MaxWorkers {
		return fmt.Errorf("%w: got %d", ErrInvalidWorkers, workers)
	}
	return nil
}

// IsValidationError reports whether err came from Validate.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrBufferSizeMismatch) ||
		errors.Is(err, ErrInvalidDimensions) ||
		errors.Is(err, ErrInvalidBlurRadius) ||
		errors.Is(err, ErrInvalidWorkers) ||
		errors.Is(err, ErrInvalidArgumentCount)
}
