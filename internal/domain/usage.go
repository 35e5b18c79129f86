package domain

import (
	"strings"
	"time"
)

// UsageLog bills one pipeline output.
type UsageLog struct {
	UserID     string
	JobID      string
	StepID     string
	Action     string
	BlurRadius int
	// PixelsProcessed is the output raster's width times height.
	PixelsProcessed int64
	// RasterWork counts pixel reads; see RasterWork.
	RasterWork    int64
	BytesSaved    int64
	ComputeTimeMS int64
	CreatedAt     time.Time
}

// RasterWork estimates the pixel reads a step performs. A grayscale pass
// reads each pixel once; a box blur of radius r reads up to (2r+1)^2 pixels
// for every output pixel.
func RasterWork(action string, radius int, pixels int64) int64 {
	if pixels <= 0 {
		return 0
	}
	if strings.EqualFold(strings.TrimSpace(action), ActionGrayscale) || radius < 1 {
		return pixels
	}
	window := int64(2*radius + 1)
	return pixels * window * window
}
