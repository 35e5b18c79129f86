package api

import (
	"fmt"
	"net/http"

	"github.com/dunamismax/grayblur/internal/ratelimit"
	"github.com/dunamismax/grayblur/internal/raster"
)

// processRequest carries a raw RGBA buffer. encoding/json maps ImageBuffer
// to and from base64.
type processRequest struct {
	ImageBuffer []byte `json:"image_buffer"`
	Width       *int   `json:"width"`
	Height      *int   `json:"height"`
	BlurRadius  *int   `json:"blur_radius,omitempty"`
	Workers     int    `json:"workers,omitempty"`
}

func (p processRequest) toRaster(defaultWorkers int) (raster.Request, error) {
	if p.ImageBuffer == nil || p.Width == nil || p.Height == nil {
		return raster.Request{}, fmt.Errorf("%w: image_buffer, width and height are required", raster.ErrInvalidArgumentCount)
	}

	radius := raster.DefaultBlurRadius
	if p.BlurRadius != nil {
		radius = *p.BlurRadius
	}
	if err := raster.ValidateWorkers(p.Workers); err != nil {
		return raster.Request{}, err
	}
	workers := p.Workers
	if workers == 0 {
		workers = defaultWorkers
	}

	return raster.Request{
		Pixels:     p.ImageBuffer,
		Width:      *p.Width,
		Height:     *p.Height,
		BlurRadius: radius,
		Workers:    workers,
	}, nil
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var body processRequest
	if err := decodeJSON(w, r, &body, s.cfg.MaxBodyBytes); err != nil {
		writeDecodeError(w, err)
		return
	}

	req, err := body.toRaster(s.rasterWorkers)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := raster.Validate(req.Pixels, req.Width, req.Height, req.BlurRadius); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.charge(w, r, ratelimit.PixelCost(req.Width, req.Height, s.pixelsPerTok)) {
		return
	}

	result, err := raster.Run(req)
	if err != nil {
		if raster.IsValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("process failed", "width", req.Width, "height", req.Height, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to process image")
		return
	}

	s.metrics.rasterDuration.Observe(float64(result.DurationMS) / 1000)
	s.logger.Debug("processed buffer", "width", req.Width, "height", req.Height, "radius", req.BlurRadius, "duration_ms", result.DurationMS)
	writeJSON(w, http.StatusOK, result)
}
