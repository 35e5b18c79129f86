//go:build govips && cgo

package pipeline

import (
	"context"
	"fmt"
	"image"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/dunamismax/grayblur/internal/domain"
)

type govipsTransformer struct {
	workers int
}

func (t govipsTransformer) Transform(ctx context.Context, input []byte, step domain.PipelineStep) (Transformed, error) {
	select {
	case <-ctx.Done():
		return Transformed{}, ctx.Err()
	default:
	}

	pix, width, height, err := decodeGovipsRGBA(input)
	if err != nil {
		return Transformed{}, err
	}

	out, computeMS, err := applyStep(pix, width, height, step, t.workers)
	if err != nil {
		return Transformed{}, err
	}

	format := formatForStep(step.Format, input)
	img := &image.NRGBA{Pix: out, Stride: width * 4, Rect: image.Rect(0, 0, width, height)}

	var data []byte
	if format == "webp" {
		data, err = exportGovipsWebp(img, step.Quality)
	} else {
		data, err = encodeImage(img, format, step.Quality)
	}
	if err != nil {
		return Transformed{}, err
	}

	return Transformed{
		Data:      data,
		Format:    format,
		Width:     width,
		Height:    height,
		ComputeMS: computeMS,
	}, nil
}

// decodeGovipsRGBA applies EXIF orientation, converts to 8-bit sRGB and
// guarantees an alpha band before exporting raw pixel memory.
func decodeGovipsRGBA(input []byte) ([]byte, int, int, error) {
	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode source image: %w", err)
	}
	defer img.Close()

	if err := img.AutoRotate(); err != nil {
		return nil, 0, 0, fmt.Errorf("auto-rotate: %w", err)
	}
	if err := img.ToColorSpace(vips.InterpretationSRGB); err != nil {
		return nil, 0, 0, fmt.Errorf("convert to srgb: %w", err)
	}
	if !img.HasAlpha() {
		if err := img.AddAlpha(); err != nil {
			return nil, 0, 0, fmt.Errorf("add alpha: %w", err)
		}
	}
	if err := img.Cast(vips.BandFormatUchar); err != nil {
		return nil, 0, 0, fmt.Errorf("cast to uchar: %w", err)
	}
	if img.Bands() != 4 {
		return nil, 0, 0, fmt.Errorf("expected 4 bands after conversion, got %d", img.Bands())
	}

	pix, err := img.ToBytes()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("export raw pixels: %w", err)
	}
	return pix, img.Width(), img.Height(), nil
}

func formatForStep(stepFormat string, input []byte) string {
	switch vips.DetermineImageType(input) {
	case vips.ImageTypeJPEG:
		return outputFormat(stepFormat, "jpeg")
	case vips.ImageTypeWEBP:
		return outputFormat(stepFormat, "webp")
	default:
		return outputFormat(stepFormat, "png")
	}
}

// exportGovipsWebp hands the raster to libvips through a lossless PNG, since
// libvips cannot adopt a Go pixel slice directly.
func exportGovipsWebp(img image.Image, quality int) ([]byte, error) {
	pngData, err := encodeImage(img, "png", 0)
	if err != nil {
		return nil, err
	}

	ref, err := vips.NewImageFromBuffer(pngData)
	if err != nil {
		return nil, fmt.Errorf("load raster into vips: %w", err)
	}
	defer ref.Close()

	params := vips.NewWebpExportParams()
	if quality > 0 && quality <= 100 {
		params.Quality = quality
	}
	data, _, err := ref.ExportWebp(params)
	if err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return data, nil
}
