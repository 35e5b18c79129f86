package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"github.com/dunamismax/grayblur/internal/domain"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type stdlibTransformer struct {
	workers int
}

func (t stdlibTransformer) Transform(ctx context.Context, input []byte, step domain.PipelineStep) (Transformed, error) {
	select {
	case <-ctx.Done():
		return Transformed{}, ctx.Err()
	default:
	}

	src, srcFormat, err := Decode(input)
	if err != nil {
		return Transformed{}, err
	}

	width, height := src.Rect.Dx(), src.Rect.Dy()
	pix, computeMS, err := applyStep(src.Pix, width, height, step, t.workers)
	if err != nil {
		return Transformed{}, err
	}

	format := outputFormat(step.Format, srcFormat)
	out := &image.NRGBA{Pix: pix, Stride: width * 4, Rect: image.Rect(0, 0, width, height)}
	data, err := encodeImage(out, format, step.Quality)
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

// Decode reads an encoded image into a straight-alpha RGBA raster anchored
// at the origin, whose Pix is exactly width*height*4 bytes.
func Decode(input []byte) (*image.NRGBA, string, error) {
	src, format, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		return nil, "", fmt.Errorf("decode source image: %w", err)
	}

	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", errors.New("source image has invalid dimensions")
	}

	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	// Straight-alpha sources are copied row by row; drawing would round-trip
	// through premultiplied color and lose precision on translucent pixels.
	if n, ok := src.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			copy(dst.Pix[y*dst.Stride:(y+1)*dst.Stride], n.Pix[n.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return dst, format, nil
	}

	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst, format, nil
}

const defaultJPEGQuality = 90

func encodeImage(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case "jpeg":
		if quality == 0 {
			quality = defaultJPEGQuality
		}
		if quality < 1 || quality > 100 {
			return nil, fmt.Errorf("%w: got %d", domain.ErrInvalidQuality, quality)
		}
		if err := jpeg.Encode(&buf, flatten(img, color.White), &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case "png":
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case "webp":
		return nil, errors.New("webp export requires govips build tag")
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	return buf.Bytes(), nil
}

// flatten composites img over an opaque background; JPEG has no alpha.
func flatten(img image.Image, bg color.Color) *image.RGBA {
	dst := image.NewRGBA(img.Bounds())
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Over)
	return dst
}
