package raster

import (
	"time"

	"golang.org/x/sync/errgroup"
)

// Process converts src to grayscale and box-blurs the result into dst.
//
// Blur samples neighbors, so the whole frame is converted into a private
// intermediate buffer before any blur sampling starts. The intermediate is
// scoped to this call and never escapes it.
func Process(dst, src []byte, width, height, radius int) {
	gray := make([]byte, len(src))
	Grayscale(gray, src, width, height)
	BoxBlur(dst, gray, width, height, radius)
}

// ProcessParallel produces the same bytes as Process, splitting each phase
// into horizontal stripes handled by up to workers goroutines. The grayscale
// phase finishes for the whole frame before any blur stripe starts; blur
// stripes read the shared intermediate and write disjoint rows of dst.
func ProcessParallel(dst, src []byte, width, height, radius, workers int) {
	stripes := planStripes(height, workers)
	if len(stripes) <= 1 {
		Process(dst, src, width, height, radius)
		return
	}

	gray := make([]byte, len(src))

	// Stripe stages cannot fail; Wait serves only as the phase barrier.
	var g errgroup.Group
	for _, s := range stripes {
		g.Go(func() error {
			grayscaleRows(gray, src, width, s.y0, s.y1)
			return nil
		})
	}
	_ = g.Wait()

	for _, s := range stripes {
		g.Go(func() error {
			blurRows(dst, gray, width, height, radius, s.y0, s.y1)
			return nil
		})
	}
	_ = g.Wait()
}

type stripe struct {
	y0, y1 int
}

// planStripes splits [0,height) into at most workers contiguous row ranges
// of ceil(height/workers) rows each. Empty trailing stripes are dropped and
// workers is capped at height, so a stripe is never thinner than one row.
func planStripes(height, workers int) []stripe {
	if height < 1 {
		return nil
	}
	workers = min(max(workers, 1), height)
	rowsPer := (height + workers - 1) / workers

	plan := make([]stripe, 0, workers)
	for t := 0; t < workers; t++ {
		y0 := t * rowsPer
		y1 := min(height, (t+1)*rowsPer)
		if y0 >= y1 {
			break
		}
		plan = append(plan, stripe{y0: y0, y1: y1})
	}
	return plan
}

// Request is the host-facing shape of one pipeline invocation.
type Request struct {
	Pixels     []byte
	Width      int
	Height     int
	BlurRadius int
	// Workers above 1 selects ProcessParallel.
	Workers int
}

type Result struct {
	Data       []byte `json:"data"`
	DurationMS int64  `json:"duration_ms"`
}

// Run validates req, allocates the output buffer and runs the pipeline.
// DurationMS covers only the transform, not validation or allocation.
// Nothing is allocated when validation fails.
func Run(req Request) (Result, error) {
	if err := Validate(req.Pixels, req.Width, req.Height, req.BlurRadius); err != nil {
		return Result{}, err
	}
	if err := ValidateWorkers(req.Workers); err != nil {
		return Result{}, err
	}

	out := make([]byte, len(req.Pixels))

	start := time.Now()
	if req.Workers > 1 {
		ProcessParallel(out, req.Pixels, req.Width, req.Height, req.BlurRadius, req.Workers)
	} else {
		Process(out, req.Pixels, req.Width, req.Height, req.BlurRadius)
	}
	elapsed := time.Since(start)

	return Result{Data: out, DurationMS: elapsed.Milliseconds()}, nil
}
