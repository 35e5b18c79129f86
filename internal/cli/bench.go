package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"slices"
	"time"

	"github.com/dunamismax/grayblur/internal/pipeline"
	"github.com/dunamismax/grayblur/internal/raster"
	"github.com/spf13/cobra"
)

type benchOpts struct {
	iterations int
	radius     int
	workers    []int
	out        string
}

// benchResult is one worker count's timings in milliseconds. Relative is the
// average divided by the fastest average, so the fastest run reads 1.00.
type benchResult struct {
	Name      string    `json:"name"`
	Workers   int       `json:"workers"`
	Durations []float64 `json:"durations"`
	Average   float64   `json:"average"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Relative  float64   `json:"relative"`
	Identical bool      `json:"identical"`
}

type benchReport struct {
	Timestamp  time.Time     `json:"timestamp"`
	GoVersion  string        `json:"go"`
	CPUs       int           `json:"cpus"`
	Image      string        `json:"image"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	Radius     int           `json:"radius"`
	Iterations int           `json:"iterations"`
	Results    []benchResult `json:"results"`
}

func newBenchCmd() *cobra.Command {
	opts := benchOpts{
		iterations: 3,
		radius:     raster.DefaultBlurRadius,
		workers:    []int{1, 4, 8},
	}

	cmd := &cobra.Command{
		Use:   "bench <input>",
		Short: "Time the grayscale+blur transform across worker counts",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBenchCmd(cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.iterations, "iterations", "n", opts.iterations, "timed runs per worker count")
	cmd.Flags().IntVarP(&opts.radius, "radius", "r", opts.radius, "blur radius")
	cmd.Flags().IntSliceVarP(&opts.workers, "workers", "w", opts.workers, "worker counts to compare")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write JSON results to this file")
	return cmd
}

func runBenchCmd(cmd *cobra.Command, input string, opts benchOpts) error {
	logger := loggerFromContext(cmd.Context())

	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	img, _, err := pipeline.Decode(data)
	if err != nil {
		return err
	}
	width, height := img.Rect.Dx(), img.Rect.Dy()
	logger.Info("loaded", "image", input, "width", width, "height", height, "mb", fmt.Sprintf("%.2f", float64(len(img.Pix))/(1<<20)))

	results, err := runBench(img.Pix, width, height, opts, func(workers, i int, d time.Duration) {
		logger.Debug("iteration", "workers", workers, "n", i+1, "ms", msOf(d))
	})
	if err != nil {
		return err
	}

	printBench(cmd.OutOrStdout(), results)

	if opts.out == "" {
		return nil
	}
	report := benchReport{
		Timestamp:  time.Now().UTC(),
		GoVersion:  runtime.Version(),
		CPUs:       runtime.NumCPU(),
		Image:      input,
		Width:      width,
		Height:     height,
		Radius:     opts.radius,
		Iterations: opts.iterations,
		Results:    results,
	}
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if err := os.WriteFile(opts.out, body, 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	logger.Info("results saved", "path", opts.out)
	return nil
}

// runBench times the transform iterations times per worker count and returns
// results sorted fastest first. Each output is compared against the first
// worker count's output.
func runBench(pix []byte, width, height int, opts benchOpts, onIteration func(workers, i int, d time.Duration)) ([]benchResult, error) {
	if err := raster.Validate(pix, width, height, opts.radius); err != nil {
		return nil, err
	}
	if opts.iterations < 1 {
		return nil, errors.New("iterations must be at least 1")
	}
	if len(opts.workers) == 0 {
		return nil, errors.New("at least one worker count is required")
	}

	var reference []byte
	dst := make([]byte, len(pix))
	results := make([]benchResult, 0, len(opts.workers))

	for _, workers := range opts.workers {
		if workers < 1 {
			return nil, fmt.Errorf("worker count must be positive, got %d", workers)
		}
		if err := raster.ValidateWorkers(workers); err != nil {
			return nil, err
		}

		res := benchResult{
			Name:      fmt.Sprintf("%d worker(s)", workers),
			Workers:   workers,
			Durations: make([]float64, 0, opts.iterations),
			Identical: true,
		}
		for i := 0; i < opts.iterations; i++ {
			start := time.Now()
			if workers > 1 {
				raster.ProcessParallel(dst, pix, width, height, opts.radius, workers)
			} else {
				raster.Process(dst, pix, width, height, opts.radius)
			}
			elapsed := time.Since(start)
			if onIteration != nil {
				onIteration(workers, i, elapsed)
			}
			res.Durations = append(res.Durations, msOf(elapsed))

			if reference == nil {
				reference = slices.Clone(dst)
			} else if !bytes.Equal(reference, dst) {
				res.Identical = false
			}
		}

		res.Average, res.Min, res.Max = stats(res.Durations)
		results = append(results, res)
	}

	slices.SortStableFunc(results, func(a, b benchResult) int {
		switch {
		case a.Average < b.Average:
			return -1
		case a.Average > b.Average:
			return 1
		default:
			return 0
		}
	})
	fastest := results[0].Average
	for i := range results {
		if fastest > 0 {
			results[i].Relative = results[i].Average / fastest
		} else {
			results[i].Relative = 1
		}
	}
	return results, nil
}

func stats(durations []float64) (avg, lo, hi float64) {
	lo, hi = durations[0], durations[0]
	var sum float64
	for _, d := range durations {
		sum += d
		lo = min(lo, d)
		hi = max(hi, d)
	}
	return sum / float64(len(durations)), lo, hi
}

func msOf(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func printBench(w io.Writer, results []benchResult) {
	fmt.Fprintln(w, styleTitle.Render("Benchmark results"))
	for _, r := range results {
		line := fmt.Sprintf("  %-14s %10.2f ms  min %8.2f ms  max %8.2f ms  %6.2fx",
			r.Name, r.Average, r.Min, r.Max, r.Relative)
		if r.Identical {
			fmt.Fprintln(w, line)
			continue
		}
		fmt.Fprintln(w, line+" "+styleError.Render("output differs"))
	}
	fmt.Fprintln(w, styleDim.Render("relative = average / fastest average"))
}
