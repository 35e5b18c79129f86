package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dunamismax/grayblur/internal/domain"
	"github.com/dunamismax/grayblur/internal/pipeline"
	"github.com/dunamismax/grayblur/internal/raster"
	"github.com/spf13/cobra"
)

type processOpts struct {
	action  string
	radius  int
	workers int
	quality int
	format  string
}

func newProcessCmd() *cobra.Command {
	opts := processOpts{
		action:  domain.ActionGrayscaleBlur,
		radius:  raster.DefaultBlurRadius,
		workers: 1,
		quality: 90,
	}

	cmd := &cobra.Command{
		Use:   "process <input> <output>",
		Short: "Convert an image to grayscale and box-blur it",
		Long: `Decode <input> (PNG, JPEG, GIF, BMP, TIFF or WebP), convert it to grayscale,
apply a box blur and write the result to <output>. The output format follows the
output file extension unless --format is set.`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, args[0], args[1], opts)
		},
	}

	cmd.Flags().StringVar(&opts.action, "action", opts.action, "transform: grayscale_blur, grayscale or blur")
	cmd.Flags().IntVarP(&opts.radius, "radius", "r", opts.radius, fmt.Sprintf("blur radius in [%d,%d]", raster.MinBlurRadius, raster.MaxBlurRadius))
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", opts.workers, "horizontal stripes processed in parallel")
	cmd.Flags().IntVarP(&opts.quality, "quality", "q", opts.quality, "JPEG quality (1-100)")
	cmd.Flags().StringVar(&opts.format, "format", "", "output format: png, jpeg or webp")
	return cmd
}

func runProcess(cmd *cobra.Command, input, output string, opts processOpts) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	radius := opts.radius
	step := domain.PipelineStep{
		ID:         "cli",
		Action:     strings.ToLower(strings.TrimSpace(opts.action)),
		BlurRadius: &radius,
		Workers:    opts.workers,
		Format:     formatForPath(opts.format, output),
		Quality:    opts.quality,
	}
	if err := step.Validate(); err != nil {
		return err
	}

	processor, err := pipeline.New(pipeline.LocalFileFetcher{}, pipeline.FileEmitter{Path: output}, pipeline.Options{RasterWorkers: opts.workers})
	if err != nil {
		return err
	}

	logger.Debug("processing", "input", input, "output", output, "action", step.Action, "radius", radius, "workers", opts.workers)
	start := time.Now()
	result, err := processor.Process(ctx, pipeline.Request{
		JobID:      "cli",
		SourceType: pipeline.SourceTypeLocalFile,
		ObjectKey:  input,
		Pipeline:   []domain.PipelineStep{step},
	})
	if err != nil {
		return err
	}
	out := result.Outputs[0]

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, styleSuccess.Render("✓ ")+styleTitle.Render(out.Path))
	printField(w, "size", fmt.Sprintf("%dx%d", out.Width, out.Height))
	printField(w, "format", out.Format)
	printField(w, "bytes", out.Bytes)
	printField(w, "transform", fmt.Sprintf("%d ms", out.DurationMS))
	printField(w, "total", time.Since(start).Round(time.Millisecond))
	return nil
}

// formatForPath prefers an explicit format and otherwise maps the output
// extension. An empty result keeps the source format.
func formatForPath(explicit, path string) string {
	if f := strings.TrimSpace(explicit); f != "" {
		return strings.ToLower(f)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".png":
		return "png"
	case ".webp":
		return "webp"
	default:
		return ""
	}
}

// exactArgs is cobra.ExactArgs reporting raster.ErrInvalidArgumentCount.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("%w: %s expects %d arguments, got %d", raster.ErrInvalidArgumentCount, cmd.Name(), n, len(args))
		}
		return nil
	}
}
