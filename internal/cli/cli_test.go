package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/dunamismax/grayblur/internal/domain"
	"github.com/dunamismax/grayblur/internal/pipeline"
	"github.com/dunamismax/grayblur/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessCommandWritesOutput(t *testing.T) {
	dir := t.TempDir()
	input := writeTestPNG(t, dir, 5, 4, color.NRGBA{R: 100, G: 150, B: 200, A: 255})
	output := filepath.Join(dir, "out", "result.png")

	stdout, err := execute(t, "process", input, output, "--radius", "2", "--workers", "3")
	require.NoError(t, err)
	assert.Contains(t, stdout, "5x4")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	img, format, err := pipeline.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, []uint8{140, 140, 140, 255}, img.Pix[:4])
}

func TestProcessCommandJPEGByExtension(t *testing.T) {
	dir := t.TempDir()
	input := writeTestPNG(t, dir, 3, 3, color.NRGBA{A: 255})
	output := filepath.Join(dir, "result.jpg")

	_, err := execute(t, "process", input, output)
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	_, format, err := pipeline.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestProcessCommandArgumentCount(t *testing.T) {
	_, err := execute(t, "process", "only-one.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, raster.ErrInvalidArgumentCount)

	_, err = execute(t, "process", "a.png", "b.png", "c.png")
	assert.ErrorIs(t, err, raster.ErrInvalidArgumentCount)
}

func TestProcessCommandRejectsRadius(t *testing.T) {
	dir := t.TempDir()
	input := writeTestPNG(t, dir, 2, 2, color.NRGBA{A: 255})

	_, err := execute(t, "process", input, filepath.Join(dir, "o.png"), "--radius", "0")
	assert.ErrorIs(t, err, raster.ErrInvalidBlurRadius)

	_, err = execute(t, "process", input, filepath.Join(dir, "o.png"), "--radius", "51")
	assert.ErrorIs(t, err, raster.ErrInvalidBlurRadius)
}

func TestProcessCommandRejectsQualityAndWorkers(t *testing.T) {
	dir := t.TempDir()
	input := writeTestPNG(t, dir, 2, 2, color.NRGBA{A: 255})
	output := filepath.Join(dir, "o.jpg")

	_, err := execute(t, "process", input, output, "--quality", "101")
	assert.ErrorIs(t, err, domain.ErrInvalidQuality)

	_, err = execute(t, "process", input, output, "--workers", "100000")
	assert.ErrorIs(t, err, raster.ErrInvalidWorkers)

	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr))
}

func TestBenchCommandWritesReport(t *testing.T) {
	dir := t.TempDir()
	input := writeTestPNG(t, dir, 16, 12, color.NRGBA{R: 10, G: 20, B: 30, A: 200})
	report := filepath.Join(dir, "results.json")

	stdout, err := execute(t, "bench", input, "--iterations", "2", "--workers", "1,3", "--out", report)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Benchmark results")

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	var got benchReport
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 16, got.Width)
	assert.Equal(t, 12, got.Height)
	assert.Equal(t, raster.DefaultBlurRadius, got.Radius)
	require.Len(t, got.Results, 2)
	for _, r := range got.Results {
		assert.Len(t, r.Durations, 2)
		assert.True(t, r.Identical)
		assert.GreaterOrEqual(t, r.Max, r.Min)
	}
}

func TestBenchCommandArgumentCount(t *testing.T) {
	_, err := execute(t, "bench")
	assert.ErrorIs(t, err, raster.ErrInvalidArgumentCount)
}

func TestRunBenchSortsFastestFirst(t *testing.T) {
	pix := bytes.Repeat([]byte{1, 2, 3, 4}, 8*8)

	results, err := runBench(pix, 8, 8, benchOpts{iterations: 1, radius: 1, workers: []int{1, 2, 4}}, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.InDelta(t, 1.0, results[0].Relative, 1e-9)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i].Average, results[i-1].Average)
		assert.GreaterOrEqual(t, results[i].Relative, 1.0)
	}
}

func TestRunBenchRejectsBadOptions(t *testing.T) {
	pix := make([]byte, 4)

	_, err := runBench(pix, 1, 1, benchOpts{iterations: 1, radius: 0, workers: []int{1}}, nil)
	assert.ErrorIs(t, err, raster.ErrInvalidBlurRadius)

	_, err = runBench(pix, 1, 1, benchOpts{iterations: 0, radius: 1, workers: []int{1}}, nil)
	assert.Error(t, err)

	_, err = runBench(pix, 1, 1, benchOpts{iterations: 1, radius: 1, workers: []int{0}}, nil)
	assert.Error(t, err)

	_, err = runBench(pix, 1, 1, benchOpts{iterations: 1, radius: 1, workers: []int{1 << 60}}, nil)
	assert.ErrorIs(t, err, raster.ErrInvalidWorkers)
}

func TestStats(t *testing.T) {
	avg, lo, hi := stats([]float64{3, 1, 2})
	assert.InDelta(t, 2.0, avg, 1e-9)
	assert.Equal(t, 1.0, lo)
	assert.Equal(t, 3.0, hi)
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, "jpeg", formatForPath("", "x/out.JPG"))
	assert.Equal(t, "png", formatForPath("", "out.png"))
	assert.Equal(t, "webp", formatForPath("WEBP", "out.png"))
	assert.Equal(t, "", formatForPath("", "out.bin"))
}

func TestSetVersion(t *testing.T) {
	SetVersion("1.0.0", "abc123", "2026-01-01")
	t.Cleanup(func() { SetVersion("dev", "", "") })

	assert.Equal(t, "1.0.0", version)
	assert.Equal(t, "abc123", commit)
	assert.Equal(t, "2026-01-01", date)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeTestPNG(t *testing.T, dir string, width, height int, c color.NRGBA) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(dir, "input.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}
