package raster

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrayscaleLuminance(t *testing.T) {
	cases := []struct {
		name string
		in   [4]byte
		want [4]byte
	}{
		{name: "red half alpha", in: [4]byte{255, 0, 0, 128}, want: [4]byte{76, 76, 76, 128}},
		{name: "green opaque", in: [4]byte{0, 255, 0, 255}, want: [4]byte{149, 149, 149, 255}},
		{name: "blue transparent", in: [4]byte{0, 0, 255, 0}, want: [4]byte{28, 28, 28, 0}},
		{name: "white", in: [4]byte{255, 255, 255, 255}, want: [4]byte{255, 255, 255, 255}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dst := make([]byte, 4)
			Grayscale(dst, tc.in[:], 1, 1)
			assert.Equal(t, tc.want[:], dst)
		})
	}
}

func TestGrayscalePreservesAlpha(t *testing.T) {
	src := randomPixels(t, 17, 9)
	dst := make([]byte, len(src))
	Grayscale(dst, src, 17, 9)

	for o := 0; o < len(src); o += BytesPerPixel {
		require.Equal(t, src[o+3], dst[o+3], "alpha at offset %d", o)
		require.Equal(t, dst[o], dst[o+1])
		require.Equal(t, dst[o], dst[o+2])
	}
}

func TestBoxBlurUniformImageUnchanged(t *testing.T) {
	const w, h = 7, 5
	src := fill(w, h, [4]byte{90, 30, 200, 180})

	for radius := MinBlurRadius; radius <= MaxBlurRadius; radius++ {
		dst := make([]byte, len(src))
		BoxBlur(dst, src, w, h, radius)
		require.Equal(t, src, dst, "radius %d", radius)
	}
}

func TestBoxBlurSinglePixel(t *testing.T) {
	src := []byte{12, 34, 56, 78}
	for _, radius := range []int{1, 5, 50} {
		dst := make([]byte, 4)
		BoxBlur(dst, src, 1, 1, radius)
		assert.Equal(t, src, dst, "radius %d", radius)
	}
}

func TestBoxBlurDividesByInBoundsCount(t *testing.T) {
	// 3x1 row of gray values 0, 30, 90 with opaque alpha.
	src := []byte{
		0, 0, 0, 255,
		30, 30, 30, 255,
		90, 90, 90, 255,
	}
	dst := make([]byte, len(src))
	BoxBlur(dst, src, 3, 1, 1)

	// Left edge: (0+30)/2, centre: (0+30+90)/3, right edge: (30+90)/2.
	assert.Equal(t, []byte{
		15, 15, 15, 255,
		40, 40, 40, 255,
		60, 60, 60, 255,
	}, dst)
}

func TestBoxBlurTruncates(t *testing.T) {
	src := []byte{
		0, 0, 0, 0,
		1, 1, 1, 1,
	}
	dst := make([]byte, len(src))
	BoxBlur(dst, src, 2, 1, 1)

	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0}, dst)
}

func TestProcessBlackSquare(t *testing.T) {
	src := fill(2, 2, [4]byte{0, 0, 0, 255})
	res, err := Run(Request{Pixels: src, Width: 2, Height: 2, BlurRadius: 1})
	require.NoError(t, err)

	assert.Len(t, res.Data, 16)
	assert.Equal(t, src, res.Data)
	assert.GreaterOrEqual(t, res.DurationMS, int64(0))
}

func TestProcessPreservesLength(t *testing.T) {
	for _, dims := range [][2]int{{1, 1}, {3, 7}, {16, 4}, {31, 29}} {
		src := randomPixels(t, dims[0], dims[1])
		res, err := Run(Request{Pixels: src, Width: dims[0], Height: dims[1], BlurRadius: 2})
		require.NoError(t, err)
		assert.Len(t, res.Data, len(src))
	}
}

func TestProcessDoesNotMutateInput(t *testing.T) {
	src := randomPixels(t, 9, 9)
	orig := bytes.Clone(src)

	dst := make([]byte, len(src))
	Process(dst, src, 9, 9, 3)

	assert.Equal(t, orig, src)
}

func TestProcessIsNotIdempotent(t *testing.T) {
	const w, h = 8, 8
	src := make([]byte, BufferLen(w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := (y*w + x) * BytesPerPixel
			if (x+y)%2 == 0 {
				src[o], src[o+1], src[o+2] = 255, 255, 255
			}
			src[o+3] = 255
		}
	}

	once := make([]byte, len(src))
	Process(once, src, w, h, 1)
	twice := make([]byte, len(src))
	Process(twice, once, w, h, 1)

	assert.NotEqual(t, once, twice, "applying the pipeline twice must differ from applying it once")
}

func TestProcessParallelMatchesSequential(t *testing.T) {
	const w, h = 37, 53
	src := randomPixels(t, w, h)

	want := make([]byte, len(src))
	Process(want, src, w, h, 4)

	for _, workers := range []int{0, 1, 2, 3, 8, 53, 100} {
		got := make([]byte, len(src))
		ProcessParallel(got, src, w, h, 4, workers)
		require.Equal(t, want, got, "workers %d", workers)
	}
}

func TestRunRejectsInvalidInput(t *testing.T) {
	good := fill(2, 2, [4]byte{1, 2, 3, 4})

	cases := []struct {
		name string
		req  Request
		want error
	}{
		{name: "size mismatch", req: Request{Pixels: good[:15], Width: 2, Height: 2, BlurRadius: 1}, want: ErrBufferSizeMismatch},
		{name: "dims disagree", req: Request{Pixels: good, Width: 3, Height: 2, BlurRadius: 1}, want: ErrBufferSizeMismatch},
		{name: "zero width", req: Request{Pixels: good, Width: 0, Height: 2, BlurRadius: 1}, want: ErrInvalidDimensions},
		{name: "negative height", req: Request{Pixels: good, Width: 2, Height: -2, BlurRadius: 1}, want: ErrInvalidDimensions},
		{name: "radius zero", req: Request{Pixels: good, Width: 2, Height: 2, BlurRadius: 0}, want: ErrInvalidBlurRadius},
		{name: "radius 51", req: Request{Pixels: good, Width: 2, Height: 2, BlurRadius: 51}, want: ErrInvalidBlurRadius},
		{name: "negative workers", req: Request{Pixels: good, Width: 2, Height: 2, BlurRadius: 1, Workers: -1}, want: ErrInvalidWorkers},
		{name: "workers beyond max", req: Request{Pixels: good, Width: 2, Height: 2, BlurRadius: 1, Workers: 1 << 60}, want: ErrInvalidWorkers},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Run(tc.req)
			require.ErrorIs(t, err, tc.want)
			assert.True(t, IsValidationError(err))
			assert.Nil(t, res.Data)
		})
	}
}

func TestValidateAcceptsRadiusBounds(t *testing.T) {
	pix := fill(1, 1, [4]byte{})
	assert.NoError(t, Validate(pix, 1, 1, MinBlurRadius))
	assert.NoError(t, Validate(pix, 1, 1, MaxBlurRadius))
}

func TestPlanStripes(t *testing.T) {
	plan := planStripes(10, 4)
	assert.Equal(t, []stripe{{0, 3}, {3, 6}, {6, 9}, {9, 10}}, plan)

	plan = planStripes(2, 8)
	assert.Equal(t, []stripe{{0, 1}, {1, 2}}, plan)

	plan = planStripes(3, 1<<60)
	assert.Equal(t, []stripe{{0, 1}, {1, 2}, {2, 3}}, plan)
	assert.Equal(t, 3, cap(plan))

	assert.Empty(t, planStripes(0, 4))
}

func TestProcessParallelHugeWorkerCount(t *testing.T) {
	src := randomPixels(t, 5, 3)
	want := make([]byte, len(src))
	Process(want, src, 5, 3, 2)

	got := make([]byte, len(src))
	require.NotPanics(t, func() { ProcessParallel(got, src, 5, 3, 2, 1<<60) })
	assert.Equal(t, want, got)
}

func TestValidateWorkers(t *testing.T) {
	for _, w := range []int{0, 1, MaxWorkers} {
		assert.NoError(t, ValidateWorkers(w))
	}
	for _, w := range []int{-1, MaxWorkers + 1, 1 << 60} {
		assert.ErrorIs(t, ValidateWorkers(w), ErrInvalidWorkers)
	}
}

func BenchmarkProcess(b *testing.B) {
	const w, h = 640, 480
	src := make([]byte, BufferLen(w, h))
	rand.New(rand.NewSource(1)).Read(src)
	dst := make([]byte, len(src))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Process(dst, src, w, h, DefaultBlurRadius)
	}
}

func BenchmarkProcessParallel(b *testing.B) {
	const w, h = 640, 480
	src := make([]byte, BufferLen(w, h))
	rand.New(rand.NewSource(1)).Read(src)
	dst := make([]byte, len(src))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ProcessParallel(dst, src, w, h, DefaultBlurRadius, 8)
	}
}

func fill(w, h int, px [4]byte) []byte {
	buf := make([]byte, BufferLen(w, h))
	for o := 0; o < len(buf); o += BytesPerPixel {
		copy(buf[o:o+4], px[:])
	}
	return buf
}

func randomPixels(t *testing.T, w, h int) []byte {
	t.Helper()
	buf := make([]byte, BufferLen(w, h))
	rand.New(rand.NewSource(int64(w*1000 + h))).Read(buf)
	return buf
}
