package domain

import "testing"

func TestRasterWork(t *testing.T) {
	tests := []struct {
		action string
		radius int
		pixels int64
		want   int64
	}{
		{action: ActionGrayscale, radius: 5, pixels: 100, want: 100},
		{action: ActionBlur, radius: 1, pixels: 100, want: 900},
		{action: ActionGrayscaleBlur, radius: 5, pixels: 24, want: 24 * 121},
		{action: " Grayscale_Blur ", radius: 2, pixels: 1, want: 25},
		{action: ActionBlur, radius: 0, pixels: 7, want: 7},
		{action: ActionBlur, radius: 3, pixels: 0, want: 0},
	}
	for _, tt := range tests {
		if got := RasterWork(tt.action, tt.radius, tt.pixels); got != tt.want {
			t.Fatalf("RasterWork(%q, %d, %d) = %d, want %d", tt.action, tt.radius, tt.pixels, got, tt.want)
		}
	}
}
