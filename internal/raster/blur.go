package raster

// BoxBlur writes into dst the mean of every (2*radius+1)^2 window of src,
// channel by channel, alpha included.
//
// Neighbors outside [0,width)x[0,height) are skipped, not clamped or
// mirrored, and each mean divides by the number of in-bounds samples. Edge
// and corner pixels therefore average over a smaller window. Means truncate.
//
// Every output pixel re-sums its window: O(width*height*(2*radius+1)^2).
func BoxBlur(dst, src []byte, width, height, radius int) {
	blurRows(dst, src, width, height, radius, 0, height)
}

func blurRows(dst, src []byte, width, height, radius, y0, y1 int) {
	stride := width * BytesPerPixel

	for y := y0; y < y1; y++ {
		top := max(0, y-radius)
		bottom := min(height-1, y+radius)

		for x := 0; x < width; x++ {
			left := max(0, x-radius)
			right := min(width-1, x+radius)

			var r, g, b, a int
			for py := top; py <= bottom; py++ {
				row := py * stride
				for px := left; px <= right; px++ {
					o := row + px*BytesPerPixel
					r += int(src[o])
					g += int(src[o+1])
					b += int(src[o+2])
					a += int(src[o+3])
				}
			}

			count := (bottom - top + 1) * (right - left + 1)
			o := y*stride + x*BytesPerPixel
			dst[o] = uint8(r / count)
			dst[o+1] = uint8(g / count)
			dst[o+2] = uint8(b / count)
			dst[o+3] = uint8(a / count)
		}
	}
}
