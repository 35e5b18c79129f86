package raster

// Grayscale writes the luminance of every src pixel into dst. R, G and B all
// receive (77*R + 150*G + 29*B) >> 8; alpha is copied unchanged.
//
// The weights are 0.299/0.587/0.114 scaled by 256, so the shift truncates
// rather than rounds. The weight sum is 256, so the result never exceeds 255.
func Grayscale(dst, src []byte, width, height int) {
	grayscaleRows(dst, src, width, 0, height)
}

func grayscaleRows(dst, src []byte, width, y0, y1 int) {
	start := y0 * width * BytesPerPixel
	end := y1 * width * BytesPerPixel
	for o := start; o < end; o += BytesPerPixel {
		r := uint32(src[o])
		g := uint32(src[o+1])
		b := uint32(src[o+2])

		lum := uint8((77*r + 150*g + 29*b) >> 8)
		dst[o] = lum
		dst[o+1] = lum
		dst[o+2] = lum
		dst[o+3] = src[o+3]
	}
}
