package imaging

import (
	"image"

	"github.com/lucasb-eyer/go-colorful"
)

// AverageColor returns the mean color of img as a "#RRGGBB" hex string.
//
// Averaging happens in linear RGB so dark images do not wash out the way a
// naive sRGB mean would. Intended for small images (thumbnails); cost is one
// pass over every pixel.
func AverageColor(img image.Image) string {
	bounds := img.Bounds()
	total := float64(bounds.Dx() * bounds.Dy())
	if total == 0 {
		return "#000000"
	}

	var sumR, sumG, sumB float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c, ok := colorful.MakeColor(img.At(x, y))
			if !ok {
				// Fully transparent pixel; skip it.
				total--
				continue
			}
			r, g, b := c.LinearRgb()
			sumR += r
			sumG += g
			sumB += b
		}
	}
	if total <= 0 {
		return "#000000"
	}

	avg := colorful.LinearRgb(sumR/total, sumG/total, sumB/total).Clamped()
	return avg.Hex()
}
