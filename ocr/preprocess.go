package ocr

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

const (
	// AdaptiveBlock is the side of the neighbourhood used for the local
	// threshold.
	AdaptiveBlock = 11
	// AdaptiveOffset is subtracted from the local weighted mean.
	AdaptiveOffset = 2
)

// Preprocess converts a panel to grayscale and binarizes it against a
// Gaussian-weighted local mean, which keeps lettering legible on screentone and
// uneven scans. Text ends up black on white.
func Preprocess(src image.Image) *image.Gray {
	return AdaptiveThreshold(toGray(src), AdaptiveBlock, AdaptiveOffset)
}

// AdaptiveThreshold sets a pixel to white when it is brighter than the
// Gaussian-weighted mean of its block x block neighbourhood minus c, and to
// black otherwise. Borders replicate the edge pixels.
func AdaptiveThreshold(g *image.Gray, block int, c float64) *image.Gray {
	if block < 3 {
		block = 3
	}
	if block%2 == 0 {
		block++
	}
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	kernel := gaussianKernel(block)
	r := block / 2
	tmp := make([]float64, w*h)

	origin := g.PixOffset(b.Min.X, b.Min.Y)
	row := func(y int) []uint8 { return g.Pix[origin+y*g.Stride : origin+y*g.Stride+w] }

	for y := 0; y < h; y++ {
		line := row(y)
		for x := 0; x < w; x++ {
			var s float64
			for k := -r; k <= r; k++ {
				s += kernel[k+r] * float64(line[clamp(x+k, w)])
			}
			tmp[y*w+x] = s
		}
	}
	for y := 0; y < h; y++ {
		line := row(y)
		for x := 0; x < w; x++ {
			var mean float64
			for k := -r; k <= r; k++ {
				mean += kernel[k+r] * tmp[clamp(y+k, h)*w+x]
			}
			if float64(line[x]) > mean-c {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// gaussianKernel returns normalized weights for an odd size, with sigma
// derived from the size the same way common imaging libraries do.
func gaussianKernel(size int) []float64 {
	sigma := 0.3*(float64(size-1)*0.5-1) + 0.8
	k := make([]float64, size)
	r := size / 2
	var sum float64
	for i := range k {
		d := float64(i - r)
		k[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

func clamp(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}

func toGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		return g
	}
	b := src.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), src, b.Min, draw.Src)
	return g
}
