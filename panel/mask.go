package panel

import (
	"image"
	"image/color"
)

// binarize maps paper (gray >= threshold) to 0 and ink to 1.
func binarize(img image.Image, threshold uint8) []uint8 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	mask := make([]uint8, w*h)
	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < h; y++ {
			row := src.Pix[(y)*src.Stride : y*src.Stride+w]
			for x, v := range row {
				if v < threshold {
					mask[y*w+x] = 1
				}
			}
		}
	case *image.RGBA:
		for y := 0; y < h; y++ {
			off := y * src.Stride
			for x := 0; x < w; x++ {
				p := src.Pix[off+4*x : off+4*x+3 : off+4*x+3]
				if luma(p[0], p[1], p[2]) < threshold {
					mask[y*w+x] = 1
				}
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				g := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
				if g.Y < threshold {
					mask[y*w+x] = 1
				}
			}
		}
	}
	return mask
}

// luma matches color.GrayModel for opaque 8-bit samples.
func luma(r, g, b uint8) uint8 {
	y := (19595*uint32(r) + 38470*uint32(g) + 7471*uint32(b) + 1<<15) >> 16
	return uint8(y)
}

func closeMask(mask []uint8, w, h, k int) []uint8 {
	return erode(dilate(mask, w, h, k), w, h, k)
}

func openMask(mask []uint8, w, h, k int) []uint8 {
	return dilate(erode(mask, w, h, k), w, h, k)
}

func dilate(mask []uint8, w, h, k int) []uint8 {
	return separable(mask, w, h, k, 1)
}

func erode(mask []uint8, w, h, k int) []uint8 {
	return separable(mask, w, h, k, 0)
}

// separable applies a k×k square min/max filter as a horizontal then a
// vertical pass. hit is the value that wins inside the window: 1 dilates,
// 0 erodes. Pixels outside the image are ignored.
func separable(mask []uint8, w, h, k int, hit uint8) []uint8 {
	lo := (k - 1) / 2
	hi := k - 1 - lo
	tmp := make([]uint8, len(mask))
	for y := 0; y < h; y++ {
		row := mask[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			v := 1 - hit
			for xx := max(0, x-lo); xx <= min(w-1, x+hi); xx++ {
				if row[xx] == hit {
					v = hit
					break
				}
			}
			tmp[y*w+x] = v
		}
	}
	out := make([]uint8, len(mask))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			v := 1 - hit
			for yy := max(0, y-lo); yy <= min(h-1, y+hi); yy++ {
				if tmp[yy*w+x] == hit {
					v = hit
					break
				}
			}
			out[y*w+x] = v
		}
	}
	return out
}

// fillHoles marks every background pixel that cannot reach the image border
// (4-connectivity) as ink, so each region is represented by its outer
// boundary only.
func fillHoles(mask []uint8, w, h int) {
	const outside = 2
	stack := make([]int32, 0, 1024)
	push := func(i int) {
		if mask[i] == 0 {
			mask[i] = outside
			stack = append(stack, int32(i))
		}
	}
	for x := 0; x < w; x++ {
		push(x)
		push((h-1)*w + x)
	}
	for y := 0; y < h; y++ {
		push(y * w)
		push(y*w + w - 1)
	}
	for len(stack) > 0 {
		i := int(stack[len(stack)-1])
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		if x > 0 {
			push(i - 1)
		}
		if x < w-1 {
			push(i + 1)
		}
		if y > 0 {
			push(i - w)
		}
		if y < h-1 {
			push(i + w)
		}
	}
	for i, v := range mask {
		if v == outside {
			mask[i] = 0
		} else {
			mask[i] = 1
		}
	}
}

type region struct {
	bounds image.Rectangle
	area   int
}

// labelRegions returns the 8-connected ink regions in raster discovery order.
func labelRegions(mask []uint8, w, h int) []region {
	const seen = 2
	var regions []region
	stack := make([]int32, 0, 1024)
	for start, v := range mask {
		if v != 1 {
			continue
		}
		minX, minY := start%w, start/w
		maxX, maxY := minX, minY
		area := 0
		mask[start] = seen
		stack = append(stack[:0], int32(start))
		for len(stack) > 0 {
			i := int(stack[len(stack)-1])
			stack = stack[:len(stack)-1]
			area++
			x, y := i%w, i/w
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)
			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w {
						continue
					}
					j := ny*w + nx
					if mask[j] == 1 {
						mask[j] = seen
						stack = append(stack, int32(j))
					}
				}
			}
		}
		regions = append(regions, region{
			bounds: image.Rect(minX, minY, maxX+1, maxY+1),
			area:   area,
		})
	}
	return regions
}
