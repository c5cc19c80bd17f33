package panel

import (
	"image"
	"sort"

	"golang.org/x/image/draw"
)

// Segmenter detects and orders panels. It holds no mutable state and may be
// shared across goroutines.
type Segmenter struct {
	opts Options
}

// New constructs a Segmenter. Zero Threshold or BandHeight fall back to the
// defaults.
func New(opts Options) *Segmenter {
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.BandHeight <= 0 {
		opts.BandHeight = DefaultBandHeight
	}
	if opts.MinArea < 0 {
		opts.MinArea = 0
	}
	return &Segmenter{opts: opts}
}

// Options returns the effective settings.
func (s *Segmenter) Options() Options { return s.opts }

// SegmentPage decodes the page image and segments it. Decode failures are
// reported as *DecodeError.
func (s *Segmenter) SegmentPage(page Page) ([]Panel, error) {
	img, err := DecodeFile(page.Path)
	if err != nil {
		return nil, &DecodeError{Page: page.Index, Path: page.Path, Cause: err}
	}
	return s.Segment(page.Index, img), nil
}

// Segment returns the panels of img in reading order. It never returns an
// empty slice for a non-empty image: when no region survives filtering, a
// single synthetic panel covering the whole page is returned.
func (s *Segmenter) Segment(pageIndex int, img image.Image) []Panel {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil
	}

	mask := binarize(img, s.opts.Threshold)
	if s.opts.MorphKernel > 1 {
		mask = closeMask(mask, w, h, s.opts.MorphKernel)
		mask = openMask(mask, w, h, s.opts.MorphKernel)
	}
	fillHoles(mask, w, h)

	var kept []image.Rectangle
	for _, r := range labelRegions(mask, w, h) {
		if r.area < s.opts.MinArea {
			continue
		}
		kept = append(kept, r.bounds)
	}
	kept = dropContained(kept)

	if len(kept) == 0 {
		return []Panel{{
			Page:      pageIndex,
			Bounds:    image.Rect(0, 0, w, h),
			Rank:      0,
			Image:     img,
			Synthetic: true,
		}}
	}

	s.order(kept)
	panels := make([]Panel, len(kept))
	for i, r := range kept {
		panels[i] = Panel{
			Page:   pageIndex,
			Bounds: r,
			Rank:   i,
			Image:  crop(img, r.Add(b.Min)),
		}
	}
	return panels
}

// Band returns the reading-order band of a box.
func (s *Segmenter) Band(r image.Rectangle) int {
	return r.Min.Y / s.opts.BandHeight
}

// order sorts boxes by band ascending, then x descending. The sort is stable
// so equal keys keep detection order.
func (s *Segmenter) order(boxes []image.Rectangle) {
	sort.SliceStable(boxes, func(i, j int) bool {
		bi, bj := s.Band(boxes[i]), s.Band(boxes[j])
		if bi != bj {
			return bi < bj
		}
		return boxes[i].Min.X > boxes[j].Min.X
	})
}

// dropContained removes every box lying fully inside another one. Of two
// identical boxes the first detected is kept.
func dropContained(boxes []image.Rectangle) []image.Rectangle {
	out := make([]image.Rectangle, 0, len(boxes))
	for i, a := range boxes {
		contained := false
		for j, b := range boxes {
			if i == j || !a.In(b) {
				continue
			}
			if a != b || j < i {
				contained = true
				break
			}
		}
		if !contained {
			out = append(out, a)
		}
	}
	return out
}

func crop(img image.Image, r image.Rectangle) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}
