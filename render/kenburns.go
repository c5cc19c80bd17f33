// Package render synthesizes video frames from still images. A KenBurns scene
// is a pure function of time: the source is never modified and every call to
// Frame allocates a fresh buffer, so scenes can be rendered concurrently and
// out of order.
package render

import (
	"errors"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Direction is the camera pan over the source image.
type Direction int

const (
	PanNone Direction = iota
	PanRight
	PanLeft
	PanDown
	PanUp
)

func (d Direction) String() string {
	switch d {
	case PanRight:
		return "right"
	case PanLeft:
		return "left"
	case PanDown:
		return "down"
	case PanUp:
		return "up"
	default:
		return "none"
	}
}

// ParseDirection maps a direction name to its value.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "none", "":
		return PanNone, nil
	case "right":
		return PanRight, nil
	case "left":
		return PanLeft, nil
	case "down":
		return PanDown, nil
	case "up":
		return PanUp, nil
	}
	return PanNone, fmt.Errorf("unknown pan direction %q", s)
}

var (
	ErrInvalidDuration = errors.New("scene duration must be positive")
	ErrInvalidZoom     = errors.New("zoom factors must be >= 1")
	ErrInvalidSize     = errors.New("target size must be positive")
)

// Spec describes one scene's camera motion.
type Spec struct {
	// Duration is the time, in seconds, over which the motion runs.
	Duration  float64
	ZoomStart float64
	ZoomEnd   float64
	Pan       Direction
	// Size is the output frame resolution.
	Size image.Point
	// CoverScale, when positive, first rescales the source so it covers
	// Size*CoverScale, leaving room to pan.
	CoverScale float64
}

// Window is a crop rectangle in source pixel coordinates, relative to the
// source's bounds origin.
type Window struct {
	X, Y, W, H float64
}

// KenBurns renders a pan/zoom scene over a still image.
type KenBurns struct {
	src  image.Image
	spec Spec
	sw   float64
	sh   float64
}

// NewKenBurns prepares a scene. The source is rescaled up front when it is
// smaller than the largest crop window the motion needs, so the window never
// leaves the source.
func NewKenBurns(src image.Image, spec Spec) (*KenBurns, error) {
	if !(spec.Duration > 0) {
		return nil, ErrInvalidDuration
	}
	if spec.ZoomStart < 1 || spec.ZoomEnd < 1 || math.IsNaN(spec.ZoomStart) || math.IsNaN(spec.ZoomEnd) {
		return nil, ErrInvalidZoom
	}
	if spec.Size.X <= 0 || spec.Size.Y <= 0 {
		return nil, ErrInvalidSize
	}
	if src.Bounds().Empty() {
		return nil, fmt.Errorf("empty source image")
	}
	src = Fit(src, spec.Size, math.Min(spec.ZoomStart, spec.ZoomEnd), spec.CoverScale)
	nb := src.Bounds()
	return &KenBurns{src: src, spec: spec, sw: float64(nb.Dx()), sh: float64(nb.Dy())}, nil
}

// Spec returns the scene parameters.
func (k *KenBurns) Spec() Spec { return k.spec }

// Fit rescales src so that it covers size*cover (when cover > 0) and so the
// crop window at zoom zmin fits inside it. A source that already satisfies
// both is returned unchanged.
func Fit(src image.Image, size image.Point, zmin, cover float64) image.Image {
	b := src.Bounds()
	if b.Empty() || size.X <= 0 || size.Y <= 0 {
		return src
	}
	if zmin < 1 {
		zmin = 1
	}
	scale := 1.0
	sw, sh := float64(b.Dx()), float64(b.Dy())
	if cover > 0 {
		scale = math.Max(float64(size.X)*cover/sw, float64(size.Y)*cover/sh)
	}
	// The widest window occurs at the smallest zoom.
	need := math.Max(float64(size.X)/zmin/(sw*scale), float64(size.Y)/zmin/(sh*scale))
	if need > 1 {
		scale *= need
	}
	if scale == 1 {
		return src
	}
	w := int(math.Ceil(sw * scale))
	h := int(math.Ceil(sh * scale))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// SourceSize returns the dimensions of the (possibly rescaled) source.
func (k *KenBurns) SourceSize() image.Point {
	return image.Pt(int(k.sw), int(k.sh))
}

// Progress returns t/T clamped to [0, 1].
func (k *KenBurns) Progress(t float64) float64 {
	p := t / k.spec.Duration
	switch {
	case p < 0 || math.IsNaN(p):
		return 0
	case p > 1:
		return 1
	}
	return p
}

// Zoom returns the zoom factor at time t.
func (k *KenBurns) Zoom(t float64) float64 {
	p := k.Progress(t)
	return k.spec.ZoomStart + (k.spec.ZoomEnd-k.spec.ZoomStart)*p
}

// Window returns the crop window at time t.
func (k *KenBurns) Window(t float64) Window {
	p := k.Progress(t)
	z := k.Zoom(t)
	w := float64(k.spec.Size.X) / z
	h := float64(k.spec.Size.Y) / z
	maxX := math.Max(k.sw-w, 0)
	maxY := math.Max(k.sh-h, 0)

	x, y := maxX/2, maxY/2
	switch k.spec.Pan {
	case PanRight:
		x = maxX * p
	case PanLeft:
		x = maxX * (1 - p)
	case PanDown:
		y = maxY * p
	case PanUp:
		y = maxY * (1 - p)
	}
	return Window{X: x, Y: y, W: w, H: h}
}

// Frame renders the frame at time t at the target resolution.
func (k *KenBurns) Frame(t float64) *image.RGBA {
	win := k.Window(t)
	dst := image.NewRGBA(image.Rect(0, 0, k.spec.Size.X, k.spec.Size.Y))
	sx := float64(k.spec.Size.X) / win.W
	sy := float64(k.spec.Size.Y) / win.H
	b := k.src.Bounds()
	// source -> destination affine map; sub-images keep their offset bounds
	m := f64.Aff3{
		sx, 0, -(win.X + float64(b.Min.X)) * sx,
		0, sy, -(win.Y + float64(b.Min.Y)) * sy,
	}
	draw.BiLinear.Transform(dst, m, k.src, b, draw.Src, nil)
	return dst
}
