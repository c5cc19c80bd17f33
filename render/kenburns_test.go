package render

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 90, A: 255})
		}
	}
	return img
}

func TestWindowEndpoints(t *testing.T) {
	src := gradient(400, 300)
	kb, err := NewKenBurns(src, Spec{Duration: 4, ZoomStart: 1, ZoomEnd: 1.1, Pan: PanRight, Size: image.Pt(200, 150)})
	if err != nil {
		t.Fatalf("NewKenBurns() error = %v", err)
	}

	start := kb.Window(0)
	if start.X != 0 || math.Abs(start.W-200) > 1e-9 || math.Abs(start.H-150) > 1e-9 {
		t.Fatalf("unexpected start window %+v", start)
	}
	end := kb.Window(4)
	wantW := 200 / 1.1
	if math.Abs(end.W-wantW) > 1e-9 {
		t.Fatalf("end width = %v, want %v", end.W, wantW)
	}
	if math.Abs(end.X-(400-wantW)) > 1e-9 {
		t.Fatalf("right pan should end at the right edge, x = %v", end.X)
	}
	// past the end the window is frozen
	if kb.Window(10) != end || kb.Window(-1) != start {
		t.Fatalf("window must clamp outside [0, T]")
	}
}

func TestWindowStaysInsideSource(t *testing.T) {
	src := gradient(120, 90)
	for _, dir := range []Direction{PanNone, PanRight, PanLeft, PanDown, PanUp} {
		kb, err := NewKenBurns(src, Spec{Duration: 3, ZoomStart: 1.2, ZoomEnd: 1, Pan: dir, Size: image.Pt(320, 180), CoverScale: 1.3})
		if err != nil {
			t.Fatalf("%v: NewKenBurns() error = %v", dir, err)
		}
		size := kb.SourceSize()
		for i := 0; i <= 30; i++ {
			w := kb.Window(float64(i) * 0.1)
			if w.X < -1e-9 || w.Y < -1e-9 || w.X+w.W > float64(size.X)+1e-9 || w.Y+w.H > float64(size.Y)+1e-9 {
				t.Fatalf("%v: window %+v leaves source %v", dir, w, size)
			}
		}
	}
}

func TestSmallSourceIsUpscaled(t *testing.T) {
	kb, err := NewKenBurns(gradient(50, 40), Spec{Duration: 1, ZoomStart: 1, ZoomEnd: 1.1, Size: image.Pt(640, 360)})
	if err != nil {
		t.Fatalf("NewKenBurns() error = %v", err)
	}
	size := kb.SourceSize()
	if size.X < 640 || size.Y < 360 {
		t.Fatalf("source should cover the widest window, got %v", size)
	}
}

func TestFrameIsPure(t *testing.T) {
	src := gradient(300, 200)
	before := append([]uint8(nil), src.Pix...)
	kb, err := NewKenBurns(src, Spec{Duration: 2, ZoomStart: 1, ZoomEnd: 1.1, Pan: PanLeft, Size: image.Pt(160, 90)})
	if err != nil {
		t.Fatalf("NewKenBurns() error = %v", err)
	}

	a := kb.Frame(0.7)
	b := kb.Frame(0.7)
	if a == b {
		t.Fatalf("Frame must return a fresh buffer")
	}
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Fatalf("Frame must be deterministic")
	}
	if a.Bounds().Dx() != 160 || a.Bounds().Dy() != 90 {
		t.Fatalf("frame size = %v", a.Bounds())
	}
	if !bytes.Equal(src.Pix, before) {
		t.Fatalf("source image was modified")
	}
}

func TestNewKenBurnsValidates(t *testing.T) {
	src := gradient(10, 10)
	cases := []struct {
		name string
		spec Spec
		want error
	}{
		{"zero duration", Spec{Duration: 0, ZoomStart: 1, ZoomEnd: 1, Size: image.Pt(10, 10)}, ErrInvalidDuration},
		{"zoom below one", Spec{Duration: 1, ZoomStart: 0.5, ZoomEnd: 1, Size: image.Pt(10, 10)}, ErrInvalidZoom},
		{"empty size", Spec{Duration: 1, ZoomStart: 1, ZoomEnd: 1}, ErrInvalidSize},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewKenBurns(src, tc.spec); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestParseDirection(t *testing.T) {
	for _, d := range []Direction{PanNone, PanRight, PanLeft, PanDown, PanUp} {
		got, err := ParseDirection(d.String())
		if err != nil || got != d {
			t.Fatalf("ParseDirection(%q) = %v, %v", d.String(), got, err)
		}
	}
	if _, err := ParseDirection("sideways"); err == nil {
		t.Fatalf("expected error for unknown direction")
	}
}

func TestTitleCard(t *testing.T) {
	img, err := TitleCard("Chapter 1\nThe Beginning", image.Pt(640, 360), IntroStyle)
	if err != nil {
		t.Fatalf("TitleCard() error = %v", err)
	}
	if got := img.RGBAAt(0, 0); got != IntroStyle.Background {
		t.Fatalf("corner should be background, got %v", got)
	}
	fg := 0
	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i] > 200 && img.Pix[i+1] < 160 {
			fg++
		}
	}
	if fg == 0 {
		t.Fatalf("no text pixels were drawn")
	}
	if MeasureLine("wide line of text", 60) <= MeasureLine("w", 60) {
		t.Fatalf("longer lines should measure wider")
	}
}

func TestFit(t *testing.T) {
	src := gradient(400, 300)
	got := Fit(src, image.Pt(200, 150), 1, 1.3)
	if b := got.Bounds(); b.Dx() != 260 || b.Dy() != 195 {
		t.Fatalf("cover fit = %v, want 260x195", b)
	}
	if Fit(src, image.Pt(200, 150), 1, 0) != image.Image(src) {
		t.Fatalf("a source that already fits should be returned as is")
	}
	// a zoomed-in minimum lets a smaller source through untouched
	if b := Fit(gradient(100, 75), image.Pt(200, 150), 2, 0).Bounds(); b.Dx() != 100 || b.Dy() != 75 {
		t.Fatalf("zoom 2 fit = %v, want 100x75", b)
	}
}

func TestFrameHonoursSourceOffset(t *testing.T) {
	page := image.NewRGBA(image.Rect(0, 0, 120, 60))
	for y := 0; y < 60; y++ {
		for x := 0; x < 120; x++ {
			page.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	crop := page.SubImage(image.Rect(20, 10, 100, 50))
	kb, err := NewKenBurns(crop, Spec{Duration: 1, ZoomStart: 1, ZoomEnd: 1, Size: image.Pt(80, 40)})
	if err != nil {
		t.Fatalf("NewKenBurns() error = %v", err)
	}
	f := kb.Frame(0)
	cases := []struct {
		x, y int
		r, g uint8
	}{
		{0, 0, 20, 10},
		{40, 20, 60, 30},
		{79, 39, 99, 49},
	}
	for _, tc := range cases {
		got := f.RGBAAt(tc.x, tc.y)
		if absDiff(got.R, tc.r) > 1 || absDiff(got.G, tc.g) > 1 || got.A != 255 {
			t.Errorf("frame pixel (%d,%d) = %v, want source pixel (%d,%d)", tc.x, tc.y, got, tc.r, tc.g)
		}
	}
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
