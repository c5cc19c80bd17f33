package ocr

import (
	"context"
	"errors"
	"image"
	"image/color"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/wudi/mangarecap/panel"
)

type countingEngine struct {
	calls atomic.Int32
	err   error
}

func (e *countingEngine) Name() string { return "counting" }

func (e *countingEngine) Recognize(ctx context.Context, in Input) (Result, error) {
	e.calls.Add(1)
	if e.err != nil {
		return Result{}, e.err
	}
	return Result{InputID: in.ID, PlainText: "text for " + in.ID}, nil
}

func checker(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 250, G: 250, B: 250, A: 255}
			if x > w/3 && x < 2*w/3 && y > h/3 && y < 2*h/3 {
				c = color.RGBA{R: 10, G: 10, B: 10, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestInputFromPanel(t *testing.T) {
	p := panel.Panel{Page: 2, Rank: 1, Image: checker(30, 20)}
	meta := map[string]string{"tessedit_pageseg_mode": "6"}
	in, err := InputFromPanel(p, true, WithLanguages("eng", "jpn"), WithDPI(150), WithMetadata(meta))
	if err != nil {
		t.Fatalf("InputFromPanel() error = %v", err)
	}
	if in.ID != "page-2-panel-1" || in.Page != 2 || in.Rank != 1 {
		t.Fatalf("unexpected identity: %+v", in)
	}
	if in.Format != ImageFormatPNG || len(in.Image) == 0 {
		t.Fatalf("expected PNG payload")
	}
	if !reflect.DeepEqual(in.Languages, []string{"eng", "jpn"}) || in.DPI != 150 {
		t.Fatalf("options not applied: %+v", in)
	}
	meta["tessedit_pageseg_mode"] = "7"
	if in.Metadata["tessedit_pageseg_mode"] != "6" {
		t.Fatalf("metadata was not copied: %+v", in.Metadata)
	}

	if _, err := InputFromPanel(panel.Panel{}, false); err == nil {
		t.Fatalf("expected error for panel without image")
	}
}

func TestTesseractOptions(t *testing.T) {
	in := Input{}
	WithTesseractPSM(6)(&in)
	if got := in.Metadata["tessedit_pageseg_mode"]; got != "6" {
		t.Fatalf("expected PSM to be set, got %q", got)
	}
	WithTesseractWhitelist("ABC")(&in)
	if got := in.Metadata["tessedit_char_whitelist"]; got != "ABC" {
		t.Fatalf("expected whitelist to be set, got %q", got)
	}
}

func TestPreprocessBinarizes(t *testing.T) {
	g := Preprocess(checker(40, 40))
	if g.Bounds().Dx() != 40 || g.Bounds().Dy() != 40 {
		t.Fatalf("unexpected size %v", g.Bounds())
	}
	for _, v := range g.Pix {
		if v != 0 && v != 255 {
			t.Fatalf("output is not binary: %d", v)
		}
	}
	// flat background stays white, the dark block's edge turns black
	if g.GrayAt(2, 2).Y != 255 {
		t.Fatalf("background should be white")
	}
	if g.GrayAt(14, 20).Y != 0 {
		t.Fatalf("dark edge should be black")
	}
}

func TestAdaptiveThresholdFlatImage(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range g.Pix {
		g.Pix[i] = 128
	}
	out := AdaptiveThreshold(g, 4, 2)
	for _, v := range out.Pix {
		if v != 255 {
			t.Fatalf("uniform input must threshold to white")
		}
	}
}

func TestGaussianKernelNormalized(t *testing.T) {
	k := gaussianKernel(11)
	var sum float64
	for _, v := range k {
		sum += v
	}
	if sum < 0.999999 || sum > 1.000001 {
		t.Fatalf("kernel sum = %v", sum)
	}
	if k[5] <= k[0] || k[0] != k[10] {
		t.Fatalf("kernel should peak in the middle and be symmetric: %v", k)
	}
}

func TestCacheReusesResults(t *testing.T) {
	eng := &countingEngine{}
	c := NewCache(eng)
	a := Input{ID: "a", Image: []byte{1, 2, 3}, Format: ImageFormatPNG}
	b := Input{ID: "b", Image: []byte{1, 2, 3}, Format: ImageFormatPNG}
	d := Input{ID: "d", Image: []byte{1, 2, 3}, Format: ImageFormatPNG, Languages: []string{"jpn"}}

	ra, _ := c.Recognize(context.Background(), a)
	rb, _ := c.Recognize(context.Background(), b)
	if _, err := c.Recognize(context.Background(), d); err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if got := eng.calls.Load(); got != 2 {
		t.Fatalf("engine called %d times, want 2", got)
	}
	if rb.InputID != "b" || rb.PlainText != ra.PlainText {
		t.Fatalf("cached result should carry caller id: %+v", rb)
	}
	if hits, misses := c.Stats(); hits != 1 || misses != 2 {
		t.Fatalf("stats = %d/%d", hits, misses)
	}
	if c.Name() != "counting" {
		t.Fatalf("cache should report the wrapped engine name")
	}
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	boom := errors.New("boom")
	eng := &countingEngine{err: boom}
	c := NewCache(eng)
	in := Input{ID: "x", Image: []byte{9}}
	for i := 0; i < 2; i++ {
		if _, err := c.Recognize(context.Background(), in); !errors.Is(err, boom) {
			t.Fatalf("expected engine error, got %v", err)
		}
	}
	if eng.calls.Load() != 2 {
		t.Fatalf("failed results must not be cached")
	}
}

func TestKeyIgnoresMetadataOrder(t *testing.T) {
	a := Input{Image: []byte{1}, Metadata: map[string]string{"a": "1", "b": "2"}}
	b := Input{Image: []byte{1}, Metadata: map[string]string{"b": "2", "a": "1"}}
	if Key(a) != Key(b) {
		t.Fatalf("key must not depend on map order")
	}
	b.Metadata["b"] = "3"
	if Key(a) == Key(b) {
		t.Fatalf("key must change with metadata")
	}
}

func TestNopEngine(t *testing.T) {
	res, err := Nop{}.Recognize(context.Background(), Input{ID: "n"})
	if err != nil || res.InputID != "n" || res.PlainText != "" {
		t.Fatalf("unexpected nop result %+v, %v", res, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (Nop{}).Recognize(ctx, Input{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
