package raster

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/wudi/mangarecap/tools"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

func TestImagesDirectoryNaturalOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"page10.png", "page2.png", "page1.png", "notes.txt"} {
		if filepath.Ext(name) == ".png" {
			writePNG(t, filepath.Join(dir, name), 40, 60)
		} else {
			os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644)
		}
	}

	pages, err := Images{}.Rasterize(context.Background(), Request{Input: dir})
	if err != nil {
		t.Fatalf("Rasterize() error = %v", err)
	}
	var names []string
	for i, p := range pages {
		if p.Index != i {
			t.Fatalf("page %d has index %d", i, p.Index)
		}
		if p.Width != 40 || p.Height != 60 {
			t.Fatalf("page %d dims %dx%d", i, p.Width, p.Height)
		}
		names = append(names, filepath.Base(p.Path))
	}
	want := []string{"page1.png", "page2.png", "page10.png"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("order = %v, want %v", names, want)
	}
}

func TestImagesMaxPages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		writePNG(t, filepath.Join(dir, name), 4, 4)
	}
	pages, err := Images{}.Rasterize(context.Background(), Request{Input: dir, MaxPages: 2})
	if err != nil || len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d, %v", len(pages), err)
	}
}

func TestImagesEmptyAndUnsupported(t *testing.T) {
	dir := t.TempDir()
	if _, err := (Images{}).Rasterize(context.Background(), Request{Input: dir}); !errors.Is(err, ErrNoPages) {
		t.Fatalf("expected ErrNoPages, got %v", err)
	}
	txt := filepath.Join(dir, "chapter.txt")
	os.WriteFile(txt, []byte("x"), 0o644)
	if _, err := (Images{}).Rasterize(context.Background(), Request{Input: txt}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

type fakeRunner struct {
	req   tools.Request
	pages int
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, req tools.Request) (tools.Response, error) {
	f.req = req
	if f.err != nil {
		return tools.Response{}, f.err
	}
	prefix := req.Args[len(req.Args)-1]
	for i := 1; i <= f.pages; i++ {
		name := prefix + "-" + pad(i, f.pages) + ".png"
		f2, _ := os.Create(name)
		png.Encode(f2, image.NewGray(image.Rect(0, 0, 8, 12)))
		f2.Close()
	}
	return tools.Response{}, nil
}

func pad(i, n int) string {
	s := []byte{byte('0' + i%10)}
	if i >= 10 {
		s = append([]byte{byte('0' + i/10)}, s...)
	}
	if n >= 10 && i < 10 {
		s = append([]byte{'0'}, s...)
	}
	return string(s)
}

func TestPDFRasterize(t *testing.T) {
	work := t.TempDir()
	pdf := filepath.Join(work, "chapter.pdf")
	os.WriteFile(pdf, []byte("%PDF-1.4"), 0o644)

	runner := &fakeRunner{pages: 11}
	auto := NewAuto(runner, "")
	pages, err := auto.Rasterize(context.Background(), Request{Input: pdf, WorkDir: work, DPI: 150, MaxPages: 50})
	if err != nil {
		t.Fatalf("Rasterize() error = %v", err)
	}
	if len(pages) != 11 {
		t.Fatalf("expected 11 pages, got %d", len(pages))
	}
	if filepath.Base(pages[1].Path) != "page-02.png" || filepath.Base(pages[10].Path) != "page-11.png" {
		t.Fatalf("unexpected order: %s, %s", pages[1].Path, pages[10].Path)
	}
	if pages[0].Width != 8 || pages[0].Height != 12 {
		t.Fatalf("dims not read: %+v", pages[0])
	}
	wantArgs := []string{"-r", "150", "-png", "-f", "1", "-l", "50", pdf}
	if !reflect.DeepEqual(runner.req.Args[:len(wantArgs)], wantArgs) || runner.req.Tool != "pdftoppm" {
		t.Fatalf("unexpected invocation: %+v", runner.req)
	}
}

func TestPDFRasterizeToolFailure(t *testing.T) {
	work := t.TempDir()
	pdf := filepath.Join(work, "chapter.pdf")
	os.WriteFile(pdf, []byte("%PDF-1.4"), 0o644)
	missing := &tools.MissingError{Tool: "pdftoppm", Err: errors.New("not found")}
	_, err := NewAuto(&fakeRunner{err: missing}, "").Rasterize(context.Background(), Request{Input: pdf, WorkDir: work})
	if !errors.Is(err, tools.ErrToolUnavailable) {
		t.Fatalf("expected tool error to propagate, got %v", err)
	}
}

func TestAutoRejectsUnknown(t *testing.T) {
	f := filepath.Join(t.TempDir(), "chapter.epub")
	os.WriteFile(f, []byte("x"), 0o644)
	if _, err := NewAuto(&fakeRunner{}, "").Rasterize(context.Background(), Request{Input: f}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestNaturalLess(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"p2.png", "p10.png", true},
		{"p10.png", "p2.png", false},
		{"A1", "a2", true},
		{"ch1-p3", "ch1-p03x", true},
		{"same", "same", false},
	}
	for _, tc := range cases {
		if got := naturalLess(tc.a, tc.b); got != tc.want {
			t.Errorf("naturalLess(%q, %q) = %v", tc.a, tc.b, got)
		}
	}
}
