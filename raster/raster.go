// Package raster turns a source document into an ordered list of page images
// on disk.
package raster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/wudi/mangarecap/panel"
	"github.com/wudi/mangarecap/tools"
)

var (
	// ErrUnsupported is returned for inputs no rasterizer accepts.
	ErrUnsupported = errors.New("unsupported input")
	// ErrNoPages is returned when the input yields no pages.
	ErrNoPages = errors.New("input has no pages")
)

// Request describes one rasterization.
type Request struct {
	Input string
	// WorkDir receives generated page images. Rasterizers that read images in
	// place ignore it.
	WorkDir string
	DPI     int
	// MaxPages caps the page count; zero means no cap.
	MaxPages int
}

// Rasterizer produces pages in document order with 0-based indices.
type Rasterizer interface {
	Rasterize(ctx context.Context, req Request) ([]panel.Page, error)
}

// imageExts lists the formats panel.DecodeFile understands.
var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".tif": true, ".tiff": true, ".bmp": true, ".webp": true,
}

// IsImage reports whether path has a supported image extension.
func IsImage(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

// Auto dispatches on the input: PDFs go to PDF, directories and image files
// to Images.
type Auto struct {
	PDF    *PDF
	Images *Images
}

// NewAuto wires both rasterizers. runner and pdftoppm are used for PDFs.
func NewAuto(runner tools.Runner, pdftoppm string) *Auto {
	return &Auto{PDF: &PDF{Runner: runner, Path: pdftoppm}, Images: &Images{}}
}

func (a *Auto) Rasterize(ctx context.Context, req Request) ([]panel.Page, error) {
	info, err := os.Stat(req.Input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	switch {
	case info.IsDir(), IsImage(req.Input):
		return a.Images.Rasterize(ctx, req)
	case strings.EqualFold(filepath.Ext(req.Input), ".pdf"):
		return a.PDF.Rasterize(ctx, req)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(req.Input))
}

// Images treats a directory of images, or a single image file, as pages.
// Directory entries are ordered by natural name order so page10 follows
// page9.
type Images struct{}

func (Images) Rasterize(ctx context.Context, req Request) ([]panel.Page, error) {
	info, err := os.Stat(req.Input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	var paths []string
	if !info.IsDir() {
		if !IsImage(req.Input) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(req.Input))
		}
		paths = []string{req.Input}
	} else {
		entries, err := os.ReadDir(req.Input)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", req.Input, err)
		}
		for _, e := range entries {
			if e.Type().IsRegular() && IsImage(e.Name()) {
				paths = append(paths, filepath.Join(req.Input, e.Name()))
			}
		}
		SortNatural(paths)
	}
	return pages(ctx, paths, req.MaxPages)
}

func pages(ctx context.Context, paths []string, maxPages int) ([]panel.Page, error) {
	if maxPages > 0 && len(paths) > maxPages {
		paths = paths[:maxPages]
	}
	if len(paths) == 0 {
		return nil, ErrNoPages
	}
	out := make([]panel.Page, 0, len(paths))
	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := panel.Page{Index: i, Path: p}
		// Unreadable headers are left for segmentation to report per page.
		if w, h, err := panel.DecodeConfig(p); err == nil {
			page.Width, page.Height = w, h
		}
		out = append(out, page)
	}
	return out, nil
}

// SortNatural orders paths by base name, comparing digit runs numerically.
func SortNatural(paths []string) {
	for i := 1; i < len(paths); i++ {
		for j := i; j > 0 && naturalLess(filepath.Base(paths[j]), filepath.Base(paths[j-1])); j-- {
			paths[j], paths[j-1] = paths[j-1], paths[j]
		}
	}
}

func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		ca, cb := rune(a[0]), rune(b[0])
		if unicode.IsDigit(ca) && unicode.IsDigit(cb) {
			na, ra := leadingNumber(a)
			nb, rb := leadingNumber(b)
			if na != nb {
				return na < nb
			}
			a, b = ra, rb
			continue
		}
		la, lb := unicode.ToLower(ca), unicode.ToLower(cb)
		if la != lb {
			return la < lb
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func leadingNumber(s string) (int, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	n, _ := strconv.Atoi(s[:i])
	return n, s[i:]
}
