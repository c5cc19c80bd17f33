package raster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/wudi/mangarecap/panel"
	"github.com/wudi/mangarecap/tools"
)

// DefaultDPI is the rasterization resolution used when a request leaves it
// unset.
const DefaultDPI = 150

// PDF renders pages with poppler's pdftoppm into the request's WorkDir.
type PDF struct {
	Runner tools.Runner
	// Path to pdftoppm; empty looks it up in PATH.
	Path string
}

func (p *PDF) Rasterize(ctx context.Context, req Request) ([]panel.Page, error) {
	if req.WorkDir == "" {
		return nil, fmt.Errorf("pdf rasterizer needs a work directory")
	}
	dpi := req.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	dir := filepath.Join(req.WorkDir, "pages")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create page dir: %w", err)
	}

	args := []string{"-r", strconv.Itoa(dpi), "-png", "-f", "1"}
	if req.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(req.MaxPages))
	}
	args = append(args, req.Input, filepath.Join(dir, "page"))
	if _, err := p.Runner.Run(ctx, tools.Request{Tool: "pdftoppm", Path: p.Path, Args: args}); err != nil {
		return nil, fmt.Errorf("rasterize %s: %w", filepath.Base(req.Input), err)
	}

	// pdftoppm zero-pads the page number to the width of the page count.
	paths, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil {
		return nil, err
	}
	SortNatural(paths)
	return pages(ctx, paths, req.MaxPages)
}
