package ocr

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/wudi/mangarecap/panel"
)

// InputOption mutates an OCR input generated from a panel.
type InputOption func(*Input)

// WithLanguages sets language hints on the OCR input.
func WithLanguages(langs ...string) InputOption {
	return func(in *Input) { in.Languages = append([]string(nil), langs...) }
}

// WithDPI overrides the DPI value on the OCR input.
func WithDPI(dpi int) InputOption {
	return func(in *Input) { in.DPI = dpi }
}

// WithMetadata sets provider-specific metadata for the input.
func WithMetadata(metadata map[string]string) InputOption {
	return func(in *Input) {
		if len(metadata) == 0 {
			in.Metadata = nil
			return
		}
		in.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			in.Metadata[k] = v
		}
	}
}

// InputFromPanel encodes a panel crop as PNG. When preprocess is set the crop
// is binarized with Preprocess first. The ID is stable for the panel's
// position so results can be correlated downstream.
func InputFromPanel(p panel.Panel, preprocess bool, opts ...InputOption) (Input, error) {
	if p.Image == nil {
		return Input{}, fmt.Errorf("page %d panel %d: no image", p.Page, p.Rank)
	}
	img := p.Image
	if preprocess {
		img = Preprocess(img)
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return Input{}, fmt.Errorf("encode panel: %w", err)
	}
	in := Input{
		ID:     fmt.Sprintf("page-%d-panel-%d", p.Page, p.Rank),
		Image:  buf.Bytes(),
		Format: ImageFormatPNG,
		Page:   p.Page,
		Rank:   p.Rank,
	}
	for _, opt := range opts {
		opt(&in)
	}
	return in, nil
}
