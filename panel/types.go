package panel

import (
	"errors"
	"fmt"
	"image"
)

// ErrImageDecode reports that a page image could not be decoded.
var ErrImageDecode = errors.New("image decode failure")

// Page is one rasterized page of the source document.
type Page struct {
	// Index is the zero-based position of the page in the document.
	Index int
	// Path points at the encoded page image on disk.
	Path string
	// Width and Height are the native pixel dimensions.
	Width  int
	Height int
}

// Panel is a single narrative frame detected on a page.
type Panel struct {
	Page int
	// Bounds is expressed in page pixel coordinates with the origin at the
	// top-left corner of the page. It is never empty and always lies within
	// the page.
	Bounds image.Rectangle
	// Rank is the reading-order position within the page.
	Rank  int
	Image image.Image
	// Text is filled in later by OCR.
	Text string
	// Synthetic marks the full-page fallback used when nothing was detected.
	Synthetic bool
}

// Options tunes segmentation.
type Options struct {
	// Threshold is the gray level at or above which a pixel counts as paper.
	Threshold uint8
	// MinArea discards regions smaller than this many pixels.
	MinArea int
	// BandHeight is the vertical bucket size used for reading order.
	BandHeight int
	// MorphKernel is the side of the square structuring element used to
	// close then open the mask. Values below 2 disable the cleanup.
	MorphKernel int
}

const (
	DefaultThreshold   = 240
	DefaultMinArea     = 10000
	DefaultBandHeight  = 100
	DefaultMorphKernel = 5
)

// DefaultOptions returns settings tuned for scanned paper at ~150 DPI.
func DefaultOptions() Options {
	return Options{
		Threshold:   DefaultThreshold,
		MinArea:     DefaultMinArea,
		BandHeight:  DefaultBandHeight,
		MorphKernel: DefaultMorphKernel,
	}
}

// DecodeError is returned when a page image cannot be read or decoded. It is
// scoped to a single page.
type DecodeError struct {
	Page  int
	Path  string
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("page %d: decode %s: %v", e.Page, e.Path, e.Cause)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrImageDecode, e.Cause} }
