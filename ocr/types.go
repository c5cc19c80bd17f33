package ocr

import "context"

// ImageFormat identifies the content type of an OCR input image.
type ImageFormat string

const (
	ImageFormatPNG  ImageFormat = "image/png"
	ImageFormatJPEG ImageFormat = "image/jpeg"
	ImageFormatTIFF ImageFormat = "image/tiff"
)

// Region describes a rectangular area in pixel coordinates with the origin in
// the upper-left corner of the image.
type Region struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// IsEmpty reports whether the region has non-positive dimensions.
func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Input encapsulates a single panel image submitted for OCR.
type Input struct {
	// ID is echoed back in the corresponding Result.
	ID string
	// Image is the encoded image payload in the format specified by Format.
	Image  []byte
	Format ImageFormat
	// Page and Rank locate the panel in reading order.
	Page int
	Rank int
	// DPI carries the effective dots-per-inch of the page scan; zero means
	// unknown.
	DPI int
	// Languages lists trained-data names (e.g. "eng", "jpn").
	Languages []string
	// Metadata passes engine-specific variables through unchanged.
	Metadata map[string]string
}

// Word is a single recognized token.
type Word struct {
	Text       string
	Bounds     Region
	Confidence float64
}

// Result captures OCR output for a single input image.
type Result struct {
	InputID   string
	PlainText string
	Words     []Word
	// Confidence is the mean word confidence in [0, 1].
	Confidence float64
	Language   string
	// Extent encloses every recognized word, in image pixels.
	Extent Region
}

// Engine is the OCR provider contract: one image in, one result out.
// Implementations must be safe for concurrent use.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) (Result, error)
}

// Nop returns empty text for every input. It backs runs with OCR disabled.
type Nop struct{}

func (Nop) Name() string { return "none" }

func (Nop) Recognize(ctx context.Context, input Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{InputID: input.ID}, nil
}
