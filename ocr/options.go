package ocr

import "strconv"

// Tesseract variables carried in Input.Metadata. Engines that do not
// understand them ignore them; they still take part in the cache key.
const (
	VarPageSegMode = "tessedit_pageseg_mode"
	VarWhitelist   = "tessedit_char_whitelist"
)

// WithTesseractPSM sets the page segmentation mode. Speech bubbles read best
// as a single uniform block (6).
func WithTesseractPSM(mode int) InputOption {
	return withVar(VarPageSegMode, strconv.Itoa(mode))
}

// WithTesseractWhitelist limits recognition to chars.
func WithTesseractWhitelist(chars string) InputOption {
	return withVar(VarWhitelist, chars)
}

func withVar(key, value string) InputOption {
	return func(in *Input) {
		if in.Metadata == nil {
			in.Metadata = map[string]string{}
		}
		in.Metadata[key] = value
	}
}
