// Package ocr defines the contract for plugging OCR engines into the recap
// pipeline. Engines receive one encoded panel image per call and return its
// text. The package also holds the panel preprocessing applied before
// recognition and a content-addressed result cache.
package ocr
