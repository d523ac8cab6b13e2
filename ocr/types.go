package ocr

import "context"

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

// Block is one recognized run of text with its location and the engine's
// confidence in [0, 1].
type Block struct {
	Text       string
	Bounds     Region
	Confidence float64
}

// Engine is the OCR provider contract: one encoded image in, recognized
// blocks out. Implementations live in subpackages (see tesseract).
type Engine interface {
	Name() string
	Read(ctx context.Context, image []byte) ([]Block, error)
}

// TextResult is the outcome of text extraction for one document image. The
// zero value is a valid "no signal" result, not an error: Diagnostic carries
// the reason when extraction produced nothing.
type TextResult struct {
	Text       string
	Confidence float64
	BlockCount int
	Diagnostic string
}

// Empty reports whether the result carries no usable text.
func (r TextResult) Empty() bool { return r.Text == "" }
