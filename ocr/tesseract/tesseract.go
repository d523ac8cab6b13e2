// Package tesseract provides the gosseract-backed OCR engine used in
// production. It is kept behind the ocr.Engine interface so the service and
// its tests run without a Tesseract installation.
package tesseract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"github.com/arkeyez/arkdoc/ocr"
)

// Engine implements ocr.Engine using the gosseract client. A fresh client is
// created per call; gosseract clients are not safe for concurrent use.
type Engine struct {
	languages     []string
	dpi           int
	clientFactory func() *gosseract.Client
}

// Option configures an Engine.
type Option func(*Engine)

// WithLanguages sets the trained-data language hints (e.g. "fra", "eng").
func WithLanguages(langs ...string) Option {
	return func(e *Engine) { e.languages = append([]string(nil), langs...) }
}

// WithDPI sets the user-defined DPI hint passed to Tesseract.
func WithDPI(dpi int) Option {
	return func(e *Engine) { e.dpi = dpi }
}

// New constructs a Tesseract-backed OCR engine.
func New(opts ...Option) *Engine {
	e := &Engine{clientFactory: gosseract.NewClient}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Name() string { return "tesseract" }

// Read recognizes text in an encoded image and returns one block per text
// line, each with Tesseract's confidence normalized to [0, 1].
func (e *Engine) Read(ctx context.Context, image []byte) ([]ocr.Block, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	if e.dpi > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(e.dpi)); err != nil {
			return nil, fmt.Errorf("set dpi: %w", err)
		}
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}

	blocks := make([]ocr.Block, 0, len(boxes))
	for _, b := range boxes {
		if b.Word == "" {
			continue
		}
		blocks = append(blocks, ocr.Block{
			Text: b.Word,
			Bounds: ocr.Region{
				X:      float64(b.Box.Min.X),
				Y:      float64(b.Box.Min.Y),
				Width:  float64(b.Box.Dx()),
				Height: float64(b.Box.Dy()),
			},
			Confidence: b.Confidence / 100.0,
		})
	}
	return blocks, nil
}
