// Package ocr extracts the text signal used as the second input to fusion:
// recognized text plus frequency-ranked keywords. Extraction is decoupled
// from the engine behind it and degrades to an empty result instead of
// failing, so callers never branch on OCR availability.
package ocr

import (
	"context"
	"math"
	"strings"

	"github.com/arkeyez/arkdoc/observability"
)

// Extractor wraps an Engine and guarantees that extraction never fails:
// every engine error is absorbed into a zero-value TextResult carrying a
// diagnostic.
type Extractor struct {
	engine Engine
	log    observability.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithLogger routes extraction diagnostics to the given logger.
func WithLogger(log observability.Logger) ExtractorOption {
	return func(e *Extractor) { e.log = log }
}

// NewExtractor builds an Extractor over the given engine. A nil engine is
// valid and yields empty results, keeping the pipeline usable when no OCR
// provider is installed.
func NewExtractor(engine Engine, opts ...ExtractorOption) *Extractor {
	e := &Extractor{engine: engine, log: observability.NopLogger{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Available reports whether a real engine is installed.
func (e *Extractor) Available() bool { return e.engine != nil }

// ExtractText runs OCR on an encoded image. It never returns an error: any
// underlying failure yields a zero-value TextResult with the failure recorded
// in Diagnostic and the log.
func (e *Extractor) ExtractText(ctx context.Context, image []byte) TextResult {
	if e.engine == nil {
		return TextResult{Diagnostic: "ocr engine not available"}
	}

	blocks, err := e.engine.Read(ctx, image)
	if err != nil {
		e.log.Error("text extraction failed",
			observability.String("engine", e.engine.Name()),
			observability.Error("err", err))
		return TextResult{Diagnostic: err.Error()}
	}

	texts := make([]string, 0, len(blocks))
	var confSum float64
	for _, b := range blocks {
		texts = append(texts, b.Text)
		confSum += b.Confidence
	}
	var avg float64
	if len(blocks) > 0 {
		avg = confSum / float64(len(blocks))
	}

	res := TextResult{
		Text:       strings.Join(texts, " "),
		Confidence: round3(avg),
		BlockCount: len(blocks),
	}
	e.log.Debug("text extracted",
		observability.String("engine", e.engine.Name()),
		observability.Int("blocks", res.BlockCount),
		observability.Float64("confidence", res.Confidence))
	return res
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
