// Package pipeline orchestrates one document classification: image decode,
// classifier prediction, text-signal extraction, fusion. The same pipeline
// serves the streaming endpoint (reporting per-stage progress to a session)
// and the plain HTTP endpoint (no progress reporting).
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/arkeyez/arkdoc/classify"
	"github.com/arkeyez/arkdoc/imaging"
	"github.com/arkeyez/arkdoc/model"
	"github.com/arkeyez/arkdoc/observability"
	"github.com/arkeyez/arkdoc/ocr"
	"github.com/arkeyez/arkdoc/stream"
)

// Pipeline composes the classifier lifecycle, the text-signal extractor and
// the fusion step. It holds no per-request state; classifications are
// independent and may run concurrently.
type Pipeline struct {
	model *model.Manager
	text  *ocr.Extractor
	log   observability.Logger
	topK  int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger routes per-classification logs to the given logger.
func WithLogger(log observability.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithTopKeywords overrides how many keywords are extracted per document.
func WithTopKeywords(k int) Option {
	return func(p *Pipeline) { p.topK = k }
}

// New builds a Pipeline over a classifier manager and a text extractor.
func New(m *model.Manager, text *ocr.Extractor, opts ...Option) *Pipeline {
	p := &Pipeline{
		model: m,
		text:  text,
		log:   observability.NopLogger{},
		topK:  ocr.DefaultTopKeywords,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Outcome is one completed classification.
type Outcome struct {
	Filename  string
	Result    classify.FusionResult
	Keywords  []string
	Summary   string
	OCRText   string
	RealMode  bool
	Timestamp time.Time
}

// Record converts the outcome to its wire form. OCRText is null in
// simulation mode, where no OCR pass ran.
func (o Outcome) Record() stream.Record {
	rec := stream.Record{
		Filename:      o.Filename,
		DocumentClass: string(o.Result.Class),
		Confidence:    o.Result.Confidence,
		CNNConfidence: o.Result.CNNConfidence,
		OCRBoost:      o.Result.Boost,
		FusionApplied: o.Result.FusionApplied,
		Keywords:      o.Keywords,
		Summary:       o.Summary,
		Timestamp:     o.Timestamp.Format(time.RFC3339),
	}
	if o.RealMode {
		text := o.OCRText
		rec.OCRText = &text
	}
	return rec
}

// Classify runs the pipeline for one document image without progress
// reporting.
func (p *Pipeline) Classify(ctx context.Context, filename string, image []byte) (Outcome, error) {
	return p.run(ctx, nil, filename, image)
}

// ClassifyStream runs the pipeline for one document image, reporting each
// stage to the session and delivering the terminal result or error frame.
func (p *Pipeline) ClassifyStream(ctx context.Context, sess *stream.Session, filename string, image []byte) {
	out, err := p.run(ctx, sess, filename, image)
	if err != nil {
		p.log.Error("classification failed",
			observability.String("filename", filename),
			observability.String("session", sess.ID()),
			observability.Error("err", err))
		sess.Fail(err.Error())
		return
	}
	sess.Result(out.Record())
}

func (p *Pipeline) run(ctx context.Context, sess *stream.Session, filename string, image []byte) (Outcome, error) {
	emit := func(step stream.Step, msg string) {
		if sess != nil {
			sess.Progress(step, msg)
		}
	}

	emit(stream.StepStart, "Classification started...")

	img, err := imaging.Decode(image)
	if err != nil {
		return Outcome{}, fmt.Errorf("load image %s: %w", filename, err)
	}
	emit(stream.StepLoaded, "Image loaded...")

	prediction := p.model.Classify(imaging.Preprocess(img))
	emit(stream.StepCNN, "CNN classification complete...")

	realMode := p.model.IsLoaded()
	var keywords []string
	var ocrText string
	if realMode {
		// The ocr step exists only in real mode; simulation draws keywords
		// from the per-class mock table instead.
		emit(stream.StepOCR, "Extracting text (OCR)...")
		res := p.text.ExtractText(ctx, image)
		ocrText = res.Text
		if !res.Empty() {
			keywords = ocr.Keywords(res.Text, p.topK)
		}
	} else {
		keywords = p.model.MockKeywords(prediction.Class)
	}

	emit(stream.StepFusion, "Fusing CNN + OCR...")
	fused := classify.Fuse(prediction, keywords, ocrText)
	p.model.RecordPrediction()

	out := Outcome{
		Filename:  filename,
		Result:    fused,
		Keywords:  keywords,
		Summary:   summarize(fused),
		OCRText:   ocrText,
		RealMode:  realMode,
		Timestamp: time.Now(),
	}
	p.log.Info("document classified",
		observability.String("filename", filename),
		observability.String("class", string(fused.Class)),
		observability.Float64("confidence", fused.Confidence),
		observability.Bool("fusion_applied", fused.FusionApplied),
		observability.Bool("simulation", !realMode))
	return out, nil
}

func summarize(r classify.FusionResult) string {
	s := fmt.Sprintf("%s (%.1f%%)", r.Class, r.Confidence*100)
	if r.FusionApplied {
		s += fmt.Sprintf(" [Fusion: %+.1f%%]", r.Boost*100)
	}
	return s
}
