package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/arkeyez/arkdoc/model"
	"github.com/arkeyez/arkdoc/ocr"
	"github.com/arkeyez/arkdoc/stream"
)

type stubResource struct {
	loadErr error
	scores  []float32
}

func (r *stubResource) Load(ctx context.Context) error { return r.loadErr }
func (r *stubResource) Predict(input []float32) ([]float32, error) {
	return r.scores, nil
}
func (r *stubResource) Close() error { return nil }

type stubEngine struct {
	blocks []ocr.Block
	err    error
}

func (e stubEngine) Name() string { return "stub" }
func (e stubEngine) Read(ctx context.Context, image []byte) ([]ocr.Block, error) {
	return e.blocks, e.err
}

type captureConn struct {
	mu     sync.Mutex
	frames []interface{}
}

func (c *captureConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, v)
	return nil
}

func testImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func loadedPipeline(t *testing.T, engine ocr.Engine) (*Pipeline, *model.Manager) {
	t.Helper()
	// Invoice wins: index 1 in canonical class order.
	m := model.NewManager(&stubResource{scores: []float32{0.05, 0.85, 0.05, 0.05}}, model.WithSeed(1))
	m.Load(context.Background())
	if !m.IsLoaded() {
		t.Fatalf("manager not loaded")
	}
	return New(m, ocr.NewExtractor(engine)), m
}

func simulationPipeline(t *testing.T) (*Pipeline, *model.Manager) {
	t.Helper()
	m := model.NewManager(&stubResource{loadErr: errors.New("missing weights")}, model.WithSeed(1))
	m.Load(context.Background())
	return New(m, ocr.NewExtractor(nil)), m
}

func newSession(reg *stream.Registry, conn stream.Conn) *stream.Session {
	return stream.NewSession(reg, conn, nil)
}

func TestStreamRealModeFullLadder(t *testing.T) {
	p, mgr := loadedPipeline(t, stubEngine{blocks: []ocr.Block{
		{Text: "FACTURE montant total", Confidence: 0.9},
	}})
	reg := stream.NewRegistry(nil)
	conn := &captureConn{}
	reg.Register(conn)
	sess := newSession(reg, conn)

	p.ClassifyStream(context.Background(), sess, "doc.png", testImage(t))

	events := sess.Events()
	want := []stream.Step{stream.StepStart, stream.StepLoaded, stream.StepCNN, stream.StepOCR, stream.StepFusion}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want steps %v", events, want)
	}
	for i, ev := range events {
		if ev.Step != want[i] {
			t.Fatalf("step %d = %s, want %s", i, ev.Step, want[i])
		}
	}
	if !sess.Done() {
		t.Fatalf("session has no terminal frame")
	}

	last := conn.frames[len(conn.frames)-1]
	res, ok := last.(stream.ResultMessage)
	if !ok {
		t.Fatalf("terminal frame = %#v, want result", last)
	}
	if res.Data.DocumentClass != "Invoice" {
		t.Fatalf("class = %s, want Invoice", res.Data.DocumentClass)
	}
	if res.Data.OCRText == nil || *res.Data.OCRText != "FACTURE montant total" {
		t.Fatalf("ocr_text = %v", res.Data.OCRText)
	}
	if !res.Data.FusionApplied {
		t.Fatalf("fusion not applied despite invoice keywords")
	}
	if mgr.Predictions() != 1 {
		t.Fatalf("prediction counter = %d, want 1", mgr.Predictions())
	}
}

func TestStreamSimulationSkipsOCRStep(t *testing.T) {
	p, _ := simulationPipeline(t)
	reg := stream.NewRegistry(nil)
	conn := &captureConn{}
	reg.Register(conn)
	sess := newSession(reg, conn)

	p.ClassifyStream(context.Background(), sess, "doc.png", testImage(t))

	for _, ev := range sess.Events() {
		if ev.Step == stream.StepOCR {
			t.Fatalf("ocr step emitted in simulation mode")
		}
	}
	last := conn.frames[len(conn.frames)-1]
	res, ok := last.(stream.ResultMessage)
	if !ok {
		t.Fatalf("terminal frame = %#v, want result", last)
	}
	if res.Data.OCRText != nil {
		t.Fatalf("ocr_text = %q, want null in simulation", *res.Data.OCRText)
	}
	if len(res.Data.Keywords) < 3 {
		t.Fatalf("mock keywords missing: %v", res.Data.Keywords)
	}
}

func TestStreamBadImageEmitsTerminalError(t *testing.T) {
	p, _ := simulationPipeline(t)
	reg := stream.NewRegistry(nil)
	conn := &captureConn{}
	reg.Register(conn)
	sess := newSession(reg, conn)

	p.ClassifyStream(context.Background(), sess, "doc.png", []byte("not an image"))

	if !sess.Done() {
		t.Fatalf("no terminal frame after failure")
	}
	last := conn.frames[len(conn.frames)-1]
	if _, ok := last.(stream.ErrorMessage); !ok {
		t.Fatalf("terminal frame = %#v, want error", last)
	}
}

func TestOCRFailureDegradesToNoSignal(t *testing.T) {
	p, _ := loadedPipeline(t, stubEngine{err: errors.New("engine crash")})

	out, err := p.Classify(context.Background(), "doc.png", testImage(t))
	if err != nil {
		t.Fatalf("classification must survive OCR failure: %v", err)
	}
	if out.Result.FusionApplied {
		t.Fatalf("fusion applied without a text signal")
	}
	if out.OCRText != "" || len(out.Keywords) != 0 {
		t.Fatalf("unexpected text signal: %+v", out)
	}
	if !out.RealMode {
		t.Fatalf("real mode flag lost")
	}
}

func TestClassifyOutcomeFields(t *testing.T) {
	p, _ := loadedPipeline(t, stubEngine{blocks: []ocr.Block{
		{Text: "facture facture montant total paiement", Confidence: 0.8},
	}})

	out, err := p.Classify(context.Background(), "invoice.png", testImage(t))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if out.Result.Class != "Invoice" {
		t.Fatalf("class = %s", out.Result.Class)
	}
	if out.Result.Confidence < 0.60 || out.Result.Confidence > 0.99 {
		t.Fatalf("confidence %v outside bounds", out.Result.Confidence)
	}
	if len(out.Keywords) == 0 || out.Keywords[0] != "facture" {
		t.Fatalf("keywords = %v, want facture first", out.Keywords)
	}
	if out.Summary == "" || out.Timestamp.IsZero() {
		t.Fatalf("summary/timestamp missing: %+v", out)
	}
}
