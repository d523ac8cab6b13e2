package stream

import (
	"errors"
	"testing"
)

func newTestSession(t *testing.T) (*Session, *fakeConn, *Registry) {
	t.Helper()
	r := NewRegistry(nil)
	c := &fakeConn{}
	r.Register(c)
	return NewSession(r, c, nil), c, r
}

func TestSessionEmitsOrderedLadder(t *testing.T) {
	s, c, _ := newTestSession(t)

	s.Progress(StepStart, "Classification started...")
	s.Progress(StepLoaded, "Image loaded...")
	s.Progress(StepCNN, "CNN classification complete...")
	s.Progress(StepOCR, "Extracting text (OCR)...")
	s.Progress(StepFusion, "Fusing CNN + OCR...")
	s.Result(Record{Filename: "doc.png", DocumentClass: "Invoice"})

	events := s.Events()
	wantSteps := []Step{StepStart, StepLoaded, StepCNN, StepOCR, StepFusion}
	wantPercent := []int{0, 20, 50, 70, 90}
	if len(events) != len(wantSteps) {
		t.Fatalf("event count = %d, want %d", len(events), len(wantSteps))
	}
	last := -1
	for i, ev := range events {
		if ev.Step != wantSteps[i] || ev.Percent != wantPercent[i] {
			t.Fatalf("event %d = %+v, want %s/%d", i, ev, wantSteps[i], wantPercent[i])
		}
		if ev.Percent < last {
			t.Fatalf("percent regressed at %d: %d < %d", i, ev.Percent, last)
		}
		last = ev.Percent
	}

	frames := c.sent()
	if len(frames) != 6 {
		t.Fatalf("frame count = %d, want 6", len(frames))
	}
	res, ok := frames[5].(ResultMessage)
	if !ok || res.Type != TypeResult || res.Data.DocumentClass != "Invoice" {
		t.Fatalf("terminal frame = %#v", frames[5])
	}
	if !s.Done() {
		t.Fatalf("session not done after result")
	}
}

func TestSessionSingleTerminal(t *testing.T) {
	s, c, _ := newTestSession(t)

	s.Progress(StepStart, "go")
	s.Fail("decode failed")
	s.Progress(StepLoaded, "late")
	s.Result(Record{})
	s.Fail("again")

	frames := c.sent()
	if len(frames) != 2 {
		t.Fatalf("frame count = %d, want progress + one terminal", len(frames))
	}
	errFrame, ok := frames[1].(ErrorMessage)
	if !ok || errFrame.Type != TypeError || errFrame.Message != "decode failed" {
		t.Fatalf("terminal frame = %#v", frames[1])
	}
	if got := len(s.Events()); got != 1 {
		t.Fatalf("event log length = %d, want 1", got)
	}
}

func TestSessionPercentRegressionDropped(t *testing.T) {
	s, c, _ := newTestSession(t)
	s.Progress(StepFusion, "out of order setup")
	s.Progress(StepCNN, "regression")

	if len(c.sent()) != 1 {
		t.Fatalf("regressing event was delivered")
	}
	if len(s.Events()) != 1 {
		t.Fatalf("regressing event was logged as emitted")
	}
}

func TestSessionDeliveryFailureSilencesSession(t *testing.T) {
	r := NewRegistry(nil)
	c := &fakeConn{err: errors.New("broken pipe")}
	r.Register(c)
	s := NewSession(r, c, nil)

	s.Progress(StepStart, "go")
	c.err = nil // even if the conn recovers, the session stays silent
	s.Progress(StepLoaded, "more")
	s.Result(Record{})

	if len(c.sent()) != 0 {
		t.Fatalf("lost session kept sending: %d frames", len(c.sent()))
	}
}

func TestSessionDisconnectedConnIsNoOp(t *testing.T) {
	r := NewRegistry(nil)
	c := &fakeConn{}
	r.Register(c)
	s := NewSession(r, c, nil)
	r.Unregister(c)

	s.Progress(StepStart, "go")
	s.Result(Record{})

	if len(c.sent()) != 0 {
		t.Fatalf("unregistered conn received frames")
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	r := NewRegistry(nil)
	healthy := &fakeConn{}
	broken := &fakeConn{err: errors.New("gone")}
	r.Register(healthy)
	r.Register(broken)

	sick := NewSession(r, broken, nil)
	ok := NewSession(r, healthy, nil)

	sick.Progress(StepStart, "go")
	ok.Progress(StepStart, "go")
	ok.Result(Record{Filename: "a.png"})

	if len(healthy.sent()) != 2 {
		t.Fatalf("healthy session affected by sick one: %d frames", len(healthy.sent()))
	}
}

func TestStepPercentConstants(t *testing.T) {
	want := map[Step]int{StepStart: 0, StepLoaded: 20, StepCNN: 50, StepOCR: 70, StepFusion: 90}
	for step, percent := range want {
		if step.Percent() != percent {
			t.Fatalf("%s percent = %d, want %d", step, step.Percent(), percent)
		}
	}
}
