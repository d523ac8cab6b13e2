package stream

import (
	"github.com/google/uuid"

	"github.com/arkeyez/arkdoc/observability"
)

// Step identifies a pipeline stage reported to the client. Steps are emitted
// in declaration order; the ocr step is skipped entirely in simulation mode.
type Step string

const (
	StepStart  Step = "start"
	StepLoaded Step = "loaded"
	StepCNN    Step = "cnn"
	StepOCR    Step = "ocr"
	StepFusion Step = "fusion"
)

// stepPercent is the fixed completion constant per step. Percent values are
// protocol constants, not computed.
var stepPercent = map[Step]int{
	StepStart:  0,
	StepLoaded: 20,
	StepCNN:    50,
	StepOCR:    70,
	StepFusion: 90,
}

// Percent returns the fixed completion constant for a step.
func (s Step) Percent() int { return stepPercent[s] }

// Event is one emitted progress entry, retained in the session's ordered log.
type Event struct {
	Step    Step
	Percent int
	Message string
}

// Session is the per-request progress state machine. A session belongs to
// exactly one connection, emits ordered progress events followed by exactly
// one terminal result or error, and goes silent once the connection is lost
// or a terminal frame was delivered. Sessions are confined to their
// connection's goroutine and are not safe for concurrent use.
type Session struct {
	id       string
	registry *Registry
	conn     Conn
	log      observability.Logger

	events      []Event
	lastPercent int
	result      *Record
	terminal    bool
	lost        bool
}

// NewSession creates a session for one classification request on conn.
func NewSession(registry *Registry, conn Conn, log observability.Logger) *Session {
	if log == nil {
		log = observability.NopLogger{}
	}
	id := uuid.NewString()
	return &Session{
		id:       id,
		registry: registry,
		conn:     conn,
		log:      log.With(observability.String("session", id)),
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Progress emits one step event to the owning connection. Events after a
// terminal frame or on a lost connection are dropped. Percent regressions
// indicate a sequencing bug and are dropped with an error log rather than
// sent to the client.
func (s *Session) Progress(step Step, message string) {
	if s.terminal || s.lost {
		s.log.Debug("progress after terminal or loss dropped", observability.String("step", string(step)))
		return
	}
	percent := step.Percent()
	if percent < s.lastPercent {
		s.log.Error("progress percent regression dropped",
			observability.String("step", string(step)),
			observability.Int("percent", percent),
			observability.Int("last", s.lastPercent))
		return
	}
	s.lastPercent = percent
	s.events = append(s.events, Event{Step: step, Percent: percent, Message: message})

	s.deliver(ProgressMessage{
		Type:     TypeProgress,
		Step:     string(step),
		Progress: percent,
		Message:  message,
	})
}

// Result delivers the terminal success frame. Exactly one terminal frame is
// emitted per session; later calls are no-ops.
func (s *Session) Result(rec Record) {
	if s.terminal {
		return
	}
	s.terminal = true
	s.lastPercent = 100
	s.result = &rec
	s.deliver(ResultMessage{Type: TypeResult, Data: rec})
}

// Outcome returns the terminal result record, if the session ended in one.
func (s *Session) Outcome() (Record, bool) {
	if s.result == nil {
		return Record{}, false
	}
	return *s.result, true
}

// Fail delivers the terminal error frame. A session may fail at any point;
// no further events follow.
func (s *Session) Fail(message string) {
	if s.terminal {
		return
	}
	s.terminal = true
	s.deliver(ErrorMessage{Type: TypeError, Message: message})
}

// Done reports whether the session has emitted its terminal frame.
func (s *Session) Done() bool { return s.terminal }

// Events returns a copy of the emitted progress log, in emission order.
func (s *Session) Events() []Event {
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// deliver sends a frame to the owning connection only. Send failures mark
// the session lost: the client went away, which cancels further delivery for
// this session but nothing else.
func (s *Session) deliver(v interface{}) {
	if s.lost {
		return
	}
	if err := s.registry.SendTo(s.conn, v); err != nil {
		s.lost = true
		s.log.Warn("session delivery failed, suppressing further sends",
			observability.Error("err", err))
	}
}
