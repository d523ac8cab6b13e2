// Package model owns the image classifier resource and its load lifecycle.
// The Manager is the only component allowed to touch the lifecycle state;
// everyone else observes it through State/IsLoaded/Progress and calls
// Classify, which never fails: while the real resource is unavailable it
// answers with deterministic simulated predictions.
package model

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/arkeyez/arkdoc/classify"
	"github.com/arkeyez/arkdoc/observability"
)

// State is the classifier lifecycle state. Transitions are one-directional:
// Uninitialized → Loading → Loaded, or Loading → Failed. Failed is terminal
// for the process lifetime; the service then runs in simulation mode.
type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Resource is the external classifier collaborator. Load acquires the
// underlying model; Predict maps a preprocessed image vector to one raw score
// per class in canonical class order.
type Resource interface {
	Load(ctx context.Context) error
	Predict(input []float32) ([]float32, error)
	Close() error
}

// Default readiness-wait parameters (see WaitReady).
const (
	DefaultLoadTimeout  = 60 * time.Second
	DefaultPollInterval = 2 * time.Second
)

// Manager drives the classifier lifecycle and serves predictions.
type Manager struct {
	resource     Resource
	log          observability.Logger
	sim          *simulator
	pollInterval time.Duration

	state       atomic.Int32
	progress    atomic.Uint64 // math.Float64bits
	predictions atomic.Int64
	started     time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger routes lifecycle and prediction logs to the given logger.
func WithLogger(log observability.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithSeed fixes the simulation RNG seed. Simulated predictions are
// deterministic for a given seed.
func WithSeed(seed int64) Option {
	return func(m *Manager) { m.sim = newSimulator(seed) }
}

// NewManager builds a Manager over the given resource. A nil resource is
// valid: Load fails immediately and the manager serves simulated predictions.
func NewManager(resource Resource, opts ...Option) *Manager {
	m := &Manager{
		resource:     resource,
		log:          observability.NopLogger{},
		sim:          newSimulator(time.Now().UnixNano()),
		pollInterval: DefaultPollInterval,
		started:      time.Now(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load attempts to acquire the classifier resource, exactly once per process.
// Concurrent and repeated calls after the first are no-ops. Acquisition
// failure is terminal: the lifecycle moves to Failed and is never retried.
func (m *Manager) Load(ctx context.Context) {
	if !m.state.CompareAndSwap(int32(StateUninitialized), int32(StateLoading)) {
		return
	}
	m.setProgress(0.1)
	m.log.Info("classifier load started")

	if m.resource == nil {
		m.fail(fmt.Errorf("no classifier resource configured"))
		return
	}
	if err := m.resource.Load(ctx); err != nil {
		m.fail(err)
		return
	}

	m.setProgress(1)
	m.state.Store(int32(StateLoaded))
	m.log.Info("classifier loaded", observability.Duration("elapsed", time.Since(m.started)))
}

func (m *Manager) fail(err error) {
	m.setProgress(1)
	m.state.Store(int32(StateFailed))
	m.log.Warn("classifier load failed, running in simulation mode",
		observability.Error("err", err))
}

// State returns the current lifecycle state.
func (m *Manager) State() State { return State(m.state.Load()) }

// IsLoaded reports whether the real classifier is serving predictions.
func (m *Manager) IsLoaded() bool { return m.State() == StateLoaded }

// Progress reports load progress in [0, 1]. Both terminal states report 1.
func (m *Manager) Progress() float64 {
	return floatFromBits(m.progress.Load())
}

// WaitReady polls IsLoaded until the lifecycle reaches a terminal state, the
// timeout elapses, or ctx is canceled. It returns true only when the real
// classifier loaded. Callers proceed in simulation mode on false; they must
// never block indefinitely on model load.
func (m *Manager) WaitReady(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultLoadTimeout
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		switch m.State() {
		case StateLoaded:
			return true
		case StateFailed:
			return false
		}
		if time.Now().After(deadline) {
			m.log.Warn("classifier load timed out, proceeding in simulation mode",
				observability.Duration("timeout", timeout))
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// Classify predicts the document class for a preprocessed image vector. It
// never fails: while the resource is not loaded, and on any prediction error,
// it falls back to a simulated prediction. Resource trouble is surfaced via
// IsLoaded/Progress only.
func (m *Manager) Classify(input []float32) classify.Prediction {
	if !m.IsLoaded() {
		return m.sim.predict()
	}
	scores, err := m.resource.Predict(input)
	if err != nil || len(scores) != classify.Count {
		m.log.Error("classifier prediction failed, using simulated prediction",
			observability.Error("err", err),
			observability.Int("scores", len(scores)))
		return m.sim.predict()
	}

	all := make(map[classify.Class]float64, classify.Count)
	best := 0
	for i, class := range classify.Classes() {
		all[class] = float64(scores[i])
		if scores[i] > scores[best] {
			best = i
		}
	}
	return classify.Prediction{
		Class:      classify.Classes()[best],
		Confidence: float64(scores[best]),
		Scores:     all,
	}
}

// MockKeywords returns plausible keywords for a class, used in simulation
// mode where no OCR pass runs.
func (m *Manager) MockKeywords(class classify.Class) []string {
	return m.sim.keywords(class)
}

// RecordPrediction increments the shared prediction counter.
func (m *Manager) RecordPrediction() { m.predictions.Add(1) }

// Predictions returns the number of predictions served so far.
func (m *Manager) Predictions() int64 { return m.predictions.Load() }

// Uptime reports how long the manager has existed.
func (m *Manager) Uptime() time.Duration { return time.Since(m.started) }

// Close releases the underlying resource, if any.
func (m *Manager) Close() error {
	if m.resource == nil {
		return nil
	}
	return m.resource.Close()
}

func (m *Manager) setProgress(v float64) { m.progress.Store(math.Float64bits(v)) }

func floatFromBits(bits uint64) float64 { return math.Float64frombits(bits) }
