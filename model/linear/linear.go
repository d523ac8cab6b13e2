// Package linear implements model.Resource with a softmax linear classifier
// whose weights are persisted as JSON. It stands in for a full CNN export:
// the service only needs the Resource contract (load may fail, predict maps
// an image vector to per-class scores), not a specific architecture.
package linear

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/arkeyez/arkdoc/classify"
)

// weightsFile is the on-disk format: one weight row and one bias per class,
// rows in canonical class order.
type weightsFile struct {
	InputSize int         `json:"input_size"`
	Weights   [][]float64 `json:"weights"`
	Bias      []float64   `json:"bias"`
}

// Model is a file-backed softmax linear classifier.
type Model struct {
	path string

	mu      sync.RWMutex
	weights [][]float64
	bias    []float64
	inputs  int
}

// New creates an unloaded model bound to a weights file.
func New(path string) *Model {
	return &Model{path: path}
}

// Load reads and validates the weights file. Any problem (missing file,
// malformed JSON, dimension mismatch) is returned as an error so the
// lifecycle can fall back to simulation.
func (m *Model) Load(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("read weights file: %w", err)
	}
	var wf weightsFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return fmt.Errorf("parse weights file: %w", err)
	}
	if wf.InputSize <= 0 {
		return fmt.Errorf("weights file: invalid input size %d", wf.InputSize)
	}
	if len(wf.Weights) != classify.Count || len(wf.Bias) != classify.Count {
		return fmt.Errorf("weights file: want %d classes, got %d weight rows and %d biases",
			classify.Count, len(wf.Weights), len(wf.Bias))
	}
	for i, row := range wf.Weights {
		if len(row) != wf.InputSize {
			return fmt.Errorf("weights file: row %d has %d weights, want %d", i, len(row), wf.InputSize)
		}
	}

	m.mu.Lock()
	m.weights = wf.Weights
	m.bias = wf.Bias
	m.inputs = wf.InputSize
	m.mu.Unlock()
	return nil
}

// Predict computes softmax(Wx + b) over the preprocessed image vector.
func (m *Model) Predict(input []float32) ([]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.weights == nil {
		return nil, fmt.Errorf("model not loaded")
	}
	if len(input) != m.inputs {
		return nil, fmt.Errorf("input size %d, want %d", len(input), m.inputs)
	}

	logits := make([]float64, classify.Count)
	for c := range m.weights {
		sum := m.bias[c]
		row := m.weights[c]
		for i, v := range input {
			sum += row[i] * float64(v)
		}
		logits[c] = sum
	}
	return softmax(logits), nil
}

// Close releases the weight matrices.
func (m *Model) Close() error {
	m.mu.Lock()
	m.weights, m.bias, m.inputs = nil, nil, 0
	m.mu.Unlock()
	return nil
}

func softmax(logits []float64) []float32 {
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	var sum float64
	exps := make([]float64, len(logits))
	for i, v := range logits {
		exps[i] = math.Exp(v - max)
		sum += exps[i]
	}
	out := make([]float32, len(logits))
	for i, e := range exps {
		out[i] = float32(e / sum)
	}
	return out
}
