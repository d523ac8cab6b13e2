package linear

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeWeights(t *testing.T, wf weightsFile) string {
	t.Helper()
	data, err := json.Marshal(wf)
	if err != nil {
		t.Fatalf("marshal weights: %v", err)
	}
	path := filepath.Join(t.TempDir(), "weights.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write weights: %v", err)
	}
	return path
}

func TestLoadAndPredict(t *testing.T) {
	// Two inputs, four classes: second class dominates when input[1] is hot.
	path := writeWeights(t, weightsFile{
		InputSize: 2,
		Weights: [][]float64{
			{1, 0},
			{0, 4},
			{0.5, 0.5},
			{0, 0},
		},
		Bias: []float64{0, 0, 0, 0},
	})

	m := New(path)
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	scores, err := m.Predict([]float32{0, 1})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(scores) != 4 {
		t.Fatalf("score count = %d, want 4", len(scores))
	}
	var sum float64
	best := 0
	for i, s := range scores {
		sum += float64(s)
		if s > scores[best] {
			best = i
		}
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Fatalf("softmax sums to %v", sum)
	}
	if best != 1 {
		t.Fatalf("argmax = %d, want 1", best)
	}
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name string
		wf   weightsFile
	}{
		{"bad input size", weightsFile{InputSize: 0}},
		{"wrong class count", weightsFile{InputSize: 2, Weights: [][]float64{{1, 2}}, Bias: []float64{0}}},
		{"ragged row", weightsFile{
			InputSize: 2,
			Weights:   [][]float64{{1}, {0, 1}, {0, 1}, {0, 1}},
			Bias:      []float64{0, 0, 0, 0},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := New(writeWeights(t, tc.wf))
			if err := m.Load(context.Background()); err == nil {
				t.Fatalf("expected load error")
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		m := New(filepath.Join(t.TempDir(), "absent.json"))
		if err := m.Load(context.Background()); err == nil {
			t.Fatalf("expected load error")
		}
	})
}

func TestPredictBeforeLoad(t *testing.T) {
	m := New("irrelevant")
	if _, err := m.Predict([]float32{1}); err == nil {
		t.Fatalf("expected error before load")
	}
}
