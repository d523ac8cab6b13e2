package model

import (
	"math"
	"math/rand"
	"sync"

	"github.com/arkeyez/arkdoc/classify"
)

// classPrior is the fixed sampling weight for a class in simulation mode,
// with the confidence range a simulated prediction of that class draws from.
type classPrior struct {
	weight   float64
	confLo   float64
	confHi   float64
	keywords []string
}

var simPriors = map[classify.Class]classPrior{
	classify.ClassDrawing: {
		weight: 0.25, confLo: 0.75, confHi: 0.92,
		keywords: []string{"plan", "schéma", "design", "technique", "blueprint"},
	},
	classify.ClassInvoice: {
		weight: 0.30, confLo: 0.78, confHi: 0.95,
		keywords: []string{"facture", "montant", "total", "tva", "paiement"},
	},
	classify.ClassReport: {
		weight: 0.25, confLo: 0.72, confHi: 0.89,
		keywords: []string{"rapport", "analyse", "résultats", "conclusion", "étude"},
	},
	classify.ClassReceipt: {
		weight: 0.20, confLo: 0.76, confHi: 0.93,
		keywords: []string{"reçu", "ticket", "caisse", "achat", "commerce"},
	},
}

// ConfidenceRange returns the simulation confidence bounds for a class.
func ConfidenceRange(class classify.Class) (lo, hi float64) {
	p := simPriors[class]
	return p.confLo, p.confHi
}

// simulator produces deterministic-by-seed stand-in predictions while the
// real classifier is unavailable. It never fails.
type simulator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newSimulator(seed int64) *simulator {
	return &simulator{rng: rand.New(rand.NewSource(seed))}
}

// predict samples a class from the fixed priors, draws a confidence inside
// the class range and spreads the remaining probability mass across the
// other classes with a symmetric Dirichlet split, so the scores sum to 1.
func (s *simulator) predict() classify.Prediction {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := classify.Classes()
	class := order[0]
	pick := s.rng.Float64() * totalWeight()
	for _, c := range order {
		pick -= simPriors[c].weight
		if pick < 0 {
			class = c
			break
		}
	}

	p := simPriors[class]
	confidence := p.confLo + s.rng.Float64()*(p.confHi-p.confLo)
	remaining := 1.0 - confidence

	// Dirichlet(1,...,1) over the other classes: normalized exponentials.
	others := make([]float64, 0, len(order)-1)
	var sum float64
	for range order[1:] {
		draw := s.exponential()
		others = append(others, draw)
		sum += draw
	}

	scores := make(map[classify.Class]float64, len(order))
	i := 0
	for _, c := range order {
		if c == class {
			scores[c] = confidence
			continue
		}
		scores[c] = others[i] / sum * remaining
		i++
	}

	return classify.Prediction{Class: class, Confidence: confidence, Scores: scores}
}

// keywords samples three to five mock keywords for a class without
// replacement.
func (s *simulator) keywords(class classify.Class) []string {
	p, ok := simPriors[class]
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := 3 + s.rng.Intn(3)
	if k > len(p.keywords) {
		k = len(p.keywords)
	}
	out := make([]string, 0, k)
	for _, idx := range s.rng.Perm(len(p.keywords))[:k] {
		out = append(out, p.keywords[idx])
	}
	return out
}

func (s *simulator) exponential() float64 {
	u := s.rng.Float64()
	for u == 0 {
		u = s.rng.Float64()
	}
	return -math.Log(u)
}

func totalWeight() float64 {
	var t float64
	for _, p := range simPriors {
		t += p.weight
	}
	return t
}
