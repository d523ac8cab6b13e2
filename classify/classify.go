// Package classify defines the document classes handled by the service and
// the fusion step that reconciles the image classifier's verdict with the
// text signal extracted from the same document.
package classify

import "fmt"

// Class identifies a document category. The declaration order below is
// canonical: it matches the classifier's output vector indices and breaks
// ties wherever classes are scored against each other.
type Class string

const (
	ClassDrawing Class = "Drawing"
	ClassInvoice Class = "Invoice"
	ClassReport  Class = "Report"
	ClassReceipt Class = "Receipt"
)

var classes = [...]Class{ClassDrawing, ClassInvoice, ClassReport, ClassReceipt}

// Classes returns the document classes in canonical order.
func Classes() []Class {
	out := make([]Class, len(classes))
	copy(out, classes[:])
	return out
}

// Count is the number of document classes, which is also the width of the
// classifier's output vector.
const Count = len(classes)

// ParseClass maps a string to a known Class.
func ParseClass(s string) (Class, error) {
	for _, c := range classes {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown document class %q", s)
}

// Prediction is the image classifier's verdict for one document page. Scores
// holds the per-class probability mass and sums to 1.
type Prediction struct {
	Class      Class
	Confidence float64
	Scores     map[Class]float64
}

// FusionResult is the terminal output of fusing a Prediction with the text
// signal. Confidence is always within [0.60, 0.99]. Class is always the
// classifier's class: the text signal adjusts confidence, never the label.
type FusionResult struct {
	Class         Class
	Confidence    float64
	CNNConfidence float64
	Boost         float64
	FusionApplied bool
}
