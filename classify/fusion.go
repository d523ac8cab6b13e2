package classify

import "strings"

// classKeywords is the fixed table the text signal is scored against. The
// lists mix French and English because the corpus the classifier was built
// on does.
var classKeywords = map[Class][]string{
	ClassInvoice: {"invoice", "bill", "facture", "total", "amount", "montant", "payment", "tax", "tva"},
	ClassDrawing: {"drawing", "diagram", "plan", "blueprint", "technical", "schematic"},
	ClassReport:  {"report", "rapport", "analysis", "summary", "findings", "conclusion"},
	ClassReceipt: {"receipt", "reçu", "ticket", "proof", "purchase", "transaction"},
}

// Fusion thresholds. These are product constants, not tunables.
const (
	noSignalCutoff      = 0.1
	disagreementCutoff  = 0.3
	agreementBoostBase  = 0.05
	agreementBoostRate  = 0.03
	agreementBoostCap   = 0.08
	disagreementPenalty = 0.03
	minConfidence       = 0.60
	maxConfidence       = 0.99
)

// TextAnalysis is the keyword-derived verdict over the class table.
type TextAnalysis struct {
	Class  Class
	Score  float64
	Scores map[Class]float64
}

// AnalyzeText scores every class against the extracted keywords and the raw
// recognized text. Each keyword matching a table entry (case-insensitive
// substring, either direction) counts 1; each table entry found anywhere in
// the raw text counts 0.5. Scores are normalized by table size. Ties go to
// the class declared first.
func AnalyzeText(keywords []string, text string) TextAnalysis {
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	textLower := strings.ToLower(text)

	analysis := TextAnalysis{Scores: make(map[Class]float64, Count)}
	for _, class := range classes {
		table := classKeywords[class]
		var score float64
		for _, kw := range lowered {
			for _, entry := range table {
				if strings.Contains(kw, entry) || strings.Contains(entry, kw) {
					score++
				}
			}
		}
		if textLower != "" {
			for _, entry := range table {
				if strings.Contains(textLower, entry) {
					score += 0.5
				}
			}
		}
		score /= float64(len(table))
		analysis.Scores[class] = score
		if analysis.Class == "" || score > analysis.Score {
			analysis.Class = class
			analysis.Score = score
		}
	}
	return analysis
}

// Fuse combines the classifier's prediction with the text signal. A text
// score at or below the no-signal cutoff leaves the prediction untouched.
// Agreement earns a capped boost, confident disagreement a fixed penalty,
// weak disagreement no adjustment. The final confidence is clamped to
// [0.60, 0.99] in every case.
func Fuse(cnn Prediction, keywords []string, text string) FusionResult {
	result := FusionResult{
		Class:         cnn.Class,
		Confidence:    cnn.Confidence,
		CNNConfidence: cnn.Confidence,
	}

	analysis := AnalyzeText(keywords, text)
	if analysis.Score > noSignalCutoff {
		result.FusionApplied = true
		switch {
		case analysis.Class == cnn.Class:
			boost := agreementBoostBase + analysis.Score*agreementBoostRate
			if boost > agreementBoostCap {
				boost = agreementBoostCap
			}
			result.Boost = boost
			result.Confidence = cnn.Confidence + boost
		case analysis.Score > disagreementCutoff:
			result.Boost = -disagreementPenalty
			result.Confidence = cnn.Confidence - disagreementPenalty
		}
	}

	result.Confidence = clampConfidence(result.Confidence)
	return result
}

func clampConfidence(c float64) float64 {
	if c < minConfidence {
		return minConfidence
	}
	if c > maxConfidence {
		return maxConfidence
	}
	return c
}
