package ocr

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultTopKeywords is the number of keywords extracted when callers pass a
// non-positive topK.
const DefaultTopKeywords = 5

// stopWords are common French function words filtered out of keyword
// candidates. English short words fall out of the length filter anyway.
var stopWords = map[string]struct{}{
	"le": {}, "la": {}, "les": {}, "un": {}, "une": {}, "des": {}, "de": {}, "du": {},
	"et": {}, "ou": {}, "mais": {}, "donc": {}, "car": {}, "à": {}, "au": {}, "aux": {},
	"pour": {}, "par": {}, "sur": {}, "dans": {}, "ce": {}, "cette": {}, "ces": {},
	"qui": {}, "que": {}, "quoi": {}, "dont": {}, "où": {}, "se": {}, "sa": {}, "son": {},
	"ses": {}, "mon": {}, "ma": {}, "mes": {}, "ton": {}, "ta": {}, "tes": {},
	"il": {}, "elle": {}, "ils": {}, "elles": {}, "nous": {}, "vous": {}, "je": {},
	"tu": {}, "on": {}, "est": {}, "sont": {}, "a": {}, "ont": {}, "fait": {},
	"être": {}, "avoir": {}, "faire": {}, "plus": {}, "moins": {}, "très": {},
	"bien": {}, "mal": {}, "tout": {}, "tous": {}, "toute": {},
}

// accented is the set of non-ASCII letters kept during normalization.
const accented = "àâäéèêëïîôùûüÿç"

// Keywords extracts the topK most frequent meaningful words from recognized
// text. The pipeline: lowercase, strip everything outside letters and
// whitespace, tokenize, drop stop words and tokens of three runes or fewer,
// rank by frequency with ties broken by first occurrence. Empty or
// whitespace-only input yields an empty (nil) list.
func Keywords(text string, topK int) []string {
	if topK <= 0 {
		topK = DefaultTopKeywords
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	normalized := normalize(strings.ToLower(text))

	type candidate struct {
		word  string
		count int
	}
	counts := make(map[string]int)
	order := make([]string, 0, 16)
	for _, word := range strings.Fields(normalized) {
		if _, stop := stopWords[word]; stop {
			continue
		}
		if utf8.RuneCountInString(word) <= 3 {
			continue
		}
		if counts[word] == 0 {
			order = append(order, word)
		}
		counts[word]++
	}
	if len(order) == 0 {
		return nil
	}

	ranked := make([]candidate, 0, len(order))
	for _, w := range order {
		ranked = append(ranked, candidate{word: w, count: counts[w]})
	}
	// Stable sort keeps first-occurrence order among equal counts.
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].count > ranked[j].count })

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	out := make([]string, len(ranked))
	for i, c := range ranked {
		out[i] = c.word
	}
	return out
}

// normalize replaces every rune outside the constrained alphabet (ASCII
// letters, a fixed set of accented letters, whitespace) with a space.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case strings.ContainsRune(accented, r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(' ')
		}
	}
	return b.String()
}
