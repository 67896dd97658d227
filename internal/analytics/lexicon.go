package analytics

import (
	"sort"
	"strings"
	"unicode"

	"github.com/aura-pulse/backend/internal/models"
)

const (
	// TopN bounds the word cloud size.
	TopN = 25
	// MaxWeight caps a term weight so rendering stays stable as sessions grow.
	MaxWeight = 100

	baseWeight = 20
	stepWeight = 10
)

// Term is one word cloud entry.
type Term struct {
	Text   string `json:"text"`
	Weight int    `json:"weight"`
}

// Input is what a Lexicon may look at.
type Input struct {
	Averages     models.PreferenceScores
	Completed    []models.Participant
	Participants []models.Participant
}

// Lexicon produces the word cloud. Implementations must be deterministic.
type Lexicon interface {
	Terms(in Input) []Term
}

// DefaultConcepts are the keywords each dimension contributes once its average reaches Threshold.
var DefaultConcepts = map[string][]string{
	models.DimInnovation:     {"Innovation", "Tech-Savvy", "Curious", "Early Adopter", "Experimental"},
	models.DimSustainability: {"Sustainability", "Eco-Friendly", "Ethical", "Conscious", "Green"},
	models.DimCommunity:      {"Community", "Social", "Connected", "Local", "Sharing"},
	models.DimConvenience:    {"Convenience", "Fast", "Practical", "Efficient", "Simple"},
}

// ThresholdLexicon emits concept keywords for dimensions whose average reaches Threshold.
// The first keyword weighs the dimension average; later ones step down by 5.
type ThresholdLexicon struct {
	Concepts  map[string][]string
	Threshold int // 0 means 50
}

// Terms implements Lexicon.
func (l ThresholdLexicon) Terms(in Input) []Term {
	if len(in.Completed) == 0 {
		return []Term{}
	}
	threshold := l.Threshold
	if threshold == 0 {
		threshold = 50
	}
	var out []Term
	for _, d := range models.Dimensions {
		avg := in.Averages.Get(d)
		if avg < threshold {
			continue
		}
		for i, kw := range l.Concepts[d] {
			out = append(out, Term{Text: kw, Weight: clampWeight(avg - i*5)})
		}
	}
	return rank(out)
}

// FrequencyLexicon tokenizes free-text answers and weighs terms by frequency.
type FrequencyLexicon struct {
	MinLength int // 0 means 3
	Stopwords map[string]struct{}
}

// Terms implements Lexicon.
func (l FrequencyLexicon) Terms(in Input) []Term {
	minLen := l.MinLength
	if minLen == 0 {
		minLen = 3
	}
	counts := make(map[string]int)
	for _, p := range in.Participants {
		for _, a := range p.Answers {
			for _, tok := range tokenize(a.Text) {
				if len([]rune(tok)) < minLen {
					continue
				}
				if _, stop := l.stopwords()[tok]; stop {
					continue
				}
				counts[tok]++
			}
		}
	}
	out := make([]Term, 0, len(counts))
	for tok, n := range counts {
		out = append(out, Term{Text: tok, Weight: FrequencyWeight(n)})
	}
	return rank(out)
}

func (l FrequencyLexicon) stopwords() map[string]struct{} {
	if l.Stopwords != nil {
		return l.Stopwords
	}
	return defaultStopwords
}

// FrequencyWeight maps a term count to a bounded, non-decreasing weight.
func FrequencyWeight(n int) int {
	if n <= 0 {
		return 0
	}
	return clampWeight(baseWeight + stepWeight*(n-1))
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '-'
	})
}

// rank sorts by weight descending, then text ascending, and truncates to TopN.
func rank(terms []Term) []Term {
	sort.SliceStable(terms, func(i, j int) bool {
		if terms[i].Weight != terms[j].Weight {
			return terms[i].Weight > terms[j].Weight
		}
		return terms[i].Text < terms[j].Text
	})
	if len(terms) > TopN {
		terms = terms[:TopN]
	}
	if terms == nil {
		return []Term{}
	}
	return terms
}

func clampWeight(w int) int {
	if w < 1 {
		return 1
	}
	if w > MaxWeight {
		return MaxWeight
	}
	return w
}

var defaultStopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {}, "you": {}, "are": {},
	"but": {}, "not": {}, "have": {}, "was": {}, "its": {}, "our": {}, "from": {}, "they": {},
	"just": {}, "like": {}, "really": {}, "very": {}, "more": {}, "would": {}, "about": {},
}
