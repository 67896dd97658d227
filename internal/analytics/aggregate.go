// Package analytics derives presenter statistics from a session snapshot.
// Everything here is recomputed from scratch on each call; there is no cached aggregate state.
package analytics

import (
	"math"

	"github.com/aura-pulse/backend/internal/models"
)

// Result is the derived view of a session snapshot.
type Result struct {
	SessionActive  bool                    `json:"session_active"`
	ActiveCount    int                     `json:"active_count"`
	CompletedCount int                     `json:"completed_count"`
	Total          int                     `json:"total"`
	ResponseRate   int                     `json:"response_rate"`
	Averages       models.PreferenceScores `json:"averages"`
	Cohorts        map[string]int          `json:"cohorts"`
	WordCloud      []Term                  `json:"word_cloud"`
	DNA            string                  `json:"dna"`
}

// Aggregator computes Results with a fixed rule set and lexicon.
type Aggregator struct {
	Rules   []Rule
	Lexicon Lexicon
}

// Default returns the aggregator used by the server and presenter views.
func Default() *Aggregator {
	return &Aggregator{Rules: DefaultRules, Lexicon: ThresholdLexicon{Concepts: DefaultConcepts}}
}

// Aggregate computes the Result for session using the default aggregator.
func Aggregate(session models.Session, participants []models.Participant) Result {
	return Default().Aggregate(session, participants)
}

// Aggregate computes the Result for session. It does not modify its inputs.
func (a *Aggregator) Aggregate(session models.Session, participants []models.Participant) Result {
	res := Result{
		SessionActive: session.IsActive,
		Total:         len(participants),
		Cohorts:       CohortDistribution(participants),
	}
	var completed []models.Participant
	for _, p := range participants {
		if p.Completed {
			completed = append(completed, p)
		}
	}
	res.CompletedCount = len(completed)
	res.ActiveCount = res.Total - res.CompletedCount
	res.ResponseRate = ResponseRate(res.CompletedCount, res.Total)
	res.Averages = Averages(completed)
	res.DNA = Classify(a.Rules, res.Averages)
	if a.Lexicon != nil {
		res.WordCloud = a.Lexicon.Terms(Input{Averages: res.Averages, Completed: completed, Participants: participants})
	}
	if res.WordCloud == nil {
		res.WordCloud = []Term{}
	}
	return res
}

// ResponseRate returns round(100*completed/total), or 0 when total is 0.
func ResponseRate(completed, total int) int {
	if total <= 0 {
		return 0
	}
	rate := int(math.Round(100 * float64(completed) / float64(total)))
	if rate > 100 {
		return 100
	}
	return rate
}

// Averages returns the rounded per-dimension mean over participants with scores.
// Participants without scores are skipped; an empty set yields the zero vector.
func Averages(completed []models.Participant) models.PreferenceScores {
	var sums [4]int
	n := 0
	for _, p := range completed {
		if !p.Completed || p.Scores == nil {
			continue
		}
		for i, d := range models.Dimensions {
			sums[i] += p.Scores.Get(d)
		}
		n++
	}
	var out models.PreferenceScores
	if n == 0 {
		return out
	}
	for i, d := range models.Dimensions {
		out.Set(d, int(math.Round(float64(sums[i])/float64(n))))
	}
	return out.Clamp()
}

// CohortDistribution counts participants per cohort label. Empty labels count as Unknown.
func CohortDistribution(participants []models.Participant) map[string]int {
	out := make(map[string]int)
	for _, p := range participants {
		label := p.Cohort
		if label == "" {
			label = models.CohortUnknown
		}
		out[label]++
	}
	return out
}
