// Package scoring turns a participant's raw answers into preference scores.
package scoring

import (
	"math"

	"github.com/aura-pulse/backend/internal/models"
)

// Likert bounds for choice answers.
const (
	LikertMin = 1
	LikertMax = 5
)

// Scorer computes preference scores from answers keyed by question index.
type Scorer interface {
	Score(answers map[int]models.Answer) models.PreferenceScores
}

// LikertScorer maps question i to dimension i%4 and a 1-5 choice to (choice-1)*25,
// then averages per dimension. Text-only and out-of-range answers are ignored.
type LikertScorer struct{}

// Score implements Scorer.
func (LikertScorer) Score(answers map[int]models.Answer) models.PreferenceScores {
	sums := make([]int, len(models.Dimensions))
	counts := make([]int, len(models.Dimensions))
	for index, a := range answers {
		if index < 0 || a.Choice == nil {
			continue
		}
		choice := *a.Choice
		if choice < LikertMin || choice > LikertMax {
			continue
		}
		d := index % len(models.Dimensions)
		sums[d] += (choice - LikertMin) * models.ScoreMax / (LikertMax - LikertMin)
		counts[d]++
	}
	var out models.PreferenceScores
	for i, dim := range models.Dimensions {
		if counts[i] == 0 {
			continue
		}
		out.Set(dim, int(math.Round(float64(sums[i])/float64(counts[i]))))
	}
	return out.Clamp()
}
