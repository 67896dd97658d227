package analytics

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-pulse/backend/internal/models"
)

func TestThresholdLexicon(t *testing.T) {
	completed := []models.Participant{participant("", &models.PreferenceScores{})}
	terms := ThresholdLexicon{Concepts: DefaultConcepts}.Terms(Input{
		Averages:  models.PreferenceScores{Innovation: 80, Sustainability: 49, Community: 50},
		Completed: completed,
	})

	require.Len(t, terms, 10)
	assert.Equal(t, Term{Text: "Innovation", Weight: 80}, terms[0])
	for _, term := range terms {
		assert.NotEqual(t, "Sustainability", term.Text)
	}
	for i := 1; i < len(terms); i++ {
		assert.GreaterOrEqual(t, terms[i-1].Weight, terms[i].Weight)
	}
}

func TestThresholdLexiconNoCompleted(t *testing.T) {
	terms := ThresholdLexicon{Concepts: DefaultConcepts}.Terms(Input{Averages: models.PreferenceScores{Innovation: 100}})
	assert.Empty(t, terms)
	assert.NotNil(t, terms)
}

func TestFrequencyLexicon(t *testing.T) {
	ps := []models.Participant{
		{Answers: map[int]models.Answer{0: {Text: "Solar power and bikes"}, 1: {Text: "bikes!"}}},
		{Answers: map[int]models.Answer{0: {Text: "BIKES, trains and solar"}}},
	}
	terms := FrequencyLexicon{}.Terms(Input{Participants: ps})

	require.NotEmpty(t, terms)
	assert.Equal(t, Term{Text: "bikes", Weight: FrequencyWeight(3)}, terms[0])
	assert.Equal(t, Term{Text: "solar", Weight: FrequencyWeight(2)}, terms[1])
	for _, term := range terms {
		assert.NotEqual(t, "and", term.Text, "stopwords and short tokens are dropped")
	}
}

func TestFrequencyLexiconTruncatesToTopN(t *testing.T) {
	answers := make(map[int]models.Answer)
	for i := 0; i < 40; i++ {
		answers[i] = models.Answer{Text: fmt.Sprintf("word%02d", i)}
	}
	terms := FrequencyLexicon{}.Terms(Input{Participants: []models.Participant{{Answers: answers}}})
	assert.Len(t, terms, TopN)
	assert.Equal(t, "word00", terms[0].Text)
}

func TestFrequencyWeightIsBoundedAndMonotonic(t *testing.T) {
	prev := 0
	for n := 1; n < 50; n++ {
		w := FrequencyWeight(n)
		assert.GreaterOrEqual(t, w, prev)
		assert.LessOrEqual(t, w, MaxWeight)
		prev = w
	}
	assert.Zero(t, FrequencyWeight(0))
}
