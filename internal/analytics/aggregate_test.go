package analytics

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-pulse/backend/internal/events"
	"github.com/aura-pulse/backend/internal/models"
	"github.com/aura-pulse/backend/internal/store"
)

func participant(cohort string, scores *models.PreferenceScores) models.Participant {
	p := models.Participant{ID: uuid.New(), Name: "p", Cohort: cohort, JoinedAt: time.Now().UTC()}
	if scores != nil {
		s := *scores
		now := time.Now().UTC()
		p.Completed = true
		p.Scores = &s
		p.CompletedAt = &now
	}
	return p
}

func TestAggregateExampleScenario(t *testing.T) {
	ps := []models.Participant{
		participant("Gen Z", &models.PreferenceScores{Innovation: 8}),
		participant("Gen Z", &models.PreferenceScores{Innovation: 6}),
		participant("Millennial", &models.PreferenceScores{Innovation: 10}),
		participant("Unknown", nil),
		participant("Millennial", nil),
	}

	res := Aggregate(models.Session{IsActive: true}, ps)

	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 3, res.CompletedCount)
	assert.Equal(t, 2, res.ActiveCount)
	assert.Equal(t, 60, res.ResponseRate)
	assert.Equal(t, 8, res.Averages.Innovation)
	assert.Equal(t, map[string]int{"Gen Z": 2, "Millennial": 2, "Unknown": 1}, res.Cohorts)
	assert.True(t, res.SessionActive)
}

func TestAggregateEmptySession(t *testing.T) {
	res := Aggregate(models.Session{}, nil)

	assert.Zero(t, res.Total)
	assert.Zero(t, res.ResponseRate)
	assert.Equal(t, models.PreferenceScores{}, res.Averages)
	assert.Equal(t, FallbackDNA, res.DNA)
	assert.Empty(t, res.Cohorts)
	assert.NotNil(t, res.WordCloud)
}

func TestAveragesZeroWhenNoneCompleted(t *testing.T) {
	ps := []models.Participant{participant("", nil), participant(models.CohortGenX, nil)}
	res := Aggregate(models.Session{}, ps)
	assert.Equal(t, models.PreferenceScores{}, res.Averages)
	assert.Equal(t, 1, res.Cohorts[models.CohortUnknown])
}

func TestAveragesRounding(t *testing.T) {
	ps := []models.Participant{
		participant("", &models.PreferenceScores{Community: 50}),
		participant("", &models.PreferenceScores{Community: 51}),
	}
	// 50.5 rounds half away from zero.
	assert.Equal(t, 51, Averages(ps).Community)
}

func TestResponseRate(t *testing.T) {
	tests := []struct {
		completed, total, want int
	}{
		{0, 0, 0},
		{0, 7, 0},
		{1, 3, 33},
		{2, 3, 67},
		{3, 3, 100},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_of_%d", tt.completed, tt.total), func(t *testing.T) {
			assert.Equal(t, tt.want, ResponseRate(tt.completed, tt.total))
		})
	}
}

func TestAggregateIsDeterministic(t *testing.T) {
	ps := []models.Participant{
		participant(models.CohortBoomer, &models.PreferenceScores{Innovation: 90, Sustainability: 75, Community: 20, Convenience: 66}),
		participant(models.CohortGenZ, &models.PreferenceScores{Innovation: 70, Sustainability: 80, Community: 40, Convenience: 10}),
		participant("", nil),
	}
	a := Aggregate(models.Session{}, ps)
	b := Aggregate(models.Session{}, ps)
	assert.Equal(t, a, b)
}

// Counts stay consistent and bounded across any sequence of store events.
func TestAggregateStaysConsistentAcrossEvents(t *testing.T) {
	sess := models.Session{ID: uuid.New(), IsActive: true}
	s := store.New(sess, nil)
	var ids []uuid.UUID

	check := func() {
		t.Helper()
		res := Aggregate(s.Session(), s.Participants())
		assert.Equal(t, res.Total, res.ActiveCount+res.CompletedCount)
		assert.GreaterOrEqual(t, res.ResponseRate, 0)
		assert.LessOrEqual(t, res.ResponseRate, 100)
		for _, d := range models.Dimensions {
			v := res.Averages.Get(d)
			assert.GreaterOrEqual(t, v, 0)
			assert.LessOrEqual(t, v, models.ScoreMax)
		}
		if res.CompletedCount == 0 {
			assert.Equal(t, models.PreferenceScores{}, res.Averages)
		}
	}

	for i := 0; i < 12; i++ {
		p := models.Participant{ID: uuid.New(), SessionID: sess.ID, Name: fmt.Sprintf("p%d", i), JoinedAt: time.Now().UTC()}
		ids = append(ids, p.ID)
		s.Apply(events.ParticipantJoined{SessionID: sess.ID, Participant: p})
		check()
	}
	for i, id := range ids {
		switch i % 3 {
		case 0:
			s.Apply(events.ParticipantCompleted{
				SessionID: sess.ID, ParticipantID: id, CompletedAt: time.Now(),
				Scores: models.PreferenceScores{Innovation: i * 17, Sustainability: 200, Community: -5, Convenience: 50},
			})
		case 1:
			name := "renamed"
			s.Apply(events.ParticipantUpdated{SessionID: sess.ID, ParticipantID: id, Patch: models.ParticipantPatch{Name: &name}})
		case 2:
			s.Apply(events.ParticipantLeft{SessionID: sess.ID, ParticipantID: id})
		}
		check()
	}
	require.Equal(t, 8, s.Len())
}
