package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyCompleted is returned when a completed participant is mutated.
	ErrAlreadyCompleted = errors.New("participant already completed")
	// ErrParticipantNotFound is returned when a participant id is unknown.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrInvalidCohort is returned for a cohort label outside the fixed set.
	ErrInvalidCohort = errors.New("invalid cohort")
)

// Cohort labels. An empty cohort is allowed and aggregated as CohortUnknown.
const (
	CohortGenZ       = "Gen Z"
	CohortMillennial = "Millennial"
	CohortGenX       = "Gen X"
	CohortBoomer     = "Boomer"
	CohortUnknown    = "Unknown"
)

// Cohorts lists the labels a participant may pick.
var Cohorts = []string{CohortGenZ, CohortMillennial, CohortGenX, CohortBoomer}

// ValidCohort reports whether c is empty or one of Cohorts.
func ValidCohort(c string) bool {
	if c == "" {
		return true
	}
	for _, v := range Cohorts {
		if v == c {
			return true
		}
	}
	return false
}

// Answer is the raw answer to one question: a choice, free text, or both.
type Answer struct {
	Choice *int   `json:"choice,omitempty"`
	Text   string `json:"text,omitempty"`
}

// Participant is one respondent within a session.
type Participant struct {
	ID          uuid.UUID         `json:"id"`
	SessionID   uuid.UUID         `json:"session_id"`
	Name        string            `json:"name"`
	Cohort      string            `json:"cohort,omitempty"`
	Answers     map[int]Answer    `json:"answers"`
	Completed   bool              `json:"completed"`
	Scores      *PreferenceScores `json:"preference_scores"`
	JoinedAt    time.Time         `json:"joined_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// SaveAnswer records the answer to question index. Completed participants are immutable.
func (p *Participant) SaveAnswer(index int, a Answer) error {
	if p.Completed {
		return ErrAlreadyCompleted
	}
	if p.Answers == nil {
		p.Answers = make(map[int]Answer)
	}
	p.Answers[index] = cloneAnswer(a)
	return nil
}

// Complete marks the participant completed with its final scores.
func (p *Participant) Complete(scores PreferenceScores, at time.Time) error {
	if p.Completed {
		return ErrAlreadyCompleted
	}
	s := scores.Clamp()
	t := at.UTC()
	p.Completed = true
	p.Scores = &s
	p.CompletedAt = &t
	return nil
}

// Clone returns a deep copy of p.
func (p Participant) Clone() Participant {
	if p.Answers != nil {
		answers := make(map[int]Answer, len(p.Answers))
		for k, v := range p.Answers {
			answers[k] = cloneAnswer(v)
		}
		p.Answers = answers
	}
	if p.Scores != nil {
		s := *p.Scores
		p.Scores = &s
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		p.CompletedAt = &t
	}
	return p
}

func cloneAnswer(a Answer) Answer {
	if a.Choice != nil {
		c := *a.Choice
		a.Choice = &c
	}
	return a
}

// ParticipantPatch is a shallow partial update. Nil fields are left untouched;
// a non-nil Answers replaces the whole answer map.
type ParticipantPatch struct {
	Name    *string        `json:"name,omitempty"`
	Cohort  *string        `json:"cohort,omitempty"`
	Answers map[int]Answer `json:"answers,omitempty"`
}

// ApplyTo merges the patch into p.
func (patch ParticipantPatch) ApplyTo(p *Participant) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Cohort != nil {
		p.Cohort = *patch.Cohort
	}
	if patch.Answers != nil {
		answers := make(map[int]Answer, len(patch.Answers))
		for k, v := range patch.Answers {
			answers[k] = cloneAnswer(v)
		}
		p.Answers = answers
	}
}
