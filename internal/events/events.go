// Package events defines the session-scoped domain events pushed to presenter views
// and their server-sent-events wire encoding.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/aura-pulse/backend/internal/models"
)

// Kind is the wire name of an event.
type Kind string

const (
	KindConnected            Kind = "connected"
	KindHeartbeat            Kind = "heartbeat"
	KindSnapshot             Kind = "snapshot"
	KindParticipantJoined    Kind = "participant_joined"
	KindParticipantUpdated   Kind = "participant_updated"
	KindParticipantCompleted Kind = "participant_completed"
	KindParticipantLeft      Kind = "participant_left"
	KindSessionUpdated       Kind = "session_updated"
)

// Event is the closed set of domain events. Only types in this package implement it.
type Event interface {
	Kind() Kind
	Session() uuid.UUID
	sealed()
}

// Connected acknowledges a newly opened stream.
type Connected struct {
	SessionID    uuid.UUID `json:"session_id"`
	ConnectionID string    `json:"connection_id"`
}

// Heartbeat keeps idle streams open through proxies.
type Heartbeat struct {
	SessionID uuid.UUID `json:"session_id"`
}

// Snapshot carries the full session state; receivers replace what they hold.
type Snapshot struct {
	SessionID    uuid.UUID            `json:"session_id"`
	State        models.Session       `json:"session"`
	Participants []models.Participant `json:"participants"`
}

// ParticipantJoined carries the full participant record.
type ParticipantJoined struct {
	SessionID   uuid.UUID          `json:"session_id"`
	Participant models.Participant `json:"participant"`
}

// ParticipantUpdated carries a shallow field patch.
type ParticipantUpdated struct {
	SessionID     uuid.UUID               `json:"session_id"`
	ParticipantID uuid.UUID               `json:"participant_id"`
	Patch         models.ParticipantPatch `json:"patch"`
}

// ParticipantCompleted carries the final scores.
type ParticipantCompleted struct {
	SessionID     uuid.UUID               `json:"session_id"`
	ParticipantID uuid.UUID               `json:"participant_id"`
	Scores        models.PreferenceScores `json:"preference_scores"`
	CompletedAt   time.Time               `json:"completed_at"`
}

// ParticipantLeft reports a removed participant.
type ParticipantLeft struct {
	SessionID     uuid.UUID `json:"session_id"`
	ParticipantID uuid.UUID `json:"participant_id"`
}

// SessionUpdated carries a partial session patch.
type SessionUpdated struct {
	SessionID uuid.UUID           `json:"session_id"`
	Patch     models.SessionPatch `json:"patch"`
}

func (Connected) Kind() Kind            { return KindConnected }
func (Heartbeat) Kind() Kind            { return KindHeartbeat }
func (Snapshot) Kind() Kind             { return KindSnapshot }
func (ParticipantJoined) Kind() Kind    { return KindParticipantJoined }
func (ParticipantUpdated) Kind() Kind   { return KindParticipantUpdated }
func (ParticipantCompleted) Kind() Kind { return KindParticipantCompleted }
func (ParticipantLeft) Kind() Kind      { return KindParticipantLeft }
func (SessionUpdated) Kind() Kind       { return KindSessionUpdated }

func (e Connected) Session() uuid.UUID            { return e.SessionID }
func (e Heartbeat) Session() uuid.UUID            { return e.SessionID }
func (e Snapshot) Session() uuid.UUID             { return e.SessionID }
func (e ParticipantJoined) Session() uuid.UUID    { return e.SessionID }
func (e ParticipantUpdated) Session() uuid.UUID   { return e.SessionID }
func (e ParticipantCompleted) Session() uuid.UUID { return e.SessionID }
func (e ParticipantLeft) Session() uuid.UUID      { return e.SessionID }
func (e SessionUpdated) Session() uuid.UUID       { return e.SessionID }

func (Connected) sealed()            {}
func (Heartbeat) sealed()            {}
func (Snapshot) sealed()             {}
func (ParticipantJoined) sealed()    {}
func (ParticipantUpdated) sealed()   {}
func (ParticipantCompleted) sealed() {}
func (ParticipantLeft) sealed()      {}
func (SessionUpdated) sealed()       {}
