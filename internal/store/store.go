// Package store holds one view's in-memory replica of a session and its participants.
// It does no I/O; it changes only through its mutation methods and Apply.
package store

import (
	"sync"

	"github.com/google/uuid"

	"github.com/aura-pulse/backend/internal/events"
	"github.com/aura-pulse/backend/internal/models"
)

// ErrParticipantNotFound is returned when a mutation names an unknown participant.
var ErrParticipantNotFound = models.ErrParticipantNotFound

// Store is a session replica owned by a single view.
type Store struct {
	mu           sync.RWMutex
	session      models.Session
	participants map[uuid.UUID]*models.Participant
	order        []uuid.UUID // join order
}

// Snapshot is a deep copy of the store contents.
type Snapshot struct {
	Session      models.Session       `json:"session"`
	Participants []models.Participant `json:"participants"`
}

// New creates a store seeded with session and participants (in the given order).
func New(session models.Session, participants []models.Participant) *Store {
	s := &Store{}
	s.replace(session, participants)
	return s
}

// Session returns a copy of the session metadata.
func (s *Store) Session() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone()
}

// Participants returns copies of all participants in join order.
func (s *Store) Participants() []models.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Participant, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.participants[id].Clone())
	}
	return out
}

// Participant returns a copy of one participant.
func (s *Store) Participant(id uuid.UUID) (models.Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return models.Participant{}, false
	}
	return p.Clone(), true
}

// Len returns the participant count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Upsert replaces the participant with the same ID, or appends it.
func (s *Store) Upsert(p models.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsert(p)
}

// PatchParticipant applies a shallow field patch.
func (s *Store) PatchParticipant(id uuid.UUID, patch models.ParticipantPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return ErrParticipantNotFound
	}
	patch.ApplyTo(p)
	return nil
}

// Remove deletes a participant. Removing an absent participant is a no-op.
func (s *Store) Remove(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(id)
}

// PatchSession applies a partial session update.
func (s *Store) PatchSession(patch models.SessionPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	patch.ApplyTo(&s.session)
}

// Snapshot returns a deep copy of the current contents.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{Session: s.session.Clone(), Participants: make([]models.Participant, 0, len(s.order))}
	for _, id := range s.order {
		snap.Participants = append(snap.Participants, s.participants[id].Clone())
	}
	return snap
}

// Restore replaces the contents with snap. Restoration is all-or-nothing.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replace(snap.Session, snap.Participants)
}

// Apply merges an event into the store and reports whether the event changed
// anything the analytics depend on. Events for other sessions and events that
// carry no state are ignored.
func (s *Store) Apply(ev events.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.Session() != s.session.ID && ev.Kind() != events.KindSnapshot {
		return false
	}
	switch e := ev.(type) {
	case events.Snapshot:
		if s.session.ID != uuid.Nil && e.State.ID != s.session.ID {
			return false
		}
		s.replace(e.State, e.Participants)
		return true
	case events.ParticipantJoined:
		s.upsert(e.Participant)
		return true
	case events.ParticipantUpdated:
		p, ok := s.participants[e.ParticipantID]
		if !ok {
			return false
		}
		e.Patch.ApplyTo(p)
		return true
	case events.ParticipantCompleted:
		p, ok := s.participants[e.ParticipantID]
		if !ok {
			return false
		}
		scores := e.Scores.Clamp()
		at := e.CompletedAt.UTC()
		p.Completed = true
		p.Scores = &scores
		p.CompletedAt = &at
		return true
	case events.ParticipantLeft:
		return s.remove(e.ParticipantID)
	case events.SessionUpdated:
		e.Patch.ApplyTo(&s.session)
		return true
	case events.Connected, events.Heartbeat:
		return false
	}
	return false
}

func (s *Store) replace(session models.Session, participants []models.Participant) {
	s.session = session.Clone()
	s.participants = make(map[uuid.UUID]*models.Participant, len(participants))
	s.order = make([]uuid.UUID, 0, len(participants))
	for _, p := range participants {
		s.upsert(p)
	}
}

func (s *Store) upsert(p models.Participant) {
	c := p.Clone()
	if _, ok := s.participants[p.ID]; !ok {
		s.order = append(s.order, p.ID)
	}
	s.participants[p.ID] = &c
}

func (s *Store) remove(id uuid.UUID) bool {
	if _, ok := s.participants[id]; !ok {
		return false
	}
	delete(s.participants, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	return true
}
