package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound is returned when a session id or code is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionInactive is returned when participants act on an inactive or ended session.
	ErrSessionInactive = errors.New("session is not active")
	// ErrCodeTaken is returned when a generated join code collides with an existing one.
	ErrCodeTaken = errors.New("session code already in use")
	// ErrForbidden is returned when the caller may not read or change a session.
	ErrForbidden = errors.New("not allowed for this session")
)

// Session is one live run of the quiz. Participants join it by Code.
type Session struct {
	ID        uuid.UUID  `json:"id"`
	Code      string     `json:"code"`
	Name      string     `json:"name"`
	IsActive  bool       `json:"is_active"`
	CreatedBy uuid.UUID  `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Ended reports whether the session was soft-ended.
func (s *Session) Ended() bool { return s.EndedAt != nil }

// CanManage reports whether adminID may change or delete the session. Only its creator can.
func (s *Session) CanManage(adminID uuid.UUID) bool { return s.CreatedBy == adminID }

// CanView reports whether the caller may read the session and watch its stream:
// its creator, or any observer.
func (s *Session) CanView(adminID uuid.UUID, role Role) bool {
	return s.CanManage(adminID) || role == RoleObserver
}

// End soft-ends the session: inactive with an end timestamp. Ending twice keeps the first timestamp.
func (s *Session) End(at time.Time) {
	s.IsActive = false
	if s.EndedAt == nil {
		t := at.UTC()
		s.EndedAt = &t
	}
}

// Clone returns a copy that shares no pointers with s.
func (s Session) Clone() Session {
	if s.EndedAt != nil {
		t := *s.EndedAt
		s.EndedAt = &t
	}
	return s
}

// SessionPatch is a partial session update. Nil fields are left untouched.
type SessionPatch struct {
	Name     *string    `json:"name,omitempty"`
	IsActive *bool      `json:"is_active,omitempty"`
	EndedAt  *time.Time `json:"ended_at,omitempty"`
}

// ApplyTo merges the non-nil fields of p into s.
func (p SessionPatch) ApplyTo(s *Session) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.IsActive != nil {
		s.IsActive = *p.IsActive
	}
	if p.EndedAt != nil {
		t := *p.EndedAt
		s.EndedAt = &t
	}
}
