// Package optimistic applies admin writes to local state first and rolls them back
// when the server does not confirm them.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-pulse/backend/internal/store"
)

// ErrInFlight is returned when the same action on the same target is already pending.
var ErrInFlight = errors.New("mutation already in flight")

// Action names a kind of admin write.
type Action string

const (
	ActionEndSession        Action = "end_session"
	ActionRemoveParticipant Action = "remove_participant"
)

// Key identifies a mutation for the double-submission guard.
type Key struct {
	Action   Action
	TargetID uuid.UUID
}

func (k Key) String() string { return string(k.Action) + ":" + k.TargetID.String() }

// Mutation is one optimistic write. Apply and Rollback run synchronously on the caller's
// goroutine; Remote is the only call that may block.
type Mutation struct {
	Apply    func()
	Remote   func(ctx context.Context) error
	Rollback func()
}

// Manager runs mutations and rejects duplicates while one is pending.
type Manager struct {
	logger *zap.Logger

	mu       sync.Mutex
	inFlight map[Key]struct{}
}

func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{logger: logger, inFlight: make(map[Key]struct{})}
}

// InFlight reports whether a mutation for key is pending.
func (m *Manager) InFlight(key Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inFlight[key]
	return ok
}

// Perform applies mut locally, calls the server, and rolls back if the call fails.
// The returned error wraps the remote error, or is ErrInFlight.
func (m *Manager) Perform(ctx context.Context, key Key, mut Mutation) (err error) {
	if mut.Remote == nil {
		return fmt.Errorf("%s: no remote call", key)
	}
	if !m.claim(key) {
		return ErrInFlight
	}
	defer m.release(key)

	if mut.Apply != nil {
		mut.Apply()
	}
	if err = m.call(ctx, mut.Remote); err == nil {
		return nil
	}
	if mut.Rollback != nil {
		mut.Rollback()
	}
	m.logger.Warn("optimistic mutation rolled back", zap.String("action", string(key.Action)),
		zap.String("target_id", key.TargetID.String()), zap.Error(err))
	return fmt.Errorf("%s: %w", key.Action, err)
}

func (m *Manager) call(ctx context.Context, remote func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("remote call panicked: %v", r)
		}
	}()
	return remote(ctx)
}

func (m *Manager) claim(key Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inFlight[key]; ok {
		return false
	}
	m.inFlight[key] = struct{}{}
	return true
}

func (m *Manager) release(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, key)
}

// OnStore builds a Mutation over s. The store is snapshotted immediately before apply
// runs and Rollback restores that snapshot whole.
func OnStore(s *store.Store, apply func(*store.Store), remote func(context.Context) error) Mutation {
	var before store.Snapshot
	return Mutation{
		Apply: func() {
			before = s.Snapshot()
			apply(s)
		},
		Remote:   remote,
		Rollback: func() { s.Restore(before) },
	}
}
