// Package presenter is one live dashboard view of a session. It owns a store replica,
// an event subscriber and the optimistic manager for admin actions.
package presenter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-pulse/backend/internal/analytics"
	"github.com/aura-pulse/backend/internal/events"
	"github.com/aura-pulse/backend/internal/models"
	"github.com/aura-pulse/backend/internal/optimistic"
	"github.com/aura-pulse/backend/internal/sessions"
	"github.com/aura-pulse/backend/internal/store"
	"github.com/aura-pulse/backend/internal/streamclient"
)

// ErrClosed is returned by actions on a closed view.
var ErrClosed = errors.New("view closed")

// API is the admin surface a view needs.
type API interface {
	Snapshot(ctx context.Context, sessionID uuid.UUID) (events.Snapshot, error)
	EndSession(ctx context.Context, sessionID uuid.UUID) (sessions.EndResult, error)
	RemoveParticipant(ctx context.Context, sessionID, participantID uuid.UUID) error
}

// SubscriberFactory builds the view's subscriber around its event handler and observer.
type SubscriberFactory func(onEvent streamclient.Handler, observer streamclient.Observer) streamclient.Subscriber

// Frame is everything a renderer needs for one redraw.
type Frame struct {
	Session      models.Session
	Participants []models.Participant
	Analytics    analytics.Result
	State        streamclient.ConnectionState
	Reconnect    time.Duration
}

// Options configure Open.
type Options struct {
	SessionID     uuid.UUID
	API           API
	NewSubscriber SubscriberFactory
	Aggregator    *analytics.Aggregator
	Render        func(Frame)
	Logger        *zap.Logger
	Now           func() time.Time
}

// View is a single presenter view. Render calls are serialized.
type View struct {
	sessionID  uuid.UUID
	api        API
	store      *store.Store
	manager    *optimistic.Manager
	aggregator *analytics.Aggregator
	render     func(Frame)
	logger     *zap.Logger
	now        func() time.Time
	sub        streamclient.Subscriber

	renderMu sync.Mutex
	mu       sync.Mutex
	state    streamclient.ConnectionState
	retryIn  time.Duration
	closed   bool
}

// Open loads the session snapshot, draws it, and starts the subscriber.
func Open(ctx context.Context, opts Options) (*View, error) {
	if opts.API == nil || opts.NewSubscriber == nil {
		return nil, errors.New("presenter: API and NewSubscriber are required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Aggregator == nil {
		opts.Aggregator = analytics.Default()
	}
	if opts.Render == nil {
		opts.Render = func(Frame) {}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	snap, err := opts.API.Snapshot(ctx, opts.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	v := &View{
		sessionID:  opts.SessionID,
		api:        opts.API,
		store:      store.New(snap.State, snap.Participants),
		manager:    optimistic.NewManager(opts.Logger),
		aggregator: opts.Aggregator,
		render:     opts.Render,
		logger:     opts.Logger.With(zap.String("session_id", opts.SessionID.String())),
		now:        opts.Now,
	}
	v.sub = opts.NewSubscriber(v.onEvent, v)
	v.redraw()
	v.sub.Start()
	return v, nil
}

// Store exposes the replica for read-only use.
func (v *View) Store() *store.Store { return v.store }

// State returns the last reported connection state.
func (v *View) State() streamclient.ConnectionState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Analytics recomputes the aggregate from the current replica.
func (v *View) Analytics() analytics.Result {
	snap := v.store.Snapshot()
	return v.aggregator.Aggregate(snap.Session, snap.Participants)
}

// EndSession marks the session ended locally, then confirms with the server.
func (v *View) EndSession(ctx context.Context) error {
	if v.isClosed() {
		return ErrClosed
	}
	inactive := false
	at := v.now().UTC()
	mut := optimistic.OnStore(v.store, func(s *store.Store) {
		s.PatchSession(models.SessionPatch{IsActive: &inactive, EndedAt: &at})
	}, func(ctx context.Context) error {
		_, err := v.api.EndSession(ctx, v.sessionID)
		return err
	})
	return v.manager.Perform(ctx, optimistic.Key{Action: optimistic.ActionEndSession, TargetID: v.sessionID}, v.redrawing(mut))
}

// RemoveParticipant drops a participant locally, then confirms with the server.
func (v *View) RemoveParticipant(ctx context.Context, participantID uuid.UUID) error {
	if v.isClosed() {
		return ErrClosed
	}
	if _, ok := v.store.Participant(participantID); !ok {
		return store.ErrParticipantNotFound
	}
	mut := optimistic.OnStore(v.store, func(s *store.Store) {
		s.Remove(participantID)
	}, func(ctx context.Context) error {
		return v.api.RemoveParticipant(ctx, v.sessionID, participantID)
	})
	return v.manager.Perform(ctx, optimistic.Key{Action: optimistic.ActionRemoveParticipant, TargetID: participantID}, v.redrawing(mut))
}

// Close stops the subscriber. No render happens after Close returns.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.mu.Unlock()
	v.sub.Close()
	// Wait out a redraw already in progress.
	v.renderMu.Lock()
	v.renderMu.Unlock()
}

// StateChanged implements streamclient.Observer.
func (v *View) StateChanged(s streamclient.ConnectionState) {
	v.mu.Lock()
	v.state = s
	if s == streamclient.StateConnected {
		v.retryIn = 0
	}
	v.mu.Unlock()
	v.redraw()
}

// ReconnectScheduled implements streamclient.Observer.
func (v *View) ReconnectScheduled(attempt int, delay time.Duration) {
	v.mu.Lock()
	v.retryIn = delay
	v.mu.Unlock()
	v.logger.Debug("reconnect scheduled", zap.Int("attempt", attempt), zap.Duration("delay", delay))
	v.redraw()
}

func (v *View) onEvent(ev events.Event) {
	if v.store.Apply(ev) {
		v.redraw()
	}
}

func (v *View) redrawing(m optimistic.Mutation) optimistic.Mutation {
	apply, rollback := m.Apply, m.Rollback
	m.Apply = func() { apply(); v.redraw() }
	m.Rollback = func() { rollback(); v.redraw() }
	return m
}

func (v *View) isClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

func (v *View) redraw() {
	v.renderMu.Lock()
	defer v.renderMu.Unlock()
	v.mu.Lock()
	closed, state, retry := v.closed, v.state, v.retryIn
	v.mu.Unlock()
	if closed {
		return
	}
	snap := v.store.Snapshot()
	v.render(Frame{
		Session:      snap.Session,
		Participants: snap.Participants,
		Analytics:    v.aggregator.Aggregate(snap.Session, snap.Participants),
		State:        state,
		Reconnect:    retry,
	})
}
