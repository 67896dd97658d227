package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-pulse/backend/internal/events"
)

const (
	// DefaultHeartbeatInterval keeps idle streams under common proxy idle timeouts.
	DefaultHeartbeatInterval = 25 * time.Second
	// DefaultMaxConnsPerSession bounds fan-out for one session.
	DefaultMaxConnsPerSession = 2000
)

// teardownSignal is published on a session channel to close its streams on every instance.
// It is a control message, never forwarded to viewers.
const teardownSignal = "pulse.teardown"

// ErrTooManyConnections is returned by Register when a session is at its connection limit.
var ErrTooManyConnections = errors.New("too many connections for session")

// Conn is one outbound stream registered with the hub.
type Conn interface {
	ID() string
	// Send queues a frame without blocking. An error means the connection is dead or too slow.
	Send(frame []byte) error
	// Close releases the connection. It must be safe to call more than once.
	Close()
}

// ViewerHook is called after a connection joins or leaves a session.
type ViewerHook func(sessionID uuid.UUID, c Conn)

// RedisPublisher publishes encoded frames for cross-instance delivery.
type RedisPublisher interface {
	PublishSessionEvent(sessionID uuid.UUID, event string, frame []byte) error
}

// RedisSubscriber subscribes to a session channel and invokes handler for each incoming frame.
type RedisSubscriber interface {
	SubscribeSession(sessionID uuid.UUID, handler func(event string, frame []byte)) (cancel func(), err error)
}

// Options configures a Hub.
type Options struct {
	HeartbeatInterval  time.Duration
	MaxConnsPerSession int
	RedisPub           RedisPublisher
	RedisSub           RedisSubscriber
	Metrics            *Metrics
}

// room is one session's connection set. Its mutex serializes broadcasts for the session,
// so every connection receives that session's frames in broadcast order. A closed room has
// been dropped from the hub and must not take new connections.
type room struct {
	mu     sync.Mutex
	conns  map[string]Conn
	unsub  func()
	closed bool
}

type hookKey struct {
	session uuid.UUID
	conn    string
}

// Hub maintains session_id -> set of connections and broadcasts events to them.
// With Redis configured, Publish goes through the session channel and each instance
// broadcasts locally exactly once. h.mu guards only the room map; per-session work
// happens under the room's lock.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[uuid.UUID]*room
	logger  *zap.Logger
	opts    Options
	metrics *Metrics
	onJoin  ViewerHook
	onLeave ViewerHook

	hookMu sync.Mutex
	joins  map[hookKey]chan struct{}
}

// NewHub creates a new hub.
func NewHub(logger *zap.Logger, opts Options) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.MaxConnsPerSession <= 0 {
		opts.MaxConnsPerSession = DefaultMaxConnsPerSession
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Hub{
		rooms:   make(map[uuid.UUID]*room),
		logger:  logger,
		opts:    opts,
		metrics: metrics,
		joins:   make(map[hookKey]chan struct{}),
	}
}

// SetViewerHooks sets callbacks for viewer join/leave (e.g. connection logs).
// Hooks run off the caller's goroutine; a connection's leave hook starts only after its join hook returned.
func (h *Hub) SetViewerHooks(onJoin, onLeave ViewerHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onJoin = onJoin
	h.onLeave = onLeave
}

// Register adds c to the session. If prime is non-nil it runs before any broadcast can reach c,
// which lets the caller queue an initial snapshot that later events are ordered after.
// The session's Redis subscription is open before prime runs, so nothing published after
// the snapshot was read is missed. prime runs under the session's lock: it may Publish through
// Redis but must not Broadcast to the same session.
func (h *Hub) Register(sessionID uuid.UUID, c Conn, prime func() error) error {
	for {
		r, onJoin := h.room(sessionID)
		r.mu.Lock()
		if r.closed {
			// Dropped between lookup and lock; start over with a fresh room.
			r.mu.Unlock()
			continue
		}
		if len(r.conns) >= h.opts.MaxConnsPerSession {
			r.mu.Unlock()
			h.metrics.Rejected.Inc()
			h.logger.Warn("stream rejected: session at connection limit",
				zap.String("session_id", sessionID.String()), zap.Int("limit", h.opts.MaxConnsPerSession))
			return ErrTooManyConnections
		}
		h.subscribeLocked(sessionID, r)
		if prime != nil {
			if err := prime(); err != nil {
				r.mu.Unlock()
				h.pruneIfEmpty(sessionID)
				return err
			}
		}
		if onJoin != nil {
			h.startJoin(sessionID, c, onJoin)
		}
		r.conns[c.ID()] = c
		h.metrics.Connections.Inc()
		r.mu.Unlock()

		h.logger.Debug("viewer joined session", zap.String("conn_id", c.ID()), zap.String("session_id", sessionID.String()))
		return nil
	}
}

// room returns the session's room, creating it if needed, and the current join hook.
func (h *Hub) room(sessionID uuid.UUID) (*room, ViewerHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.rooms[sessionID]
	if r == nil {
		r = &room{conns: make(map[string]Conn)}
		h.rooms[sessionID] = r
	}
	return r, h.onJoin
}

// subscribeLocked opens the session's Redis subscription if the room has none. r.mu must be held,
// so frames arriving on the subscription wait until the registering connection is primed.
func (h *Hub) subscribeLocked(sessionID uuid.UUID, r *room) {
	if h.opts.RedisSub == nil || r.unsub != nil {
		return
	}
	cancel, err := h.opts.RedisSub.SubscribeSession(sessionID, func(event string, frame []byte) {
		if event == teardownSignal {
			h.CloseSession(sessionID)
			return
		}
		h.broadcastFrame(sessionID, events.Kind(event), frame)
	})
	if err != nil {
		h.logger.Warn("redis subscribe failed; local delivery only", zap.String("session_id", sessionID.String()), zap.Error(err))
		return
	}
	r.unsub = cancel
}

// Unregister removes c from the session. Removing an absent connection is a no-op.
func (h *Hub) Unregister(sessionID uuid.UUID, c Conn) {
	if h.remove(sessionID, []Conn{c}) > 0 {
		h.logger.Debug("viewer left session", zap.String("conn_id", c.ID()), zap.String("session_id", sessionID.String()))
	}
}

// Broadcast encodes ev once and delivers it to every connection registered for its session
// on this instance. Connections that fail the write are unregistered and closed.
func (h *Hub) Broadcast(ev events.Event) {
	frame, err := events.Encode(ev)
	if err != nil {
		h.logger.Error("encode event", zap.String("kind", string(ev.Kind())), zap.Error(err))
		return
	}
	h.broadcastFrame(ev.Session(), ev.Kind(), frame)
}

// Publish delivers ev to every instance's viewers of its session. Without Redis it is Broadcast.
func (h *Hub) Publish(ev events.Event) {
	if h.opts.RedisPub == nil {
		h.Broadcast(ev)
		return
	}
	frame, err := events.Encode(ev)
	if err != nil {
		h.logger.Error("encode event", zap.String("kind", string(ev.Kind())), zap.Error(err))
		return
	}
	if err := h.opts.RedisPub.PublishSessionEvent(ev.Session(), string(ev.Kind()), frame); err != nil {
		h.logger.Warn("redis publish failed; delivering locally", zap.String("session_id", ev.Session().String()), zap.Error(err))
		h.broadcastFrame(ev.Session(), ev.Kind(), frame)
	}
}

func (h *Hub) broadcastFrame(sessionID uuid.UUID, kind events.Kind, frame []byte) {
	h.mu.RLock()
	r := h.rooms[sessionID]
	h.mu.RUnlock()
	if r == nil {
		return
	}

	var dead []Conn
	r.mu.Lock()
	for id, c := range r.conns {
		if err := c.Send(frame); err != nil {
			dead = append(dead, c)
			delete(r.conns, id)
			h.logger.Warn("stream write failed; dropping connection",
				zap.String("conn_id", id), zap.String("session_id", sessionID.String()), zap.Error(err))
		}
	}
	r.mu.Unlock()
	h.metrics.Broadcasts.WithLabelValues(string(kind)).Inc()

	if len(dead) == 0 {
		return
	}
	for _, c := range dead {
		c.Close()
		h.metrics.Dropped.Inc()
		h.metrics.Connections.Dec()
		h.notifyLeave(sessionID, c)
	}
	h.pruneIfEmpty(sessionID)
}

// Run sends a heartbeat to every session on this instance until ctx is done,
// then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.CloseAll()
			return
		case <-ticker.C:
			h.Heartbeat()
		}
	}
}

// Heartbeat broadcasts one heartbeat to every session with connections on this instance.
func (h *Hub) Heartbeat() {
	h.mu.RLock()
	ids := make([]uuid.UUID, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	for _, id := range ids {
		h.Broadcast(events.Heartbeat{SessionID: id})
	}
}

// CloseAll closes every connection on this instance.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	ids := make([]uuid.UUID, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	for _, id := range ids {
		h.CloseSession(id)
	}
}

// Teardown closes the session's streams here and, through Redis, on every other instance
// (e.g. when it is deleted).
func (h *Hub) Teardown(sessionID uuid.UUID) {
	if h.opts.RedisPub != nil {
		if err := h.opts.RedisPub.PublishSessionEvent(sessionID, teardownSignal, nil); err != nil {
			h.logger.Warn("redis teardown publish failed; other instances keep their streams",
				zap.String("session_id", sessionID.String()), zap.Error(err))
		}
	}
	h.CloseSession(sessionID)
}

// CloseSession closes and unregisters every connection of this instance's session.
func (h *Hub) CloseSession(sessionID uuid.UUID) {
	h.mu.Lock()
	r := h.rooms[sessionID]
	delete(h.rooms, sessionID)
	h.mu.Unlock()
	if r == nil {
		return
	}
	r.mu.Lock()
	r.closed = true
	unsub := r.unsub
	r.unsub = nil
	conns := make([]Conn, 0, len(r.conns))
	for id, c := range r.conns {
		conns = append(conns, c)
		delete(r.conns, id)
	}
	r.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	for _, c := range conns {
		c.Close()
		h.metrics.Connections.Dec()
		h.notifyLeave(sessionID, c)
	}
	h.logger.Info("session streams closed", zap.String("session_id", sessionID.String()), zap.Int("conns", len(conns)))
}

// ConnectionCount returns the number of connections for a session on this instance.
func (h *Hub) ConnectionCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	r := h.rooms[sessionID]
	h.mu.RUnlock()
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// remove deletes conns from the session and returns how many were present.
func (h *Hub) remove(sessionID uuid.UUID, conns []Conn) int {
	h.mu.RLock()
	r := h.rooms[sessionID]
	h.mu.RUnlock()
	if r == nil {
		return 0
	}
	var removed []Conn
	r.mu.Lock()
	for _, c := range conns {
		if cur, ok := r.conns[c.ID()]; ok && cur == c {
			delete(r.conns, c.ID())
			removed = append(removed, c)
		}
	}
	empty := len(r.conns) == 0
	r.mu.Unlock()
	if empty {
		h.pruneIfEmpty(sessionID)
	}

	for _, c := range removed {
		h.metrics.Connections.Dec()
		h.notifyLeave(sessionID, c)
	}
	return len(removed)
}

// pruneIfEmpty drops the session's room and Redis subscription once it has no connections.
func (h *Hub) pruneIfEmpty(sessionID uuid.UUID) {
	h.mu.Lock()
	r := h.rooms[sessionID]
	if r == nil {
		h.mu.Unlock()
		return
	}
	r.mu.Lock()
	if len(r.conns) > 0 {
		r.mu.Unlock()
		h.mu.Unlock()
		return
	}
	r.closed = true
	unsub := r.unsub
	r.unsub = nil
	r.mu.Unlock()
	delete(h.rooms, sessionID)
	h.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// startJoin runs the join hook and records when it finishes. Callers hold the room lock,
// so the record exists before any path can remove c.
func (h *Hub) startJoin(sessionID uuid.UUID, c Conn, onJoin ViewerHook) {
	done := make(chan struct{})
	h.hookMu.Lock()
	h.joins[hookKey{sessionID, c.ID()}] = done
	h.hookMu.Unlock()
	go func() {
		defer close(done)
		onJoin(sessionID, c)
	}()
}

func (h *Hub) notifyLeave(sessionID uuid.UUID, c Conn) {
	key := hookKey{sessionID, c.ID()}
	h.hookMu.Lock()
	joined := h.joins[key]
	delete(h.joins, key)
	h.hookMu.Unlock()

	h.mu.RLock()
	onLeave := h.onLeave
	h.mu.RUnlock()
	if onLeave == nil {
		return
	}
	go func() {
		if joined != nil {
			<-joined
		}
		onLeave(sessionID, c)
	}()
}
