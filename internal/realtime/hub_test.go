package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-pulse/backend/internal/events"
	"github.com/aura-pulse/backend/internal/models"
)

type fakeConn struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed int
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
}

func (c *fakeConn) kinds(t *testing.T) []events.Kind {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.Kind
	for _, f := range c.frames {
		out = append(out, frameKind(t, f))
	}
	return out
}

func frameKind(t *testing.T, frame []byte) events.Kind {
	t.Helper()
	s := string(frame)
	require.True(t, len(s) > len("event: "))
	end := 0
	for end < len(s) && s[end] != '\n' {
		end++
	}
	return events.Kind(s[len("event: "):end])
}

func joined(sessionID uuid.UUID, name string) events.Event {
	return events.ParticipantJoined{SessionID: sessionID, Participant: models.Participant{ID: uuid.New(), SessionID: sessionID, Name: name}}
}

func TestHub_BroadcastReachesOnlyTargetSession(t *testing.T) {
	h := NewHub(nil, Options{})
	s1, s2 := uuid.New(), uuid.New()
	a, b, other := newFakeConn("a"), newFakeConn("b"), newFakeConn("other")
	require.NoError(t, h.Register(s1, a, nil))
	require.NoError(t, h.Register(s1, b, nil))
	require.NoError(t, h.Register(s2, other, nil))

	h.Broadcast(joined(s1, "Ana"))

	assert.Equal(t, []events.Kind{events.KindParticipantJoined}, a.kinds(t))
	assert.Equal(t, []events.Kind{events.KindParticipantJoined}, b.kinds(t))
	assert.Empty(t, other.kinds(t))
}

func TestHub_FailedWriteIsIsolatedAndRemoved(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	h := NewHub(nil, Options{Metrics: metrics})
	sid := uuid.New()
	good, bad := newFakeConn("good"), newFakeConn("bad")
	bad.fail = true
	require.NoError(t, h.Register(sid, good, nil))
	require.NoError(t, h.Register(sid, bad, nil))

	h.Broadcast(joined(sid, "Ana"))

	assert.Len(t, good.kinds(t), 1)
	assert.Equal(t, 1, bad.closed)
	assert.Equal(t, 1, h.ConnectionCount(sid))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Dropped))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Connections))

	h.Broadcast(joined(sid, "Ben"))
	assert.Len(t, good.kinds(t), 2)
}

func TestHub_PerConnectionOrder(t *testing.T) {
	h := NewHub(nil, Options{})
	sid := uuid.New()
	c := newFakeConn("c")
	require.NoError(t, h.Register(sid, c, nil))

	pid := uuid.New()
	h.Broadcast(events.ParticipantJoined{SessionID: sid, Participant: models.Participant{ID: pid, SessionID: sid}})
	h.Broadcast(events.ParticipantCompleted{SessionID: sid, ParticipantID: pid, CompletedAt: time.Now()})
	h.Broadcast(events.ParticipantLeft{SessionID: sid, ParticipantID: pid})

	assert.Equal(t, []events.Kind{
		events.KindParticipantJoined,
		events.KindParticipantCompleted,
		events.KindParticipantLeft,
	}, c.kinds(t))
}

func TestHub_PrimeRunsBeforeBroadcasts(t *testing.T) {
	h := NewHub(nil, Options{})
	sid := uuid.New()
	c := newFakeConn("c")
	err := h.Register(sid, c, func() error {
		frame, err := events.Encode(events.Connected{SessionID: sid, ConnectionID: c.ID()})
		if err != nil {
			return err
		}
		return c.Send(frame)
	})
	require.NoError(t, err)
	h.Broadcast(joined(sid, "Ana"))

	assert.Equal(t, []events.Kind{events.KindConnected, events.KindParticipantJoined}, c.kinds(t))
}

func TestHub_PrimeErrorLeavesNothingRegistered(t *testing.T) {
	h := NewHub(nil, Options{})
	sid := uuid.New()
	err := h.Register(sid, newFakeConn("c"), func() error { return models.ErrSessionNotFound })
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	assert.Equal(t, 0, h.ConnectionCount(sid))
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	h := NewHub(nil, Options{})
	sid := uuid.New()
	c := newFakeConn("c")
	require.NoError(t, h.Register(sid, c, nil))

	h.Unregister(sid, c)
	h.Unregister(sid, c)
	h.Unregister(uuid.New(), c)

	assert.Equal(t, 0, h.ConnectionCount(sid))
	h.Broadcast(joined(sid, "Ana"))
	assert.Empty(t, c.kinds(t))
}

func TestHub_ConnectionLimit(t *testing.T) {
	h := NewHub(nil, Options{MaxConnsPerSession: 2})
	sid := uuid.New()
	require.NoError(t, h.Register(sid, newFakeConn("1"), nil))
	require.NoError(t, h.Register(sid, newFakeConn("2"), nil))
	assert.ErrorIs(t, h.Register(sid, newFakeConn("3"), nil), ErrTooManyConnections)
	assert.NoError(t, h.Register(uuid.New(), newFakeConn("4"), nil))
}

func TestHub_HeartbeatAndCloseSession(t *testing.T) {
	h := NewHub(nil, Options{})
	sid := uuid.New()
	c := newFakeConn("c")
	require.NoError(t, h.Register(sid, c, nil))

	h.Heartbeat()
	assert.Equal(t, []events.Kind{events.KindHeartbeat}, c.kinds(t))

	h.CloseSession(sid)
	assert.Equal(t, 1, c.closed)
	assert.Equal(t, 0, h.ConnectionCount(sid))
}

func TestHub_RunClosesEverythingOnCancel(t *testing.T) {
	h := NewHub(nil, Options{HeartbeatInterval: time.Hour})
	a, b := newFakeConn("a"), newFakeConn("b")
	require.NoError(t, h.Register(uuid.New(), a, nil))
	require.NoError(t, h.Register(uuid.New(), b, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	a.mu.Lock()
	b.mu.Lock()
	defer a.mu.Unlock()
	defer b.mu.Unlock()
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, b.closed)
}

func TestHub_ViewerHooks(t *testing.T) {
	h := NewHub(nil, Options{})
	var mu sync.Mutex
	var joins, leaves []string
	done := make(chan struct{}, 4)
	h.SetViewerHooks(
		func(_ uuid.UUID, c Conn) { mu.Lock(); joins = append(joins, c.ID()); mu.Unlock(); done <- struct{}{} },
		func(_ uuid.UUID, c Conn) { mu.Lock(); leaves = append(leaves, c.ID()); mu.Unlock(); done <- struct{}{} },
	)
	sid := uuid.New()
	c := newFakeConn("c")
	require.NoError(t, h.Register(sid, c, nil))
	h.Unregister(sid, c)
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("viewer hook not called")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"c"}, joins)
	assert.Equal(t, []string{"c"}, leaves)
}

func TestHub_LeaveHookWaitsForJoinHook(t *testing.T) {
	h := NewHub(nil, Options{})
	var mu sync.Mutex
	var order []string
	release := make(chan struct{})
	left := make(chan struct{})
	h.SetViewerHooks(
		func(uuid.UUID, Conn) {
			<-release
			mu.Lock()
			order = append(order, "join")
			mu.Unlock()
		},
		func(uuid.UUID, Conn) {
			mu.Lock()
			order = append(order, "leave")
			mu.Unlock()
			close(left)
		},
	)
	sid := uuid.New()
	c := newFakeConn("c")
	require.NoError(t, h.Register(sid, c, nil))
	h.Unregister(sid, c)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, order)
	mu.Unlock()

	close(release)
	select {
	case <-left:
	case <-time.After(time.Second):
		t.Fatal("leave hook not called")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"join", "leave"}, order)
}

// loopbackRedis delivers published frames to current subscribers on a separate goroutine,
// like a Redis connection does. Several hubs may share one bus. Frames published to a
// channel nobody subscribes to are lost.
type loopbackRedis struct {
	mu      sync.Mutex
	subs    map[uuid.UUID][]*loopbackSub
	cancels int
}

type loopbackSub struct {
	ch   chan [2]string
	quit chan struct{}
}

func (l *loopbackRedis) PublishSessionEvent(sessionID uuid.UUID, event string, frame []byte) error {
	l.mu.Lock()
	subs := append([]*loopbackSub(nil), l.subs[sessionID]...)
	l.mu.Unlock()
	for _, sub := range subs {
		select {
		case sub.ch <- [2]string{event, string(frame)}:
		case <-sub.quit:
		}
	}
	return nil
}

func (l *loopbackRedis) SubscribeSession(sessionID uuid.UUID, handler func(string, []byte)) (func(), error) {
	sub := &loopbackSub{ch: make(chan [2]string, 64), quit: make(chan struct{})}
	l.mu.Lock()
	if l.subs == nil {
		l.subs = make(map[uuid.UUID][]*loopbackSub)
	}
	l.subs[sessionID] = append(l.subs[sessionID], sub)
	l.mu.Unlock()
	go func() {
		for {
			select {
			case <-sub.quit:
				return
			case msg := <-sub.ch:
				handler(msg[0], []byte(msg[1]))
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			subs := l.subs[sessionID]
			for i, cur := range subs {
				if cur == sub {
					l.subs[sessionID] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(l.subs[sessionID]) == 0 {
				delete(l.subs, sessionID)
			}
			l.cancels++
			l.mu.Unlock()
			close(sub.quit)
		})
	}, nil
}

func (l *loopbackRedis) cancelCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancels
}

func TestHub_PublishViaRedisDeliversOnce(t *testing.T) {
	bus := &loopbackRedis{}
	h := NewHub(nil, Options{RedisPub: bus, RedisSub: bus})
	sid := uuid.New()
	c := newFakeConn("c")
	require.NoError(t, h.Register(sid, c, nil))

	h.Publish(joined(sid, "Ana"))
	require.Eventually(t, func() bool { return len(c.kinds(t)) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []events.Kind{events.KindParticipantJoined}, c.kinds(t))

	h.Unregister(sid, c)
	assert.Equal(t, 1, bus.cancelCount())
}

func TestHub_EventPublishedWhilePrimingIsDeliveredAfterSnapshot(t *testing.T) {
	bus := &loopbackRedis{}
	h := NewHub(nil, Options{RedisPub: bus, RedisSub: bus})
	sid := uuid.New()
	c := newFakeConn("c")

	err := h.Register(sid, c, func() error {
		frame, err := events.Encode(events.Snapshot{SessionID: sid})
		if err != nil {
			return err
		}
		if err := c.Send(frame); err != nil {
			return err
		}
		// Committed after the snapshot was read, published before registration completes.
		h.Publish(joined(sid, "Ana"))
		return nil
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(c.kinds(t)) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []events.Kind{events.KindSnapshot, events.KindParticipantJoined}, c.kinds(t))
}

func TestHub_SlowPrimeDoesNotBlockOtherSessions(t *testing.T) {
	h := NewHub(nil, Options{})
	slow, other := uuid.New(), uuid.New()
	c := newFakeConn("other")
	require.NoError(t, h.Register(other, c, nil))

	release := make(chan struct{})
	primed := make(chan struct{})
	go func() {
		_ = h.Register(slow, newFakeConn("slow"), func() error {
			close(primed)
			<-release
			return nil
		})
	}()
	<-primed
	defer close(release)

	done := make(chan struct{})
	go func() {
		h.Broadcast(joined(other, "Ana"))
		h.Heartbeat()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked behind another session's registration")
	}
	assert.Len(t, c.kinds(t), 2)
}

func TestHub_RegisterAfterRoomDroppedUsesFreshRoom(t *testing.T) {
	bus := &loopbackRedis{}
	h := NewHub(nil, Options{RedisPub: bus, RedisSub: bus})
	sid := uuid.New()
	first := newFakeConn("first")
	require.NoError(t, h.Register(sid, first, nil))
	h.Unregister(sid, first)

	second := newFakeConn("second")
	require.NoError(t, h.Register(sid, second, nil))
	assert.Equal(t, 1, h.ConnectionCount(sid))

	h.Publish(joined(sid, "Ben"))
	require.Eventually(t, func() bool { return len(second.kinds(t)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, first.kinds(t))
}

func TestHub_TeardownClosesStreamsOnEveryInstance(t *testing.T) {
	bus := &loopbackRedis{}
	here := NewHub(nil, Options{RedisPub: bus, RedisSub: bus})
	remote := NewHub(nil, Options{RedisPub: bus, RedisSub: bus})
	sid := uuid.New()
	local, far := newFakeConn("local"), newFakeConn("far")
	require.NoError(t, here.Register(sid, local, nil))
	require.NoError(t, remote.Register(sid, far, nil))

	here.Teardown(sid)

	assert.Equal(t, 0, here.ConnectionCount(sid))
	require.Eventually(t, func() bool { return remote.ConnectionCount(sid) == 0 }, time.Second, 5*time.Millisecond)
	far.mu.Lock()
	defer far.mu.Unlock()
	assert.Equal(t, 1, far.closed)
	assert.Empty(t, far.frames, "the signal is not forwarded to viewers")
}

func TestHub_ConcurrentRegisterBroadcastUnregister(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	bus := &loopbackRedis{}
	h := NewHub(nil, Options{Metrics: metrics, RedisPub: bus, RedisSub: bus})
	h.SetViewerHooks(func(uuid.UUID, Conn) {}, func(uuid.UUID, Conn) {})
	sessions := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	var wg sync.WaitGroup
	for i := 0; i < 24; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sid := sessions[i%len(sessions)]
			for j := 0; j < 20; j++ {
				c := newFakeConn(fmt.Sprintf("c-%d-%d", i, j))
				c.fail = j%5 == 0
				if err := h.Register(sid, c, func() error { return nil }); err != nil {
					t.Errorf("register: %v", err)
					return
				}
				h.Broadcast(joined(sid, "x"))
				h.Publish(joined(sid, "y"))
				if j%3 == 0 {
					h.Heartbeat()
				}
				h.Unregister(sid, c)
			}
		}(i)
	}
	wg.Wait()

	for _, sid := range sessions {
		assert.Equal(t, 0, h.ConnectionCount(sid))
	}
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.Connections))
	h.mu.RLock()
	assert.Empty(t, h.rooms)
	h.mu.RUnlock()
}

func TestStreamConn_SendAfterCloseAndFullQueue(t *testing.T) {
	c := NewStreamConn(uuid.New(), 1)
	require.NoError(t, c.Send([]byte("a")))
	assert.ErrorIs(t, c.Send([]byte("b")), ErrSlowConsumer)
	c.Close()
	c.Close()
	assert.ErrorIs(t, c.Send([]byte("c")), ErrConnClosed)
}
