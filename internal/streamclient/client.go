// Package streamclient consumes a session's event stream and keeps it alive across drops.
package streamclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-pulse/backend/internal/events"
)

// maxFrameBytes bounds one SSE line; snapshots of large sessions are the biggest frames.
const maxFrameBytes = 4 << 20

// DefaultIdleTimeout is a little over two server heartbeats (25s). A stream silent for longer is dead.
const DefaultIdleTimeout = 60 * time.Second

// ErrStreamIdle ends an attempt that received nothing within the idle timeout.
var ErrStreamIdle = errors.New("stream idle")

// Config configures a Client or Poller.
type Config struct {
	BaseURL      string
	SessionID    uuid.UUID
	Token        string
	HTTPClient   *http.Client
	InitialDelay time.Duration
	MaxDelay     time.Duration
	PollInterval time.Duration
	IdleTimeout  time.Duration
	OnEvent      Handler
	Observer     Observer
	Logger       *zap.Logger
}

func (c *Config) defaults() {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.OnEvent == nil {
		c.OnEvent = func(events.Event) {}
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
}

// StreamURL returns the stream endpoint for a session.
func StreamURL(baseURL string, sessionID uuid.UUID, token string) string {
	u := strings.TrimRight(baseURL, "/") + "/api/sessions/" + sessionID.String() + "/stream"
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	return u
}

// Client is the SSE subscriber. Each connection attempt runs on its own goroutine tagged with
// a generation number; a goroutine whose generation is no longer current does nothing.
type Client struct {
	cfg   Config
	after afterFunc

	mu      sync.Mutex
	state   ConnectionState
	backoff *Backoff
	gen     uint64
	closed  bool
	cancel  context.CancelFunc
	timer   timer
}

// NewClient creates an SSE client. Call Start to connect.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		cfg:     cfg,
		after:   realAfterFunc,
		backoff: NewBackoff(cfg.InitialDelay, cfg.MaxDelay),
	}
}

// Start opens the stream. Calling Start after Close does nothing.
func (c *Client) Start() { c.connect() }

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close stops the client for good: no reconnect is scheduled after it returns.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	changed := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()
	if changed {
		c.cfg.Observer.StateChanged(StateDisconnected)
	}
}

func (c *Client) connect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	c.timer = nil
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	changed := c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	if changed {
		c.cfg.Observer.StateChanged(StateConnecting)
	}
	go func() {
		defer cancel()
		err := c.run(ctx, gen)
		c.fail(gen, err)
	}()
}

func (c *Client) run(ctx context.Context, gen uint64) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	// Any line, heartbeats included, pushes the deadline back.
	idle := time.AfterFunc(c.cfg.IdleTimeout, func() { cancel(ErrStreamIdle) })
	defer idle.Stop()

	err := c.stream(ctx, gen, func() { idle.Reset(c.cfg.IdleTimeout) })
	if cause := context.Cause(ctx); errors.Is(cause, ErrStreamIdle) {
		return cause
	}
	return err
}

func (c *Client) stream(ctx context.Context, gen uint64, touch func()) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, StreamURL(c.cfg.BaseURL, c.cfg.SessionID, c.cfg.Token), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("connect: unexpected status %d", resp.StatusCode)
	}
	return c.read(resp.Body, gen, touch)
}

// read parses "event:" and "data:" lines into frames and dispatches each on a blank line.
func (c *Client) read(body io.Reader, gen uint64, touch func()) error {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)
	var kind string
	var data []string
	first := true
	for sc.Scan() {
		touch()
		if first {
			first = false
			if !c.connected(gen) {
				return nil
			}
		}
		line := sc.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				if !c.dispatch(gen, kind, strings.Join(data, "\n")) {
					return nil
				}
			}
			kind, data = "", nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			kind = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (c *Client) connected(gen uint64) bool {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return false
	}
	c.backoff.Reset()
	changed := c.setStateLocked(StateConnected)
	c.mu.Unlock()
	if changed {
		c.cfg.Observer.StateChanged(StateConnected)
	}
	return true
}

func (c *Client) dispatch(gen uint64, kind, data string) bool {
	c.mu.Lock()
	current := gen == c.gen && !c.closed
	c.mu.Unlock()
	if !current {
		return false
	}
	ev, err := events.Decode(kind, []byte(data))
	switch {
	case errors.Is(err, events.ErrUnknownKind):
		c.cfg.Logger.Debug("ignoring unknown event", zap.String("event", kind))
	case err != nil:
		c.cfg.Logger.Warn("dropping malformed event", zap.String("event", kind), zap.Error(err))
	default:
		c.cfg.OnEvent(ev)
	}
	return true
}

// fail moves through error to disconnected and schedules exactly one reconnect,
// unless the attempt is stale or the client was closed.
func (c *Client) fail(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	c.cancel = nil
	c.setStateLocked(StateError)
	c.setStateLocked(StateDisconnected)
	delay := c.backoff.Next()
	attempt := c.backoff.Attempt()
	c.timer = c.after(delay, c.connect)
	c.mu.Unlock()

	c.cfg.Logger.Info("stream lost; reconnect scheduled",
		zap.String("session_id", c.cfg.SessionID.String()), zap.Duration("delay", delay), zap.Int("attempt", attempt), zap.Error(err))
	c.cfg.Observer.StateChanged(StateError)
	c.cfg.Observer.StateChanged(StateDisconnected)
	c.cfg.Observer.ReconnectScheduled(attempt, delay)
}

func (c *Client) setStateLocked(s ConnectionState) bool {
	if c.state == s {
		return false
	}
	c.state = s
	return true
}
