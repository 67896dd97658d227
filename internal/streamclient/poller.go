package streamclient

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval is used when neither the server nor the caller names one.
const DefaultPollInterval = 5 * time.Second

// Poller is the fallback Subscriber for deployments without streaming. It fetches a snapshot
// every interval and emits it as a Snapshot event, backing off on failures like Client does.
type Poller struct {
	cfg     Config
	fetch   SnapshotFetcher
	after   afterFunc
	timeout time.Duration

	mu      sync.Mutex
	state   ConnectionState
	backoff *Backoff
	gen     uint64
	closed  bool
	cancel  context.CancelFunc
	timer   timer
}

// NewPoller creates a polling subscriber.
func NewPoller(cfg Config, fetch SnapshotFetcher) *Poller {
	cfg.defaults()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Poller{
		cfg:     cfg,
		fetch:   fetch,
		after:   realAfterFunc,
		timeout: 10 * time.Second,
		backoff: NewBackoff(cfg.InitialDelay, cfg.MaxDelay),
	}
}

// Start performs the first fetch.
func (p *Poller) Start() { p.poll() }

// State returns the current connection state.
func (p *Poller) State() ConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Close stops polling; no fetch is scheduled after it returns.
func (p *Poller) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	changed := p.set(StateDisconnected)
	p.mu.Unlock()
	if changed {
		p.cfg.Observer.StateChanged(StateDisconnected)
	}
}

func (p *Poller) poll() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.gen++
	gen := p.gen
	p.timer = nil
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	p.cancel = cancel
	var changed bool
	if p.state != StateConnected {
		changed = p.set(StateConnecting)
	}
	p.mu.Unlock()
	if changed {
		p.cfg.Observer.StateChanged(StateConnecting)
	}

	go func() {
		defer cancel()
		snap, err := p.fetch.Snapshot(ctx, p.cfg.SessionID)

		p.mu.Lock()
		if gen != p.gen || p.closed {
			p.mu.Unlock()
			return
		}
		p.cancel = nil
		if err == nil {
			p.backoff.Reset()
			changed := p.set(StateConnected)
			p.timer = p.after(p.cfg.PollInterval, p.poll)
			p.mu.Unlock()
			if changed {
				p.cfg.Observer.StateChanged(StateConnected)
			}
			p.cfg.OnEvent(snap)
			return
		}
		p.set(StateError)
		p.set(StateDisconnected)
		delay := p.backoff.Next()
		attempt := p.backoff.Attempt()
		p.timer = p.after(delay, p.poll)
		p.mu.Unlock()

		p.cfg.Logger.Info("snapshot poll failed; retry scheduled",
			zap.String("session_id", p.cfg.SessionID.String()), zap.Duration("delay", delay), zap.Error(err))
		p.cfg.Observer.StateChanged(StateError)
		p.cfg.Observer.StateChanged(StateDisconnected)
		p.cfg.Observer.ReconnectScheduled(attempt, delay)
	}()
}

func (p *Poller) set(s ConnectionState) bool {
	if p.state == s {
		return false
	}
	p.state = s
	return true
}
