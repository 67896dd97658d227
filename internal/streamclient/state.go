package streamclient

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aura-pulse/backend/internal/events"
)

// ConnectionState drives reconnection and the status indicator.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Observer is told about state transitions and scheduled reconnects. Calls are made from the
// subscriber's goroutines, one at a time, never under its lock.
type Observer interface {
	StateChanged(s ConnectionState)
	ReconnectScheduled(attempt int, delay time.Duration)
}

// Handler receives every decoded event.
type Handler func(ev events.Event)

// Subscriber delivers a session's events until closed. Close is final.
type Subscriber interface {
	Start()
	State() ConnectionState
	Close()
}

// timer is the part of *time.Timer the subscribers use, so tests can schedule by hand.
type timer interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) timer

func realAfterFunc(d time.Duration, f func()) timer { return time.AfterFunc(d, f) }

type nopObserver struct{}

func (nopObserver) StateChanged(ConnectionState)          {}
func (nopObserver) ReconnectScheduled(int, time.Duration) {}

// SnapshotFetcher loads the full state of a session.
type SnapshotFetcher interface {
	Snapshot(ctx context.Context, sessionID uuid.UUID) (events.Snapshot, error)
}
