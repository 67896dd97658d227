package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSendBuffer is the number of frames a stream may lag behind before it is dropped.
const DefaultSendBuffer = 64

var (
	// ErrConnClosed is returned by Send after Close.
	ErrConnClosed = errors.New("connection closed")
	// ErrSlowConsumer is returned by Send when the send queue is full.
	ErrSlowConsumer = errors.New("send queue full")
)

// StreamConn is a Conn backed by a bounded frame queue drained by the HTTP handler.
type StreamConn struct {
	id          string
	adminID     uuid.UUID
	connectedAt time.Time
	send        chan []byte
	done        chan struct{}
	once        sync.Once
}

// NewStreamConn creates a connection with the given queue size.
func NewStreamConn(adminID uuid.UUID, buffer int) *StreamConn {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &StreamConn{
		id:          uuid.NewString(),
		adminID:     adminID,
		connectedAt: time.Now().UTC(),
		send:        make(chan []byte, buffer),
		done:        make(chan struct{}),
	}
}

func (c *StreamConn) ID() string             { return c.id }
func (c *StreamConn) AdminID() uuid.UUID     { return c.adminID }
func (c *StreamConn) ConnectedAt() time.Time { return c.connectedAt }

// Frames is drained by the writer.
func (c *StreamConn) Frames() <-chan []byte { return c.send }

// Done is closed once the connection is closed.
func (c *StreamConn) Done() <-chan struct{} { return c.done }

// Send queues frame without blocking.
func (c *StreamConn) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Close marks the connection closed. The send channel is never closed so late Sends cannot panic.
func (c *StreamConn) Close() {
	c.once.Do(func() { close(c.done) })
}
