package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-pulse/backend/internal/events"
	"github.com/aura-pulse/backend/internal/models"
	"github.com/aura-pulse/backend/pkg/response"
)

// SnapshotSource loads the current session state used to prime a new stream.
type SnapshotSource interface {
	Snapshot(ctx context.Context, sessionID uuid.UUID) (*models.Session, []models.Participant, error)
}

// TokenValidator validates an admin token and returns the admin id and role.
type TokenValidator func(token string) (uuid.UUID, models.Role, error)

// StreamHandler serves GET /api/sessions/:id/stream as Server-Sent Events.
type StreamHandler struct {
	hub        *Hub
	source     SnapshotSource
	validate   TokenValidator
	sendBuffer int
	logger     *zap.Logger
}

// NewStreamHandler creates the SSE handler.
func NewStreamHandler(hub *Hub, source SnapshotSource, validate TokenValidator, sendBuffer int, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{hub: hub, source: source, validate: validate, sendBuffer: sendBuffer, logger: logger}
}

// Serve authenticates via ?token= or the Authorization header (EventSource cannot set headers),
// primes the stream with connected + snapshot, then relays broadcasts until the client goes away.
func (h *StreamHandler) Serve(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	adminID, role, err := h.validate(token)
	if token == "" || err != nil {
		response.Unauthorized(c, "invalid or expired token")
		return
	}

	ctx := c.Request.Context()
	conn := NewStreamConn(adminID, h.sendBuffer)
	prime := func() error {
		session, participants, err := h.source.Snapshot(ctx, sessionID)
		if err != nil {
			return err
		}
		if !session.CanView(adminID, role) {
			return models.ErrForbidden
		}
		for _, ev := range []events.Event{
			events.Connected{SessionID: sessionID, ConnectionID: conn.ID()},
			events.Snapshot{SessionID: sessionID, State: *session, Participants: participants},
		} {
			frame, err := events.Encode(ev)
			if err != nil {
				return err
			}
			if err := conn.Send(frame); err != nil {
				return err
			}
		}
		return nil
	}
	if err := h.hub.Register(sessionID, conn, prime); err != nil {
		switch {
		case errors.Is(err, models.ErrSessionNotFound):
			response.NotFound(c, "session not found")
		case errors.Is(err, models.ErrForbidden):
			response.Forbidden(c, "not allowed to watch this session")
		case errors.Is(err, ErrTooManyConnections):
			response.ServiceUnavailable(c, "too many viewers for this session")
		default:
			h.logger.Error("prime stream", zap.String("session_id", sessionID.String()), zap.Error(err))
			response.Internal(c, "failed to open stream")
		}
		return
	}
	defer func() {
		h.hub.Unregister(sessionID, conn)
		conn.Close()
	}()

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			return
		case frame := <-conn.Frames():
			if _, err := w.Write(frame); err != nil {
				h.logger.Debug("stream write", zap.String("conn_id", conn.ID()), zap.Error(err))
				return
			}
			w.Flush()
		}
	}
}

// Capabilities is the body of GET /api/sessions/:id/capabilities.
type Capabilities struct {
	Streaming      bool `json:"streaming"`
	PollIntervalMs int  `json:"poll_interval_ms"`
}

// CapabilitiesHandler reports whether this deployment serves the event stream.
func CapabilitiesHandler(streaming bool, pollIntervalMs int) gin.HandlerFunc {
	return func(c *gin.Context) {
		response.OK(c, Capabilities{Streaming: streaming, PollIntervalMs: pollIntervalMs})
	}
}
