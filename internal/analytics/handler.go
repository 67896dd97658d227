package analytics

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-pulse/backend/internal/models"
	"github.com/aura-pulse/backend/pkg/response"
)

// SnapshotSource loads a session with all of its participants.
type SnapshotSource interface {
	Snapshot(ctx context.Context, sessionID uuid.UUID) (*models.Session, []models.Participant, error)
}

// Handler handles GET /api/sessions/:id/analytics.
type Handler struct {
	source     SnapshotSource
	aggregator *Aggregator
}

// NewHandler creates an analytics handler.
func NewHandler(source SnapshotSource, aggregator *Aggregator) *Handler {
	if aggregator == nil {
		aggregator = Default()
	}
	return &Handler{source: source, aggregator: aggregator}
}

// GetBySession handles GET /api/sessions/:id/analytics.
func (h *Handler) GetBySession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	session, participants, err := h.source.Snapshot(c.Request.Context(), id)
	if errors.Is(err, models.ErrSessionNotFound) {
		response.NotFound(c, "session not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load session")
		return
	}
	response.OK(c, h.aggregator.Aggregate(*session, participants))
}
