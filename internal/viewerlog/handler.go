package viewerlog

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-pulse/backend/internal/models"
	"github.com/aura-pulse/backend/internal/realtime"
	"github.com/aura-pulse/backend/pkg/response"
)

const hookTimeout = 5 * time.Second

// Store is the persistence used by the handler and hub hooks.
type Store interface {
	LogJoin(ctx context.Context, sessionID uuid.UUID, adminID *uuid.UUID, connectionID string) error
	LogLeave(ctx context.Context, sessionID uuid.UUID, connectionID string) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.ViewerLog, error)
}

// Viewers is the data of GET /api/sessions/:id/viewers.
type Viewers struct {
	Live int                `json:"live"`
	Log  []models.ViewerLog `json:"log"`
}

// Handler handles GET /api/sessions/:id/viewers.
type Handler struct {
	repo Store
	hub  *realtime.Hub
}

// NewHandler creates a viewer log handler.
func NewHandler(repo Store, hub *realtime.Hub) *Handler {
	return &Handler{repo: repo, hub: hub}
}

// GetViewers returns the live connection count on this instance and the connection log.
func (h *Handler) GetViewers(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	list, err := h.repo.ListBySession(c.Request.Context(), sessionID)
	if err != nil {
		response.Internal(c, "failed to list viewers")
		return
	}
	response.OK(c, Viewers{Live: h.hub.ConnectionCount(sessionID), Log: list})
}

// Hooks returns hub callbacks that record stream joins and leaves.
func Hooks(repo Store, logger *zap.Logger) (onJoin, onLeave realtime.ViewerHook) {
	onJoin = func(sessionID uuid.UUID, c realtime.Conn) {
		ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
		defer cancel()
		var adminID *uuid.UUID
		if v, ok := c.(interface{ AdminID() uuid.UUID }); ok {
			id := v.AdminID()
			adminID = &id
		}
		if err := repo.LogJoin(ctx, sessionID, adminID, c.ID()); err != nil {
			logger.Warn("viewer log join", zap.String("session_id", sessionID.String()), zap.Error(err))
		}
	}
	onLeave = func(sessionID uuid.UUID, c realtime.Conn) {
		ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
		defer cancel()
		if err := repo.LogLeave(ctx, sessionID, c.ID()); err != nil {
			logger.Warn("viewer log leave", zap.String("session_id", sessionID.String()), zap.Error(err))
		}
	}
	return onJoin, onLeave
}
