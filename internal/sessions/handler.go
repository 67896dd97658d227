package sessions

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-pulse/backend/internal/middleware"
	"github.com/aura-pulse/backend/internal/models"
	"github.com/aura-pulse/backend/pkg/response"
)

// CreateRequest is the body for POST /api/sessions.
type CreateRequest struct {
	Name string `json:"name" binding:"required,max=120"`
}

// SetActiveRequest is the body for PATCH /api/sessions/:id/active.
type SetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// EndResult is the data of POST /api/sessions/:id/end.
type EndResult struct {
	IsActive bool       `json:"is_active"`
	EndedAt  *time.Time `json:"ended_at,omitempty"`
}

// SnapshotResponse is the data of GET /api/sessions/:id/snapshot.
type SnapshotResponse struct {
	Session      models.Session       `json:"session"`
	Participants []models.Participant `json:"participants"`
}

// Handler handles session HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a session handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Create handles POST /api/sessions.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	session, err := h.svc.Create(c.Request.Context(), middleware.AdminID(c), req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, session)
}

// List handles GET /api/sessions.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), middleware.AdminID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /api/sessions/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	session, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, session)
}

// GetByCode handles GET /api/sessions/code/:code (public).
func (h *Handler) GetByCode(c *gin.Context) {
	session, err := h.svc.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !session.IsActive {
		response.Conflict(c, "session is not active")
		return
	}
	response.OK(c, gin.H{"id": session.ID, "code": session.Code, "name": session.Name, "is_active": session.IsActive})
}

// SetActive handles PATCH /api/sessions/:id/active.
func (h *Handler) SetActive(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	session, err := h.svc.SetActive(c.Request.Context(), id, *req.IsActive)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, session)
}

// End handles POST /api/sessions/:id/end.
func (h *Handler) End(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	session, err := h.svc.End(c.Request.Context(), id, middleware.AdminID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, EndResult{IsActive: session.IsActive, EndedAt: session.EndedAt})
}

// Delete handles DELETE /api/sessions/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"deleted": id})
}

// RemoveParticipant handles DELETE /api/sessions/:id/participants/:pid.
func (h *Handler) RemoveParticipant(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	pid, err := uuid.Parse(c.Param("pid"))
	if err != nil {
		response.BadRequest(c, "invalid participant id")
		return
	}
	if err := h.svc.RemoveParticipant(c.Request.Context(), id, pid); err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"removed": pid})
}

// Snapshot handles GET /api/sessions/:id/snapshot.
func (h *Handler) Snapshot(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	session, participants, err := h.svc.Snapshot(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, SnapshotResponse{Session: *session, Participants: participants})
}

// Viewer aborts unless the caller may read the :id session: its creator or an observer.
func (h *Handler) Viewer() gin.HandlerFunc { return h.access(false) }

// Owner aborts unless the caller created the :id session.
func (h *Handler) Owner() gin.HandlerFunc { return h.access(true) }

func (h *Handler) access(manage bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := sessionID(c)
		if !ok {
			c.Abort()
			return
		}
		session, err := h.svc.Get(c.Request.Context(), id)
		if err != nil {
			h.writeError(c, err)
			c.Abort()
			return
		}
		adminID := middleware.AdminID(c)
		allowed, msg := session.CanView(adminID, middleware.AdminRole(c)), "not allowed to view this session"
		if manage {
			allowed, msg = session.CanManage(adminID), "only the creator can manage this session"
		}
		if !allowed {
			h.logger.Warn("session access denied", zap.String("session_id", id.String()), zap.String("admin_id", adminID.String()))
			response.Abort(c, http.StatusForbidden, msg)
			return
		}
		c.Next()
	}
}

func sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		response.NotFound(c, "session not found")
	case errors.Is(err, models.ErrParticipantNotFound):
		response.NotFound(c, "participant not found")
	case errors.Is(err, models.ErrSessionInactive):
		response.Conflict(c, "session has ended")
	case errors.Is(err, models.ErrForbidden):
		response.Forbidden(c, "not allowed for this session")
	case errors.Is(err, models.ErrCodeTaken):
		response.ServiceUnavailable(c, "could not allocate a session code, try again")
	default:
		h.logger.Error("session request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.Internal(c, "request failed")
	}
}
