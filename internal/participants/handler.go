package participants

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-pulse/backend/internal/models"
	"github.com/aura-pulse/backend/pkg/response"
)

// JoinRequest is the body for POST /api/sessions/join.
type JoinRequest struct {
	Code   string `json:"code" binding:"required"`
	Name   string `json:"name" binding:"required,max=80"`
	Cohort string `json:"cohort"`
}

// AnswerRequest is the body for PUT /api/participants/:id/answers/:index.
type AnswerRequest struct {
	Choice *int   `json:"choice"`
	Text   string `json:"text" binding:"max=500"`
}

// Handler handles participant HTTP endpoints. They are public: participants have no accounts.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a participant handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Join handles POST /api/sessions/join.
func (h *Handler) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p, err := h.svc.Join(c.Request.Context(), req.Code, req.Name, req.Cohort)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, p)
}

// SaveAnswer handles PUT /api/participants/:id/answers/:index.
func (h *Handler) SaveAnswer(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid participant id")
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		response.BadRequest(c, "invalid question index")
		return
	}
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Choice == nil && req.Text == "" {
		response.BadRequest(c, "choice or text required")
		return
	}
	p, err := h.svc.SaveAnswer(c.Request.Context(), id, index, models.Answer{Choice: req.Choice, Text: req.Text})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, p)
}

// Complete handles POST /api/participants/:id/complete.
func (h *Handler) Complete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid participant id")
		return
	}
	p, err := h.svc.Complete(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, p)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		response.NotFound(c, "session not found")
	case errors.Is(err, models.ErrParticipantNotFound):
		response.NotFound(c, "participant not found")
	case errors.Is(err, models.ErrSessionInactive):
		response.Conflict(c, "session is not active")
	case errors.Is(err, models.ErrAlreadyCompleted):
		response.Conflict(c, "participant already completed")
	case errors.Is(err, models.ErrInvalidCohort):
		response.BadRequest(c, "invalid cohort")
	default:
		h.logger.Error("participant request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.Internal(c, "request failed")
	}
}
