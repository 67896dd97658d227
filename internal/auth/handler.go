package auth

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-pulse/backend/internal/models"
	"github.com/aura-pulse/backend/pkg/response"
	"github.com/aura-pulse/backend/pkg/utils"
)

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"full_name" binding:"required"`
	Role     string `json:"role"` // optional, defaults to observer
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string             `json:"token"`
	Admin models.AdminPublic `json:"admin"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	repo   AdminStore
	jwt    *JWTService
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(repo AdminStore, jwt *JWTService, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, jwt: jwt, logger: logger}
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	role := models.RoleObserver
	if req.Role != "" {
		role = models.Role(req.Role)
		if !models.ValidRole(role) {
			response.BadRequest(c, "invalid role")
			return
		}
	}

	if _, err := h.repo.GetByEmail(c.Request.Context(), req.Email); err == nil {
		response.Conflict(c, "email already registered")
		return
	} else if !errors.Is(err, models.ErrAdminNotFound) {
		h.logger.Error("lookup admin", zap.Error(err))
		response.Internal(c, "failed to create admin")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if errors.Is(err, utils.ErrPasswordTooShort) {
		response.BadRequest(c, "password must be at least 8 characters")
		return
	}
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}

	admin, err := h.repo.Create(c.Request.Context(), req.Email, hash, req.FullName, role)
	if err != nil {
		h.logger.Error("create admin", zap.Error(err))
		response.Internal(c, "failed to create admin")
		return
	}

	token, err := h.jwt.Generate(admin.ID, admin.Email, string(admin.Role))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	h.logger.Info("admin registered", zap.String("admin_id", admin.ID.String()), zap.String("role", string(admin.Role)))
	response.Created(c, TokenResponse{Token: token, Admin: admin.ToPublic()})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	admin, err := h.repo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Unauthorized(c, "invalid email or password")
		return
	}
	if !utils.CheckPassword(req.Password, admin.Password) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwt.Generate(admin.ID, admin.Email, string(admin.Role))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, TokenResponse{Token: token, Admin: admin.ToPublic()})
}

// Me handles GET /auth/me. It expects the JWT middleware to have set the admin id.
func (h *Handler) Me(c *gin.Context) {
	id, _ := c.Get(ContextAdminID)
	adminID, ok := id.(uuid.UUID)
	if !ok {
		response.Unauthorized(c, "missing admin context")
		return
	}
	admin, err := h.repo.GetByID(c.Request.Context(), adminID)
	if errors.Is(err, models.ErrAdminNotFound) {
		response.NotFound(c, "admin not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load admin")
		return
	}
	response.OK(c, admin.ToPublic())
}
