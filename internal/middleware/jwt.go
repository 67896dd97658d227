package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-pulse/backend/internal/auth"
	"github.com/aura-pulse/backend/internal/models"
	"github.com/aura-pulse/backend/pkg/response"
)

const (
	// ContextAdminID is the key for admin ID in gin context.
	ContextAdminID = auth.ContextAdminID
	// ContextAdminRole is the key for admin role in gin context.
	ContextAdminRole = auth.ContextAdminRole
	// ContextAdminEmail is the key for admin email in gin context.
	ContextAdminEmail = auth.ContextAdminEmail
)

// JWT returns a middleware that validates JWT and sets admin claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Abort(c, http.StatusUnauthorized, "missing authorization header")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Abort(c, http.StatusUnauthorized, "invalid authorization header")
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		c.Set(ContextAdminID, claims.AdminID)
		c.Set(ContextAdminRole, claims.Role)
		c.Set(ContextAdminEmail, claims.Email)
		c.Next()
	}
}

// AdminID returns the authenticated admin id, or uuid.Nil outside the JWT middleware.
func AdminID(c *gin.Context) uuid.UUID {
	v, _ := c.Get(ContextAdminID)
	id, _ := v.(uuid.UUID)
	return id
}

// AdminRole returns the authenticated admin's role, or "" outside the JWT middleware.
func AdminRole(c *gin.Context) models.Role {
	v, _ := c.Get(ContextAdminRole)
	role, _ := v.(string)
	return models.Role(role)
}
