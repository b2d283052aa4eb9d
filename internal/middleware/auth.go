// internal/middleware/auth.go
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"expense-tracker/internal/auth"
	"expense-tracker/internal/domain"

	"github.com/gin-gonic/gin"
)

const (
	UserIDKey = "user_id"
	RoleKey   = "role"
)

// UserLookup confirms that the account behind a token still exists.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

type AuthMiddleware struct {
	tokenService *auth.TokenService
	users        UserLookup
}

func NewAuthMiddleware(ts *auth.TokenService, users UserLookup) *AuthMiddleware {
	return &AuthMiddleware{tokenService: ts, users: users}
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "Not authorized")
			return
		}

		tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenStr == "" {
			abort(c, http.StatusUnauthorized, "Invalid Authorization header format")
			return
		}

		claims, err := m.tokenService.ParseToken(tokenStr)
		if err != nil {
			slog.Debug("Token rejected", "error", err)
			abort(c, http.StatusUnauthorized, "Invalid token")
			return
		}

		role := claims.Role
		if m.users != nil {
			u, err := m.users.GetUserByID(c.Request.Context(), claims.UserID)
			if errors.Is(err, domain.ErrNotFound) {
				abort(c, http.StatusUnauthorized, "User not found")
				return
			}
			if err != nil {
				slog.Error("Failed to load user for token", "user_id", claims.UserID, "error", err)
				abort(c, http.StatusInternalServerError, "Internal server error")
				return
			}
			// the stored role wins over a stale token
			role = u.Role
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(RoleKey, role)
		c.Next()
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentRole(c) != role {
			abort(c, http.StatusForbidden, "Access denied")
			return
		}
		c.Next()
	}
}

func CurrentUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

func CurrentRole(c *gin.Context) domain.Role {
	v, _ := c.Get(RoleKey)
	role, _ := v.(domain.Role)
	return role
}
