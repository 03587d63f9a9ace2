package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shopease/auth-service/internal/domain/entity"
	"github.com/shopease/auth-service/internal/domain/repository"
	"github.com/shopease/auth-service/pkg/helpers"
	"github.com/shopease/auth-service/pkg/response"
)

// Context keys set by Auth for downstream handlers.
const (
	CtxUserIDKey    = "userID"
	CtxUserRoleKey  = "userRole"
	CtxUserEmailKey = "userEmail"
	CtxUserKey      = "authUser"
)

const bearerPrefix = "Bearer "

// Auth is the single gate in front of every protected route. It reads the
// bearer token from the Authorization header, verifies it, then re-fetches
// the account from the store. Tokens outlive account deletion, so the
// re-fetch is what keeps orphaned tokens out.
func Auth(users repository.UserRepository, jwt *helpers.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, bearerPrefix) {
			response.Error[any](c, http.StatusUnauthorized, "Authentication required. Please log in.", nil)
			c.Abort()
			return
		}

		claims, err := jwt.Parse(strings.TrimPrefix(header, bearerPrefix))
		if err != nil {
			msg := "Invalid token. Please log in again."
			if errors.Is(err, helpers.ErrTokenExpired) {
				msg = "Token expired. Please log in again."
			}
			response.Error[any](c, http.StatusUnauthorized, msg, nil)
			c.Abort()
			return
		}

		u, err := users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				response.Error[any](c, http.StatusUnauthorized, "User not found or token is invalid.", nil)
			} else {
				response.Error[any](c, http.StatusInternalServerError, "Authentication failed. Please try again later.", nil)
			}
			c.Abort()
			return
		}

		c.Set(CtxUserIDKey, u.ID)
		c.Set(CtxUserRoleKey, u.Role)
		c.Set(CtxUserEmailKey, u.Email)
		c.Set(CtxUserKey, u)
		c.Next()
	}
}

// RequireRoles restricts a route group to the given roles. It must run after
// Auth.
func RequireRoles(roles ...entity.Role) gin.HandlerFunc {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	required := strings.Join(names, " or ")

	return func(c *gin.Context) {
		v, ok := c.Get(CtxUserRoleKey)
		if !ok {
			response.Error[any](c, http.StatusUnauthorized, "Authentication required. Please log in.", nil)
			c.Abort()
			return
		}
		role, _ := v.(entity.Role)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		response.Error[any](c, http.StatusForbidden, "This resource requires "+required+" access.", nil)
		c.Abort()
	}
}

// AuthUser returns the account attached by Auth.
func AuthUser(c *gin.Context) (*entity.User, bool) {
	v, ok := c.Get(CtxUserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*entity.User)
	return u, ok
}
