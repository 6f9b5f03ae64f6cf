// internal/devapi/middleware/auth.go
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/eid-storefront/internal/pkg/auth"
)

// SessionExpiredMessage is returned when a newer login replaced the session
const SessionExpiredMessage = "Session expired due to new login"

// Context keys set by the auth middleware
const (
	UserIDKey = "user_id"
	EmailKey  = "user_email"
	RoleKey   = "user_role"
)

// Sessions reports the current login counter of an account
type Sessions interface {
	SessionVersion(userID string) (int, bool)
}

// AuthMiddleware creates JWT authentication middleware
func AuthMiddleware(jwtManager *auth.JWTManager, sessions Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "Authorization header required")
			return
		}

		tokenString := auth.ExtractTokenFromHeader(authHeader)
		if tokenString == "" {
			abort(c, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		claims, err := jwtManager.ValidateAccessToken(tokenString)
		if err != nil {
			abort(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		current, ok := sessions.SessionVersion(claims.UserID)
		if !ok {
			abort(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		if current != claims.Session {
			abort(c, http.StatusUnauthorized, SessionExpiredMessage)
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(EmailKey, claims.Email)
		c.Set(RoleKey, claims.Role)

		c.Next()
	}
}

// OptionalAuthMiddleware lets anonymous requests through. A request that
// does carry a token is held to the same rules as AuthMiddleware so a stale
// token still gets a 401 the client can refresh on.
func OptionalAuthMiddleware(jwtManager *auth.JWTManager, sessions Sessions) gin.HandlerFunc {
	required := AuthMiddleware(jwtManager, sessions)
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		required(c)
	}
}

// AdminMiddleware ensures the user is an admin
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(UserIDKey); !exists {
			abort(c, http.StatusUnauthorized, "Authentication required")
			return
		}
		if !IsAdminFromContext(c) {
			abort(c, http.StatusForbidden, "Admin access required")
			return
		}
		c.Next()
	}
}

// GetUserIDFromContext extracts user ID from gin context
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	id := c.GetString(UserIDKey)
	return id, id != ""
}

// IsAdminFromContext checks if user is admin from gin context
func IsAdminFromContext(c *gin.Context) bool {
	return c.GetString(RoleKey) == "ADMIN"
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"message": message,
	})
}
