package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pedjoni/idiorag/internal/auth"
	"go.uber.org/zap"
)

const userKey = "idiorag.user"

// TokenAuthenticator validates a bearer token.
type TokenAuthenticator interface {
	Authenticate(token string) (*auth.User, error)
}

// Auth returns a JWT bearer authentication middleware. The authenticated
// user is available to handlers through CurrentUser.
func Auth(authenticator TokenAuthenticator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		user, err := authenticator.Authenticate(strings.TrimSpace(token))
		if err != nil {
			logger.Warn("Authentication failed", zap.String("path", c.FullPath()), zap.Error(err))
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// CurrentUser returns the user set by Auth, or nil.
func CurrentUser(c *gin.Context) *auth.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*auth.User); ok {
			return u
		}
	}
	return nil
}

// OwnerID returns the authenticated user's id, or "".
func OwnerID(c *gin.Context) string {
	if u := CurrentUser(c); u != nil {
		return u.ID
	}
	return ""
}
