package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"edustatus/internal/apperr"
)

const sessionKey = "session"

// RequireAuth enforces bearer access tokens and stores the caller's session on the context.
func RequireAuth(tokens *Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			abort(c, http.StatusUnauthorized, apperr.ErrNotAuthenticated)
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := tokens.Parse(tokenStr, UseAccess)
		if err != nil {
			abort(c, http.StatusUnauthorized, apperr.ErrNotAuthenticated)
			return
		}
		c.Set(sessionKey, claims.Session())
		c.Next()
	}
}

// RequireRole rejects sessions without the given role. Must run after RequireAuth.
func RequireRole(role Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := SessionFrom(c)
		if !ok {
			abort(c, http.StatusUnauthorized, apperr.ErrNotAuthenticated)
			return
		}
		if sess.Role != role {
			abort(c, http.StatusForbidden, apperr.ErrForbidden)
			return
		}
		c.Next()
	}
}

// SessionFrom returns the session RequireAuth attached to c.
func SessionFrom(c *gin.Context) (Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return Session{}, false
	}
	sess, ok := v.(Session)
	return sess, ok
}

func abort(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "code": apperr.Kind(err)})
}
