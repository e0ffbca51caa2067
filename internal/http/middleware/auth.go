// README: Firebase bearer-token auth middleware.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"shuttle/internal/infra"
)

const (
	ctxKeyUID   = "caller_uid"
	ctxKeyPhone = "caller_phone"
)

// Auth verifies the Authorization bearer token and records the caller's
// identity on the request context. A nil verifier disables auth entirely,
// which is the local development mode.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	if verifier == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxKeyUID, token.UID)
		c.Set(ctxKeyPhone, token.Phone())
		c.Next()
	}
}

// CallerUID returns the verified Firebase UID, or "" when auth is disabled.
func CallerUID(c *gin.Context) string {
	return c.GetString(ctxKeyUID)
}

// CallerPhone returns the verified phone number claim, or "" when auth is
// disabled or the token carries none.
func CallerPhone(c *gin.Context) string {
	return c.GetString(ctxKeyPhone)
}
