package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qianniu/llmbot/internal/auth"
	"github.com/qianniu/llmbot/internal/common"
)

const identityKey = "identity"

// AuthRequired parses the bearer token and stores the caller identity
// in the request context. Missing, expired, or forged tokens abort
// with 401.
func AuthRequired(issuer *auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, 40101, "missing bearer token")
			c.Abort()
			return
		}
		ident, err := issuer.Parse(token)
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, 40102, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(identityKey, ident)
		c.Next()
	}
}

// AdminRequired gates admin endpoints. Must run after AuthRequired.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := Identity(c)
		if !ok || ident.Role != "ROLE_ADMIN" {
			common.Fail(c, http.StatusForbidden, 40301, "admin privileges required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// Identity fetches the authenticated caller from the request context.
func Identity(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	ident, ok := v.(auth.Identity)
	return ident, ok
}
