package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"assessment-backend/internal/shared/auth"
	"assessment-backend/internal/shared/server/respond"
)

const (
	customerIDKey   = "customerId"
	customerNameKey = "customerName"

	// DevIdentityHeader carries a customer uuid directly when dev identity is enabled.
	DevIdentityHeader = "X-Customer-Id"
)

// TokenVerifier verifies bearer tokens.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// Auth resolves the caller's customer uuid from a bearer token, or from the
// dev identity header when allowDevHeader is set.
func Auth(verifier TokenVerifier, allowDevHeader bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header != "" {
			token, ok := strings.CutPrefix(header, "Bearer ")
			token = strings.TrimSpace(token)
			if !ok || token == "" || verifier == nil {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}
			claims, err := verifier.Verify(token)
			if err != nil {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}
			c.Set(customerIDKey, claims.Subject)
			if claims.Name != "" {
				c.Set(customerNameKey, claims.Name)
			}
			c.Next()
			return
		}

		if allowDevHeader {
			if id := strings.TrimSpace(c.GetHeader(DevIdentityHeader)); id != "" {
				c.Set(customerIDKey, id)
				c.Next()
				return
			}
		}
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing identity", nil)
	}
}

// CustomerIDFromContext returns the customer uuid set by Auth.
func CustomerIDFromContext(c *gin.Context) string {
	return contextString(c, customerIDKey)
}

// CustomerNameFromContext returns the display name from the token, if any.
func CustomerNameFromContext(c *gin.Context) string {
	return contextString(c, customerNameKey)
}

func contextString(c *gin.Context, key string) string {
	if c == nil {
		return ""
	}
	if v, ok := c.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
