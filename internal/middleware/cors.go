package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// OriginPolicy decides which cross-origin callers are accepted by HTTP and socket endpoints.
type OriginPolicy struct {
	any     bool
	origins map[string]bool
}

// NewOriginPolicy allows only the listed origins in production and any origin otherwise.
func NewOriginPolicy(production bool, allowed []string) OriginPolicy {
	p := OriginPolicy{any: !production, origins: make(map[string]bool)}
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			p.any = true
			continue
		}
		if o != "" {
			p.origins[o] = true
		}
	}
	return p
}

// Allowed reports whether origin may call the API.
func (p OriginPolicy) Allowed(origin string) bool {
	return p.any || p.origins[origin]
}

// CORS returns a middleware that sets CORS headers for origins accepted by policy.
func CORS(policy OriginPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && policy.Allowed(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Max-Age", "86400")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
