package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/simulive/backend/internal/auth"
	"github.com/simulive/backend/pkg/response"
)

// ContextUserID is the gin context key holding the authenticated host's user id.
const ContextUserID = "user_id"

// OptionalJWT sets ContextUserID when a valid Bearer token is presented. Requests
// without an Authorization header pass through anonymously; a bad token is rejected.
func OptionalJWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || scheme != "Bearer" || token == "" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Next()
	}
}

// UserID returns the authenticated user id, "" for anonymous requests.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
