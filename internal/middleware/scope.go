package middleware

import (
	"net/http"
	"strings"

	"github.com/aman-churiwal/api-guard/internal/service"
	"github.com/gin-gonic/gin"
)

// RequireScopes rejects requests whose token does not hold every listed
// scope. Must run after Guard. A missing token is an authentication
// failure (401, generic message); a valid token lacking a scope is an
// authorization failure and the 403 names what was required.
func RequireScopes(scopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromContext(c)
		if token == nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid API token",
			})
			c.Abort()
			return
		}

		if !service.CheckAllScopes(token, scopes) {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "Insufficient scope",
				"message": "required scope(s): " + strings.Join(scopes, ", "),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
