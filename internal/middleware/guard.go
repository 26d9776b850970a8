package middleware

import (
	"net/http"
	"strconv"

	"github.com/aman-churiwal/api-guard/internal/models"
	"github.com/aman-churiwal/api-guard/internal/ratelimit"
	"github.com/aman-churiwal/api-guard/internal/service"
	"github.com/gin-gonic/gin"
)

const tokenContextKey = "api_token"

// Guard is the admission gate every API request passes through: bearer
// token authorization when an Authorization header is present, then the
// cached rate limit check keyed on the token identity (or client address
// for anonymous traffic). Quota headers are attached before the verdict so
// allowed and rejected responses both carry them.
func Guard(tokens *service.TokenService, limiter *ratelimit.CachedEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var token *models.ApiToken

		if c.GetHeader("Authorization") != "" {
			validated, err := tokens.ValidateRequest(c.Request.Context(), c.Request)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{
					"error": "Invalid API token",
				})
				c.Abort()
				return
			}
			token = validated
			c.Set(tokenContextKey, token)
		}

		identifier := c.ClientIP()
		if token != nil {
			identifier = "token:" + token.ID.String()
		}

		result, err := limiter.Check(c.Request.Context(), ratelimit.Request{
			Identifier: identifier,
			Token:      token,
			Endpoint:   c.Request.URL.Path,
			Method:     c.Request.Method,
		})
		if err != nil {
			// The engine absorbs store failures via its policy; an error
			// here is unexpected, favor availability.
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(result.Reset.Seconds())))

		if !result.Allowed {
			retryAfter := int(result.RetryAfter.Seconds())
			if !result.Blocked && retryAfter == 0 {
				retryAfter = int(result.Reset.Seconds())
			}

			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":      "Too Many Requests",
				"message":    "Rate limit exceeded",
				"retryAfter": retryAfter,
			})
			c.Abort()

			tokens.RecordUsage(token, c.Request.URL.Path, c.Request.Method, http.StatusTooManyRequests, c.ClientIP(), c.Request.UserAgent())
			return
		}

		c.Next()

		tokens.RecordUsage(token, c.Request.URL.Path, c.Request.Method, c.Writer.Status(), c.ClientIP(), c.Request.UserAgent())
	}
}

// TokenFromContext returns the validated token the guard stored, if any.
func TokenFromContext(c *gin.Context) *models.ApiToken {
	value, exists := c.Get(tokenContextKey)
	if !exists {
		return nil
	}

	token, ok := value.(*models.ApiToken)
	if !ok {
		return nil
	}

	return token
}
