package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// Logs every request with its admission outcome in view: a 429 here means
// the guard rejected it, not the backing handler. Authorized requests are
// logged under their token identity rather than the client address.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		requestID := c.GetString("request_id")

		caller := c.ClientIP()
		if token := TokenFromContext(c); token != nil {
			caller = "token:" + token.ID.String()
		}

		remaining := c.Writer.Header().Get("X-RateLimit-Remaining")
		if remaining == "" {
			remaining = "-"
		}

		log.Printf("[%s] %s %s - %d - %v - %s - remaining=%s",
			requestID,
			method,
			path,
			status,
			latency,
			caller,
			remaining,
		)
	}
}
