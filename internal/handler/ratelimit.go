package handler

import (
	"net/http"

	"github.com/aman-churiwal/api-guard/internal/ratelimit"
	"github.com/aman-churiwal/api-guard/internal/repository"
	"github.com/gin-gonic/gin"
)

// RateLimitHandler exposes administrative operations on the rate limiter:
// cache inspection and invalidation, and counter inspection per identifier.
type RateLimitHandler struct {
	limiter  *ratelimit.CachedEngine
	counters *repository.CounterRepository
}

func NewRateLimitHandler(limiter *ratelimit.CachedEngine, counters *repository.CounterRepository) *RateLimitHandler {
	return &RateLimitHandler{
		limiter:  limiter,
		counters: counters,
	}
}

func (h *RateLimitHandler) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"entries": h.limiter.Size(),
	})
}

// ClearCache drops cached verdicts. With ?identifier= only that
// identifier's entries go.
func (h *RateLimitHandler) ClearCache(c *gin.Context) {
	identifier := c.Query("identifier")

	if identifier != "" {
		removed := h.limiter.ClearForIdentifier(identifier)
		c.JSON(http.StatusOK, gin.H{
			"message": "Cache cleared for identifier",
			"removed": removed,
		})
		return
	}

	h.limiter.ClearCache()
	c.JSON(http.StatusOK, gin.H{"message": "Cache cleared"})
}

func (h *RateLimitHandler) CleanExpired(c *gin.Context) {
	removed := h.limiter.CleanExpired()
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// Counters lists the persisted counter rows for one identifier.
func (h *RateLimitHandler) Counters(c *gin.Context) {
	identifier := c.Query("identifier")
	if identifier == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identifier query parameter required"})
		return
	}

	ctx := c.Request.Context()
	counters, err := h.counters.FindByIdentifier(ctx, identifier)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, counters)
}
