package ratelimit

import (
	"context"
	"time"

	"github.com/aman-churiwal/api-guard/internal/cache"
)

// CachedEngine wraps the engine with a short-TTL result cache so bursty
// traffic does not hammer the counter store. Within the TTL a request is
// answered from the cached verdict: remaining is decremented locally and
// the reset/retry clocks decay with elapsed time. The store sees one
// authoritative check per entry lifetime, carrying the locally served hits
// as a batch increment, an intentional accuracy versus throughput
// trade-off: between checks the persisted count lags, and hits on an entry
// that expires before its quota runs out are never persisted.
type CachedEngine struct {
	engine *Engine
	ttl    time.Duration
	cache  *cache.TTL[cachedResult]
	now    func() time.Time
}

type cachedResult struct {
	result   Result
	storedAt time.Time
	hits     int // allowed requests served from this entry since storedAt
}

func NewCachedEngine(engine *Engine, ttl time.Duration) *CachedEngine {
	return &CachedEngine{
		engine: engine,
		ttl:    ttl,
		cache:  cache.NewTTL[cachedResult](ttl),
		now:    time.Now,
	}
}

// WithClock overrides the time source used for extrapolation. The cache's
// own TTL expiry stays on wall-clock time.
func (c *CachedEngine) WithClock(now func() time.Time) *CachedEngine {
	c.now = now
	return c
}

// Check returns the engine's verdict, served from cache when fresh. Cache
// hits never touch the store.
func (c *CachedEngine) Check(ctx context.Context, req Request) (Result, error) {
	key := c.cacheKey(req)

	var derived Result
	stale := false
	cost := 1
	hit := c.cache.Mutate(key, func(v *cachedResult) {
		elapsed := c.now().Sub(v.storedAt)

		// Exhausted quota defers to the engine with the locally served hits
		// folded in, so the persisted count catches up and the store sees
		// the request that tips the key over its limit.
		if !v.result.Blocked && v.result.Remaining == 0 {
			stale = true
			if v.result.Allowed {
				cost = v.hits + 1
			}
			return
		}
		// A lapsed block also defers, at unit cost: requests rejected while
		// blocked were never counted.
		if v.result.Blocked && v.result.RetryAfter-elapsed <= 0 {
			stale = true
			return
		}

		if !v.result.Blocked {
			v.result.Remaining--
			v.hits++
		}
		derived = v.result
		derived.Reset = floorDur(v.result.Reset - elapsed)
		if v.result.Blocked {
			derived.RetryAfter = floorDur(v.result.RetryAfter - elapsed)
		}
	})
	if hit && !stale {
		return derived, nil
	}

	result, err := c.engine.checkN(ctx, req, cost)
	if err != nil {
		return result, err
	}

	c.cache.Set(key, cachedResult{result: result, storedAt: c.now()})
	return result, nil
}

// ClearCache drops every cached verdict.
func (c *CachedEngine) ClearCache() {
	c.cache.Purge()
}

// ClearForIdentifier drops cached verdicts for one identifier and returns
// how many entries were removed.
func (c *CachedEngine) ClearForIdentifier(identifier string) int {
	return c.cache.DeletePrefix(identifier + ":")
}

// CleanExpired sweeps expired entries and returns the count removed.
func (c *CachedEngine) CleanExpired() int {
	return c.cache.CleanExpired()
}

func (c *CachedEngine) Size() int {
	return c.cache.Len()
}

// Cache key granularity mirrors the counter bucket: the matched rule's
// endpoint/method (or "_all"), plus the token identity so token and
// anonymous verdicts for the same address never mix.
func (c *CachedEngine) cacheKey(req Request) string {
	endpoint, method := "_all", "_all"
	if rule, ok := MatchRule(c.engine.Rules(), req.Endpoint, req.Method); ok {
		if rule.Endpoint != "" {
			endpoint = rule.Endpoint
		}
		if rule.Method != "" {
			method = rule.Method
		}
	}

	tokenPart := "anon"
	if req.Token != nil {
		tokenPart = req.Token.ID.String()
	}

	return req.Identifier + ":" + endpoint + ":" + method + ":" + tokenPart
}

func floorDur(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
