package ratelimit

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/aman-churiwal/api-guard/internal/circuitbreaker"
	"github.com/aman-churiwal/api-guard/internal/models"
)

// FailurePolicy decides what happens when the counter store is unreachable.
type FailurePolicy int

const (
	// FailOpen lets the request through when the store is down.
	FailOpen FailurePolicy = iota

	// FailClosed rejects the request when the store is down.
	FailClosed
)

func PolicyFromString(s string) FailurePolicy {
	if s == "closed" {
		return FailClosed
	}
	return FailOpen
}

// Limit granted by the unreachable-in-practice no-rule fallback.
const permissiveLimit = 1000000

// Engine applies the matched rule to the persisted counter state. It is
// safe for concurrent use; the store's upsert is the only shared write.
type Engine struct {
	store   CounterStore
	rules   []Rule
	policy  FailurePolicy
	breaker *circuitbreaker.CircuitBreaker
	now     func() time.Time
}

func NewEngine(store CounterStore, rules []Rule, policy FailurePolicy, breaker *circuitbreaker.CircuitBreaker) *Engine {
	return &Engine{
		store:   store,
		rules:   rules,
		policy:  policy,
		breaker: breaker,
		now:     time.Now,
	}
}

// WithClock overrides the engine's time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) Rules() []Rule {
	return e.rules
}

// Check runs one request through the matched rule. Store failures never
// surface as errors; the configured failure policy decides the verdict.
func (e *Engine) Check(ctx context.Context, req Request) (Result, error) {
	return e.checkN(ctx, req, 1)
}

// checkN counts the request with the given cost. The result cache uses
// cost > 1 to fold in requests it answered locally since the last
// authoritative check, so the persisted count catches up the moment the
// cached quota runs out.
func (e *Engine) checkN(ctx context.Context, req Request, cost int) (Result, error) {
	if cost < 1 {
		cost = 1
	}
	rule, ok := MatchRule(e.rules, req.Endpoint, req.Method)
	if !ok {
		// Unreachable with a validated config. Favor availability.
		log.Printf("ratelimit: no rule matched %s %s for %s, allowing", req.Method, req.Endpoint, req.Identifier)
		return Result{
			Allowed:   true,
			Limit:     permissiveLimit,
			Remaining: permissiveLimit - 1,
			Reset:     time.Minute,
		}, nil
	}

	limit, window := rule.Limit, rule.Window
	if req.Token != nil && rule.TokenLimit > 0 {
		limit, window = rule.TokenLimit, rule.TokenWindow
	}

	key := CounterKey{
		Identifier: req.Identifier,
		Endpoint:   rule.Endpoint,
		Method:     rule.Method,
	}

	var counter *models.RateLimitCounter
	err := e.callStore(func() error {
		var gerr error
		counter, gerr = e.store.Get(ctx, key)
		return gerr
	})
	if err != nil {
		return e.storeFailure(limit, window, err), nil
	}

	now := e.now()

	// An active block short-circuits: counting does not advance and the
	// record is not rewritten.
	if counter != nil && counter.BlockedUntil != nil && counter.BlockedUntil.After(now) {
		return Result{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			Reset:      ceilSeconds(counter.ResetAt.Sub(now)),
			Blocked:    true,
			RetryAfter: ceilSeconds(counter.BlockedUntil.Sub(now)),
		}, nil
	}

	switch {
	case counter == nil:
		counter = &models.RateLimitCounter{
			Identifier: key.Identifier,
			Endpoint:   key.Endpoint,
			Method:     key.Method,
			Count:      cost,
			ResetAt:    now.Add(window),
		}
	case !now.Before(counter.ResetAt):
		counter.Count = cost
		counter.ResetAt = now.Add(window)
		counter.BlockedUntil = nil
	default:
		counter.Count += cost
		if counter.BlockedUntil != nil {
			// Expired block, clear before counting resumes.
			counter.BlockedUntil = nil
		}
	}

	exceeded := counter.Count > limit
	if exceeded && rule.BlockFor > 0 {
		until := now.Add(rule.BlockFor)
		counter.BlockedUntil = &until
	}
	counter.UpdatedAt = now

	if err := e.callStore(func() error { return e.store.Upsert(ctx, counter) }); err != nil {
		return e.storeFailure(limit, window, err), nil
	}

	result := Result{
		Allowed:   !exceeded,
		Limit:     limit,
		Remaining: maxInt(0, limit-counter.Count),
		Reset:     ceilSeconds(counter.ResetAt.Sub(now)),
		Blocked:   counter.BlockedUntil != nil,
	}
	if counter.BlockedUntil != nil {
		result.RetryAfter = ceilSeconds(counter.BlockedUntil.Sub(now))
	} else if exceeded {
		result.RetryAfter = result.Reset
	}

	return result, nil
}

func (e *Engine) callStore(fn func() error) error {
	if e.breaker == nil {
		return fn()
	}
	return e.breaker.Call(fn)
}

func (e *Engine) storeFailure(limit int, window time.Duration, err error) Result {
	if e.policy == FailClosed {
		log.Printf("ratelimit: counter store unavailable, rejecting (fail-closed): %v", err)
		return Result{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			Reset:      ceilSeconds(window),
			RetryAfter: ceilSeconds(window),
		}
	}

	log.Printf("ratelimit: counter store unavailable, allowing (fail-open): %v", err)
	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: maxInt(0, limit-1),
		Reset:     ceilSeconds(window),
	}
}

// ceilSeconds rounds a duration up to whole seconds, floored at zero, so a
// client never sees a zero retry hint while still throttled.
func ceilSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(d.Seconds())) * time.Second
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
