package ratelimit

import (
	"context"
	"time"

	"github.com/aman-churiwal/api-guard/internal/models"
)

// Rule describes one rate limit. Empty Endpoint/Method match any request.
// TokenLimit/TokenWindow, when set, replace Limit/Window for requests that
// carry a valid token. BlockFor of zero means exceeding the limit never
// arms a block.
type Rule struct {
	Endpoint    string
	Method      string
	Limit       int
	Window      time.Duration
	BlockFor    time.Duration
	TokenLimit  int
	TokenWindow time.Duration
}

// IsDefault reports whether the rule matches every request.
func (r Rule) IsDefault() bool {
	return r.Endpoint == "" && r.Method == ""
}

// Request is the per-call context the engine decides on.
type Request struct {
	Identifier string // network address or "token:<id>"
	Token      *models.ApiToken
	Endpoint   string
	Method     string
}

// Result of a rate limit check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Duration // time until the counting window resets
	Blocked    bool
	RetryAfter time.Duration // only meaningful when Blocked or !Allowed
}

// CounterKey addresses one persisted counter bucket. Empty Endpoint/Method
// mean the bucket covers any endpoint/method, mirroring the rule that
// produced it.
type CounterKey struct {
	Identifier string
	Endpoint   string
	Method     string
}

// CounterStore is the contract with the persistent counter backend. Get
// returns (nil, nil) when no record exists. Upsert must be atomic at the
// store level: create the record if absent, else overwrite its counting
// fields.
type CounterStore interface {
	Get(ctx context.Context, key CounterKey) (*models.RateLimitCounter, error)
	Upsert(ctx context.Context, counter *models.RateLimitCounter) error
}
