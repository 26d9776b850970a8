package models

import (
	"time"
)

// Persisted request counter for one (identifier, endpoint, method) bucket.
// Empty endpoint/method mean the bucket covers any endpoint/method.
type RateLimitCounter struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Identifier   string     `gorm:"uniqueIndex:idx_counter_key;not null" json:"identifier"`
	Endpoint     string     `gorm:"uniqueIndex:idx_counter_key" json:"endpoint"`
	Method       string     `gorm:"uniqueIndex:idx_counter_key" json:"method"`
	Count        int        `json:"count"`
	ResetAt      time.Time  `json:"reset_at"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (RateLimitCounter) TableName() string {
	return "rate_limit_counters"
}
