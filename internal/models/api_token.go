package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TokenTypeBasic    = "basic"
	TokenTypeAdvanced = "advanced"
)

type ApiToken struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	HashedSecret  string     `gorm:"uniqueIndex;not null" json:"-"`
	Name          string     `gorm:"not null" json:"name"`
	Type          string     `gorm:"default:'basic'" json:"type"`
	Scopes        []string   `gorm:"serializer:json" json:"scopes"`
	OwnerUserID   *uuid.UUID `json:"owner_user_id,omitempty"`
	OwnerOrgID    *uuid.UUID `json:"owner_org_id,omitempty"`
	RateLimit     int        `json:"rate_limit,omitempty"`
	RateLimitUsed int64      `json:"rate_limit_used"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	DeletedAt     *time.Time `gorm:"index" json:"deleted_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
}

func (t *ApiToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// A token is usable iff it is not revoked and not past its expiry.
func (t *ApiToken) Usable(at time.Time) bool {
	if t == nil || t.DeletedAt != nil {
		return false
	}
	if t.ExpiresAt != nil && !t.ExpiresAt.After(at) {
		return false
	}
	return true
}

func (ApiToken) TableName() string {
	return "api_tokens"
}
