package models

import (
	"time"

	"github.com/google/uuid"
)

// Represents one recorded API call made with a token. Append-only.
type TokenUsage struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TokenID    uuid.UUID `gorm:"type:uuid;index" json:"token_id"`
	Endpoint   string    `gorm:"index" json:"endpoint"`
	Method     string    `json:"method"`
	StatusCode int       `gorm:"index" json:"status_code"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Timestamp  time.Time `gorm:"index" json:"timestamp"`
}

func (TokenUsage) TableName() string {
	return "token_usage"
}
