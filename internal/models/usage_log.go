package models

import (
	"time"
)

// UsageLog is one row per completed gateway request. Rows are append-only;
// retention and rollup live outside the gateway.
type UsageLog struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	APIKeyID       *string   `json:"api_key_id" gorm:"type:uuid;index"`
	Path           string    `json:"path"`
	Method         string    `json:"method"`
	StatusCode     int       `json:"status_code"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	ClientIP       string    `json:"client_ip"`
	UserAgent      string    `json:"user_agent"`
	ErrorMessage   *string   `json:"error_message"`
	CreatedAt      time.Time `json:"created_at" gorm:"index"`
}

func (UsageLog) TableName() string {
	return "usage_logs"
}
