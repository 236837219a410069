package models

import (
	"time"
)

// NormalizedEvent is a corridor event as produced by the aggregation
// subsystem. The gateway reads these; it never writes them.
type NormalizedEvent struct {
	EventID          string     `json:"event_id" gorm:"primary_key"`
	Corridor         string     `json:"corridor" gorm:"index"`
	StateKey         string     `json:"state_key" gorm:"index"`
	Latitude         float64    `json:"latitude"`
	Longitude        float64    `json:"longitude"`
	Severity         string     `json:"severity"`
	SourceID         string     `json:"source_id"`
	SourceType       string     `json:"source_type"`
	SourceName       string     `json:"source_name"`
	ConfidenceScore  float64    `json:"confidence_score"`
	ValidationStatus string     `json:"validation_status"`
	LastVerified     time.Time  `json:"last_verified"`
	EventData        JSONMap    `json:"event_data" gorm:"type:jsonb"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time"`
}

func (NormalizedEvent) TableName() string {
	return "normalized_events"
}
