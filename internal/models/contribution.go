package models

import (
	"time"
)

// Contribution types accepted by the ingestion pipeline.
const (
	ContributionProbeData     = "probe_data"
	ContributionIncident      = "incident_report"
	ContributionParkingStatus = "parking_status"
)

// Contribution validation states. The pipeline only ever writes pending;
// promotion to validated (or rejection) is an external workflow.
const (
	ContributionPending   = "pending"
	ContributionValidated = "validated"
	ContributionRejected  = "rejected"
)

// Contribution is an externally submitted observation awaiting validation.
type Contribution struct {
	ID                    string    `json:"id" gorm:"type:uuid;primary_key"`
	ContributorID         string    `json:"contributor_id" gorm:"type:uuid;index"`
	ContributionType      string    `json:"contribution_type" gorm:"index"`
	Data                  JSONMap   `json:"data" gorm:"type:jsonb"`
	Latitude              float64   `json:"latitude"`
	Longitude             float64   `json:"longitude"`
	LocationAccuracyMeter *float64  `json:"location_accuracy_meters"`
	ConfidenceScore       float64   `json:"confidence_score"`
	Status                string    `json:"status" gorm:"default:pending;index"`
	CreatedAt             time.Time `json:"created_at"`
}

func (Contribution) TableName() string {
	return "contributions"
}
