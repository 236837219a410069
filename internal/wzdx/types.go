// Package wzdx renders normalized corridor events as a Work Zone Data
// Exchange v4.2 feed document.
package wzdx

import (
	"encoding/json"
)

// Version is the WZDx schema version this feed claims.
const Version = "4.2"

// FeedDocument is the top-level GeoJSON FeatureCollection.
type FeedDocument struct {
	Type     string    `json:"type"`
	FeedInfo FeedInfo  `json:"road_event_feed_info"`
	Features []Feature `json:"features"`
}

// FeedInfo is the feed envelope identifying the publisher and its sources.
type FeedInfo struct {
	Publisher       string       `json:"publisher"`
	ContactName     string       `json:"contact_name,omitempty"`
	ContactEmail    string       `json:"contact_email,omitempty"`
	Version         string       `json:"version"`
	License         string       `json:"license"`
	UpdateDate      string       `json:"update_date"`
	UpdateFrequency int          `json:"update_frequency"`
	DataSources     []DataSource `json:"data_sources"`
}

// DataSource describes one upstream feed contributing events.
type DataSource struct {
	DataSourceID    string `json:"data_source_id"`
	Organization    string `json:"organization_name"`
	ContactName     string `json:"contact_name,omitempty"`
	ContactEmail    string `json:"contact_email,omitempty"`
	UpdateFrequency int    `json:"update_frequency,omitempty"`
}

// Feature is one road event.
type Feature struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Geometry   Geometry   `json:"geometry"`
	Properties Properties `json:"properties"`
}

// Geometry is a GeoJSON Point. Coordinates are [longitude, latitude].
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// CoreDetails is the WZDx core event description.
type CoreDetails struct {
	EventType    string   `json:"event_type"`
	DataSourceID string   `json:"data_source_id"`
	RoadNames    []string `json:"road_names"`
	Direction    string   `json:"direction"`
	Description  string   `json:"description,omitempty"`
}

// DataQuality is the provenance extension carried on every feature. Feed
// consumers weight multi-source data with it, so it is never omitted.
type DataQuality struct {
	ConfidenceScore  float64 `json:"confidence_score"`
	SourceType       string  `json:"source_type"`
	SourceName       string  `json:"source_name"`
	ValidationStatus string  `json:"validation_status"`
	LastVerified     string  `json:"last_verified"`
}

// Properties holds the per-event payload. Extra carries pass-through fields
// from pre-formatted upstream events; on serialization they are merged in
// without overriding the normalized fields.
type Properties struct {
	CoreDetails CoreDetails `json:"core_details"`
	StartDate   string      `json:"start_date"`
	EndDate     string      `json:"end_date,omitempty"`
	Severity    string      `json:"severity,omitempty"`
	DataQuality DataQuality `json:"data_quality"`

	Extra map[string]interface{} `json:"-"`
}

type propertiesAlias Properties

// MarshalJSON merges Extra into the serialized properties. Normalized fields
// win on conflict; upstream extras only fill gaps.
func (p Properties) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(propertiesAlias(p))
	if err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return base, nil
	}

	merged := make(map[string]interface{}, len(p.Extra)+8)
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range p.Extra {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}
