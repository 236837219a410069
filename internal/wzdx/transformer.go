package wzdx

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/corridorx/corridor-gateway/internal/config"
	"github.com/corridorx/corridor-gateway/internal/models"
)

// Keys of the event payload that the transformer folds into typed fields.
// Everything else passes through as extra properties.
var consumedPayloadKeys = map[string]bool{
	"event_type":   true,
	"direction":    true,
	"description":  true,
	"core_details": true,
	"data_quality": true,
	"start_date":   true,
	"end_date":     true,
	"severity":     true,
}

// Transformer converts normalized events into a WZDx feed document. It is
// pure: input records are never mutated, and the only side effect is logging
// skipped records.
type Transformer struct {
	feed    config.FeedConfig
	sources []config.SourceDescriptor
	logger  logrus.FieldLogger
	now     func() time.Time
}

func NewTransformer(feed config.FeedConfig, sources []config.SourceDescriptor, logger logrus.FieldLogger) *Transformer {
	return &Transformer{
		feed:    feed,
		sources: sources,
		logger:  logger,
		now:     time.Now,
	}
}

// Transform builds the feed document. Malformed events are logged and
// skipped rather than failing the whole feed.
func (t *Transformer) Transform(events []models.NormalizedEvent) FeedDocument {
	doc := FeedDocument{
		Type: "FeatureCollection",
		FeedInfo: FeedInfo{
			Publisher:       t.feed.Publisher,
			ContactName:     t.feed.ContactName,
			ContactEmail:    t.feed.ContactEmail,
			Version:         Version,
			License:         t.feed.License,
			UpdateDate:      t.now().UTC().Format(time.RFC3339),
			UpdateFrequency: t.feed.UpdateFrequency,
			DataSources:     t.dataSources(),
		},
		Features: make([]Feature, 0, len(events)),
	}

	for i := range events {
		feature, err := t.transformEvent(&events[i])
		if err != nil {
			t.logger.WithError(err).WithField("event_id", events[i].EventID).
				Warn("skipping malformed event")
			continue
		}
		doc.Features = append(doc.Features, feature)
	}
	return doc
}

func (t *Transformer) dataSources() []DataSource {
	out := make([]DataSource, 0, len(t.sources))
	for _, s := range t.sources {
		out = append(out, DataSource{
			DataSourceID:    s.SourceID,
			Organization:    s.Organization,
			ContactName:     s.ContactName,
			ContactEmail:    s.ContactEmail,
			UpdateFrequency: s.UpdateFreq,
		})
	}
	return out
}

func (t *Transformer) transformEvent(ev *models.NormalizedEvent) (Feature, error) {
	if ev.EventID == "" {
		return Feature{}, errEmptyEventID
	}
	if ev.Latitude < -90 || ev.Latitude > 90 || ev.Longitude < -180 || ev.Longitude > 180 {
		return Feature{}, errBadCoordinates
	}
	// A zero start time would render as year 1; treat it as malformed rather
	// than publish a nonsense date.
	if ev.StartTime.IsZero() {
		return Feature{}, errNoStartTime
	}

	props := Properties{
		CoreDetails: CoreDetails{
			EventType:    payloadString(ev.EventData, "event_type", "incident"),
			DataSourceID: ev.SourceID,
			RoadNames:    []string{ev.Corridor},
			Direction:    payloadString(ev.EventData, "direction", "unknown"),
			Description:  payloadString(ev.EventData, "description", ""),
		},
		StartDate: ev.StartTime.UTC().Format(time.RFC3339),
		Severity:  ev.Severity,
		DataQuality: DataQuality{
			ConfidenceScore:  ev.ConfidenceScore,
			SourceType:       ev.SourceType,
			SourceName:       ev.SourceName,
			ValidationStatus: ev.ValidationStatus,
			LastVerified:     ev.LastVerified.UTC().Format(time.RFC3339),
		},
	}
	if ev.EndTime != nil {
		props.EndDate = ev.EndTime.UTC().Format(time.RFC3339)
	}

	// Pre-formatted upstream payloads are enriched, not replaced: every
	// field the normalized mapping did not consume rides along.
	for k, v := range ev.EventData {
		if consumedPayloadKeys[k] {
			continue
		}
		if props.Extra == nil {
			props.Extra = make(map[string]interface{})
		}
		props.Extra[k] = v
	}

	return Feature{
		ID:   ev.EventID,
		Type: "Feature",
		Geometry: Geometry{
			Type:        "Point",
			Coordinates: []float64{ev.Longitude, ev.Latitude},
		},
		Properties: props,
	}, nil
}

func payloadString(data models.JSONMap, key, fallback string) string {
	if data == nil {
		return fallback
	}
	if v, ok := data[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
