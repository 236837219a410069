package ingest

import (
	"github.com/mitchellh/mapstructure"
)

// location uses pointer fields so "absent" and "zero" stay distinct; the
// equator and the prime meridian are valid coordinates.
type location struct {
	Lat *float64 `mapstructure:"lat"`
	Lon *float64 `mapstructure:"lon"`
}

type probePayload struct {
	Location         *location `mapstructure:"location"`
	LocationAccuracy *float64  `mapstructure:"location_accuracy_meters"`
}

type incidentPayload struct {
	Location         *location `mapstructure:"location"`
	Description      string    `mapstructure:"description"`
	SourceConfidence *float64  `mapstructure:"source_confidence"`
	LocationAccuracy *float64  `mapstructure:"location_accuracy_meters"`
}

type parkingPayload struct {
	FacilityID       string    `mapstructure:"facility_id"`
	Location         *location `mapstructure:"location"`
	SpacesAvailable  *int      `mapstructure:"spaces_available"`
	LocationAccuracy *float64  `mapstructure:"location_accuracy_meters"`
}

func decodePayload(payload map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(payload)
}

func missingLocation(loc *location) []string {
	if loc == nil {
		return []string{"location.lat", "location.lon"}
	}
	var missing []string
	if loc.Lat == nil {
		missing = append(missing, "location.lat")
	}
	if loc.Lon == nil {
		missing = append(missing, "location.lon")
	}
	return missing
}

func validateProbeData(payload map[string]interface{}) (*location, *float64, error) {
	var p probePayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, nil, &ValidationError{Fields: []string{"payload"}}
	}
	if missing := missingLocation(p.Location); len(missing) > 0 {
		return nil, nil, &ValidationError{Fields: missing}
	}
	return p.Location, p.LocationAccuracy, nil
}

func validateIncident(payload map[string]interface{}) (*location, *float64, float64, error) {
	var p incidentPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, nil, 0, &ValidationError{Fields: []string{"payload"}}
	}
	missing := missingLocation(p.Location)
	if p.Description == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return nil, nil, 0, &ValidationError{Fields: missing}
	}

	score := IncidentConfidenceCap
	if p.SourceConfidence != nil {
		claim := *p.SourceConfidence
		// Confidence scores live in [0, 1]; a claim outside that range is a
		// malformed field, not a low-trust one.
		if claim < 0 || claim > 1 {
			return nil, nil, 0, &ValidationError{Fields: []string{"source_confidence"}}
		}
		if claim < IncidentConfidenceCap {
			score = claim
		}
	}
	return p.Location, p.LocationAccuracy, score, nil
}

func validateParkingStatus(payload map[string]interface{}) (*location, *float64, error) {
	var p parkingPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, nil, &ValidationError{Fields: []string{"payload"}}
	}
	missing := missingLocation(p.Location)
	if p.FacilityID == "" {
		missing = append(missing, "facility_id")
	}
	// Zero spaces is a legitimate report (a full facility), so presence is
	// checked on the pointer, not the value.
	if p.SpacesAvailable == nil {
		missing = append(missing, "spaces_available")
	}
	if len(missing) > 0 {
		return nil, nil, &ValidationError{Fields: missing}
	}
	return p.Location, p.LocationAccuracy, nil
}
