// Package ingest validates and scores externally contributed observations
// before handing them to persistence. Every contribution lands in a pending
// state; promotion into the authoritative feed is an external workflow.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/corridorx/corridor-gateway/internal/models"
)

// Confidence policy. Fixed per source type, not configurable per request:
// the asymmetry encodes institutional trust. Self-reported confidence on
// incident reports is always capped below the trusted-source ceiling.
const (
	ProbeDataConfidence       = 0.4
	IncidentConfidenceCap     = 0.5
	ParkingOperatorConfidence = 0.7
)

// ValidationError lists the missing or malformed fields of a rejected
// contribution.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid or missing fields: %s", strings.Join(e.Fields, ", "))
}

// ContributionStore is the slice of the persistence collaborator the
// pipeline needs.
type ContributionStore interface {
	CreateContribution(ctx context.Context, c *models.Contribution) error
}

// Pipeline validates, scores and persists contributions.
type Pipeline struct {
	store  ContributionStore
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewPipeline(store ContributionStore, logger logrus.FieldLogger) *Pipeline {
	return &Pipeline{store: store, logger: logger, now: time.Now}
}

// Ingest validates payload for contributionType, assigns the policy
// confidence score and persists the contribution under contributorID.
func (p *Pipeline) Ingest(ctx context.Context, contributionType string, payload map[string]interface{}, contributorID string) (*models.Contribution, error) {
	var (
		loc      *location
		accuracy *float64
		score    float64
		err      error
	)

	switch contributionType {
	case models.ContributionProbeData:
		loc, accuracy, err = validateProbeData(payload)
		score = ProbeDataConfidence
	case models.ContributionIncident:
		loc, accuracy, score, err = validateIncident(payload)
	case models.ContributionParkingStatus:
		loc, accuracy, err = validateParkingStatus(payload)
		// Facility operators are trusted; any claimed confidence in the
		// payload is ignored.
		score = ParkingOperatorConfidence
	default:
		return nil, &ValidationError{Fields: []string{"contribution_type"}}
	}
	if err != nil {
		return nil, err
	}

	contribution := &models.Contribution{
		ID:               uuid.NewString(),
		ContributorID:    contributorID,
		ContributionType: contributionType,
		Data:             models.JSONMap(payload),
		Latitude:         *loc.Lat,
		Longitude:        *loc.Lon,
		ConfidenceScore:  score,
		Status:           models.ContributionPending,
		CreatedAt:        p.now(),
	}
	if accuracy != nil {
		contribution.LocationAccuracyMeter = accuracy
	}

	if err := p.store.CreateContribution(ctx, contribution); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"contributor_id":    contributorID,
			"contribution_type": contributionType,
		}).Error("failed to persist contribution")
		return nil, err
	}

	return contribution, nil
}
