package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/corridorx/corridor-gateway/internal/models"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a create collides with a unique constraint.
var ErrDuplicate = errors.New("record already exists")

// EventFilter narrows the event listing. Empty fields match everything.
type EventFilter struct {
	Corridor string
	StateKey string
}

// Repository handles all database operations for the gateway.
type Repository struct {
	db     *gorm.DB
	logger logrus.FieldLogger
}

func NewRepository(db *DB, logger logrus.FieldLogger) *Repository {
	return &Repository{db: db.DB, logger: logger}
}

// API key operations

func (r *Repository) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	if err := r.db.WithContext(ctx).Create(key).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

// GetAPIKeyByHash looks up a key by the SHA-256 of its presented secret.
func (r *Repository) GetAPIKeyByHash(ctx context.Context, secretHash string) (*models.APIKey, error) {
	var key models.APIKey
	err := r.db.WithContext(ctx).Where("secret_hash = ?", secretHash).Take(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	return &key, nil
}

func (r *Repository) ListAPIKeys(ctx context.Context) ([]models.APIKey, error) {
	var keys []models.APIKey
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, nil
}

func (r *Repository) RevokeAPIKey(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("revoked", true)
	if result.Error != nil {
		return fmt.Errorf("failed to revoke api key: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchAPIKey updates the key's last-used timestamp. Best effort; callers
// log and move on when it fails.
func (r *Repository) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("last_used_at", at).Error
}

// Usage log operations

func (r *Repository) AppendUsageLog(ctx context.Context, entry *models.UsageLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append usage log: %w", err)
	}
	return nil
}

// Contribution operations

func (r *Repository) CreateContribution(ctx context.Context, c *models.Contribution) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("failed to create contribution: %w", err)
	}
	return nil
}

// Event operations

func (r *Repository) ListEvents(ctx context.Context, filter EventFilter) ([]models.NormalizedEvent, error) {
	q := r.db.WithContext(ctx).Model(&models.NormalizedEvent{})
	if filter.Corridor != "" {
		q = q.Where("corridor = ?", filter.Corridor)
	}
	if filter.StateKey != "" {
		q = q.Where("state_key = ?", filter.StateKey)
	}
	var events []models.NormalizedEvent
	if err := q.Order("start_time DESC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return false
}
