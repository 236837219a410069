package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/corridorx/corridor-gateway/internal/config"
	"github.com/corridorx/corridor-gateway/internal/models"
)

// DB wraps the gorm connection.
type DB struct {
	*gorm.DB
}

// NewDB opens the Postgres connection and migrates the gateway's tables.
func NewDB(cfg *config.DatabaseConfig) (*DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := gormDB.AutoMigrate(
		&models.APIKey{},
		&models.UsageLog{},
		&models.Contribution{},
		&models.NormalizedEvent{},
	); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate schema: %w", err)
	}

	return &DB{DB: gormDB}, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
