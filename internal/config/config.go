package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds all configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Feed     FeedConfig     `mapstructure:"feed"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig holds the optional shared counter store. When Enabled is false
// the gateway uses per-process counters, which is only correct for a single
// instance.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig holds response-cache configuration.
type CacheConfig struct {
	FeedTTLSeconds int  `mapstructure:"feed_ttl_seconds"`
	Public         bool `mapstructure:"public"`
}

// FeedConfig identifies this publisher in the WZDx feed envelope.
type FeedConfig struct {
	Publisher       string `mapstructure:"publisher"`
	ContactName     string `mapstructure:"contact_name"`
	ContactEmail    string `mapstructure:"contact_email"`
	License         string `mapstructure:"license"`
	UpdateFrequency int    `mapstructure:"update_frequency_seconds"`
	SourcesFile     string `mapstructure:"sources_file"`
}

var globalConfig Config

// Load reads configuration from config.yaml, honoring CONFIG_PATH.
func Load() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		viper.AddConfigPath(path)
	}

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := viper.Unmarshal(&globalConfig); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("cache.feed_ttl_seconds", 60)
	viper.SetDefault("cache.public", true)

	viper.SetDefault("feed.publisher", "Corridor Data Exchange")
	viper.SetDefault("feed.license", "https://creativecommons.org/publicdomain/zero/1.0/")
	viper.SetDefault("feed.update_frequency_seconds", 60)
	viper.SetDefault("feed.sources_file", "./config/sources.yaml")
}

// GetConfig returns the global configuration.
func GetConfig() *Config {
	return &globalConfig
}
