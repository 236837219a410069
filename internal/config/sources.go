package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// SourceDescriptor describes one upstream data source advertised in the
// feed's road_event_feed_info.data_sources block.
type SourceDescriptor struct {
	SourceID     string `yaml:"source_id"`
	Organization string `yaml:"organization"`
	ContactName  string `yaml:"contact_name"`
	ContactEmail string `yaml:"contact_email"`
	UpdateFreq   int    `yaml:"update_frequency_seconds"`
}

// SourcesConfig is the full data-source descriptor file.
type SourcesConfig struct {
	Sources []SourceDescriptor `yaml:"sources"`
}

// LoadSources reads the data-source descriptor YAML file.
func LoadSources(path string) (*SourcesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var cfg SourcesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sources file: %w", err)
	}
	return &cfg, nil
}
