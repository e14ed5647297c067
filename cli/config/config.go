// Package config handles YAML config file loading for tankreplay commands.
package config

import (
	"fmt"
	"time"
)

// Config represents a replay.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Poll    PollConfig    `yaml:"poll"`
	Records RecordsConfig `yaml:"records"`
	Adapter AdapterConfig `yaml:"adapter"`
	Serve   ServeConfig   `yaml:"serve"`
}

// SourceConfig selects where chunks are fetched from.
type SourceConfig struct {
	BaseURL     string            `yaml:"base_url"`
	Backend     string            `yaml:"backend"`
	Path        string            `yaml:"path"`
	Region      string            `yaml:"region"`
	Endpoint    string            `yaml:"endpoint"`
	S3PathStyle bool              `yaml:"s3_path_style"`
	Compression string            `yaml:"compression"`
	FilePattern string            `yaml:"file_pattern"`
	Headers     map[string]string `yaml:"headers,omitempty"`
}

// PollConfig holds poll cadence and stop limits. Zero means default or
// unlimited.
type PollConfig struct {
	Interval       Duration `yaml:"interval"`
	RequestTimeout Duration `yaml:"request_timeout"`
	MaxAttempts    int      `yaml:"max_attempts"`
	Deadline       Duration `yaml:"deadline"`
	MaxChunks      int      `yaml:"max_chunks"`
	MaxBackoff     Duration `yaml:"max_backoff"`
	MaxInFlight    int      `yaml:"max_in_flight"`
}

// RecordsConfig holds record decoding options.
type RecordsConfig struct {
	// Malformed is "skip" or "fail".
	Malformed string `yaml:"malformed"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// ServeConfig configures the renderer feed.
type ServeConfig struct {
	Addr        string `yaml:"addr"`
	AllowRemote bool   `yaml:"allow_remote"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "200ms", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "200ms" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	d.Duration = parsed
	return nil
}
