package config

import (
	redisclient "github.com/vietddude/streamwatch/internal/infra/redis"
	"github.com/vietddude/streamwatch/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Database   postgres.Config    `yaml:"database"`
	Redis      redisclient.Config `yaml:"redis"`
	Logging    LoggingConfig      `yaml:"logging"`
	Schemas    SchemasConfig      `yaml:"schemas"`
	Validation ValidationConfig   `yaml:"validation"`
	Tracking   TrackingConfig     `yaml:"tracking"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// SchemasConfig points at the JSON schema directory, one *.json file per
// event name.
type SchemasConfig struct {
	Dir string `yaml:"dir"`
}

// ValidationConfig holds published event validation settings.
type ValidationConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// TrackingConfig holds error fingerprinting settings.
type TrackingConfig struct {
	// IncludeLineNumber adds the originating line number to the error-class
	// fingerprint. Off by default so recompiles of the producing service do
	// not split error classes.
	IncludeLineNumber bool `yaml:"include_line_number"`
}
