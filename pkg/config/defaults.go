package config

import (
	"strings"

	"github.com/marmos91/blobgc/pkg/blobstore/fs"
	"github.com/marmos91/blobgc/pkg/catalog/postgres"
	"github.com/marmos91/blobgc/pkg/gc"
)

// Default values for settings without a natural zero value.
const (
	DefaultContainerPrefix = "blobs-"
	DefaultContainerSize   = int64(1_000_000)
	DefaultLocalRoot       = "/var/lib/blobgc/blobs"
	DefaultMetricsJob      = "blobgc"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyDatabaseDefaults(&cfg.Database)
	applyStorageDefaults(&cfg.Storage)
	applyGCDefaults(&cfg.GC)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Default endpoint is localhost:4317 (standard OTLP gRPC port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	// A run is short and allocation heavy during compares
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
		}
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Job == "" {
		cfg.Job = DefaultMetricsJob
	}
}

// applyDatabaseDefaults sets catalog database defaults.
func applyDatabaseDefaults(cfg *postgres.Config) {
	cfg.ApplyDefaults()
}

// applyStorageDefaults sets backend defaults. The local root has no
// default: it must match the upload path's tree.
func applyStorageDefaults(cfg *StorageConfig) {
	if len(cfg.Local.IgnoreDirs) == 0 {
		cfg.Local.IgnoreDirs = append([]string(nil), fs.DefaultIgnoreDirs...)
	}
	if cfg.Remote.ContainerPrefix == "" {
		cfg.Remote.ContainerPrefix = DefaultContainerPrefix
	}
	if cfg.Remote.ContainerSize == 0 {
		cfg.Remote.ContainerSize = DefaultContainerSize
	}
}

// applyGCDefaults sets collector defaults.
func applyGCDefaults(cfg *gc.Config) {
	cfg.ApplyDefaults()
}

// baseConfig holds the values that stand in for a missing config file.
func baseConfig() *Config {
	return &Config{
		Database: postgres.Config{
			Host:     "localhost",
			Database: "blobgc",
			User:     "blobgc",
		},
		Storage: StorageConfig{
			Local: LocalStorageConfig{Root: DefaultLocalRoot},
		},
		GC: gc.Config{RunLock: true},
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := baseConfig()
	ApplyDefaults(cfg)
	return cfg
}
