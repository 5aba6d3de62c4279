package config

import (
	"testing"
	"time"

	"github.com/marmos91/blobgc/pkg/gc"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_Telemetry(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Telemetry.Endpoint != "localhost:4317" {
		t.Errorf("Expected default OTLP endpoint, got %q", cfg.Telemetry.Endpoint)
	}
	if cfg.Telemetry.SampleRate != 1.0 {
		t.Errorf("Expected default sample rate 1.0, got %v", cfg.Telemetry.SampleRate)
	}
	if cfg.Telemetry.Profiling.Endpoint != "http://localhost:4040" {
		t.Errorf("Expected default Pyroscope endpoint, got %q", cfg.Telemetry.Profiling.Endpoint)
	}
	if len(cfg.Telemetry.Profiling.ProfileTypes) != 5 {
		t.Errorf("Expected 5 default profile types, got %v", cfg.Telemetry.Profiling.ProfileTypes)
	}
}

func TestApplyDefaults_Storage(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Storage.Local.Root != "" {
		t.Errorf("Expected local root to stay empty, got %q", cfg.Storage.Local.Root)
	}
	if len(cfg.Storage.Local.IgnoreDirs) == 0 {
		t.Error("Expected default ignore dirs")
	}
	if cfg.Storage.Remote.ContainerPrefix != DefaultContainerPrefix {
		t.Errorf("Expected container prefix %q, got %q", DefaultContainerPrefix, cfg.Storage.Remote.ContainerPrefix)
	}
	if cfg.Storage.Remote.ContainerSize != DefaultContainerSize {
		t.Errorf("Expected container size %d, got %d", DefaultContainerSize, cfg.Storage.Remote.ContainerSize)
	}
}

func TestApplyDefaults_IgnoreDirsNotShared(t *testing.T) {
	a := &Config{}
	b := &Config{}
	ApplyDefaults(a)
	ApplyDefaults(b)

	a.Storage.Local.IgnoreDirs[0] = "changed"
	if b.Storage.Local.IgnoreDirs[0] == "changed" {
		t.Fatal("ApplyDefaults must not share the default ignore dir slice")
	}
}

func TestApplyDefaults_GC(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.GC.AliasGrace() != gc.DefaultAliasGracePeriod {
		t.Errorf("Expected alias grace period %v, got %v", gc.DefaultAliasGracePeriod, cfg.GC.AliasGrace())
	}
	if cfg.GC.MaxClockSkew != gc.DefaultMaxClockSkew {
		t.Errorf("Expected max clock skew %v, got %v", gc.DefaultMaxClockSkew, cfg.GC.MaxClockSkew)
	}
	if cfg.GC.Loop.InitialSize == 0 {
		t.Error("Expected loop policy defaults")
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Expected default database port 5432, got %d", cfg.Database.Port)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "DEBUG",
			Format: "json",
			Output: "/var/log/blobgc.log",
		},
		Metrics: MetricsConfig{Job: "nightly-gc"},
		Storage: StorageConfig{
			Local:  LocalStorageConfig{Root: "/srv", IgnoreDirs: []string{"tmp"}},
			Remote: RemoteStorageConfig{ContainerPrefix: "c", ContainerSize: 10},
		},
		GC: gc.Config{
			OrphanGracePeriod: gc.Period(2 * time.Hour),
			MaxClockSkew:      -1,
		},
	}

	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected explicit level 'DEBUG' to be preserved, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected explicit format 'json' to be preserved, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "/var/log/blobgc.log" {
		t.Errorf("Expected explicit output to be preserved, got %q", cfg.Logging.Output)
	}
	if cfg.Metrics.Job != "nightly-gc" {
		t.Errorf("Expected explicit job to be preserved, got %q", cfg.Metrics.Job)
	}
	if len(cfg.Storage.Local.IgnoreDirs) != 1 || cfg.Storage.Local.IgnoreDirs[0] != "tmp" {
		t.Errorf("Expected explicit ignore dirs to be preserved, got %v", cfg.Storage.Local.IgnoreDirs)
	}
	if cfg.Storage.Remote.ContainerSize != 10 {
		t.Errorf("Expected explicit container size to be preserved, got %d", cfg.Storage.Remote.ContainerSize)
	}
	if cfg.GC.OrphanGrace() != 2*time.Hour {
		t.Errorf("Expected explicit orphan grace period to be preserved, got %v", cfg.GC.OrphanGrace())
	}
	if cfg.GC.MaxClockSkew != -1 {
		t.Errorf("Expected disabled clock skew check to be preserved, got %v", cfg.GC.MaxClockSkew)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()

	// The default config should pass validation
	err := Validate(cfg)
	if err != nil {
		t.Errorf("Default config should be valid, got error: %v", err)
	}
}

func TestGetDefaultConfig_HasRequiredFields(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level == "" {
		t.Error("Default config missing logging level")
	}
	if cfg.Storage.Local.Root == "" {
		t.Error("Default config missing local root")
	}
	if cfg.Database.Host == "" || cfg.Database.User == "" || cfg.Database.Database == "" {
		t.Error("Default config missing database connection fields")
	}
	if !cfg.GC.RunLock {
		t.Error("Default config should take the run lock")
	}
}
