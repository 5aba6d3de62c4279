package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/blobgc/internal/bytesize"
	"github.com/marmos91/blobgc/pkg/gc"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
// On Windows, backslashes in double-quoted YAML strings are interpreted as
// escape sequences (e.g. \U -> Unicode escape), causing parse errors.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()

	// Write minimal config
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"

database:
  host: db.internal
  user: gc

storage:
  local:
    root: "`+yamlSafePath(tmpDir)+`/blobs"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify defaults were applied
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Expected default database port 5432, got %d", cfg.Database.Port)
	}
	if cfg.GC.AliasGrace() != gc.DefaultAliasGracePeriod {
		t.Errorf("Expected default alias grace period, got %v", cfg.GC.AliasGrace())
	}
	if !cfg.GC.RunLock {
		t.Error("Expected run lock to default to enabled")
	}
	if len(cfg.Storage.Local.IgnoreDirs) != 2 {
		t.Errorf("Expected default ignore dirs, got %v", cfg.Storage.Local.IgnoreDirs)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Loading with no config file returns a valid default config.
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}

	if cfg == nil {
		t.Fatal("Expected default config to be returned")
	}
	if cfg.Storage.Local.Root != DefaultLocalRoot {
		t.Errorf("Expected default root %q, got %q", DefaultLocalRoot, cfg.Storage.Local.Root)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Expected default database host, got %q", cfg.Database.Host)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid.yaml", `
logging:
  level: INFO
  invalid yaml here [[[
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_TOML(t *testing.T) {
	tmpDir := t.TempDir()

	configPath := writeConfig(t, "config.toml", `
[logging]
level = "WARN"
format = "json"

[database]
host = "localhost"
user = "gc"
database = "catalog"

[storage.local]
root = "`+yamlSafePath(tmpDir)+`"

[gc]
alias_grace_period = "14d"
compare_buffer_size = "64KiB"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if cfg.GC.AliasGrace() != 14*24*time.Hour {
		t.Errorf("Expected 14 day alias grace period, got %v", cfg.GC.AliasGrace())
	}
	if cfg.GC.CompareBufferSize != 64*bytesize.KiB {
		t.Errorf("Expected 64KiB compare buffer, got %s", cfg.GC.CompareBufferSize)
	}
}

func TestLoad_GCSettings(t *testing.T) {
	tmpDir := t.TempDir()

	configPath := writeConfig(t, "config.yaml", `
database:
  host: localhost
  user: gc
  database: catalog
storage:
  local:
    root: "`+yamlSafePath(tmpDir)+`"
  remote:
    enabled: true
    bucket: blobs
    container_size: 500
gc:
  orphan_grace_period: 36h
  max_clock_skew: -1s
  dry_run: true
  phases: [sweep, merge]
  reference_denylist: [download_stats]
  loop:
    initial_size: 50
    max_retries: 5
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GC.OrphanGrace() != 36*time.Hour {
		t.Errorf("Expected 36h orphan grace period, got %v", cfg.GC.OrphanGrace())
	}
	if cfg.GC.MaxClockSkew >= 0 {
		t.Errorf("Expected negative clock skew to survive defaults, got %v", cfg.GC.MaxClockSkew)
	}
	if !cfg.GC.DryRun {
		t.Error("Expected dry run from config file")
	}
	if len(cfg.GC.Phases) != 2 || cfg.GC.Phases[0] != "sweep" {
		t.Errorf("Expected phases [sweep merge], got %v", cfg.GC.Phases)
	}
	if len(cfg.GC.ReferenceDenylist) != 1 || cfg.GC.ReferenceDenylist[0] != "download_stats" {
		t.Errorf("Unexpected denylist %v", cfg.GC.ReferenceDenylist)
	}
	if cfg.GC.Loop.InitialSize != 50 || cfg.GC.Loop.MaxRetries != 5 {
		t.Errorf("Unexpected loop policy %+v", cfg.GC.Loop)
	}
	// Unset loop fields still get defaults
	if cfg.GC.Loop.MaxSize == 0 {
		t.Error("Expected loop max size default")
	}
	if cfg.Storage.Remote.ContainerSize != 500 {
		t.Errorf("Expected container size 500, got %d", cfg.Storage.Remote.ContainerSize)
	}
	if cfg.Storage.Remote.ContainerPrefix != DefaultContainerPrefix {
		t.Errorf("Expected default container prefix, got %q", cfg.Storage.Remote.ContainerPrefix)
	}
}

func TestLoad_ZeroGracePeriod(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
storage:
  local:
    root: /srv/blobs
gc:
  orphan_grace_period: 0
  content_grace_period: 0s
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GC.OrphanGracePeriod == nil || cfg.GC.OrphanGrace() != 0 {
		t.Errorf("Expected explicit zero orphan grace period, got %v", cfg.GC.OrphanGrace())
	}
	if cfg.GC.ContentGrace() != 0 {
		t.Errorf("Expected explicit zero content grace period, got %v", cfg.GC.ContentGrace())
	}
	if cfg.GC.AliasGrace() != gc.DefaultAliasGracePeriod {
		t.Errorf("Expected default alias grace period, got %v", cfg.GC.AliasGrace())
	}
}

func TestLoad_RemoteWithoutBucket(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
storage:
  local:
    root: /srv/blobs
  remote:
    enabled: true
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for remote storage without bucket")
	}
}

func TestLoad_UnknownPhase(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
storage:
  local:
    root: /srv/blobs
gc:
  phases: [compact]
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for unknown phase")
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Metrics.Job != DefaultMetricsJob {
		t.Errorf("Expected default metrics job %q, got %q", DefaultMetricsJob, cfg.Metrics.Job)
	}
	if cfg.GC.ContentGrace() != gc.DefaultContentGracePeriod {
		t.Errorf("Expected default content grace period, got %v", cfg.GC.ContentGrace())
	}
	if cfg.GC.RunLockKey != gc.DefaultRunLockKey {
		t.Errorf("Expected default run lock key, got %d", cfg.GC.RunLockKey)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(path))
	}
}

func TestGetConfigDir(t *testing.T) {
	dir := GetConfigDir()

	if filepath.Base(dir) != "blobgc" {
		t.Errorf("Expected directory name 'blobgc', got %q", filepath.Base(dir))
	}
}

func TestMustLoad_MissingFile(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.GC.DryRun = true
	cfg.GC.OrphanGracePeriod = gc.Period(48 * time.Hour)
	cfg.Storage.Local.Root = "/data/blobs"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if !loaded.GC.DryRun {
		t.Error("Expected dry run to survive save/load")
	}
	if loaded.GC.OrphanGrace() != 48*time.Hour {
		t.Errorf("Expected 48h orphan grace period, got %v", loaded.GC.OrphanGrace())
	}
	if loaded.Storage.Local.Root != "/data/blobs" {
		t.Errorf("Expected root to survive save/load, got %q", loaded.Storage.Local.Root)
	}
	if loaded.GC.CompareBufferSize != cfg.GC.CompareBufferSize {
		t.Errorf("Expected compare buffer %s, got %s", cfg.GC.CompareBufferSize, loaded.GC.CompareBufferSize)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("BLOBGC_LOGGING_LEVEL", "ERROR")
	t.Setenv("BLOBGC_GC_DRY_RUN", "true")
	t.Setenv("BLOBGC_GC_PHASES", "expire,sweep")
	t.Setenv("BLOBGC_DATABASE_PORT", "6543")

	tmpDir := t.TempDir()
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"
database:
  host: localhost
  user: gc
  database: catalog
storage:
  local:
    root: "`+yamlSafePath(tmpDir)+`"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify environment variables override config file
	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if !cfg.GC.DryRun {
		t.Error("Expected dry run from env var")
	}
	if len(cfg.GC.Phases) != 2 || cfg.GC.Phases[1] != "sweep" {
		t.Errorf("Expected phases from env var, got %v", cfg.GC.Phases)
	}
	if cfg.Database.Port != 6543 {
		t.Errorf("Expected port 6543 from env var, got %d", cfg.Database.Port)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"7d", 7 * 24 * time.Hour, false},
		{"0d", 0, false},
		{"36h", 36 * time.Hour, false},
		{" 90s ", 90 * time.Second, false},
		{"-1s", -time.Second, false},
		{"1.5d", 0, true},
		{"d", 0, true},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDuration(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseDuration(%q) expected error, got %v", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseDuration(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
