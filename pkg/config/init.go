package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// configTemplate is written by "blobgc config init". Values match
// GetDefaultConfig so an untouched file behaves like no file at all.
const configTemplate = `# blobgc Configuration File
#
# Every key can be overridden with an environment variable:
#   gc.dry_run -> BLOBGC_GC_DRY_RUN
#
# Durations accept Go syntax ("90s", "36h") and whole days ("7d").
# Sizes accept units ("64KiB", "1MiB").

logging:
  # DEBUG, INFO, WARN, ERROR
  level: INFO
  # text or json
  format: text
  # stdout, stderr or a file path
  output: stdout

telemetry:
  enabled: false
  endpoint: localhost:4317
  insecure: false
  sample_rate: 1.0
  profiling:
    enabled: false
    endpoint: http://localhost:4040
    profile_types:
      - cpu
      - alloc_objects
      - alloc_space
      - inuse_objects
      - inuse_space

metrics:
  enabled: false
  # Pushgateway URL, pushed once when the run ends
  # push_gateway: http://localhost:9091
  job: blobgc

# PostgreSQL catalog holding blob_content and blob_alias
database:
  host: localhost
  port: 5432
  database: blobgc
  user: blobgc
  password: ""
  ssl_mode: prefer
  max_conns: 4
  min_conns: 1
  connect_timeout: 5s
  query_timeout: 5m

storage:
  local:
    root: /var/lib/blobgc/blobs
    ignore_dirs:
      - incoming
      - lost+found
  remote:
    enabled: false
    bucket: ""
    # region: eu-west-1
    # endpoint: http://localhost:9000
    force_path_style: false
    container_prefix: blobs-
    container_size: 1000000
  # Set when bytes are mirrored from an upstream deployment; catalog rows
  # without bytes are then expected and only logged at debug level.
  upstream_mirror: false

gc:
  alias_grace_period: 168h
  content_grace_period: 24h
  orphan_grace_period: 24h
  # negative disables the check
  max_clock_skew: 5m
  compare_buffer_size: 1MiB
  # Tables whose references to blob_alias.id do not keep an alias alive
  reference_denylist: []
  # Report orphans without deleting them
  dry_run: false
  # Subset of merge, expire, prune_aliases, prune_contents, sweep.
  # Empty runs every phase.
  phases: []
  run_lock: true
  loop:
    min_size: 1
    max_size: 100000
    initial_size: 1000
    floor: 1s
    ceiling: 4s
    max_retries: 3
    retry_backoff: 500ms
    max_retry_backoff: 10s
    cooldown: 0s
`

// InitConfig creates a sample configuration file at the default location.
// It returns the path of the written file. Unless force is set an existing
// file is never overwritten.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes the sample configuration file to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(configTemplate), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
