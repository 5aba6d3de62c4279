package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/blobgc/pkg/config"
	"github.com/marmos91/blobgc/pkg/gc"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the blobgc configuration file.

Checks for syntax errors, missing required fields, and invalid values, then
warns about settings that are legal but risky.

Examples:
  # Validate default config
  blobgc config validate

  # Validate specific config file
  blobgc config validate --config /etc/blobgc/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if warnings := configWarnings(cfg); len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	phases, _ := gc.ParsePhases(cfg.GC.Phases)

	_, _ = fmt.Fprintf(out, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(out, "  Catalog:         %s:%d/%s\n", cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	_, _ = fmt.Fprintf(out, "  Local root:      %s\n", cfg.Storage.Local.Root)
	if cfg.Storage.Remote.Enabled {
		_, _ = fmt.Fprintf(out, "  Remote bucket:   %s\n", cfg.Storage.Remote.Bucket)
	}
	_, _ = fmt.Fprintf(out, "  Phases:          %v\n", phases)
	_, _ = fmt.Fprintf(out, "  Log level:       %s\n", cfg.Logging.Level)

	return nil
}

// configWarnings lists legal settings that deserve a second look.
func configWarnings(cfg *config.Config) []string {
	var warnings []string

	if grace := cfg.GC.OrphanGrace(); grace < gc.DefaultOrphanGracePeriod {
		warnings = append(warnings, fmt.Sprintf("gc.orphan_grace_period %s is shorter than the slowest upload may take", grace))
	}
	if cfg.GC.MaxClockSkew < 0 {
		warnings = append(warnings, "gc.max_clock_skew is negative: the clock skew check is disabled")
	}
	if !cfg.GC.RunLock {
		warnings = append(warnings, "gc.run_lock is off: concurrent runs must be prevented externally")
	}
	if cfg.Database.Password != "" {
		warnings = append(warnings, "database.password is stored in the file; prefer BLOBGC_DATABASE_PASSWORD")
	}
	if cfg.Storage.Remote.SecretAccessKey != "" {
		warnings = append(warnings, "storage.remote.secret_access_key is stored in the file; prefer the SDK credential chain")
	}

	return warnings
}
