package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/blobgc/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample blobgc configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/blobgc/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  blobgc init

  # Initialize with custom path
  blobgc init --config /etc/blobgc/config.yaml

  # Force overwrite existing config
  blobgc init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Point database and storage.local.root at the blob store")
	_, _ = fmt.Fprintln(out, "  2. Apply the catalog schema with: blobgc migrate")
	_, _ = fmt.Fprintln(out, "  3. Rehearse with: blobgc run --dry-run")
	_, _ = fmt.Fprintf(out, "  4. Or specify custom config: blobgc run --config %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nSecurity note:")
	_, _ = fmt.Fprintln(out, "  Prefer environment variables for credentials, e.g. BLOBGC_DATABASE_PASSWORD")
	_, _ = fmt.Fprintln(out, "  and BLOBGC_STORAGE_REMOTE_SECRET_ACCESS_KEY.")

	return nil
}
