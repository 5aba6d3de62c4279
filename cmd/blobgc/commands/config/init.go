package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/blobgc/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a sample configuration file",
	Long: `Create a commented sample configuration file.

Examples:
  # Create at $XDG_CONFIG_HOME/blobgc/config.yaml
  blobgc config init

  # Create at a custom path, overwriting it
  blobgc config init --config /etc/blobgc/config.yaml --force`,
	RunE: runConfigInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	var err error
	if configPath != "" {
		err = config.InitConfigToPath(configPath, initForce)
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration file created at: %s\n", configPath)
	return nil
}
