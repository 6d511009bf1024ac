package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sunyxi/salesforce-flow-cli/internal/config"
)

// NewConfigInitCmd creates the config init command for initializing configuration.
func NewConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration file with default values",
		Long: `Creates a new configuration file with default values at the user config path,
or at --config when given. Credentials are never written; supply them through
SF_* environment variables.`,
		Example: `  # Create the user configuration
  sf-flow config init

  # Create configuration, overwriting existing
  sf-flow config init --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, configTargetPath(cmd), force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing configuration file")

	return cmd
}

func runConfigInit(cmd *cobra.Command, path string, force bool) error {
	if path == "" {
		userPath, err := config.UserConfigPath()
		if err != nil {
			return err
		}
		path = userPath
	}

	if !force {
		_, err := os.Stat(path)
		if err == nil {
			return errors.New("configuration file already exists, use --force to overwrite")
		}
		if !os.IsNotExist(err) {
			return fmt.Errorf("cannot access config path %s: %w", path, err)
		}
	}

	written, err := config.New().Save(path)
	if err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	cmd.Printf("Configuration initialized successfully\n")
	cmd.Printf("Configuration file: %s\n", written)
	return nil
}

// configTargetPath returns the --config path, or "" for the user config file.
func configTargetPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
