package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sunyxi/salesforce-flow-cli/internal/config"
)

// NewConfigShowCmd creates the config show command.
func NewConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Long:  "Print the configuration after files, environment variables and flags are merged. Credentials are masked.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			red := config.GetGlobalConfig().Redacted()
			data, err := yaml.Marshal(&red)
			if err != nil {
				return fmt.Errorf("rendering configuration: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

// NewConfigGetCmd creates the config get command.
func NewConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one configuration value",
		Long:  "Print the effective value at a dotted key. Available keys:\n  " + strings.Join(config.Keys(), "\n  "),
		Example: `  sf-flow config get batch.max_concurrent
  sf-flow config get flows`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GetGlobalConfig().Redacted()
			val, err := cfg.GetString(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), val)
			return nil
		},
	}
}

// NewConfigSetCmd creates the config set command.
func NewConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value and save it",
		Long: `Set the value at a dotted key and save the configuration file (the user config
file, or --config when given). Values are parsed as YAML, so lists use [a, b] syntax.`,
		Example: `  sf-flow config set batch.max_concurrent 10
  sf-flow config set flows.sandbox "[Flow_A, Flow_B]"`,
		Args: cobra.ExactArgs(2), //nolint:mnd // key and value
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(cmd, args[0], args[1])
		},
	}
}

func runConfigSet(cmd *cobra.Command, key, value string) error {
	path := configTargetPath(cmd)

	// Start from the file alone so environment overrides are not persisted.
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	if err = cfg.Set(key, value); err != nil {
		return err
	}

	written, err := cfg.Save(path)
	if err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	cmd.Printf("Set %s = %s in %s\n", key, value, written)
	return nil
}
