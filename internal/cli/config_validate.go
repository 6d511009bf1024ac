package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sunyxi/salesforce-flow-cli/internal/config"
)

// NewConfigValidateCmd creates the config validate command for validating configuration.
func NewConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the effective configuration",
		Long: `Validates the configuration after files and environment variables are merged.

This includes:
- Required credentials for the selected auth method
- Batch, retry and API value ranges
- Logging level and format`,
		Example: `  # Validate current configuration
  sf-flow config validate

  # Validate and show detailed information
  sf-flow config validate --verbose`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigValidate(cmd, config.GetGlobalConfig())
		},
	}
}

// runConfigValidate prints every validation problem and returns an ExitError when there are any.
func runConfigValidate(cmd *cobra.Command, cfg *config.Config) error {
	st := cmdStyles(cmd)

	if err := cfg.Validate(); err != nil {
		var verr *config.ValidationError
		if !errors.As(err, &verr) {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		cmd.PrintErrln(st.fail.Render(fmt.Sprintf("❌ Configuration has %d problem(s):", len(verr.Problems))))
		for _, p := range verr.Problems {
			cmd.PrintErrf("  - %s\n", p)
		}
		return exitWith("configuration has %d problem(s)", len(verr.Problems))
	}

	cmd.Println(st.ok.Render("✅ Configuration is valid"))

	if isVerbose(cmd) {
		printVerboseDetails(cmd, cfg)
	}
	return nil
}

// printVerboseDetails prints a short overview of the effective configuration.
func printVerboseDetails(cmd *cobra.Command, cfg *config.Config) {
	cmd.Println()
	cmd.Println("Configuration details:")
	cmd.Printf("  Environment: %s\n", cfg.Environment())
	cmd.Printf("  Auth method: %s\n", cfg.Auth.Method)
	cmd.Printf("  API version: %s\n", cfg.API.Version)
	cmd.Printf("  Retry profile: %s\n", cfg.Batch.RetryProfile)
	cmd.Printf("  Max concurrent: %d\n", cfg.Batch.MaxConcurrent)
	cmd.Printf("  Logging level: %s\n", cfg.Logging.Level)
	cmd.Printf("  Log file: %s\n", cfg.Logging.File)
	cmd.Printf("  Configured flows: %d production, %d sandbox\n", len(cfg.Flows.Production), len(cfg.Flows.Sandbox))
}
