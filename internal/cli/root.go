package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sunyxi/salesforce-flow-cli/internal/config"
	"github.com/sunyxi/salesforce-flow-cli/internal/logging"
)

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// logger is the package-level logger for CLI operations.
var logger zerolog.Logger //nolint:gochecknoglobals // Required for zerolog context integration

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	sandbox    bool
	production bool
	verbose    bool
	quiet      bool
	debug      bool
}

// NewRootCmd creates the root Cobra command for the sf-flow CLI.
func NewRootCmd(ver string) *cobra.Command {
	return NewRootCmdWithEnv(ver, os.LookupEnv)
}

// NewRootCmdWithEnv creates the root command with an explicit environment lookup for testability.
func NewRootCmdWithEnv(ver string, lookupEnv func(string) (string, bool)) *cobra.Command {
	var (
		flags     globalFlags
		logResult *logging.LogPathResult
		started   time.Time
	)

	cmd := &cobra.Command{
		Use:           "sf-flow",
		Short:         "Bulk-manage Salesforce Flows",
		Long:          "sf-flow: activate, deactivate and inspect Salesforce Flows in bulk through the Tooling API",
		Version:       ver,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if flags.sandbox && flags.production {
				return fmt.Errorf("--sandbox and --production are mutually exclusive")
			}

			cfg, err := config.Load(config.LoadOptions{Path: flags.configPath, LookupEnv: lookupEnv})
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			applyGlobalFlags(cfg, flags)
			config.SetGlobalConfig(cfg)

			started = time.Now()
			logResult = setupLogging(cmd, cfg, flags, lookupEnv)

			if !flags.quiet {
				printBanner(cmd, cfg)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return cleanupLogging(cmd, logResult, started)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "path to a configuration file (replaces the user config file)")
	pf.BoolVar(&flags.sandbox, "sandbox", false, "target a sandbox org")
	pf.BoolVar(&flags.production, "production", false, "target a production org")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "suppress progress and detail output")
	pf.BoolVar(&flags.debug, "debug", false, "enable debug logging to stderr")

	cmd.AddCommand(
		NewActivateCmd(), NewDeactivateCmd(), NewListCmd(),
		NewBatchCmd(opActivate), NewBatchCmd(opDeactivate),
		NewVersionsCmd(), NewGenerateURLsCmd(), newConfigCmd(), newCacheCmd(),
	)

	return cmd
}

// applyGlobalFlags layers the persistent flags over the loaded configuration.
func applyGlobalFlags(cfg *config.Config, flags globalFlags) {
	switch {
	case flags.sandbox:
		cfg.Auth.Sandbox = true
	case flags.production:
		cfg.Auth.Sandbox = false
	}

	if flags.verbose {
		cfg.Logging.Level = "debug"
		cfg.CLI.ShowDetailedOutput = true
	}
	if flags.quiet {
		cfg.Logging.Level = "warn"
		cfg.CLI.ShowProgressBar = false
		cfg.CLI.ShowDetailedOutput = false
	}
}

func printBanner(cmd *cobra.Command, cfg *config.Config) {
	st := newStyles(cmd.ErrOrStderr(), cfg.CLI.ColorOutput)
	env := st.warn.Render("SANDBOX")
	if cfg.IsProduction() {
		env = st.fail.Render("PRODUCTION")
	}

	w := cmd.ErrOrStderr()
	fmt.Fprintln(w, st.info.Render("🚀 Salesforce Flow CLI"))
	fmt.Fprintf(w, "%s %s\n", st.bold.Render("Environment:"), env)
	fmt.Fprintf(w, "%s %s\n", st.bold.Render("Auth Method:"), strings.ToUpper(cfg.Auth.Method))
	fmt.Fprintln(w)
}

const rootCmdExample = `  # Activate two flows in a sandbox
  sf-flow --sandbox activate Account_Trigger_Flow Case_Escalation

  # Activate a specific version
  sf-flow activate Account_Trigger_Flow --version 3

  # Deactivate flows in production
  sf-flow --production deactivate Legacy_Flow --force

  # Activate every flow listed in a file, with a report
  sf-flow batch-activate --file flows.json --report report.json

  # Preview a batch deactivation
  sf-flow batch-deactivate --use-config --dry-run --show-status

  # List active record-triggered flows as CSV
  sf-flow list --type record --status active --format csv

  # Show flows with newer inactive versions
  sf-flow versions --all --updates-available

  # Show the effective configuration
  sf-flow config show`

// newConfigCmd creates the config command group with configuration subcommands.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Configuration management commands"}
	cmd.AddCommand(
		NewConfigShowCmd(), NewConfigGetCmd(), NewConfigSetCmd(),
		NewConfigInitCmd(), NewConfigValidateCmd(),
	)
	return cmd
}
