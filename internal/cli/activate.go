package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sunyxi/salesforce-flow-cli/internal/flowfile"
)

type activateFlags struct {
	validate       bool
	ignoreNotFound bool
	version        int
}

// NewActivateCmd creates the activate command.
func NewActivateCmd() *cobra.Command {
	var flags activateFlags

	cmd := &cobra.Command{
		Use:   "activate <flows...>",
		Short: "Activate one or more flows",
		Long: `Activate one or more flows by API name. The latest version is activated
unless --version is given. Flows that are already active at that version are skipped.`,
		Example: `  sf-flow activate Account_Trigger_Flow
  sf-flow activate Flow_A Flow_B --validate --ignore-not-found
  sf-flow activate Account_Trigger_Flow --version 3`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var version *int
			if cmd.Flags().Changed("version") {
				if flags.version < 1 {
					return fmt.Errorf("--version must be >= 1, got %d", flags.version)
				}
				version = &flags.version
			}
			return runFlowCommand(cmd, opActivate, flowfile.Dedupe(args), version, flags.validate, flags.ignoreNotFound, false)
		},
	}

	cmd.Flags().BoolVar(&flags.validate, "validate", false, "validate that flows exist before activation")
	cmd.Flags().BoolVar(&flags.ignoreNotFound, "ignore-not-found", false, "continue if some flows are not found")
	cmd.Flags().IntVar(&flags.version, "version", 0, "activate this version instead of the latest")

	return cmd
}

// runFlowCommand is the shared body of activate and deactivate.
func runFlowCommand(
	cmd *cobra.Command,
	o flowOp,
	names []string,
	version *int,
	validate, ignoreNotFound, force bool,
) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	st := cmdStyles(cmd)

	logger.Info().Ctx(ctx).Str("operation", o.verb).Int("flows", len(names)).Msgf("Starting %s of %d flows", o.verb, len(names))

	s, err := newSession(ctx)
	if err != nil {
		return err
	}

	if o.op == opDeactivate.op && s.cfg.IsProduction() && !force {
		if !confirmProductionDeactivation(out, cmd.InOrStdin(), st, names) {
			return exitWith("production deactivation not confirmed")
		}
		force = true
	}

	if _, err = s.authenticate(ctx); err != nil {
		return err
	}

	if validate {
		if names, err = validateFlows(ctx, cmd, s, names, ignoreNotFound); err != nil {
			return err
		}
	}

	if len(names) == 0 {
		fmt.Fprintln(out, st.warn.Render("⚠️  No flows to "+o.verb))
		return nil
	}

	if o.op == opDeactivate.op && s.cfg.IsProduction() && force {
		fmt.Fprintln(out, st.fail.Bold(true).Render("🚨 PRODUCTION DEACTIVATION CONFIRMED"))
		fmt.Fprintln(out, st.warn.Render(fmt.Sprintf("   Deactivating %d flows in production...", len(names))))
	}

	tracker := s.newTracker(cmd, len(names))
	fmt.Fprintln(out, st.info.Render(fmt.Sprintf("%s %d flows...", o.start, len(names))))

	res := o.run(ctx, s, flowfile.FromNames(names), version, tracker)

	if !isQuiet(cmd) {
		tracker.Summary(res)
	}
	if isVerbose(cmd) {
		printDetailedResults(out, st, res.Results, o.done, o.already, false)
	}

	if err = o.finish(out, cmd.ErrOrStderr(), st, res, false); err != nil {
		return err
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, st.ok.Render(fmt.Sprintf("✅ Successfully %s %d flows", o.pastTense(), res.Summary.Successful)))
	return nil
}
