package cli

import (
	"github.com/spf13/cobra"

	"github.com/sunyxi/salesforce-flow-cli/internal/flowfile"
)

type deactivateFlags struct {
	validate       bool
	ignoreNotFound bool
	force          bool
}

// NewDeactivateCmd creates the deactivate command.
func NewDeactivateCmd() *cobra.Command {
	var flags deactivateFlags

	cmd := &cobra.Command{
		Use:   "deactivate <flows...>",
		Short: "Deactivate one or more flows",
		Long: `Deactivate one or more flows by API name. In production, --force is required
unless the deactivation is confirmed interactively.`,
		Example: `  sf-flow --sandbox deactivate Legacy_Flow
  sf-flow --production deactivate Legacy_Flow --force`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlowCommand(cmd, opDeactivate, flowfile.Dedupe(args), nil, flags.validate, flags.ignoreNotFound, flags.force)
		},
	}

	cmd.Flags().BoolVar(&flags.validate, "validate", false, "validate that flows exist before deactivation")
	cmd.Flags().BoolVar(&flags.ignoreNotFound, "ignore-not-found", false, "continue if some flows are not found")
	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "force deactivation in production")

	return cmd
}
