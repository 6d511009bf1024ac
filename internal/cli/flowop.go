package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sunyxi/salesforce-flow-cli/internal/engine"
	"github.com/sunyxi/salesforce-flow-cli/internal/engine/batch"
	"github.com/sunyxi/salesforce-flow-cli/internal/flowfile"
)

// flowOp describes how an activation-style command reports itself.
type flowOp struct {
	op      engine.Operation
	verb    string
	start   string
	done    string
	already string
}

//nolint:gochecknoglobals // Fixed command descriptions.
var (
	opActivate = flowOp{
		op:      engine.OperationActivate,
		verb:    "activate",
		start:   "🚀 Activating",
		done:    "Activated",
		already: "Already Active",
	}
	opDeactivate = flowOp{
		op:      engine.OperationDeactivate,
		verb:    "deactivate",
		start:   "🛑 Deactivating",
		done:    "Deactivated",
		already: "Already Inactive",
	}
)

// pastTense returns "activated" or "deactivated".
func (o flowOp) pastTense() string {
	return o.verb + "d"
}

// run executes the operation for specs. version applies to activations without
// a per-flow version.
func (o flowOp) run(ctx context.Context, s *session, specs []flowfile.FlowSpec, version *int, sink batch.ProgressSink) batch.Result {
	if o.op == engine.OperationActivate {
		return s.engine.ActivateFlowsWithVersions(ctx, specs, version, sink)
	}
	return s.engine.DeactivateFlows(ctx, flowfile.Names(specs), sink)
}

// filterSpecs keeps the specs whose names are in keep.
func filterSpecs(specs []flowfile.FlowSpec, keep []string) []flowfile.FlowSpec {
	set := make(map[string]bool, len(keep))
	for _, k := range keep {
		set[k] = true
	}
	out := make([]flowfile.FlowSpec, 0, len(keep))
	for _, s := range specs {
		if set[s.Name] {
			out = append(out, s)
		}
	}
	return out
}

// validateFlows checks that names exist. Missing flows are dropped when
// ignoreNotFound is set; otherwise they are listed and an ExitError returned.
func validateFlows(
	ctx context.Context,
	cmd *cobra.Command,
	s *session,
	names []string,
	ignoreNotFound bool,
) ([]string, error) {
	st := cmdStyles(cmd)
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, st.info.Render("🔍 Validating flows exist..."))
	v, err := s.engine.ValidateFlowsExist(ctx, names)
	if err != nil {
		return nil, err
	}
	if len(v.NonExistent) == 0 {
		return names, nil
	}

	if ignoreNotFound {
		fmt.Fprintln(out, st.warn.Render(fmt.Sprintf("⚠️  %d flows not found, continuing with existing flows...", len(v.NonExistent))))
		return v.Existing, nil
	}

	errOut := cmd.ErrOrStderr()
	fmt.Fprintln(errOut, st.fail.Render(fmt.Sprintf("❌ %d flows not found:", len(v.NonExistent))))
	for _, n := range v.NonExistent {
		fmt.Fprintf(errOut, "   - %s\n", n)
	}
	return nil, exitWith("%d flows not found", len(v.NonExistent))
}

// finish prints the closing lines of an operation and maps failures to an ExitError.
func (o flowOp) finish(w, errOut io.Writer, st styles, res batch.Result, continueOnError bool) error {
	if res.Summary.Failed > 0 {
		fmt.Fprintln(errOut)
		fmt.Fprintln(errOut, st.fail.Render(fmt.Sprintf("❌ %d flows failed to %s", res.Summary.Failed, o.verb)))
		if continueOnError {
			fmt.Fprintln(w, st.warn.Render("⚠️  --continue-on-error specified, exiting with success code"))
			return nil
		}
		return exitWith("%d flows failed to %s", res.Summary.Failed, o.verb)
	}
	return nil
}
