package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sunyxi/salesforce-flow-cli/internal/config"
	"github.com/sunyxi/salesforce-flow-cli/internal/engine"
	"github.com/sunyxi/salesforce-flow-cli/internal/engine/batch"
	"github.com/sunyxi/salesforce-flow-cli/internal/flowfile"
)

type batchFlags struct {
	file            string
	useConfig       bool
	flows           []string
	validate        bool
	ignoreNotFound  bool
	force           bool
	dryRun          bool
	showStatus      bool
	report          string
	continueOnError bool
	showErrors      bool
	metricsFile     string
}

// NewBatchCmd creates batch-activate or batch-deactivate.
func NewBatchCmd(o flowOp) *cobra.Command {
	var flags batchFlags

	cmd := &cobra.Command{
		Use:   "batch-" + o.verb,
		Short: fmt.Sprintf("%s multiple flows from a file or the configuration", capitalize(o.verb)),
		Long: fmt.Sprintf(`%s flows collected from --file (JSON, TXT or CSV), the flows configured for the
current environment (--use-config) and --flows. Duplicates are removed.`, capitalize(o.verb)),
		Example: fmt.Sprintf(`  sf-flow batch-%[1]s --file flows.json --report report.json
  sf-flow batch-%[1]s --use-config --dry-run --show-status
  sf-flow batch-%[1]s --flows Flow_A,Flow_B --continue-on-error`, o.verb),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd, o, flags)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.file, "file", "f", "", "load flows from file (JSON, TXT, or CSV)")
	f.BoolVar(&flags.useConfig, "use-config", false, "use flows from the configuration for the current environment")
	f.StringSliceVar(&flags.flows, "flows", nil, "additional flows to "+o.verb)
	f.BoolVar(&flags.validate, "validate", false, "validate that flows exist before processing")
	f.BoolVar(&flags.ignoreNotFound, "ignore-not-found", false, "continue if some flows are not found")
	if o.op == engine.OperationDeactivate {
		f.BoolVar(&flags.force, "force", false, "force deactivation in production")
	}
	f.BoolVar(&flags.dryRun, "dry-run", false, "show what would be done without making changes")
	f.BoolVar(&flags.showStatus, "show-status", false, "show current status during a dry run")
	f.StringVar(&flags.report, "report", "", "write a detailed JSON report to this path")
	f.BoolVar(&flags.continueOnError, "continue-on-error", false, "exit with success even if some flows fail")
	f.BoolVar(&flags.showErrors, "show-errors", false, "show detailed error messages in verbose mode")
	f.StringVar(&flags.metricsFile, "metrics-file", "", "write Prometheus metrics for the run to this path")

	return cmd
}

//nolint:gocognit,funlen // Sequential command flow mirrors the user-visible steps.
func runBatch(cmd *cobra.Command, o flowOp, flags batchFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	st := cmdStyles(cmd)

	logger.Info().Ctx(ctx).Str("operation", o.verb).Msgf("Starting batch %s operation", o.verb)

	specs, err := collectFlowSpecs(cmd, config.GetGlobalConfig(), flags.file, flags.useConfig, flags.flows)
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		fmt.Fprintln(errOut, st.fail.Render("❌ No flows specified. Use --file, --use-config, or provide flow names"))
		return exitWith("no flows specified")
	}
	fmt.Fprintln(out, st.info.Render(fmt.Sprintf("📊 Total unique flows to process: %d", len(specs))))

	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	if _, err = s.authenticate(ctx); err != nil {
		return err
	}

	if flags.validate {
		fmt.Fprintln(out, st.info.Render("🔍 Validating flows exist..."))
		v, vErr := s.engine.ValidateFlowsExist(ctx, flowfile.Names(specs))
		if vErr != nil {
			return vErr
		}
		if len(v.NonExistent) > 0 {
			fmt.Fprintln(out, st.warn.Render(fmt.Sprintf("⚠️  %d flows not found:", len(v.NonExistent))))
			for _, n := range v.NonExistent {
				fmt.Fprintf(out, "   - %s\n", n)
			}
			if !flags.ignoreNotFound {
				fmt.Fprintln(errOut, st.fail.Render("❌ Aborting due to missing flows"))
				return exitWith("%d flows not found", len(v.NonExistent))
			}
			fmt.Fprintln(out, st.warn.Render("   Continuing with existing flows..."))
			specs = filterSpecs(specs, v.Existing)
		}
	}

	if len(specs) == 0 {
		fmt.Fprintln(out, st.warn.Render("⚠️  No valid flows to process"))
		return nil
	}

	if o.op == engine.OperationDeactivate && s.cfg.IsProduction() && !flags.force {
		fmt.Fprintln(out, st.fail.Bold(true).Render("🚨 PRODUCTION DEACTIVATION WARNING"))
		fmt.Fprintln(out, st.warn.Render("   You are about to deactivate flows in PRODUCTION"))
		fmt.Fprintln(out, st.warn.Render(fmt.Sprintf("   This will affect %d flows and may impact business processes", len(specs))))
		fmt.Fprintln(out, st.warn.Render("   Use --force flag to confirm this action"))
		fmt.Fprintln(out)
		fmt.Fprintln(errOut, st.fail.Render("❌ Aborting batch deactivation (use --force to override)"))
		return exitWith("production deactivation requires --force")
	}

	names := flowfile.Names(specs)
	if flags.dryRun {
		return runDryRun(cmd, s, o, names, flags.showStatus)
	}

	tracker := s.newTracker(cmd, len(names))
	fmt.Fprintln(out, st.info.Render(fmt.Sprintf("🚀 Starting batch %s of %d flows...", o.verb, len(names))))

	res := o.run(ctx, s, specs, nil, tracker)

	if !isQuiet(cmd) {
		tracker.Summary(res)
	}

	if flags.report != "" {
		if rErr := writeBatchReport(flags.report, o, s.cfg.Environment(), res, nowFunc()); rErr != nil {
			fmt.Fprintln(errOut, st.warn.Render(fmt.Sprintf("⚠️  Failed to generate report: %v", rErr)))
			logger.Warn().Ctx(ctx).Err(rErr).Msg("failed to generate report")
		} else {
			fmt.Fprintln(out, st.info.Render("📊 Detailed report saved to: "+flags.report))
			logger.Info().Ctx(ctx).Str("path", flags.report).Msg("generated detailed report")
		}
	}

	if flags.metricsFile != "" {
		if mErr := s.recorder.WriteTextfile(flags.metricsFile); mErr != nil {
			fmt.Fprintln(errOut, st.warn.Render(fmt.Sprintf("⚠️  Failed to write metrics: %v", mErr)))
			logger.Warn().Ctx(ctx).Err(mErr).Msg("failed to write metrics file")
		} else {
			fmt.Fprintln(out, st.info.Render("📈 Metrics written to: "+flags.metricsFile))
		}
	}

	if isVerbose(cmd) {
		printDetailedResults(out, st, res.Results, o.done, o.already, flags.showErrors)
	}

	if err = o.finish(out, errOut, st, res, flags.continueOnError); err != nil {
		return err
	}
	if !res.Summary.HasFailures() {
		fmt.Fprintln(out)
		fmt.Fprintln(out, st.ok.Render(fmt.Sprintf("✅ Successfully processed %d flows", res.Summary.Successful)))
	}
	return nil
}

// collectFlowSpecs merges the file, the configured flows and extra names, in that order, without duplicates.
func collectFlowSpecs(cmd *cobra.Command, cfg *config.Config, file string, useConfig bool, extra []string) ([]flowfile.FlowSpec, error) {
	out := cmd.OutOrStdout()
	st := cmdStyles(cmd)

	var specs []flowfile.FlowSpec
	if file != "" {
		loaded, err := flowfile.LoadContext(cmd.Context(), file)
		if err != nil {
			return nil, fmt.Errorf("failed to load flows from file %s: %w", file, err)
		}
		specs = append(specs, loaded...)
		fmt.Fprintln(out, st.info.Render(fmt.Sprintf("📄 Loaded %d flows from file: %s", len(loaded), file)))
	}
	if useConfig {
		configured := cfg.EnvironmentFlows()
		specs = append(specs, flowfile.FromNames(configured)...)
		fmt.Fprintln(out, st.info.Render(fmt.Sprintf("⚙️  Loaded %d flows from configuration", len(configured))))
	}
	if len(extra) > 0 {
		specs = append(specs, flowfile.FromNames(extra)...)
		fmt.Fprintln(out, st.info.Render(fmt.Sprintf("💻 Added %d flows from command line", len(extra))))
	}
	return flowfile.DedupeSpecs(specs), nil
}

func runDryRun(cmd *cobra.Command, s *session, o flowOp, names []string, showStatus bool) error {
	out := cmd.OutOrStdout()
	st := cmdStyles(cmd)

	fmt.Fprintln(out)
	fmt.Fprintln(out, st.name.Render("🧪 DRY RUN MODE - No changes will be made"))
	fmt.Fprintln(out, st.info.Render(fmt.Sprintf("📋 Would %s the following %d flows:", o.verb, len(names))))
	printNumberedList(out, names)

	if showStatus {
		fmt.Fprintln(out)
		fmt.Fprintln(out, st.info.Render("📊 Current Status:"))
		res := s.engine.GetFlowStatuses(cmd.Context(), names, nil)
		for _, r := range res.Results {
			p, ok := r.Payload.(engine.StatusPayload)
			if !r.Success || !ok {
				continue
			}
			status := st.fail.Render("Inactive")
			if p.IsActive {
				status = st.ok.Render("Active")
			}
			fmt.Fprintf(out, "   %s: %s (v%d)\n", p.Name, status, p.ActiveVersion)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, st.name.Render("✅ Dry run completed - no changes made"))
	return nil
}

// batchReport is the --report document.
type batchReport struct {
	ID          string              `json:"id"`
	Timestamp   string              `json:"timestamp"`
	Operation   string              `json:"operation"`
	Environment string              `json:"environment"`
	Summary     batch.Summary       `json:"summary"`
	Results     []batchReportResult `json:"results"`
}

type batchReportResult struct {
	FlowName           string `json:"flowName"`
	Success            bool   `json:"success"`
	Message            string `json:"message,omitempty"`
	Error              string `json:"error,omitempty"`
	PreviousVersion    *int   `json:"previousVersion,omitempty"`
	NewVersion         *int   `json:"newVersion,omitempty"`
	WasAlreadyActive   bool   `json:"wasAlreadyActive"`
	WasAlreadyInactive bool   `json:"wasAlreadyInactive"`
}

func newBatchReport(o flowOp, environment string, res batch.Result, now time.Time) batchReport {
	report := batchReport{
		ID:          uuid.NewString(),
		Timestamp:   now.UTC().Format(time.RFC3339),
		Operation:   o.verb,
		Environment: environment,
		Summary:     res.Summary,
		Results:     make([]batchReportResult, 0, len(res.Results)),
	}
	for _, r := range res.Results {
		item := batchReportResult{
			FlowName:           r.ID,
			Success:            r.Success,
			Message:            r.Message,
			Error:              r.Error,
			WasAlreadyActive:   r.NoOp == batch.NoOpAlreadyActive,
			WasAlreadyInactive: r.NoOp == batch.NoOpAlreadyInactive,
		}
		switch p := r.Payload.(type) {
		case engine.ActivationPayload:
			item.PreviousVersion = &p.PreviousVersion
			item.NewVersion = &p.NewVersion
		case engine.DeactivationPayload:
			item.PreviousVersion = &p.PreviousVersion
		}
		report.Results = append(report.Results, item)
	}
	return report
}

func writeBatchReport(path string, o flowOp, environment string, res batch.Result, now time.Time) error {
	return writeJSONFile(path, newBatchReport(o, environment, res, now))
}

// writeJSONFile writes v as indented JSON, creating parent directories.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating directory for %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func capitalize(s string) string {
	return cases.Title(language.English).String(s)
}
