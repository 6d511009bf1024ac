package cli

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sunyxi/salesforce-flow-cli/internal/flowfile"
	"github.com/sunyxi/salesforce-flow-cli/internal/salesforce"
)

// Display formats for versions.
const (
	displayTable    = "table"
	displaySimple   = "simple"
	displayDetailed = "detailed"
)

type versionsFlags struct {
	file             string
	useConfig        bool
	flows            []string
	all              bool
	status           string
	updatesAvailable bool
	format           string
	output           string
	outputFormat     string
}

// versionsExport is the JSON export of the versions command.
type versionsExport struct {
	Timestamp  string                  `json:"timestamp"`
	TotalFlows int                     `json:"totalFlows"`
	Flows      []salesforce.FlowStatus `json:"flows"`
}

// NewVersionsCmd creates the versions command.
func NewVersionsCmd() *cobra.Command {
	var flags versionsFlags

	cmd := &cobra.Command{
		Use:     "versions [flows...]",
		Aliases: []string{"get-active-versions"},
		Short:   "Show active and latest versions of flows",
		Long: `Show the active and latest version of flows collected from arguments, --file,
--flows and the configuration, or of every flow with --all. Results can be exported
as JSON, CSV or text.`,
		Example: `  sf-flow versions Flow_A Flow_B
  sf-flow versions --all --updates-available
  sf-flow versions --use-config --format detailed
  sf-flow versions --all --output versions.csv --output-format csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersions(cmd, args, flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.file, "file", "", "load flows from file (JSON, TXT, or CSV)")
	f.BoolVar(&flags.useConfig, "use-config", false, "use flows from the configuration for the current environment")
	f.StringSliceVar(&flags.flows, "flows", nil, "additional flows to query")
	f.BoolVar(&flags.all, "all", false, "query every flow in the org")
	f.StringVar(&flags.status, "status", "", "filter by status (active, inactive)")
	f.BoolVar(&flags.updatesAvailable, "updates-available", false, "only show flows with a newer version than the active one")
	f.StringVar(&flags.format, "format", displayTable, "display format (table, simple, detailed)")
	f.StringVar(&flags.output, "output", "", "export results to this file")
	f.StringVar(&flags.outputFormat, "output-format", formatJSON, "export format (json, csv, txt)")

	return cmd
}

//nolint:funlen // Sequential command flow mirrors the user-visible steps.
func runVersions(cmd *cobra.Command, args []string, flags versionsFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	st := cmdStyles(cmd)

	if err := validateVersionsFlags(flags); err != nil {
		return err
	}

	s, err := newSession(ctx)
	if err != nil {
		return err
	}

	var names []string
	if flags.all {
		fmt.Fprintln(out, st.info.Render("📊 Fetching all flows..."))
	} else {
		specs, collectErr := collectFlowSpecs(cmd, s.cfg, flags.file, flags.useConfig, append(args, flags.flows...))
		if collectErr != nil {
			return collectErr
		}
		names = flowfile.Names(specs)
		if len(names) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), st.fail.Render("❌ No flows specified. Use --file, --use-config, --all, or provide flow names"))
			return exitWith("no flows specified")
		}
		fmt.Fprintln(out, st.info.Render(fmt.Sprintf("📊 Total unique flows to query: %d", len(names))))
	}

	if _, err = s.authenticate(ctx); err != nil {
		return err
	}

	var flows []salesforce.FlowStatus
	if flags.all {
		fmt.Fprintln(out, st.info.Render("🔍 Retrieving all flows..."))
		flows, err = s.flows.ListFlowStatuses(ctx)
	} else {
		fmt.Fprintln(out, st.info.Render("🔍 Retrieving flow versions..."))
		flows, err = s.flows.GetMultipleFlowStatuses(ctx, names)
	}
	if err != nil {
		return fmt.Errorf("failed to retrieve flow versions: %w", err)
	}

	flows = filterFlows(flows, "", flags.status)
	if flags.updatesAvailable {
		flows = onlyWithUpdates(flows)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, st.bold.Render("📋 Flow Versions:"))
	fmt.Fprintln(out)
	switch flags.format {
	case displaySimple:
		writeVersionsSimple(out, flows)
	case displayDetailed:
		writeVersionsDetailed(out, st, flows)
	default:
		writeVersionsTable(out, st, flows)
	}

	if flags.output != "" {
		path, exportErr := exportVersions(flags.output, flags.outputFormat, flows, nowFunc())
		if exportErr != nil {
			logger.Warn().Ctx(ctx).Err(exportErr).Str("path", flags.output).Msg("export failed")
			fmt.Fprintln(cmd.ErrOrStderr(), st.warn.Render(fmt.Sprintf("⚠️  Failed to export results: %v", exportErr)))
		} else {
			fmt.Fprintln(out)
			fmt.Fprintln(out, st.ok.Render("💾 Results exported to: "+path))
		}
	}

	if !isQuiet(cmd) {
		writeVersionsSummary(out, st, flows)
	}
	return nil
}

func validateVersionsFlags(flags versionsFlags) error {
	switch flags.format {
	case displayTable, displaySimple, displayDetailed:
	default:
		return fmt.Errorf("invalid --format %q (expected table, simple or detailed)", flags.format)
	}
	switch flags.outputFormat {
	case formatJSON, formatCSV, "txt":
	default:
		return fmt.Errorf("invalid --output-format %q (expected json, csv or txt)", flags.outputFormat)
	}
	switch strings.ToLower(flags.status) {
	case "", "active", "inactive":
	default:
		return fmt.Errorf("invalid --status %q (expected active or inactive)", flags.status)
	}
	return nil
}

func onlyWithUpdates(flows []salesforce.FlowStatus) []salesforce.FlowStatus {
	out := flows[:0:0]
	for _, f := range flows {
		if f.HasNewerVersion {
			out = append(out, f)
		}
	}
	return out
}

func writeVersionsTable(w io.Writer, st styles, flows []salesforce.FlowStatus) {
	nameWidth := minNameColumn
	for _, f := range flows {
		nameWidth = max(nameWidth, len(f.Name))
	}

	fmt.Fprintln(w, st.bold.Render(fmt.Sprintf("%s | %6s | %6s | Status", pad("Name", nameWidth), "Active", "Latest")))
	fmt.Fprintln(w, strings.Repeat("-", nameWidth+32))

	for _, f := range flows {
		if f.Error != "" {
			fmt.Fprintf(w, "%s | %s\n", pad(f.Name, nameWidth), st.fail.Render("ERROR: "+f.Error))
			continue
		}
		status := st.fail.Render("✗")
		if f.IsActive {
			status = st.ok.Render("✓")
		}
		if f.HasNewerVersion {
			status += " " + st.warn.Render("⚠")
		}
		fmt.Fprintf(w, "%s | %6s | %6s | %s\n",
			st.name.Render(pad(f.Name, nameWidth)), versionLabel(f.ActiveVersion), versionLabel(f.LatestVersion), status)
	}
}

func writeVersionsSimple(w io.Writer, flows []salesforce.FlowStatus) {
	for _, f := range flows {
		if f.Error != "" {
			fmt.Fprintf(w, "%s: ERROR\n", f.Name)
			continue
		}
		fmt.Fprintf(w, "%s: v%d\n", f.Name, f.ActiveVersion)
	}
}

func writeVersionsDetailed(w io.Writer, st styles, flows []salesforce.FlowStatus) {
	for _, f := range flows {
		if f.Error != "" {
			fmt.Fprintln(w, st.fail.Render(fmt.Sprintf("❌ %s: %s", f.Name, f.Error)))
			fmt.Fprintln(w)
			continue
		}
		label := f.Label
		if label == "" {
			label = "N/A"
		}
		fmt.Fprintln(w, st.bold.Render("📋 "+f.Name))
		fmt.Fprintf(w, "   Label: %s\n", label)
		fmt.Fprintf(w, "   Status: %s\n", activeLabel(f.IsActive))
		fmt.Fprintf(w, "   Active Version: %s\n", versionLabel(f.ActiveVersion))
		fmt.Fprintf(w, "   Latest Version: %s\n", versionLabel(f.LatestVersion))
		if f.HasNewerVersion {
			fmt.Fprintln(w, st.warn.Render("   ⚠ Update available!"))
		}
		if f.Description != "" {
			fmt.Fprintf(w, "   Description: %s\n", f.Description)
		}
		fmt.Fprintln(w)
	}
}

func writeVersionsSummary(w io.Writer, st styles, flows []salesforce.FlowStatus) {
	var active, updates int
	for _, f := range flows {
		if f.IsActive {
			active++
		}
		if f.HasNewerVersion {
			updates++
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, st.bold.Render("📊 Summary:"))
	fmt.Fprintf(w, "   Total flows: %d\n", len(flows))
	fmt.Fprintf(w, "   Active: %d\n", active)
	fmt.Fprintf(w, "   Inactive: %d\n", len(flows)-active)
	fmt.Fprintf(w, "   Updates available: %d\n", updates)
}

// exportVersions writes flows to path in format and returns the absolute path written.
func exportVersions(path, format string, flows []salesforce.FlowStatus, now time.Time) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	switch format {
	case formatCSV:
		data, csvErr := versionsCSV(flows)
		if csvErr != nil {
			return "", csvErr
		}
		err = writeFile(abs, data)
	case "txt":
		err = writeFile(abs, []byte(versionsText(flows)))
	default:
		err = writeJSONFile(abs, versionsExport{
			Timestamp:  now.UTC().Format(time.RFC3339),
			TotalFlows: len(flows),
			Flows:      flows,
		})
	}
	if err != nil {
		return "", err
	}
	return abs, nil
}

func versionsCSV(flows []salesforce.FlowStatus) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Name", "Active Version", "Latest Version", "Is Active", "Has Updates", "Label", "Description"})
	for _, f := range flows {
		_ = w.Write([]string{
			f.Name,
			strconv.Itoa(f.ActiveVersion),
			strconv.Itoa(f.LatestVersion),
			strconv.FormatBool(f.IsActive),
			strconv.FormatBool(f.HasNewerVersion),
			f.Label,
			f.Description,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("writing csv: %w", err)
	}
	return buf.Bytes(), nil
}

func versionsText(flows []salesforce.FlowStatus) string {
	var b strings.Builder
	for _, f := range flows {
		if f.Error != "" {
			fmt.Fprintf(&b, "%s: ERROR - %s\n", f.Name, f.Error)
			continue
		}
		fmt.Fprintf(&b, "%s: Active v%d, Latest v%d", f.Name, f.ActiveVersion, f.LatestVersion)
		if f.HasNewerVersion {
			b.WriteString(" (Update available)")
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func versionLabel(v int) string {
	if v == 0 {
		return "-"
	}
	return "v" + strconv.Itoa(v)
}
