package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sunyxi/salesforce-flow-cli/internal/flowfile"
	"github.com/sunyxi/salesforce-flow-cli/internal/salesforce"
)

// flowURLs is one flow in the generate-urls report.
type flowURLs struct {
	Name              string `json:"name"`
	Label             string `json:"label,omitempty"`
	Type              string `json:"type,omitempty"`
	IsActive          bool   `json:"isActive"`
	ActiveVersion     int    `json:"activeVersion"`
	LatestVersion     int    `json:"latestVersion"`
	CanActivateViaAPI bool   `json:"canActivateViaApi"`
	SetupURL          string `json:"setupUrl,omitempty"`
	EditURL           string `json:"editUrl,omitempty"`
	Error             string `json:"error,omitempty"`
}

// urlReport is the --output document of generate-urls.
type urlReport struct {
	GeneratedAt string     `json:"generatedAt"`
	InstanceURL string     `json:"instanceUrl"`
	Environment string     `json:"environment"`
	Flows       []flowURLs `json:"flows"`
}

// NewGenerateURLsCmd creates the generate-urls command.
func NewGenerateURLsCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "generate-urls <flows...>",
		Short: "Generate Setup and Flow Builder URLs for flows",
		Long: `Print the Setup page and Flow Builder URLs of each flow together with its type
and whether it can be activated through the API. Flows that require UI activation
are counted in the summary.`,
		Example: `  sf-flow generate-urls Screen_Flow_A Record_Flow_B
  sf-flow generate-urls Screen_Flow_A -o urls.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateURLs(cmd, flowfile.Dedupe(args), output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "save the URLs to a JSON file")

	return cmd
}

func runGenerateURLs(cmd *cobra.Command, names []string, output string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	st := cmdStyles(cmd)

	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	instance, err := s.authenticate(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, st.info.Render(fmt.Sprintf("🔗 Generating Salesforce URLs for %d flows...", len(names))))
	fmt.Fprintln(out)

	report := urlReport{
		GeneratedAt: nowFunc().UTC().Format(time.RFC3339),
		InstanceURL: instance,
		Environment: strings.ToUpper(s.cfg.Environment()),
		Flows:       make([]flowURLs, 0, len(names)),
	}
	for _, name := range names {
		u := buildFlowURLs(ctx, s.flows, instance, name)
		report.Flows = append(report.Flows, u)
		printFlowURLs(out, st, u)
	}

	if output != "" {
		if err = writeJSONFile(output, report); err != nil {
			return err
		}
		fmt.Fprintln(out, st.ok.Render("📄 Report saved to: "+output))
		fmt.Fprintln(out)
	}

	writeURLSummary(out, st, report)
	return nil
}

// buildFlowURLs resolves one flow. Lookup failures are recorded in Error.
func buildFlowURLs(ctx context.Context, flows *salesforce.FlowClient, instance, name string) flowURLs {
	def, err := flows.GetFlowDefinition(ctx, name)
	if err != nil {
		logger.Debug().Ctx(ctx).Err(err).Str("flow", name).Msg("flow lookup failed")
		return flowURLs{Name: name, Error: err.Error()}
	}

	flowType := flows.IdentifyFlowType(ctx, def)
	u := flowURLs{
		Name:              name,
		Label:             def.MasterLabel,
		Type:              flowType.Type,
		IsActive:          def.ActiveVersionNumber() > 0,
		ActiveVersion:     def.ActiveVersionNumber(),
		LatestVersion:     def.LatestVersionNumber(),
		CanActivateViaAPI: flowType.CanActivateViaAPI,
		SetupURL:          salesforce.FlowSetupURL(instance, def.ID),
	}

	info, err := flows.GetFlowVersionInfo(ctx, name)
	if err != nil {
		logger.Debug().Ctx(ctx).Err(err).Str("flow", name).Msg("no flow versions")
		return u
	}
	u.LatestVersion = info.LatestVersion
	if info.LatestVersion > 0 {
		versionID, verErr := flows.GetFlowVersionID(ctx, info.DefinitionID, info.LatestVersion)
		if verErr == nil {
			u.EditURL = salesforce.FlowEditURL(instance, versionID)
		}
	}
	return u
}

func printFlowURLs(w io.Writer, st styles, u flowURLs) {
	if u.Error != "" {
		fmt.Fprintln(w, st.fail.Render(fmt.Sprintf("❌ %s: %s", u.Name, u.Error)))
		fmt.Fprintln(w)
		return
	}

	status := st.fail.Render("Inactive")
	if u.IsActive {
		status = st.ok.Render("Active")
	}
	api := st.warn.Render("✗ Not Supported (UI Required)")
	if u.CanActivateViaAPI {
		api = st.ok.Render("✓ Supported")
	}

	fmt.Fprintln(w, st.bold.Render("📋 "+u.Name))
	fmt.Fprintf(w, "   Type: %s\n", u.Type)
	fmt.Fprintf(w, "   Status: %s (v%d/%d)\n", status, u.ActiveVersion, u.LatestVersion)
	fmt.Fprintf(w, "   API Activation: %s\n", api)
	fmt.Fprintf(w, "   📱 Setup URL: %s\n", st.name.Render(u.SetupURL))
	if u.EditURL != "" {
		fmt.Fprintf(w, "   ✏️  Edit URL: %s\n", st.name.Render(u.EditURL))
	}
	fmt.Fprintln(w)
}

func writeURLSummary(w io.Writer, st styles, report urlReport) {
	flows := report.Flows
	var ok, failed, requiresUI int
	for _, u := range flows {
		switch {
		case u.Error != "":
			failed++
		case !u.CanActivateViaAPI:
			ok++
			requiresUI++
		default:
			ok++
		}
	}

	fmt.Fprintln(w, st.bold.Render("📊 Summary:"))
	fmt.Fprintf(w, "   Total: %d\n", len(flows))
	fmt.Fprintf(w, "   Successful: %d\n", ok)
	fmt.Fprintf(w, "   Requires UI Activation: %d\n", requiresUI)
	fmt.Fprintf(w, "   Failed: %d\n", failed)

	if requiresUI > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, st.warn.Render(fmt.Sprintf("⚠️  %d flows require manual activation through Salesforce UI", requiresUI)))
		fmt.Fprintln(w, "   💡 Tip: Use the generated URLs above to quickly navigate to each flow")
		fmt.Fprintf(w, "   📂 All flows: %s\n", st.name.Render(salesforce.FlowListURL(report.InstanceURL)))
	}
}
