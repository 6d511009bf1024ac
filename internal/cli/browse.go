package cli

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sunyxi/salesforce-flow-cli/internal/config"
	"github.com/sunyxi/salesforce-flow-cli/internal/salesforce"
	listview "github.com/sunyxi/salesforce-flow-cli/internal/tui/list"
)

// Initial viewport until the first resize message arrives.
const (
	browseHeight = 24
	browseWidth  = 80
)

//nolint:gochecknoglobals // Overridden in tests.
var (
	outputIsTerminal = writerIsTerminal
	startBrowser     = func(cmd *cobra.Command, m tea.Model) (tea.Model, error) {
		return tea.NewProgram(m,
			tea.WithContext(cmd.Context()),
			tea.WithInput(cmd.InOrStdin()),
			tea.WithOutput(cmd.OutOrStdout()),
			tea.WithAltScreen(),
		).Run()
	}
)

// browseFlows shows flows in a scrolling list and prints the details of the chosen one.
func browseFlows(cmd *cobra.Command, flows []salesforce.FlowStatus) error {
	if !stdinIsTerminal() || !outputIsTerminal(cmd.OutOrStdout()) {
		return errors.New("--interactive requires a terminal")
	}

	out := cmd.OutOrStdout()
	st := newStyles(out, config.GetGlobalConfig().CLI.ColorOutput)

	title := st.bold.Render(fmt.Sprintf("📋 %d flows", len(flows)))
	model := listview.New(title, flows, browseHeight, browseWidth, func(f salesforce.FlowStatus, selected bool) string {
		return flowRow(st, f, selected)
	})

	if _, err := startBrowser(cmd, model); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("interactive list failed: %w", err)
	}

	if chosen, ok := model.Chosen(); ok {
		writeVersionsDetailed(out, st, []salesforce.FlowStatus{chosen})
	}
	return nil
}

// flowRow renders one line of the interactive list.
func flowRow(st styles, f salesforce.FlowStatus, selected bool) string {
	cursor := "  "
	name := st.name.Render(pad(f.Name, minNameColumn))
	if selected {
		cursor = "› "
		name = st.bold.Render(pad(f.Name, minNameColumn))
	}
	status := st.fail.Render(pad(activeLabel(f.IsActive), 8))
	if f.IsActive {
		status = st.ok.Render(pad(activeLabel(f.IsActive), 8))
	}
	line := fmt.Sprintf("%s%s  %s  %s  %s/%s",
		cursor, name, pad(f.FlowType.Type, minTypeColumn), status,
		versionLabel(f.ActiveVersion), versionLabel(f.LatestVersion))
	if f.HasNewerVersion {
		line += " " + st.warn.Render("⚠")
	}
	return line
}
