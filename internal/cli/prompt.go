package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// stdinIsTerminal reports whether confirmation prompts can be shown.
var stdinIsTerminal = func() bool { return isTerminal(os.Stdin) } //nolint:gochecknoglobals // Overridden in tests

// PromptResult contains the result of a user prompt interaction.
type PromptResult struct {
	// Accepted is true if the user accepted the prompt (typed "y" or "yes")
	Accepted bool
	// Cancelled is true if reading input failed
	Cancelled bool
}

// Confirm asks a yes/no question and defaults to No.
// It returns immediately with Accepted=false in non-interactive (non-TTY) environments.
func Confirm(writer io.Writer, reader io.Reader, question string) PromptResult {
	if !stdinIsTerminal() {
		return PromptResult{Accepted: false}
	}

	fmt.Fprintf(writer, "? %s [y/N] ", question)

	scanner := bufio.NewScanner(reader)
	if !scanner.Scan() {
		if scanner.Err() != nil {
			return PromptResult{Cancelled: true}
		}
		// EOF without error - treat as decline (user pressed Ctrl+D)
		return PromptResult{Accepted: false}
	}

	switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
	case "y", "yes":
		return PromptResult{Accepted: true}
	default:
		return PromptResult{Accepted: false}
	}
}

// confirmProductionDeactivation shows the production warning for names and
// asks for confirmation on a terminal. It returns true if the caller may proceed.
func confirmProductionDeactivation(w io.Writer, r io.Reader, st styles, names []string) bool {
	fmt.Fprintln(w, st.warn.Render("⚠️  You are about to deactivate flows in PRODUCTION"))
	fmt.Fprintln(w, st.warn.Render("   This action will stop these flows from running"))
	fmt.Fprintln(w, st.warn.Render("   Use --force flag to confirm this action"))
	fmt.Fprintln(w)
	fmt.Fprintln(w, st.name.Render("Flows to deactivate:"))
	for _, n := range names {
		fmt.Fprintf(w, "   - %s\n", n)
	}
	fmt.Fprintln(w)

	res := Confirm(w, r, fmt.Sprintf("Deactivate %d flows in PRODUCTION?", len(names)))
	if res.Accepted {
		return true
	}
	if res.Cancelled {
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, st.fail.Render("❌ Aborting deactivation (use --force to override)"))
	return false
}
