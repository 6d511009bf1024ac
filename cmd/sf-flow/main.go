// Command sf-flow bulk-manages Salesforce Flows through the Tooling API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sunyxi/salesforce-flow-cli/internal/cli"
	"github.com/sunyxi/salesforce-flow-cli/pkg/version"
)

func main() {
	os.Exit(extractExitCode(run()))
}

// run executes the root command. Ctrl-C cancels the context so a running
// batch stops starting new flows and reports the rest as failed.
func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCmd(versionString())
	err := root.ExecuteContext(ctx)

	var exitErr *cli.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

// versionString is the version shown by --version, with the commit when known.
func versionString() string {
	v := version.GetVersion()
	if commit := version.GetGitCommit(); commit != "" {
		if len(commit) > 7 {
			commit = commit[:7]
		}
		v += " (" + commit + ")"
	}
	return v
}

// extractExitCode maps an error returned by run to a process exit code.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}
