package cli

import "fmt"

// ExitError carries a process exit code out of a command. The command has
// already reported the problem to the user, so main only exits with Code.
type ExitError struct {
	Code   int
	Reason string
}

func (e *ExitError) Error() string {
	return e.Reason
}

// exitWith returns an ExitError with code 1 and a formatted reason.
func exitWith(format string, args ...any) error {
	return &ExitError{Code: 1, Reason: fmt.Sprintf(format, args...)}
}
