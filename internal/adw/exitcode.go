package adw

import "errors"

// Exit codes are grouped by failure class so wrapping automation can react
// without parsing logs: 0 success, 1-9 blockers, 10-19 validation, 20-29
// execution, 30-39 resource.
const (
	ExitOK = 0

	// Blockers: preconditions that stop a run before any agent work.
	ExitMissingEnv      = 1
	ExitMissingState    = 2
	ExitMissingWorktree = 3
	ExitMissingSpec     = 4
	ExitInvalidArgs     = 5

	// Validation failures from the pre-PR gate.
	ExitValidationFailed = 10
	ExitNothingToCommit  = 11

	// Execution failures while running phases.
	ExitAgentFailed = 20
	ExitTimeout     = 21
	ExitParseFailed = 22
	ExitCancelled   = 23

	// Resource failures outside the agent itself.
	ExitGitFailed  = 30
	ExitStateIO    = 31
	ExitGitHubAPI  = 32
	ExitRepoAccess = 33
)

// ExitError carries an exit code with a wrapped cause.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// Exitf wraps an error with a specific exit code.
func Exitf(code int, err error) error {
	if err == nil {
		return nil
	}

	return &ExitError{Code: code, Err: err}
}

// ExitCode maps any error to its process exit code. Unclassified errors are
// treated as agent execution failures.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	return ExitAgentFailed
}
