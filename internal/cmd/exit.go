package cmd

import (
	"errors"

	"github.com/quantmind-br/tialoc/internal/core"
)

// ExitError carries a process exit code alongside the underlying error so
// main can translate command failures into the documented codes.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "command failed"
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError wraps err with an explicit exit code.
func NewExitError(code int, err error) *ExitError {
	return &ExitError{Code: code, Err: err}
}

// ExitCode maps an error returned by command execution to a process exit
// code. Explicit ExitErrors win; otherwise the error chain decides.
func ExitCode(err error) int {
	if err == nil {
		return core.ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var ambiguous *core.AmbiguousSelectionError
	if errors.As(err, &ambiguous) {
		return core.ExitAmbiguous
	}

	var loadErr *core.ModuleLoadError
	if errors.As(err, &loadErr) {
		return core.ExitLoadFailed
	}

	if errors.Is(err, core.ErrNoCandidate) {
		return core.ExitNoInstall
	}

	return core.ExitGeneral
}
