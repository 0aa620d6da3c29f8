// Package orch runs the improve-and-verify cycles: state detection, role
// dispatch, timeout recovery, and termination accounting for the planning
// and execution workflows.
package orch

import (
	"errors"
	"fmt"
)

// Process exit codes, uniform across both workflows.
const (
	ExitSuccess       = 0
	ExitMaxIterations = 1
	ExitError         = 2
	ExitBlocked       = 3
)

// BlockedError signals that more human input is required before the run can
// make progress. Never retried; terminates with a distinct exit code.
//
// Since output capture was removed from the invocation layer for visibility,
// nothing raises this from process output anymore; the planning workflow's
// stuck artifact covers the user-facing case. The type stays because the
// exit-code contract still reserves code 3 for it.
type BlockedError struct {
	Role   string
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s blocked: %s", e.Role, e.Reason)
}

// ExitCodeForError maps a terminal error to the process exit code.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var blocked *BlockedError
	if errors.As(err, &blocked) {
		return ExitBlocked
	}

	// Validation, state-file, and invocation failures all share the generic
	// error code.
	return ExitError
}
