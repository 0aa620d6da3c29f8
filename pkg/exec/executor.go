// Package exec runs the external agent CLI with timeout protection and
// classifies failures so the orchestrator never sees a raw process error.
package exec

import (
	"context"
	"io"
	"time"
)

// Executor defines the interface for running commands in different environments.
type Executor interface {
	// Run executes a command with the given options and returns the result.
	Run(ctx context.Context, cmd []string, opts *Opts) (Result, error)

	// Name returns the executor name for logging/debugging.
	Name() string

	// Available returns true if this executor can be used in the current environment.
	Available() bool
}

// Opts contains options for command execution.
type Opts struct {
	// WorkDir is the working directory for the command.
	WorkDir string

	// Env contains extra environment variables (KEY=VALUE format),
	// appended to the current environment.
	Env []string

	// Timeout is the maximum duration for command execution. Zero means no limit.
	Timeout time.Duration

	// Stdin/Stdout/Stderr attach the child's streams. Output is streamed
	// through for operator visibility, never captured.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Result contains the result of command execution.
type Result struct {
	// ExitCode is the exit code of the command. -1 if the command did not start.
	ExitCode int

	// Duration is how long the command took to execute.
	Duration time.Duration

	// TimedOut is true when the command was killed by the timeout.
	TimedOut bool
}
