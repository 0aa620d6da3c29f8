package exec

import (
	"context"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"time"
)

// LocalExec executes commands directly on the local system.
type LocalExec struct{}

// NewLocalExec creates a new LocalExec executor.
func NewLocalExec() *LocalExec {
	return &LocalExec{}
}

// Name returns the executor name.
func (e *LocalExec) Name() string {
	return "local"
}

// Available returns true since local execution is always available.
func (e *LocalExec) Available() bool {
	return true
}

// Run executes a command locally with the given options.
func (e *LocalExec) Run(ctx context.Context, cmd []string, opts *Opts) (Result, error) {
	if len(cmd) == 0 {
		return Result{ExitCode: -1}, fmt.Errorf("command cannot be empty")
	}
	if opts == nil {
		opts = &Opts{}
	}

	startTime := time.Now()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	execCmd := osexec.CommandContext(ctx, cmd[0], cmd[1:]...)

	if opts.WorkDir != "" {
		if _, err := os.Stat(opts.WorkDir); os.IsNotExist(err) {
			return Result{ExitCode: -1}, fmt.Errorf("working directory does not exist: %s", opts.WorkDir)
		}
		execCmd.Dir = opts.WorkDir
	}

	if len(opts.Env) > 0 {
		execCmd.Env = append(os.Environ(), opts.Env...)
	}

	// Stream output through; the orchestrator never inspects it.
	execCmd.Stdin = opts.Stdin
	execCmd.Stdout = opts.Stdout
	execCmd.Stderr = opts.Stderr
	if execCmd.Stdout == nil {
		execCmd.Stdout = os.Stdout
	}
	if execCmd.Stderr == nil {
		execCmd.Stderr = os.Stderr
	}

	err := execCmd.Run()
	duration := time.Since(startTime)

	result := Result{
		ExitCode: 0,
		Duration: duration,
		TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
	}

	if err != nil {
		var exitErr *osexec.ExitError
		if errors.As(err, &exitErr) {
			// Non-zero exit is reported through ExitCode, not the error.
			result.ExitCode = exitErr.ExitCode()
			err = nil
		} else if result.TimedOut {
			// CommandContext kills the child on deadline; surface it as a
			// timed-out result rather than a start failure.
			result.ExitCode = -1
			err = nil
		} else {
			result.ExitCode = -1
		}
	}

	return result, err
}
