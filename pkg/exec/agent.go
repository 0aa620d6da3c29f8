package exec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"planloop/pkg/logx"
)

// FailureKind classifies why an agent invocation failed. The distinction is
// load-bearing: timeouts get synthetic fallback artifacts, process errors
// get plain retry/propagate.
type FailureKind string

const (
	FailureProcess FailureKind = "process_error"
	FailureTimeout FailureKind = "timeout"
)

// InvocationError reports a failed agent invocation.
type InvocationError struct {
	Role     string
	Kind     FailureKind
	ExitCode int
	Timeout  time.Duration
}

func (e *InvocationError) Error() string {
	if e.Kind == FailureTimeout {
		return fmt.Sprintf("%s invocation timed out after %s", e.Role, e.Timeout)
	}
	return fmt.Sprintf("%s invocation failed with exit code %d", e.Role, e.ExitCode)
}

// IsTimeout reports whether err is an agent invocation timeout.
func IsTimeout(err error) bool {
	var invErr *InvocationError
	return errors.As(err, &invErr) && invErr.Kind == FailureTimeout
}

// IsInvocationError reports whether err is any agent invocation failure.
func IsInvocationError(err error) bool {
	var invErr *InvocationError
	return errors.As(err, &invErr)
}

// AgentCLI invokes the external agent executable with a free-text instruction
// payload. Exit code zero is the only success signal it trusts; stdout and
// stderr stream straight to the terminal.
type AgentCLI struct {
	// Path to the agent executable.
	Path string

	// Profile selects a named agent profile, if non-empty.
	Profile string

	// TrustTools is the comma-separated allowlist passed to the CLI.
	// Ignored when TrustAllTools is set.
	TrustTools string

	// TrustAllTools trusts every tool without confirmation.
	TrustAllTools bool

	// WorkDir is the session working directory.
	WorkDir string

	// Timeout bounds each invocation's wall-clock time.
	Timeout time.Duration

	executor Executor
	logger   *logx.Logger
}

// NewAgentCLI creates an invoker running through the local executor.
func NewAgentCLI(path string, timeout time.Duration) *AgentCLI {
	return &AgentCLI{
		Path:     path,
		Timeout:  timeout,
		executor: NewLocalExec(),
		logger:   logx.NewLogger("agent-cli"),
	}
}

// WithExecutor swaps the underlying executor (tests).
func (a *AgentCLI) WithExecutor(e Executor) *AgentCLI {
	a.executor = e
	return a
}

// InvokeOpts describe one invocation attempt.
type InvokeOpts struct {
	// Role is the function this invocation performs (planner, reviewer, worker).
	Role string

	// Attempt is the 1-based attempt number, for logging.
	Attempt int

	// FinalAttempt marks the last retry attempt.
	FinalAttempt bool

	// Interactive enables dropping the non-interactive flag on the final
	// attempt so a human can intervene before the run terminates.
	Interactive bool
}

// Invoke runs the agent to completion or timeout. A non-zero exit code or a
// timeout is returned as *InvocationError; nil means exit code zero.
func (a *AgentCLI) Invoke(ctx context.Context, prompt string, opts InvokeOpts) error {
	interactive := opts.FinalAttempt && opts.Interactive
	cmd := a.buildCommand(prompt, interactive)

	a.logger.Info("Invoking agent: role=%s, attempt=%d, timeout=%s, profile=%q, trust_all=%t",
		opts.Role, opts.Attempt, a.Timeout, a.Profile, a.TrustAllTools)
	if interactive {
		a.logger.Warn("Final attempt: interactive mode enabled for human intervention")
	}

	runOpts := &Opts{
		WorkDir: a.WorkDir,
		Timeout: a.Timeout,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
	if interactive {
		runOpts.Stdin = os.Stdin
	}

	result, err := a.executor.Run(ctx, cmd, runOpts)
	if err != nil {
		// Start failures (missing binary, bad workdir) count as process errors.
		a.logger.Error("Agent failed to start: role=%s: %v", opts.Role, err)
		return &InvocationError{Role: opts.Role, Kind: FailureProcess, ExitCode: result.ExitCode}
	}

	if result.TimedOut {
		a.logger.Error("Agent timed out: role=%s, attempt=%d, timeout=%s", opts.Role, opts.Attempt, a.Timeout)
		return &InvocationError{Role: opts.Role, Kind: FailureTimeout, Timeout: a.Timeout}
	}

	if result.ExitCode != 0 {
		a.logger.Error("Agent exited non-zero: role=%s, exit=%d", opts.Role, result.ExitCode)
		return &InvocationError{Role: opts.Role, Kind: FailureProcess, ExitCode: result.ExitCode}
	}

	a.logger.Info("Agent completed: role=%s, attempt=%d, duration=%s", opts.Role, opts.Attempt, result.Duration.Round(time.Millisecond))
	return nil
}

// buildCommand assembles the agent command line. The prompt is always the
// trailing positional argument.
func (a *AgentCLI) buildCommand(prompt string, interactive bool) []string {
	cmd := []string{a.Path, "chat"}
	if !interactive {
		cmd = append(cmd, "--no-interactive")
	}

	switch {
	case a.TrustAllTools:
		cmd = append(cmd, "--trust-all-tools")
	case a.TrustTools != "":
		cmd = append(cmd, "--trust-tools", a.TrustTools)
	}

	if a.Profile != "" {
		cmd = append(cmd, "--agent", a.Profile)
	}

	cmd = append(cmd, prompt)
	return cmd
}
