package exec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor records the command it was asked to run and returns a canned result.
type fakeExecutor struct {
	lastCmd  []string
	lastOpts *Opts
	result   Result
	err      error
}

func (f *fakeExecutor) Run(_ context.Context, cmd []string, opts *Opts) (Result, error) {
	f.lastCmd = cmd
	f.lastOpts = opts
	return f.result, f.err
}

func (f *fakeExecutor) Name() string    { return "fake" }
func (f *fakeExecutor) Available() bool { return true }

func newTestCLI(fake *fakeExecutor) *AgentCLI {
	cli := NewAgentCLI("/usr/local/bin/agent", 10*time.Minute)
	cli.TrustTools = "read,write"
	return cli.WithExecutor(fake)
}

func TestInvoke_BuildsNonInteractiveCommand(t *testing.T) {
	fake := &fakeExecutor{result: Result{ExitCode: 0}}
	cli := newTestCLI(fake)

	err := cli.Invoke(context.Background(), "do the thing", InvokeOpts{Role: "planner", Attempt: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/usr/local/bin/agent", "chat", "--no-interactive",
		"--trust-tools", "read,write",
		"do the thing",
	}, fake.lastCmd)
	assert.Nil(t, fake.lastOpts.Stdin, "non-interactive invocations must not attach stdin")
}

func TestInvoke_TrustAllToolsWinsOverList(t *testing.T) {
	fake := &fakeExecutor{result: Result{ExitCode: 0}}
	cli := newTestCLI(fake)
	cli.TrustAllTools = true
	cli.Profile = "builder"

	require.NoError(t, cli.Invoke(context.Background(), "p", InvokeOpts{Role: "worker"}))
	assert.Equal(t, []string{
		"/usr/local/bin/agent", "chat", "--no-interactive",
		"--trust-all-tools",
		"--agent", "builder",
		"p",
	}, fake.lastCmd)
}

func TestInvoke_InteractiveOnlyOnFinalOptedInAttempt(t *testing.T) {
	fake := &fakeExecutor{result: Result{ExitCode: 0}}
	cli := newTestCLI(fake)

	// Final attempt without opt-in stays non-interactive.
	require.NoError(t, cli.Invoke(context.Background(), "p", InvokeOpts{Role: "worker", FinalAttempt: true}))
	assert.Contains(t, fake.lastCmd, "--no-interactive")

	// Opted-in but not final stays non-interactive.
	require.NoError(t, cli.Invoke(context.Background(), "p", InvokeOpts{Role: "worker", Interactive: true}))
	assert.Contains(t, fake.lastCmd, "--no-interactive")

	// Final and opted-in drops the flag and attaches stdin.
	require.NoError(t, cli.Invoke(context.Background(), "p", InvokeOpts{Role: "worker", FinalAttempt: true, Interactive: true}))
	assert.NotContains(t, fake.lastCmd, "--no-interactive")
	assert.NotNil(t, fake.lastOpts.Stdin)
}

func TestInvoke_NonZeroExitIsProcessError(t *testing.T) {
	fake := &fakeExecutor{result: Result{ExitCode: 7}}
	cli := newTestCLI(fake)

	err := cli.Invoke(context.Background(), "p", InvokeOpts{Role: "reviewer"})
	require.Error(t, err)

	var invErr *InvocationError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, FailureProcess, invErr.Kind)
	assert.Equal(t, 7, invErr.ExitCode)
	assert.Equal(t, "reviewer", invErr.Role)
	assert.False(t, IsTimeout(err))
}

func TestInvoke_TimeoutIsClassified(t *testing.T) {
	fake := &fakeExecutor{result: Result{ExitCode: -1, TimedOut: true}}
	cli := newTestCLI(fake)

	err := cli.Invoke(context.Background(), "p", InvokeOpts{Role: "worker"})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.True(t, IsInvocationError(err))
	assert.Contains(t, err.Error(), "timed out")
}

func TestInvoke_StartFailureIsProcessError(t *testing.T) {
	fake := &fakeExecutor{result: Result{ExitCode: -1}, err: errors.New("no such file")}
	cli := newTestCLI(fake)

	err := cli.Invoke(context.Background(), "p", InvokeOpts{Role: "planner"})
	require.Error(t, err)

	var invErr *InvocationError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, FailureProcess, invErr.Kind)
}
