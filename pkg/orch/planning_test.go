package orch

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planloop/pkg/config"
	"planloop/pkg/exec"
	"planloop/pkg/session"
)

// scriptedExecutor plays an agent: each scripted call inspects the command
// line and mutates the session directory the way a real agent run would.
type scriptedExecutor struct {
	t       *testing.T
	script  []func(cmd []string) (exec.Result, error)
	prompts []string
}

func (f *scriptedExecutor) Run(_ context.Context, cmd []string, _ *exec.Opts) (exec.Result, error) {
	f.prompts = append(f.prompts, cmd[len(cmd)-1])
	call := len(f.prompts) - 1
	if call >= len(f.script) {
		f.t.Fatalf("unexpected agent call %d: %v", call+1, cmd)
	}
	return f.script[call](cmd)
}

func (f *scriptedExecutor) Name() string    { return "scripted" }
func (f *scriptedExecutor) Available() bool { return true }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func ok() (exec.Result, error)       { return exec.Result{ExitCode: 0}, nil }
func timedOut() (exec.Result, error) { return exec.Result{TimedOut: true}, nil }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.CLIPath = "agent-cli"
	return cfg
}

func testSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := session.New("demo", t.TempDir())
	require.NoError(t, err)
	return sess
}

func newTestPlanning(t *testing.T, cfg *config.Config, sess *session.Session, fake *scriptedExecutor) *Planning {
	t.Helper()
	p, err := NewPlanning(cfg, sess, "Add retry logic to the fetcher")
	require.NoError(t, err)
	p.agent.WithExecutor(fake)
	return p
}

func TestPlanning_ApprovedOnFirstCycle(t *testing.T) {
	sess := testSession(t)
	fake := &scriptedExecutor{t: t, script: []func([]string) (exec.Result, error){
		func([]string) (exec.Result, error) {
			writeFile(t, sess.PlanDraftPath(), "# Plan\nsteps here")
			return ok()
		},
		func([]string) (exec.Result, error) {
			writeFile(t, sess.PlanFinalPath(), "# Final plan")
			return ok()
		},
	}}

	p := newTestPlanning(t, testConfig(), sess, fake)
	code := p.Run(context.Background())

	assert.Equal(t, ExitSuccess, code)
	assert.Equal(t, 1, p.Summary.PlannerInvocations)
	assert.Equal(t, 1, p.Summary.ReviewerInvocations)
	assert.Equal(t, 0, p.Summary.RevisionCycles)
	assert.Equal(t, string(session.PlanDone), p.Summary.FinalState)
	assert.Equal(t, OutcomeSuccess, p.Summary.Outcome)

	data, err := os.ReadFile(sess.PlanSummaryPath())
	require.NoError(t, err)
	var got PlanningSummary
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, OutcomeSuccess, got.Outcome)
	assert.NotEmpty(t, got.RunID)
}

func TestPlanning_RevisionCycle(t *testing.T) {
	sess := testSession(t)
	fake := &scriptedExecutor{t: t, script: []func([]string) (exec.Result, error){
		func([]string) (exec.Result, error) {
			writeFile(t, sess.PlanDraftPath(), "# Plan v1")
			return ok()
		},
		func([]string) (exec.Result, error) {
			writeFile(t, sess.PlanReviewPath(), "Step 2 is too vague.")
			return ok()
		},
		func([]string) (exec.Result, error) {
			// Revising planner consumes the review and rewrites the draft.
			require.NoError(t, os.Remove(sess.PlanReviewPath()))
			writeFile(t, sess.PlanDraftPath(), "# Plan v2")
			return ok()
		},
		func([]string) (exec.Result, error) {
			writeFile(t, sess.PlanFinalPath(), "# Final plan")
			return ok()
		},
	}}

	p := newTestPlanning(t, testConfig(), sess, fake)
	code := p.Run(context.Background())

	assert.Equal(t, ExitSuccess, code)
	assert.Equal(t, 2, p.Summary.PlannerInvocations)
	assert.Equal(t, 2, p.Summary.ReviewerInvocations)
	assert.Equal(t, 1, p.Summary.RevisionCycles)
}

func TestPlanning_StuckTerminatesBlocked(t *testing.T) {
	sess := testSession(t)
	fake := &scriptedExecutor{t: t, script: []func([]string) (exec.Result, error){
		func([]string) (exec.Result, error) {
			writeFile(t, sess.PlanStuckPath(), "What database does this service use?")
			return ok()
		},
	}}

	p := newTestPlanning(t, testConfig(), sess, fake)
	code := p.Run(context.Background())

	assert.Equal(t, ExitBlocked, code)
	assert.Equal(t, OutcomeStuck, p.Summary.Outcome)
	assert.Equal(t, string(session.PlanStuck), p.Summary.FinalState)
}

func TestPlanning_BudgetExhausted(t *testing.T) {
	sess := testSession(t)
	cfg := testConfig()
	cfg.MaxAgentInvocations = 2

	fake := &scriptedExecutor{t: t, script: []func([]string) (exec.Result, error){
		func([]string) (exec.Result, error) {
			writeFile(t, sess.PlanDraftPath(), "# Plan v1")
			return ok()
		},
		func([]string) (exec.Result, error) {
			writeFile(t, sess.PlanReviewPath(), "Not good enough.")
			return ok()
		},
	}}

	p := newTestPlanning(t, cfg, sess, fake)
	code := p.Run(context.Background())

	assert.Equal(t, ExitMaxIterations, code)
	assert.Equal(t, OutcomeMaxIterations, p.Summary.Outcome)
}

// An approval produced by the final budgeted invocation still wins: terminal
// states are checked before the budget.
func TestPlanning_ApprovalOnFinalBudgetedInvocation(t *testing.T) {
	sess := testSession(t)
	cfg := testConfig()
	cfg.MaxAgentInvocations = 2

	fake := &scriptedExecutor{t: t, script: []func([]string) (exec.Result, error){
		func([]string) (exec.Result, error) {
			writeFile(t, sess.PlanDraftPath(), "# Plan")
			return ok()
		},
		func([]string) (exec.Result, error) {
			writeFile(t, sess.PlanFinalPath(), "# Final plan")
			return ok()
		},
	}}

	p := newTestPlanning(t, cfg, sess, fake)
	code := p.Run(context.Background())

	assert.Equal(t, ExitSuccess, code)
	assert.Equal(t, OutcomeSuccess, p.Summary.Outcome)
}

func TestPlanning_ResumesFromExistingDraft(t *testing.T) {
	sess := testSession(t)
	writeFile(t, sess.PlanDraftPath(), "# Plan from a previous run")

	fake := &scriptedExecutor{t: t, script: []func([]string) (exec.Result, error){
		func([]string) (exec.Result, error) {
			writeFile(t, sess.PlanFinalPath(), "# Final plan")
			return ok()
		},
	}}

	p := newTestPlanning(t, testConfig(), sess, fake)
	code := p.Run(context.Background())

	assert.Equal(t, ExitSuccess, code)
	assert.Equal(t, 0, p.Summary.PlannerInvocations, "draft on disk means the reviewer goes first")
	assert.Equal(t, 1, p.Summary.ReviewerInvocations)
	assert.Contains(t, fake.prompts[0], "PLAN_DRAFT_demo.md")
}

func TestPlanning_AlreadyDone(t *testing.T) {
	sess := testSession(t)
	writeFile(t, sess.PlanFinalPath(), "# Final plan")

	fake := &scriptedExecutor{t: t}
	p := newTestPlanning(t, testConfig(), sess, fake)
	code := p.Run(context.Background())

	assert.Equal(t, ExitSuccess, code)
	assert.Empty(t, fake.prompts, "no invocations when the final plan already exists")
}

func TestPlanning_ProcessErrorAfterRetriesFails(t *testing.T) {
	sess := testSession(t)
	cfg := testConfig()
	cfg.MaxRetries = 1

	fake := &scriptedExecutor{t: t, script: []func([]string) (exec.Result, error){
		func([]string) (exec.Result, error) { return exec.Result{ExitCode: 1}, nil },
	}}

	p := newTestPlanning(t, cfg, sess, fake)
	code := p.Run(context.Background())

	assert.Equal(t, ExitError, code)
	assert.Equal(t, OutcomeFailure, p.Summary.Outcome)
	assert.Equal(t, 1, p.Summary.PlannerInvocations)
}

func TestPlanning_PlannerPromptCarriesProblemStatement(t *testing.T) {
	sess := testSession(t)
	fake := &scriptedExecutor{t: t, script: []func([]string) (exec.Result, error){
		func([]string) (exec.Result, error) {
			writeFile(t, sess.PlanStuckPath(), "questions")
			return ok()
		},
	}}

	p := newTestPlanning(t, testConfig(), sess, fake)
	p.Run(context.Background())

	require.Len(t, fake.prompts, 1)
	assert.Contains(t, fake.prompts[0], "Add retry logic to the fetcher")
	assert.Contains(t, fake.prompts[0], "PLAN_DRAFT_demo.md")
}

func TestNewPlanning_RequiresProblemStatement(t *testing.T) {
	sess := testSession(t)
	_, err := NewPlanning(testConfig(), sess, "")
	require.Error(t, err)

	var verr *config.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, ExitError, ExitCodeForError(err))
}
