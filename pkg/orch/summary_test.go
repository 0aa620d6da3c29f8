package orch

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"planloop/pkg/config"
	"planloop/pkg/exec"
	"planloop/pkg/persistence"
	"planloop/pkg/session"
)

func TestExitCodeForError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"blocked", &BlockedError{Role: "planner", Reason: "needs input"}, ExitBlocked},
		{"validation", config.Validationf("bad flag"), ExitError},
		{"state file", &session.StateFileError{Path: "x", Op: "read", Err: errors.New("boom")}, ExitError},
		{"invocation", &exec.InvocationError{Role: "worker", Kind: exec.FailureProcess, ExitCode: 1}, ExitError},
		{"wrapped blocked", errors.Join(errors.New("ctx"), &BlockedError{Role: "r", Reason: "x"}), ExitBlocked},
		{"unknown", errors.New("mystery"), ExitError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitCodeForError(tc.err))
		})
	}
}

func TestExecutionSummary_RunRecord(t *testing.T) {
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	s := ExecutionSummary{
		RunID:               "run-1",
		StartTime:           start,
		EndTime:             start.Add(3 * time.Minute),
		WorkerInvocations:   4,
		ReviewerInvocations: 3,
		RevisionCycles:      2,
		StepsCompleted:      3,
		FinalState:          "approved",
		Outcome:             OutcomeSuccess,
	}

	rec := s.RunRecord("demo", ExitSuccess)
	assert.Equal(t, persistence.WorkflowExecution, rec.Workflow)
	assert.Equal(t, "demo", rec.Session)
	assert.Equal(t, 4, rec.ProducerInvocations)
	assert.Equal(t, 3, rec.StepsCompleted)
	assert.Equal(t, ExitSuccess, rec.ExitCode)
}

func TestPlanningSummary_String(t *testing.T) {
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	s := PlanningSummary{
		StartTime:           start,
		EndTime:             start.Add(90 * time.Second),
		PlannerInvocations:  2,
		ReviewerInvocations: 2,
		RevisionCycles:      1,
		FinalState:          "done",
		Outcome:             OutcomeSuccess,
	}

	out := s.String()
	assert.Contains(t, out, "Planning Summary")
	assert.Contains(t, out, "Duration: 1m30s")
	assert.Contains(t, out, "Planner invocations: 2")
	assert.Contains(t, out, "Outcome: success")
}
