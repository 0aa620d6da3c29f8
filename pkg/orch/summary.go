package orch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"planloop/pkg/logx"
	"planloop/pkg/persistence"
	"planloop/pkg/session"
)

// Outcome tags recorded in the summary artifacts and the history database.
const (
	OutcomeSuccess        = "success"
	OutcomeFailure        = "failure"
	OutcomeStuck          = "stuck"
	OutcomeBlocked        = "blocked"
	OutcomeMaxIterations  = "max_iterations"
	OutcomeMaxInvocations = "max_agent_invocations"
)

// PlanningSummary is the terminal accounting of one planning run. It is
// printed to the console and written as PLAN_SUMMARY_{name}.json.
type PlanningSummary struct {
	RunID               string    `json:"run_id"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	PlannerInvocations  int       `json:"planner_invocations"`
	ReviewerInvocations int       `json:"reviewer_invocations"`
	RevisionCycles      int       `json:"revision_cycles"`
	FinalState          string    `json:"final_state"`
	Outcome             string    `json:"outcome"`
}

// ExecutionSummary is the terminal accounting of one execution run, written
// as EXECUTION_SUMMARY_{name}.json.
type ExecutionSummary struct {
	RunID               string    `json:"run_id"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	WorkerInvocations   int       `json:"worker_invocations"`
	ReviewerInvocations int       `json:"reviewer_invocations"`
	RevisionCycles      int       `json:"revision_cycles"`
	StepsCompleted      int       `json:"steps_completed"`
	FinalState          string    `json:"final_state"`
	Outcome             string    `json:"outcome"`
}

func (s *PlanningSummary) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

func (s *ExecutionSummary) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

func (s *PlanningSummary) String() string {
	var b strings.Builder
	b.WriteString("\n=== Planning Summary ===\n")
	fmt.Fprintf(&b, "Duration: %s\n", s.Duration().Round(time.Second))
	fmt.Fprintf(&b, "Planner invocations: %d\n", s.PlannerInvocations)
	fmt.Fprintf(&b, "Reviewer invocations: %d\n", s.ReviewerInvocations)
	fmt.Fprintf(&b, "Revision cycles: %d\n", s.RevisionCycles)
	fmt.Fprintf(&b, "Final state: %s\n", s.FinalState)
	fmt.Fprintf(&b, "Outcome: %s\n", s.Outcome)
	b.WriteString("========================")
	return b.String()
}

func (s *ExecutionSummary) String() string {
	var b strings.Builder
	b.WriteString("\n=== Execution Summary ===\n")
	fmt.Fprintf(&b, "Duration: %s\n", s.Duration().Round(time.Second))
	fmt.Fprintf(&b, "Worker invocations: %d\n", s.WorkerInvocations)
	fmt.Fprintf(&b, "Reviewer invocations: %d\n", s.ReviewerInvocations)
	fmt.Fprintf(&b, "Revision cycles: %d\n", s.RevisionCycles)
	fmt.Fprintf(&b, "Steps completed: %d\n", s.StepsCompleted)
	fmt.Fprintf(&b, "Final state: %s\n", s.FinalState)
	fmt.Fprintf(&b, "Outcome: %s\n", s.Outcome)
	b.WriteString("=========================")
	return b.String()
}

// RunRecord converts the planning summary into a history row.
func (s *PlanningSummary) RunRecord(sessionName string, exitCode int) *persistence.RunRecord {
	return &persistence.RunRecord{
		ID:                  s.RunID,
		Workflow:            persistence.WorkflowPlanning,
		Session:             sessionName,
		StartTime:           s.StartTime,
		EndTime:             s.EndTime,
		FinalState:          s.FinalState,
		Outcome:             s.Outcome,
		ProducerInvocations: s.PlannerInvocations,
		ReviewerInvocations: s.ReviewerInvocations,
		RevisionCycles:      s.RevisionCycles,
		ExitCode:            exitCode,
	}
}

// RunRecord converts the execution summary into a history row.
func (s *ExecutionSummary) RunRecord(sessionName string, exitCode int) *persistence.RunRecord {
	return &persistence.RunRecord{
		ID:                  s.RunID,
		Workflow:            persistence.WorkflowExecution,
		Session:             sessionName,
		StartTime:           s.StartTime,
		EndTime:             s.EndTime,
		FinalState:          s.FinalState,
		Outcome:             s.Outcome,
		ProducerInvocations: s.WorkerInvocations,
		ReviewerInvocations: s.ReviewerInvocations,
		RevisionCycles:      s.RevisionCycles,
		StepsCompleted:      s.StepsCompleted,
		ExitCode:            exitCode,
	}
}

// writeSummary writes the summary JSON best-effort: the summary describes the
// run's outcome and must never change it, so a write failure is logged and
// swallowed.
func writeSummary(sess *session.Session, path string, v any, logger *logx.Logger) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Error("Failed to marshal summary: %v", err)
		return
	}
	if err := sess.WriteArtifact(path, string(data)+"\n"); err != nil {
		logger.Error("Failed to write summary to %s: %v", path, err)
		return
	}
	logger.Info("Summary written to %s", path)
}
