package session

import (
	"strings"

	"planloop/pkg/logx"
)

// PlanState is the derived state of the planning workflow. It is recomputed
// from artifact existence on every iteration, never stored, which is what
// makes a planning run resumable across process restarts.
type PlanState string

const (
	PlanInitial     PlanState = "initial"
	PlanDraftReady  PlanState = "draft_ready"
	PlanReviewReady PlanState = "review_ready"
	PlanStuck       PlanState = "stuck"
	PlanDone        PlanState = "done"
)

// StepState is the derived state of one execution step.
type StepState string

const (
	StepInitial     StepState = "initial"
	StepWorkDone    StepState = "work_done"
	StepReviewDone  StepState = "review_done"
	StepApproved    StepState = "approved"
	StepNeedsRework StepState = "needs_rework"
)

var stateLog = logx.NewLogger("state")

// DetectPlanState maps artifact existence to a planning state, highest
// priority first. More "final" artifacts win when several coexist.
func DetectPlanState(s *Session) PlanState {
	if s.Exists(s.PlanFinalPath()) {
		stateLog.Info("State detection: %s exists → done", s.PlanFinalPath())
		return PlanDone
	}
	if s.Exists(s.PlanStuckPath()) {
		stateLog.Info("State detection: %s exists → stuck", s.PlanStuckPath())
		return PlanStuck
	}
	if s.Exists(s.PlanReviewPath()) {
		stateLog.Info("State detection: %s exists → review_ready", s.PlanReviewPath())
		return PlanReviewReady
	}
	if s.Exists(s.PlanDraftPath()) {
		stateLog.Info("State detection: %s exists → draft_ready", s.PlanDraftPath())
		return PlanDraftReady
	}
	stateLog.Info("State detection: no plan artifacts found → initial")
	return PlanInitial
}

// DetectStepState maps step artifact existence and the review artifact's
// first line to a step state. A review with neither marker is ambiguous and
// reported as review_done. Reading an existing review that then fails
// mid-read is a fatal state-file error, not a retryable condition.
func DetectStepState(s *Session, stepNum int) (StepState, error) {
	reviewPath := s.ReviewPath(stepNum)
	workPath := s.WorkPath(stepNum)

	if s.Exists(reviewPath) {
		stateLog.Info("State detection: %s exists, checking first line", reviewPath)
		firstLine, err := s.FirstLine(reviewPath)
		if err != nil {
			return "", err
		}
		switch {
		case strings.Contains(firstLine, ApprovedMarker):
			stateLog.Info("State detection: first line contains %s → approved", ApprovedMarker)
			return StepApproved, nil
		case strings.Contains(firstLine, ReworkMarker):
			stateLog.Info("State detection: first line contains %s → needs_rework", ReworkMarker)
			return StepNeedsRework, nil
		default:
			stateLog.Info("State detection: no status marker → review_done")
			return StepReviewDone, nil
		}
	}

	if s.Exists(workPath) {
		stateLog.Info("State detection: %s exists → work_done", workPath)
		return StepWorkDone, nil
	}

	stateLog.Info("State detection: no artifacts for step %d → initial", stepNum)
	return StepInitial, nil
}
