package persistence

import (
	"time"

	"github.com/google/uuid"
)

// RunRecord is one terminal orchestration run, as stored in the history
// database. One row is written per run, at exit.
type RunRecord struct {
	CreatedAt           time.Time `json:"created_at"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	ID                  string    `json:"id"`
	Workflow            string    `json:"workflow"` // "planning" or "execution"
	Session             string    `json:"session"`
	FinalState          string    `json:"final_state"`
	Outcome             string    `json:"outcome"`
	ProducerInvocations int       `json:"producer_invocations"` // planner or worker
	ReviewerInvocations int       `json:"reviewer_invocations"`
	RevisionCycles      int       `json:"revision_cycles"`
	StepsCompleted      int       `json:"steps_completed"`
	ExitCode            int       `json:"exit_code"`
}

// Workflow name constants.
const (
	WorkflowPlanning  = "planning"
	WorkflowExecution = "execution"
)

// NewRunID generates a new UUID for a run record.
func NewRunID() string {
	return uuid.NewString()
}
