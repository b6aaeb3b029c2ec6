package models

import (
	"time"

	"github.com/google/uuid"
)

// StepName is a canonical pipeline step identifier.
type StepName string

// Canonical pipeline steps, in execution order.
const (
	StepExpand                 StepName = "expand"
	StepReviewArchitect        StepName = "review_architect"
	StepReviewCritic           StepName = "review_critic"
	StepReviewOptimist         StepName = "review_optimist"
	StepReviewSecurityGuardian StepName = "review_security_guardian"
	StepReviewUserAdvocate     StepName = "review_user_advocate"
	StepAggregateDecision      StepName = "aggregate_decision"
)

// CanonicalSteps is the fixed, ordered pipeline. Within a Run, no step begins
// before the prior step commits.
var CanonicalSteps = []StepName{
	StepExpand,
	StepReviewArchitect,
	StepReviewCritic,
	StepReviewOptimist,
	StepReviewSecurityGuardian,
	StepReviewUserAdvocate,
	StepAggregateDecision,
}

// StepOrder returns the 0-based position of a canonical step, or -1 if the
// step name is unknown.
func StepOrder(name StepName) int {
	for i, s := range CanonicalSteps {
		if s == name {
			return i
		}
	}
	return -1
}

// IsReviewStep reports whether the step is one of the five persona reviews.
func (s StepName) IsReviewStep() bool {
	_, ok := PersonaForStep(s)
	return ok
}

// StepStatus is the lifecycle state of a single StepProgress row.
type StepStatus string

// Step states.
const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// StepProgress records per-step execution state for a Run.
// Unique on (run_id, step_name); cascade-deleted with the Run.
type StepProgress struct {
	RunID        uuid.UUID  `db:"run_id" json:"run_id"`
	StepName     StepName   `db:"step_name" json:"step_name"`
	StepOrder    int        `db:"step_order" json:"step_order"`
	Status       StepStatus `db:"status" json:"status"`
	StartedAt    *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
}
