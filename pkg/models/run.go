// Package models defines the domain entities and JSON payload types shared
// across the store, pipeline, and API layers.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a Run.
type RunStatus string

// Run lifecycle states. Transitions are strictly
// queued → running → {completed, failed}, with failed → queued on retry.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// RunType distinguishes first evaluations from revisions of a completed parent.
type RunType string

// Run types.
const (
	RunTypeInitial  RunType = "initial"
	RunTypeRevision RunType = "revision"
)

// Priority is the scheduling priority of a Run.
type Priority string

// Priorities. There is no preemption; priority only affects routing attributes.
const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// DecisionLabel is the aggregated outcome of a completed Run.
type DecisionLabel string

// Decision labels.
const (
	DecisionApprove DecisionLabel = "approve"
	DecisionRevise  DecisionLabel = "revise"
	DecisionReject  DecisionLabel = "reject"
)

// Run is the root aggregate for one evaluation attempt. It owns its
// ProposalVersion, PersonaReviews, Decision, and StepProgress rows.
type Run struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	ParentRunID *uuid.UUID `db:"parent_run_id" json:"parent_run_id,omitempty"`
	RunType     RunType    `db:"run_type" json:"run_type"`
	Status      RunStatus  `db:"status" json:"status"`
	Priority    Priority   `db:"priority" json:"priority"`
	RetryCount  int        `db:"retry_count" json:"retry_count"`

	InputIdea    string  `db:"input_idea" json:"input_idea"`
	ExtraContext *string `db:"extra_context" json:"extra_context,omitempty"`

	// Revision inputs, persisted at enqueue time so the worker can re-expand
	// without another API round trip.
	EditedProposal *string `db:"edited_proposal" json:"edited_proposal,omitempty"`
	EditNotes      *string `db:"edit_notes" json:"edit_notes,omitempty"`

	Model          string          `db:"model" json:"model"`
	Temperature    float64         `db:"temperature" json:"temperature"`
	ParametersJSON json.RawMessage `db:"parameters_json" json:"parameters_json,omitempty"`

	OverallWeightedConfidence *float64       `db:"overall_weighted_confidence" json:"overall_weighted_confidence,omitempty"`
	DecisionLabel             *DecisionLabel `db:"decision_label" json:"decision_label,omitempty"`
	ErrorMessage              *string        `db:"error_message" json:"error_message,omitempty"`

	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	QueuedAt    *time.Time `db:"queued_at" json:"queued_at,omitempty"`
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// RunParameters is the shape stored in Run.ParametersJSON. It pins the
// versions and retry settings the pipeline used, so results stay explainable after
// defaults change.
type RunParameters struct {
	SchemaVersion          string  `json:"schema_version"`
	PromptSetVersion       string  `json:"prompt_set_version"`
	PersonaTemplateVersion string  `json:"persona_template_version"`
	MaxRetries             int     `json:"max_retries"`
	InitialBackoffSeconds  float64 `json:"initial_backoff_seconds"`
	BackoffMultiplier      float64 `json:"backoff_multiplier"`
}

// ProposalVersion is the expanded proposal produced by the expand step.
// Exactly one exists per Run once expand completes.
type ProposalVersion struct {
	ID                     uuid.UUID       `db:"id" json:"id"`
	RunID                  uuid.UUID       `db:"run_id" json:"run_id"`
	ExpandedProposalJSON   json.RawMessage `db:"expanded_proposal_json" json:"expanded_proposal_json"`
	ProposalDiffJSON       json.RawMessage `db:"proposal_diff_json" json:"proposal_diff_json,omitempty"`
	EditNotes              *string         `db:"edit_notes" json:"edit_notes,omitempty"`
	PersonaTemplateVersion string          `db:"persona_template_version" json:"persona_template_version"`
	CreatedAt              time.Time       `db:"created_at" json:"created_at"`
}

// PersonaReview is one persona's independent review of a Run's proposal.
// Unique on (run_id, persona_id).
type PersonaReview struct {
	ID                   uuid.UUID       `db:"id" json:"id"`
	RunID                uuid.UUID       `db:"run_id" json:"run_id"`
	PersonaID            string          `db:"persona_id" json:"persona_id"`
	PersonaName          string          `db:"persona_name" json:"persona_name"`
	ReviewJSON           json.RawMessage `db:"review_json" json:"review_json"`
	ConfidenceScore      float64         `db:"confidence_score" json:"confidence_score"`
	BlockingPresent      bool            `db:"blocking_issues_present" json:"blocking_issues_present"`
	SecurityPresent      bool            `db:"security_concerns_present" json:"security_concerns_present"`
	PromptParametersJSON json.RawMessage `db:"prompt_parameters_json" json:"prompt_parameters_json,omitempty"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
}

// Decision is the aggregated outcome for a Run. Exactly one exists per
// completed Run.
type Decision struct {
	ID                        uuid.UUID       `db:"id" json:"id"`
	RunID                     uuid.UUID       `db:"run_id" json:"run_id"`
	DecisionJSON              json.RawMessage `db:"decision_json" json:"decision_json"`
	OverallWeightedConfidence float64         `db:"overall_weighted_confidence" json:"overall_weighted_confidence"`
	DecisionNotes             *string         `db:"decision_notes" json:"decision_notes,omitempty"`
	CreatedAt                 time.Time       `db:"created_at" json:"created_at"`
}

// PromptParameters is the shape stored in PersonaReview.PromptParametersJSON.
type PromptParameters struct {
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature"`
	PersonaVersion string  `json:"persona_version"`
	AttemptCount   int     `json:"attempt_count"`
	Reused         bool    `json:"reused,omitempty"`
	SourceRunID    string  `json:"source_run_id,omitempty"`
}
