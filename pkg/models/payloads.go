package models

import "time"

// ExpandedProposal is the structured output of the expand step
// (schema expanded_proposal/1.0.0).
type ExpandedProposal struct {
	Title               string   `json:"title,omitempty"`
	Summary             string   `json:"summary,omitempty"`
	ProblemStatement    string   `json:"problem_statement"`
	ProposedSolution    string   `json:"proposed_solution"`
	Assumptions         []string `json:"assumptions"`
	ScopeNonGoals       []string `json:"scope_non_goals"`
	RawIdea             string   `json:"raw_idea"`
	RawExpandedProposal string   `json:"raw_expanded_proposal"`
}

// Concern is a reviewer concern, blocking or not.
type Concern struct {
	Text       string `json:"text"`
	IsBlocking bool   `json:"is_blocking"`
}

// BlockingIssue is an issue the reviewer considers a hard blocker.
// SecurityCritical only carries veto force on the security_guardian review.
type BlockingIssue struct {
	Text             string `json:"text"`
	SecurityCritical bool   `json:"security_critical,omitempty"`
}

// ReviewPayload is the structured output of a persona review step
// (schema persona_review/1.0.0).
type ReviewPayload struct {
	ConfidenceScore float64         `json:"confidence_score"`
	Strengths       []string        `json:"strengths"`
	Concerns        []Concern       `json:"concerns"`
	Recommendations []string        `json:"recommendations"`
	BlockingIssues  []BlockingIssue `json:"blocking_issues"`
	EstimatedEffort string          `json:"estimated_effort"`
	DependencyRisks []string        `json:"dependency_risks"`
}

// BlockingPresent reports whether the review carries any blocking issue.
func (r ReviewPayload) BlockingPresent() bool {
	return len(r.BlockingIssues) > 0
}

// SecurityCriticalPresent reports whether any blocking issue is flagged
// security-critical.
func (r ReviewPayload) SecurityCriticalPresent() bool {
	for _, b := range r.BlockingIssues {
		if b.SecurityCritical {
			return true
		}
	}
	return false
}

// MinorityReport is a structured dissent attached to a Decision when a
// persona materially disagrees with the aggregate outcome.
type MinorityReport struct {
	PersonaID                string  `json:"persona_id"`
	PersonaName              string  `json:"persona_name"`
	ConfidenceScore          float64 `json:"confidence_score"`
	BlockingSummary          string  `json:"blocking_summary,omitempty"`
	MitigationRecommendation string  `json:"mitigation_recommendation,omitempty"`
}

// ScoreBreakdown explains how the weighted confidence was computed.
type ScoreBreakdown struct {
	Weights               map[string]float64 `json:"weights"`
	IndividualScores      map[string]float64 `json:"individual_scores"`
	WeightedContributions map[string]float64 `json:"weighted_contributions"`
	Formula               string             `json:"formula"`
}

// DecisionAggregation is the structured decision payload
// (schema decision_aggregation/1.0.0).
type DecisionAggregation struct {
	Decision           DecisionLabel    `json:"decision"`
	WeightedConfidence float64          `json:"weighted_confidence"`
	AnyBlocking        bool             `json:"any_blocking"`
	SecurityVeto       bool             `json:"security_veto"`
	Rationale          string           `json:"rationale"`
	ScoreBreakdown     ScoreBreakdown   `json:"score_breakdown"`
	MinorityReports    []MinorityReport `json:"minority_reports"`
}

// FieldChange captures the before/after values of one diffed proposal field.
type FieldChange struct {
	Before any `json:"before"`
	After  any `json:"after"`
}

// ProposalDiff is the field-level diff between a parent proposal and its
// revision, computed from stored structured fields only.
type ProposalDiff struct {
	ChangedFields map[string]FieldChange `json:"changed_fields"`
	NumChanges    int                    `json:"num_changes"`
	Timestamp     time.Time              `json:"timestamp"`
}
