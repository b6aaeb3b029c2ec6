package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/quorumlabs/quorum/pkg/models"
	"github.com/quorumlabs/quorum/pkg/revision"
	"github.com/quorumlabs/quorum/pkg/store"
)

// RunService reads run state for the query endpoints.
type RunService struct {
	store  *store.Store
	logger *slog.Logger
}

// NewRunService creates a run query service.
func NewRunService(st *store.Store, logger *slog.Logger) *RunService {
	return &RunService{store: st, logger: logger}
}

// ReviewSummary is the per-persona slice of a run detail response.
type ReviewSummary struct {
	PersonaID       string          `json:"persona_id"`
	PersonaName     string          `json:"persona_name"`
	ConfidenceScore float64         `json:"confidence_score"`
	BlockingPresent bool            `json:"blocking_issues_present"`
	SecurityPresent bool            `json:"security_concerns_present"`
	Review          json.RawMessage `json:"review"`
	PromptParams    json.RawMessage `json:"prompt_parameters,omitempty"`
}

// RunDetail is the full read model for one run, including partial results of
// failed pipelines.
type RunDetail struct {
	Run          *models.Run             `json:"run"`
	Proposal     *models.ProposalVersion `json:"proposal,omitempty"`
	Reviews      []ReviewSummary         `json:"reviews"`
	Decision     *models.Decision        `json:"decision,omitempty"`
	StepProgress []*models.StepProgress  `json:"step_progress"`
}

// GetRunDetail loads a run with its proposal, reviews, decision, and step
// rows. Artifacts a failed pipeline never produced are simply absent.
func (s *RunService) GetRunDetail(ctx context.Context, runID uuid.UUID) (*RunDetail, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return nil, &Error{Code: CodeRunNotFound, Message: fmt.Sprintf("run %s not found", runID), RunID: &runID}
		}
		return nil, err
	}

	detail := &RunDetail{Run: run, Reviews: []ReviewSummary{}}

	proposal, err := s.store.GetProposalVersion(ctx, runID)
	if err != nil && !errors.Is(err, store.ErrProposalNotFound) {
		return nil, err
	}
	detail.Proposal = proposal

	reviews, err := s.store.ListPersonaReviews(ctx, runID)
	if err != nil {
		return nil, err
	}
	for _, r := range reviews {
		detail.Reviews = append(detail.Reviews, ReviewSummary{
			PersonaID:       r.PersonaID,
			PersonaName:     r.PersonaName,
			ConfidenceScore: r.ConfidenceScore,
			BlockingPresent: r.BlockingPresent,
			SecurityPresent: r.SecurityPresent,
			Review:          r.ReviewJSON,
			PromptParams:    r.PromptParametersJSON,
		})
	}

	decision, err := s.store.GetDecision(ctx, runID)
	if err != nil && !errors.Is(err, store.ErrDecisionNotFound) {
		return nil, err
	}
	detail.Decision = decision

	steps, err := s.store.ListStepProgress(ctx, runID)
	if err != nil {
		return nil, err
	}
	detail.StepProgress = steps

	return detail, nil
}

// RunList is the paginated list response.
type RunList struct {
	Runs       []*models.Run `json:"runs"`
	TotalCount int           `json:"total_count"`
	Limit      int           `json:"limit"`
	Offset     int           `json:"offset"`
}

// ListRuns returns a filtered, paginated run listing.
func (s *RunService) ListRuns(ctx context.Context, filter store.RunFilter) (*RunList, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 100
	}
	runs, total, err := s.store.ListRuns(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &RunList{Runs: runs, TotalCount: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// FieldDelta is one changed field in a diff response, with a compact inline
// text delta for string fields.
type FieldDelta struct {
	Before interface{} `json:"before"`
	After  interface{} `json:"after"`
	Delta  string      `json:"delta,omitempty"`
}

// RunDiff is the structured diff between two runs' stored proposals.
type RunDiff struct {
	RunID         uuid.UUID             `json:"run_id"`
	OtherRunID    uuid.UUID             `json:"other_run_id"`
	ChangedFields map[string]FieldDelta `json:"changed_fields"`
	NumChanges    int                   `json:"num_changes"`
}

// DiffRuns computes the field-level diff between two runs' stored proposals.
// Identical proposals are an error: there is nothing to show.
func (s *RunService) DiffRuns(ctx context.Context, runID, otherID uuid.UUID) (*RunDiff, error) {
	left, err := s.loadProposal(ctx, runID)
	if err != nil {
		return nil, err
	}
	right, err := s.loadProposal(ctx, otherID)
	if err != nil {
		return nil, err
	}

	diff := revision.Diff(left, right)
	if diff.NumChanges == 0 {
		return nil, &Error{
			Code:    CodeIdenticalProposals,
			Message: fmt.Sprintf("runs %s and %s have identical proposals", runID, otherID),
		}
	}

	out := &RunDiff{
		RunID:         runID,
		OtherRunID:    otherID,
		ChangedFields: make(map[string]FieldDelta, diff.NumChanges),
		NumChanges:    diff.NumChanges,
	}
	for field, change := range diff.ChangedFields {
		delta := FieldDelta{Before: change.Before, After: change.After}
		if before, ok := change.Before.(string); ok {
			if after, ok := change.After.(string); ok {
				delta.Delta = revision.TextDelta(before, after)
			}
		}
		out.ChangedFields[field] = delta
	}
	return out, nil
}

func (s *RunService) loadProposal(ctx context.Context, runID uuid.UUID) (*models.ExpandedProposal, error) {
	if _, err := s.store.GetRun(ctx, runID); err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return nil, &Error{Code: CodeRunNotFound, Message: fmt.Sprintf("run %s not found", runID), RunID: &runID}
		}
		return nil, err
	}
	pv, err := s.store.GetProposalVersion(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrProposalNotFound) {
			return nil, &Error{Code: CodeRunNotFound, Message: fmt.Sprintf("run %s has no proposal yet", runID), RunID: &runID}
		}
		return nil, err
	}
	var proposal models.ExpandedProposal
	if err := json.Unmarshal(pv.ExpandedProposalJSON, &proposal); err != nil {
		return nil, fmt.Errorf("failed to parse stored proposal: %w", err)
	}
	return &proposal, nil
}
