package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/quorumlabs/quorum/pkg/models"
)

const pgUniqueViolation = "23505"

// CreateProposalVersion inserts the expanded proposal for a run.
func (s *Store) CreateProposalVersion(ctx context.Context, pv *models.ProposalVersion) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO proposal_versions (
			id, run_id, expanded_proposal_json, proposal_diff_json,
			edit_notes, persona_template_version, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		pv.ID, pv.RunID, pv.ExpandedProposalJSON, pv.ProposalDiffJSON,
		pv.EditNotes, pv.PersonaTemplateVersion, pv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create proposal version: %w", err)
	}
	return nil
}

// GetProposalVersion fetches the proposal version for a run, or
// ErrProposalNotFound if expand has not completed.
func (s *Store) GetProposalVersion(ctx context.Context, runID uuid.UUID) (*models.ProposalVersion, error) {
	var pv models.ProposalVersion
	err := s.q.GetContext(ctx, &pv, `
		SELECT id, run_id, expanded_proposal_json, proposal_diff_json,
		       edit_notes, persona_template_version, created_at
		FROM proposal_versions WHERE run_id = $1`, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, fmt.Errorf("failed to get proposal version: %w", err)
	}
	return &pv, nil
}

// CreatePersonaReview inserts one persona's review. A second insert for the
// same (run, persona) returns ErrDuplicateReview.
func (s *Store) CreatePersonaReview(ctx context.Context, pr *models.PersonaReview) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO persona_reviews (
			id, run_id, persona_id, persona_name, review_json,
			confidence_score, blocking_issues_present, security_concerns_present,
			prompt_parameters_json, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		pr.ID, pr.RunID, pr.PersonaID, pr.PersonaName, pr.ReviewJSON,
		pr.ConfidenceScore, pr.BlockingPresent, pr.SecurityPresent,
		pr.PromptParametersJSON, pr.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateReview
		}
		return fmt.Errorf("failed to create persona review: %w", err)
	}
	return nil
}

// ListPersonaReviews returns all reviews for a run in persona order.
func (s *Store) ListPersonaReviews(ctx context.Context, runID uuid.UUID) ([]*models.PersonaReview, error) {
	reviews := []*models.PersonaReview{}
	err := s.q.SelectContext(ctx, &reviews, `
		SELECT id, run_id, persona_id, persona_name, review_json,
		       confidence_score, blocking_issues_present, security_concerns_present,
		       prompt_parameters_json, created_at
		FROM persona_reviews WHERE run_id = $1
		ORDER BY persona_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list persona reviews: %w", err)
	}
	return reviews, nil
}

// GetPersonaReview fetches one persona's review for a run, or nil if absent.
func (s *Store) GetPersonaReview(ctx context.Context, runID uuid.UUID, personaID string) (*models.PersonaReview, error) {
	var pr models.PersonaReview
	err := s.q.GetContext(ctx, &pr, `
		SELECT id, run_id, persona_id, persona_name, review_json,
		       confidence_score, blocking_issues_present, security_concerns_present,
		       prompt_parameters_json, created_at
		FROM persona_reviews WHERE run_id = $1 AND persona_id = $2`, runID, personaID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get persona review: %w", err)
	}
	return &pr, nil
}

// CreateDecision inserts the aggregated decision for a run.
func (s *Store) CreateDecision(ctx context.Context, d *models.Decision) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO decisions (
			id, run_id, decision_json, overall_weighted_confidence,
			decision_notes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.RunID, d.DecisionJSON, d.OverallWeightedConfidence,
		d.DecisionNotes, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create decision: %w", err)
	}
	return nil
}

// GetDecision fetches the decision for a run, or ErrDecisionNotFound.
func (s *Store) GetDecision(ctx context.Context, runID uuid.UUID) (*models.Decision, error) {
	var d models.Decision
	err := s.q.GetContext(ctx, &d, `
		SELECT id, run_id, decision_json, overall_weighted_confidence,
		       decision_notes, created_at
		FROM decisions WHERE run_id = $1`, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDecisionNotFound
		}
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}
	return &d, nil
}
