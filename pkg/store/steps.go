package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/quorumlabs/quorum/pkg/models"
)

// UpsertStepProgress writes or updates a step's execution state. The step
// name must be canonical; unknown names are rejected before any write so a
// typo cannot create a phantom step row.
func (s *Store) UpsertStepProgress(ctx context.Context, sp *models.StepProgress) error {
	order := models.StepOrder(sp.StepName)
	if order < 0 {
		return fmt.Errorf("%q: %w", sp.StepName, ErrUnknownStep)
	}
	sp.StepOrder = order

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO step_progress (
			run_id, step_name, step_order, status,
			started_at, completed_at, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, step_name) DO UPDATE SET
			status = EXCLUDED.status,
			started_at = COALESCE(EXCLUDED.started_at, step_progress.started_at),
			completed_at = EXCLUDED.completed_at,
			error_message = EXCLUDED.error_message`,
		sp.RunID, sp.StepName, sp.StepOrder, sp.Status,
		sp.StartedAt, sp.CompletedAt, sp.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert step progress: %w", err)
	}
	return nil
}

// ListStepProgress returns a run's step rows in pipeline order.
func (s *Store) ListStepProgress(ctx context.Context, runID uuid.UUID) ([]*models.StepProgress, error) {
	steps := []*models.StepProgress{}
	err := s.q.SelectContext(ctx, &steps, `
		SELECT run_id, step_name, step_order, status,
		       started_at, completed_at, error_message
		FROM step_progress WHERE run_id = $1
		ORDER BY step_order`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list step progress: %w", err)
	}
	return steps, nil
}
