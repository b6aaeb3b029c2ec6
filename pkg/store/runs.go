package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quorumlabs/quorum/pkg/models"
)

const runColumns = `id, parent_run_id, run_type, status, priority, retry_count,
	input_idea, extra_context, edited_proposal, edit_notes,
	model, temperature, parameters_json,
	overall_weighted_confidence, decision_label, error_message,
	created_at, queued_at, started_at, completed_at, updated_at`

// CreateRun inserts a new run in queued state.
func (s *Store) CreateRun(ctx context.Context, run *models.Run) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO runs (
			id, parent_run_id, run_type, status, priority, retry_count,
			input_idea, extra_context, edited_proposal, edit_notes,
			model, temperature, parameters_json,
			created_at, queued_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		run.ID, run.ParentRunID, run.RunType, run.Status, run.Priority, run.RetryCount,
		run.InputIdea, run.ExtraContext, run.EditedProposal, run.EditNotes,
		run.Model, run.Temperature, run.ParametersJSON,
		run.CreatedAt, run.QueuedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetRun fetches a run by ID.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	var run models.Run
	err := s.q.GetContext(ctx, &run,
		`SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// RunFilter narrows ListRuns results. Zero values mean "no filter".
type RunFilter struct {
	Status        models.RunStatus
	RunType       models.RunType
	ParentRunID   *uuid.UUID
	Decision      models.DecisionLabel
	MinConfidence *float64
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
	Offset        int
}

// ListRuns returns runs newest-first with a total count for pagination.
// Limit is clamped to [1, 100].
func (s *Store) ListRuns(ctx context.Context, filter RunFilter) ([]*models.Run, int, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Status != "" {
		conds = append(conds, "status = "+arg(filter.Status))
	}
	if filter.RunType != "" {
		conds = append(conds, "run_type = "+arg(filter.RunType))
	}
	if filter.ParentRunID != nil {
		conds = append(conds, "parent_run_id = "+arg(*filter.ParentRunID))
	}
	if filter.Decision != "" {
		conds = append(conds, "decision_label = "+arg(filter.Decision))
	}
	if filter.MinConfidence != nil {
		conds = append(conds, "overall_weighted_confidence >= "+arg(*filter.MinConfidence))
	}
	if filter.CreatedAfter != nil {
		conds = append(conds, "created_at >= "+arg(*filter.CreatedAfter))
	}
	if filter.CreatedBefore != nil {
		conds = append(conds, "created_at <= "+arg(*filter.CreatedBefore))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.q.GetContext(ctx, &total, "SELECT COUNT(*) FROM runs"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	query := "SELECT " + runColumns + " FROM runs" + where +
		" ORDER BY created_at DESC" +
		" LIMIT " + arg(filter.Limit) + " OFFSET " + arg(filter.Offset)

	runs := []*models.Run{}
	if err := s.q.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, total, nil
}

// MarkRunCompleted records the terminal success state with the aggregated
// outcome.
func (s *Store) MarkRunCompleted(ctx context.Context, id uuid.UUID, confidence float64, label models.DecisionLabel) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE runs
		SET status = $2, overall_weighted_confidence = $3, decision_label = $4,
		    error_message = NULL, completed_at = now(), updated_at = now()
		WHERE id = $1`,
		id, models.RunStatusCompleted, confidence, label)
	if err != nil {
		return fmt.Errorf("failed to mark run completed: %w", err)
	}
	return requireRow(res, id)
}

// MarkRunFailed records the terminal failure state with the error message.
func (s *Store) MarkRunFailed(ctx context.Context, id uuid.UUID, message string) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE runs
		SET status = $2, error_message = $3, completed_at = now(), updated_at = now()
		WHERE id = $1`,
		id, models.RunStatusFailed, message)
	if err != nil {
		return fmt.Errorf("failed to mark run failed: %w", err)
	}
	return requireRow(res, id)
}

// BumpRetryToQueued transitions a failed run back to queued and increments
// retry_count. Used on broker redelivery of a failed run.
func (s *Store) BumpRetryToQueued(ctx context.Context, id uuid.UUID) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE runs
		SET status = $2, retry_count = retry_count + 1, error_message = NULL,
		    queued_at = now(), completed_at = NULL, updated_at = now()
		WHERE id = $1 AND status = $3`,
		id, models.RunStatusQueued, models.RunStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to bump retry: %w", err)
	}
	return requireRow(res, id)
}

// ClaimOutcome describes the result of ClaimForProcessing.
type ClaimOutcome string

// Claim outcomes.
const (
	// ClaimAcquired means the run transitioned to running and the caller
	// should execute the pipeline.
	ClaimAcquired ClaimOutcome = "acquired"
	// ClaimAlreadyCompleted means the run finished earlier; the caller should
	// ack without side effects.
	ClaimAlreadyCompleted ClaimOutcome = "already_completed"
	// ClaimRetrying means a failed run was requeued and claimed again;
	// retry_count has been incremented.
	ClaimRetrying ClaimOutcome = "retrying"
	// ClaimReclaimed means a stale running run (orphaned by a dead worker)
	// was taken over.
	ClaimReclaimed ClaimOutcome = "reclaimed"
	// ClaimBusy means another worker holds the run and it is not stale; the
	// caller should nak and let the broker redeliver later.
	ClaimBusy ClaimOutcome = "busy"
	// ClaimFailedTerminal means the run is failed and this delivery is not a
	// retry; the caller should ack without executing.
	ClaimFailedTerminal ClaimOutcome = "failed_terminal"
)

// Claim is the result of a claim attempt, carrying the locked run snapshot.
type Claim struct {
	Outcome ClaimOutcome
	Run     *models.Run
}

// ClaimForProcessing serializes workers racing on the same run. It must be
// called inside InTx: the row lock is held until the transaction commits.
//
// Outcomes follow the run's current status: completed runs are skipped
// idempotently, failed runs on redelivery are requeued and reclaimed, running
// runs older than staleAfter are taken over, and queued runs transition to
// running.
func (s *Store) ClaimForProcessing(ctx context.Context, id uuid.UUID, redelivery bool, staleAfter time.Duration) (*Claim, error) {
	var run models.Run
	err := s.q.GetContext(ctx, &run,
		`SELECT `+runColumns+` FROM runs WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to lock run: %w", err)
	}

	switch run.Status {
	case models.RunStatusCompleted:
		return &Claim{Outcome: ClaimAlreadyCompleted, Run: &run}, nil

	case models.RunStatusFailed:
		if !redelivery {
			return &Claim{Outcome: ClaimFailedTerminal, Run: &run}, nil
		}
		if err := s.BumpRetryToQueued(ctx, id); err != nil {
			return nil, err
		}
		if err := s.markRunning(ctx, id); err != nil {
			return nil, err
		}
		run.Status = models.RunStatusRunning
		run.RetryCount++
		return &Claim{Outcome: ClaimRetrying, Run: &run}, nil

	case models.RunStatusRunning:
		if run.StartedAt != nil && time.Since(*run.StartedAt) < staleAfter {
			return &Claim{Outcome: ClaimBusy, Run: &run}, nil
		}
		if err := s.markRunning(ctx, id); err != nil {
			return nil, err
		}
		return &Claim{Outcome: ClaimReclaimed, Run: &run}, nil

	default: // queued
		if err := s.markRunning(ctx, id); err != nil {
			return nil, err
		}
		run.Status = models.RunStatusRunning
		return &Claim{Outcome: ClaimAcquired, Run: &run}, nil
	}
}

func (s *Store) markRunning(ctx context.Context, id uuid.UUID) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE runs
		SET status = $2, started_at = now(), updated_at = now()
		WHERE id = $1`,
		id, models.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to mark run running: %w", err)
	}
	return requireRow(res, id)
}

// RequeueOrphanedRuns resets runs stuck in running longer than staleAfter
// back to queued and returns their IDs so the caller can re-publish them.
// Run at startup to recover work orphaned by an unclean shutdown.
func (s *Store) RequeueOrphanedRuns(ctx context.Context, staleAfter time.Duration) ([]uuid.UUID, error) {
	cutoff := time.Now().Add(-staleAfter)
	var ids []uuid.UUID
	err := s.q.SelectContext(ctx, &ids, `
		UPDATE runs
		SET status = $1, queued_at = now(), updated_at = now()
		WHERE status = $2 AND started_at < $3
		RETURNING id`,
		models.RunStatusQueued, models.RunStatusRunning, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to requeue orphaned runs: %w", err)
	}
	return ids, nil
}

func requireRow(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	return nil
}
