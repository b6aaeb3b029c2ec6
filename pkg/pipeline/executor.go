// Package pipeline drives one run per broker message through the canonical
// step sequence to a terminal state, idempotently under redelivery.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quorumlabs/quorum/pkg/aggregate"
	"github.com/quorumlabs/quorum/pkg/config"
	"github.com/quorumlabs/quorum/pkg/llm"
	"github.com/quorumlabs/quorum/pkg/models"
	"github.com/quorumlabs/quorum/pkg/prompts"
	"github.com/quorumlabs/quorum/pkg/revision"
	"github.com/quorumlabs/quorum/pkg/schema"
	"github.com/quorumlabs/quorum/pkg/store"
)

// Executor runs the canonical step sequence for one claimed run. Steps are
// strictly sequential; no step begins before the prior step's transaction
// commits.
type Executor struct {
	store  *store.Store
	llm    *llm.Client
	cfg    *config.Config
	logger *slog.Logger
}

// NewExecutor creates a pipeline executor.
func NewExecutor(st *store.Store, client *llm.Client, cfg *config.Config, logger *slog.Logger) *Executor {
	return &Executor{store: st, llm: client, cfg: cfg, logger: logger}
}

// Execute drives the run to a terminal state. On step failure it persists
// the failed step and the failed run before returning the error, so the
// caller can nack knowing state is consistent.
func (e *Executor) Execute(ctx context.Context, run *models.Run) error {
	log := e.logger.With("run_id", run.ID, "run_type", run.RunType)
	log.Info("executing pipeline", "retry_count", run.RetryCount)

	for _, step := range models.CanonicalSteps {
		if err := e.runStep(ctx, run, step); err != nil {
			e.failStep(ctx, run.ID, step, err)
			log.Error("pipeline failed", "step", step, "error", err)
			return fmt.Errorf("step %s: %w", step, err)
		}

		// Revision runs seed reuse copies right after expand so the review
		// steps short-circuit on artifact presence. Seeding happens between
		// steps, so its failure is recorded on the run alone and the
		// completed expand row stays accurate.
		if step == models.StepExpand && run.RunType == models.RunTypeRevision {
			if err := e.seedReusedReviews(ctx, run); err != nil {
				e.failRun(ctx, run.ID, err)
				log.Error("pipeline failed seeding reused reviews", "error", err)
				return fmt.Errorf("seed reused reviews: %w", err)
			}
		}
	}

	log.Info("pipeline completed")
	return nil
}

// runStep executes one canonical step: mark running, short-circuit if the
// artifact already exists, otherwise produce and persist it atomically with
// the step completion.
func (e *Executor) runStep(ctx context.Context, run *models.Run, step models.StepName) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("job canceled before step: %w", err)
	}

	now := time.Now().UTC()
	if err := e.store.UpsertStepProgress(ctx, &models.StepProgress{
		RunID:     run.ID,
		StepName:  step,
		Status:    models.StepRunning,
		StartedAt: &now,
	}); err != nil {
		return err
	}

	exists, err := e.artifactExists(ctx, run, step)
	if err != nil {
		return err
	}
	if exists {
		e.logger.Info("step artifact present, skipping", "run_id", run.ID, "step", step)
		return e.completeStep(ctx, e.store, run.ID, step)
	}

	stepCtx, cancel := context.WithTimeout(ctx, e.cfg.Worker.StepTimeout())
	defer cancel()

	switch {
	case step == models.StepExpand:
		return e.executeExpand(stepCtx, run)
	case step.IsReviewStep():
		persona, _ := models.PersonaForStep(step)
		return e.executeReview(stepCtx, run, persona)
	default:
		return e.executeAggregate(stepCtx, run)
	}
}

func (e *Executor) artifactExists(ctx context.Context, run *models.Run, step models.StepName) (bool, error) {
	switch {
	case step == models.StepExpand:
		_, err := e.store.GetProposalVersion(ctx, run.ID)
		if errors.Is(err, store.ErrProposalNotFound) {
			return false, nil
		}
		return err == nil, err
	case step.IsReviewStep():
		persona, _ := models.PersonaForStep(step)
		review, err := e.store.GetPersonaReview(ctx, run.ID, persona.ID)
		return review != nil, err
	default:
		_, err := e.store.GetDecision(ctx, run.ID)
		if errors.Is(err, store.ErrDecisionNotFound) {
			return false, nil
		}
		return err == nil, err
	}
}

func (e *Executor) executeExpand(ctx context.Context, run *models.Run) error {
	var (
		user           string
		parentProposal *models.ProposalVersion
	)
	if run.RunType == models.RunTypeRevision {
		if run.ParentRunID == nil {
			return fmt.Errorf("revision run %s has no parent", run.ID)
		}
		var err error
		parentProposal, err = e.store.GetProposalVersion(ctx, *run.ParentRunID)
		if err != nil {
			return fmt.Errorf("failed to load parent proposal: %w", err)
		}
		user = prompts.RevisionExpandUser(
			string(parentProposal.ExpandedProposalJSON),
			deref(run.EditedProposal),
			deref(run.EditNotes),
		)
	} else {
		user = prompts.ExpandUser(run.InputIdea, deref(run.ExtraContext))
	}

	result, _, err := e.llm.GenerateStructured(ctx, llm.GenerateInput{
		System:         prompts.ExpandSystem(),
		User:           user,
		SchemaName:     schema.ExpandedProposal,
		SchemaVersion:  schema.CurrentVersion,
		StepName:       models.StepExpand,
		Model:          e.cfg.LLM.ExpandModel,
		Temperature:    e.cfg.LLM.ExpandTemperature,
		MaxRetries:     e.cfg.LLM.MaxRetriesPerPersona,
		InitialBackoff: e.cfg.LLM.InitialBackoff(),
		Multiplier:     e.cfg.LLM.BackoffMultiplier,
	})
	if err != nil {
		return err
	}

	pv := &models.ProposalVersion{
		ID:                     uuid.New(),
		RunID:                  run.ID,
		ExpandedProposalJSON:   result.Raw,
		EditNotes:              run.EditNotes,
		PersonaTemplateVersion: e.cfg.PersonaTemplateVersion,
		CreatedAt:              time.Now().UTC(),
	}

	if parentProposal != nil {
		diffJSON, err := diffProposals(parentProposal.ExpandedProposalJSON, result.Raw)
		if err != nil {
			return err
		}
		pv.ProposalDiffJSON = diffJSON
	}

	return e.store.InTx(ctx, func(tx *store.Store) error {
		if err := tx.CreateProposalVersion(ctx, pv); err != nil {
			return err
		}
		return e.completeStep(ctx, tx, run.ID, models.StepExpand)
	})
}

func diffProposals(parentJSON, revisedJSON json.RawMessage) (json.RawMessage, error) {
	var parent, revised models.ExpandedProposal
	if err := json.Unmarshal(parentJSON, &parent); err != nil {
		return nil, fmt.Errorf("failed to parse parent proposal: %w", err)
	}
	if err := json.Unmarshal(revisedJSON, &revised); err != nil {
		return nil, fmt.Errorf("failed to parse revised proposal: %w", err)
	}
	diff := revision.Diff(&parent, &revised)
	data, err := json.Marshal(diff)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal proposal diff: %w", err)
	}
	return data, nil
}

func (e *Executor) executeReview(ctx context.Context, run *models.Run, persona models.Persona) error {
	pv, err := e.store.GetProposalVersion(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load proposal for review: %w", err)
	}

	system, err := prompts.ReviewSystem(persona.ID)
	if err != nil {
		return err
	}

	result, meta, err := e.llm.GenerateStructured(ctx, llm.GenerateInput{
		System:         system,
		User:           prompts.ReviewUser(string(pv.ExpandedProposalJSON)),
		SchemaName:     schema.PersonaReview,
		SchemaVersion:  schema.CurrentVersion,
		StepName:       persona.Step,
		PersonaID:      persona.ID,
		Model:          e.cfg.LLM.ReviewModel,
		Temperature:    e.cfg.LLM.ReviewTemperature,
		MaxRetries:     e.cfg.LLM.MaxRetriesPerPersona,
		InitialBackoff: e.cfg.LLM.InitialBackoff(),
		Multiplier:     e.cfg.LLM.BackoffMultiplier,
	})
	if err != nil {
		return err
	}

	var payload models.ReviewPayload
	if err := json.Unmarshal(result.Raw, &payload); err != nil {
		return fmt.Errorf("failed to parse validated review: %w", err)
	}

	promptParams, err := json.Marshal(models.PromptParameters{
		Model:          meta.Model,
		Temperature:    meta.Temperature,
		PersonaVersion: e.cfg.PersonaTemplateVersion,
		AttemptCount:   meta.AttemptCount,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal prompt parameters: %w", err)
	}

	pr := &models.PersonaReview{
		ID:                   uuid.New(),
		RunID:                run.ID,
		PersonaID:            persona.ID,
		PersonaName:          persona.Name,
		ReviewJSON:           result.Raw,
		ConfidenceScore:      payload.ConfidenceScore,
		BlockingPresent:      payload.BlockingPresent(),
		SecurityPresent:      payload.SecurityCriticalPresent(),
		PromptParametersJSON: promptParams,
		CreatedAt:            time.Now().UTC(),
	}

	err = e.store.InTx(ctx, func(tx *store.Store) error {
		if err := tx.CreatePersonaReview(ctx, pr); err != nil {
			return err
		}
		return e.completeStep(ctx, tx, run.ID, persona.Step)
	})
	if errors.Is(err, store.ErrDuplicateReview) {
		// Another worker committed this review between our artifact check and
		// the insert. Theirs wins; the step is done.
		e.logger.Info("review already persisted by a concurrent worker",
			"run_id", run.ID, "persona_id", persona.ID)
		return e.completeStep(ctx, e.store, run.ID, persona.Step)
	}
	return err
}

func (e *Executor) executeAggregate(ctx context.Context, run *models.Run) error {
	reviews, err := e.store.ListPersonaReviews(ctx, run.ID)
	if err != nil {
		return err
	}

	agg, err := aggregate.Aggregate(reviews)
	if err != nil {
		return err
	}

	decisionJSON, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}
	if err := e.validateDecision(run.ID, decisionJSON); err != nil {
		return err
	}

	decision := &models.Decision{
		ID:                        uuid.New(),
		RunID:                     run.ID,
		DecisionJSON:              decisionJSON,
		OverallWeightedConfidence: agg.WeightedConfidence,
		CreatedAt:                 time.Now().UTC(),
	}

	return e.store.InTx(ctx, func(tx *store.Store) error {
		if err := tx.CreateDecision(ctx, decision); err != nil {
			return err
		}
		if err := tx.MarkRunCompleted(ctx, run.ID, agg.WeightedConfidence, agg.Decision); err != nil {
			return err
		}
		return e.completeStep(ctx, tx, run.ID, models.StepAggregateDecision)
	})
}

// validateDecision holds the aggregator's own output to the same schema bar
// as LLM outputs before it is persisted.
func (e *Executor) validateDecision(runID uuid.UUID, decisionJSON json.RawMessage) error {
	return e.llm.Registry().Validate(schema.DecisionAggregation, schema.CurrentVersion, runID.String(), decisionJSON)
}

// seedReusedReviews copies the parent reviews the planner marked reusable
// into the revision run. Reviews that must be re-run are left absent so
// their steps execute fresh.
func (e *Executor) seedReusedReviews(ctx context.Context, run *models.Run) error {
	parentReviews, err := e.store.ListPersonaReviews(ctx, *run.ParentRunID)
	if err != nil {
		return err
	}

	plan := revision.PlanReviews(parentReviews, e.cfg.RerunConfidenceThreshold)
	e.logger.Info("revision plan computed",
		"run_id", run.ID,
		"parent_run_id", *run.ParentRunID,
		"rerun", plan.Rerun,
		"reused", len(plan.Reuse))

	for _, parent := range plan.Reuse {
		promptParams, err := reusedPromptParameters(parent)
		if err != nil {
			return err
		}
		reused := &models.PersonaReview{
			ID:                   uuid.New(),
			RunID:                run.ID,
			PersonaID:            parent.PersonaID,
			PersonaName:          parent.PersonaName,
			ReviewJSON:           parent.ReviewJSON,
			ConfidenceScore:      parent.ConfidenceScore,
			BlockingPresent:      parent.BlockingPresent,
			SecurityPresent:      parent.SecurityPresent,
			PromptParametersJSON: promptParams,
			CreatedAt:            time.Now().UTC(),
		}
		err = e.store.CreatePersonaReview(ctx, reused)
		if err != nil && !errors.Is(err, store.ErrDuplicateReview) {
			return err
		}
	}
	return nil
}

// reusedPromptParameters carries the parent's prompt metadata forward with
// the reuse annotation.
func reusedPromptParameters(parent *models.PersonaReview) (json.RawMessage, error) {
	var params models.PromptParameters
	if len(parent.PromptParametersJSON) > 0 {
		if err := json.Unmarshal(parent.PromptParametersJSON, &params); err != nil {
			return nil, fmt.Errorf("failed to parse parent prompt parameters: %w", err)
		}
	}
	params.Reused = true
	params.SourceRunID = parent.RunID.String()

	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal prompt parameters: %w", err)
	}
	return data, nil
}

func (e *Executor) completeStep(ctx context.Context, s *store.Store, runID uuid.UUID, step models.StepName) error {
	now := time.Now().UTC()
	return s.UpsertStepProgress(ctx, &models.StepProgress{
		RunID:       runID,
		StepName:    step,
		Status:      models.StepCompleted,
		CompletedAt: &now,
	})
}

// failStep persists the failed step and the failed run. It uses a fresh
// context so failure state still commits when the job context is already
// canceled.
func (e *Executor) failStep(ctx context.Context, runID uuid.UUID, step models.StepName, cause error) {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	message := failureMessage(cause)
	err := e.store.InTx(persistCtx, func(tx *store.Store) error {
		now := time.Now().UTC()
		if err := tx.UpsertStepProgress(persistCtx, &models.StepProgress{
			RunID:        runID,
			StepName:     step,
			Status:       models.StepFailed,
			CompletedAt:  &now,
			ErrorMessage: &message,
		}); err != nil {
			return err
		}
		return tx.MarkRunFailed(persistCtx, runID, message)
	})
	if err != nil {
		e.logger.Error("failed to persist failure state", "run_id", runID, "step", step, "error", err)
	}
}

// failRun persists the failed run without touching step rows, for failures
// that happen between steps.
func (e *Executor) failRun(ctx context.Context, runID uuid.UUID, cause error) {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := e.store.MarkRunFailed(persistCtx, runID, failureMessage(cause)); err != nil {
		e.logger.Error("failed to persist failure state", "run_id", runID, "error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
