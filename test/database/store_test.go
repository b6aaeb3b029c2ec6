package database_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumlabs/quorum/pkg/models"
	"github.com/quorumlabs/quorum/pkg/store"
	"github.com/quorumlabs/quorum/test/util"
)

func newQueuedRun(t *testing.T, st *store.Store) *models.Run {
	t.Helper()
	now := time.Now().UTC()
	run := &models.Run{
		ID:          uuid.New(),
		RunType:     models.RunTypeInitial,
		Status:      models.RunStatusQueued,
		Priority:    models.PriorityNormal,
		InputIdea:   "Build an offline-first note app.",
		Model:       "claude-sonnet-4-5",
		Temperature: 0.2,
		CreatedAt:   now,
		QueuedAt:    &now,
		UpdatedAt:   now,
	}
	require.NoError(t, st.CreateRun(context.Background(), run))
	return run
}

func claim(t *testing.T, st *store.Store, id uuid.UUID, redelivery bool) *store.Claim {
	t.Helper()
	var c *store.Claim
	err := st.InTx(context.Background(), func(tx *store.Store) error {
		var err error
		c, err = tx.ClaimForProcessing(context.Background(), id, redelivery, time.Hour)
		return err
	})
	require.NoError(t, err)
	return c
}

func TestCreateAndGetRun(t *testing.T) {
	st, _ := util.SetupTestStore(t)
	run := newQueuedRun(t, st)

	got, err := st.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, models.RunStatusQueued, got.Status)
	assert.Equal(t, run.InputIdea, got.InputIdea)

	_, err = st.GetRun(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestClaimQueuedRun(t *testing.T) {
	st, _ := util.SetupTestStore(t)
	run := newQueuedRun(t, st)

	c := claim(t, st, run.ID, false)
	assert.Equal(t, store.ClaimAcquired, c.Outcome)

	got, err := st.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, got.Status)
	assert.NotNil(t, got.StartedAt)
}

func TestClaimCompletedRunIsIdempotentSkip(t *testing.T) {
	st, _ := util.SetupTestStore(t)
	run := newQueuedRun(t, st)
	claim(t, st, run.ID, false)
	require.NoError(t, st.MarkRunCompleted(context.Background(), run.ID, 0.875, models.DecisionApprove))

	c := claim(t, st, run.ID, true)
	assert.Equal(t, store.ClaimAlreadyCompleted, c.Outcome)

	got, err := st.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	assert.Equal(t, 0, got.RetryCount)
}

func TestClaimFailedRunOnRedeliveryBumpsRetry(t *testing.T) {
	st, _ := util.SetupTestStore(t)
	run := newQueuedRun(t, st)
	claim(t, st, run.ID, false)
	require.NoError(t, st.MarkRunFailed(context.Background(), run.ID, "LLM_RATE_LIMIT: too many requests"))

	c := claim(t, st, run.ID, true)
	assert.Equal(t, store.ClaimRetrying, c.Outcome)

	got, err := st.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Nil(t, got.ErrorMessage)
}

func TestClaimFailedRunWithoutRedelivery(t *testing.T) {
	st, _ := util.SetupTestStore(t)
	run := newQueuedRun(t, st)
	claim(t, st, run.ID, false)
	require.NoError(t, st.MarkRunFailed(context.Background(), run.ID, "boom"))

	c := claim(t, st, run.ID, false)
	assert.Equal(t, store.ClaimFailedTerminal, c.Outcome)

	got, err := st.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	assert.Equal(t, 0, got.RetryCount)
}

func TestClaimRunningRun(t *testing.T) {
	st, _ := util.SetupTestStore(t)
	run := newQueuedRun(t, st)
	claim(t, st, run.ID, false)

	// Fresh running run is held by another worker.
	c := claim(t, st, run.ID, true)
	assert.Equal(t, store.ClaimBusy, c.Outcome)

	// The same run is reclaimable once started_at is stale.
	var stale *store.Claim
	err := st.InTx(context.Background(), func(tx *store.Store) error {
		var err error
		stale, err = tx.ClaimForProcessing(context.Background(), run.ID, true, time.Nanosecond)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, store.ClaimReclaimed, stale.Outcome)
}

func TestBumpRetryRequiresFailedStatus(t *testing.T) {
	st, _ := util.SetupTestStore(t)
	run := newQueuedRun(t, st)

	err := st.BumpRetryToQueued(context.Background(), run.ID)
	assert.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestPersonaReviewUniqueness(t *testing.T) {
	st, _ := util.SetupTestStore(t)
	run := newQueuedRun(t, st)

	review := &models.PersonaReview{
		ID:              uuid.New(),
		RunID:           run.ID,
		PersonaID:       models.PersonaCritic,
		PersonaName:     "Critic",
		ReviewJSON:      json.RawMessage(`{"confidence_score": 0.5}`),
		ConfidenceScore: 0.5,
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, st.CreatePersonaReview(context.Background(), review))

	dup := *review
	dup.ID = uuid.New()
	err := st.CreatePersonaReview(context.Background(), &dup)
	assert.ErrorIs(t, err, store.ErrDuplicateReview)

	reviews, err := st.ListPersonaReviews(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Len(t, reviews, 1)
}

func TestUpsertStepProgressIdempotent(t *testing.T) {
	st, _ := util.SetupTestStore(t)
	run := newQueuedRun(t, st)
	ctx := context.Background()

	started := time.Now().UTC()
	require.NoError(t, st.UpsertStepProgress(ctx, &models.StepProgress{
		RunID: run.ID, StepName: models.StepExpand, Status: models.StepRunning, StartedAt: &started,
	}))

	completed := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, st.UpsertStepProgress(ctx, &models.StepProgress{
			RunID: run.ID, StepName: models.StepExpand, Status: models.StepCompleted, CompletedAt: &completed,
		}))
	}

	steps, err := st.ListStepProgress(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, models.StepCompleted, steps[0].Status)
	assert.Equal(t, 0, steps[0].StepOrder)
	assert.NotNil(t, steps[0].StartedAt, "started_at survives the completion upsert")
}

func TestUpsertStepProgressRejectsUnknownStep(t *testing.T) {
	st, _ := util.SetupTestStore(t)
	run := newQueuedRun(t, st)

	err := st.UpsertStepProgress(context.Background(), &models.StepProgress{
		RunID: run.ID, StepName: "review_ghost", Status: models.StepRunning,
	})
	assert.ErrorIs(t, err, store.ErrUnknownStep)
}

func TestListRunsFiltersAndPagination(t *testing.T) {
	st, _ := util.SetupTestStore(t)
	ctx := context.Background()

	var completedID uuid.UUID
	for i := 0; i < 5; i++ {
		run := newQueuedRun(t, st)
		if i == 0 {
			claim(t, st, run.ID, false)
			require.NoError(t, st.MarkRunCompleted(ctx, run.ID, 0.875, models.DecisionApprove))
			completedID = run.ID
		}
	}

	all, total, err := st.ListRuns(ctx, store.RunFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 5, total)

	completed, total, err := st.ListRuns(ctx, store.RunFilter{Status: models.RunStatusCompleted, Limit: 10})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, completedID, completed[0].ID)

	minConf := 0.9
	high, _, err := st.ListRuns(ctx, store.RunFilter{MinConfidence: &minConf, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, high)

	decided, _, err := st.ListRuns(ctx, store.RunFilter{Decision: models.DecisionApprove, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, decided, 1)
}

func TestRequeueOrphanedRuns(t *testing.T) {
	st, db := util.SetupTestStore(t)
	ctx := context.Background()
	run := newQueuedRun(t, st)
	claim(t, st, run.ID, false)

	// Age the running run past the staleness horizon.
	_, err := db.ExecContext(ctx,
		`UPDATE runs SET started_at = now() - interval '2 hours' WHERE id = $1`, run.ID)
	require.NoError(t, err)

	ids, err := st.RequeueOrphanedRuns(ctx, time.Hour)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, run.ID, ids[0])

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusQueued, got.Status)
}

func TestDecisionAndProposalLookups(t *testing.T) {
	st, _ := util.SetupTestStore(t)
	ctx := context.Background()
	run := newQueuedRun(t, st)

	_, err := st.GetProposalVersion(ctx, run.ID)
	assert.ErrorIs(t, err, store.ErrProposalNotFound)
	_, err = st.GetDecision(ctx, run.ID)
	assert.ErrorIs(t, err, store.ErrDecisionNotFound)

	require.NoError(t, st.CreateProposalVersion(ctx, &models.ProposalVersion{
		ID:                     uuid.New(),
		RunID:                  run.ID,
		ExpandedProposalJSON:   json.RawMessage(`{"problem_statement": "x"}`),
		PersonaTemplateVersion: "v1",
		CreatedAt:              time.Now().UTC(),
	}))
	pv, err := st.GetProposalVersion(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, pv.RunID)
}
