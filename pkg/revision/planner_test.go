package revision

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/quorumlabs/quorum/pkg/models"
)

func parentReview(personaID string, score float64, blocking, security bool) *models.PersonaReview {
	persona, _ := models.PersonaByID(personaID)
	return &models.PersonaReview{
		ID:              uuid.New(),
		RunID:           uuid.New(),
		PersonaID:       persona.ID,
		PersonaName:     persona.Name,
		ConfidenceScore: score,
		BlockingPresent: blocking,
		SecurityPresent: security,
	}
}

func TestPlanReviewsRerunsLowConfidenceOnly(t *testing.T) {
	parents := []*models.PersonaReview{
		parentReview(models.PersonaArchitect, 0.80, false, false),
		parentReview(models.PersonaCritic, 0.50, false, false),
		parentReview(models.PersonaOptimist, 0.90, false, false),
		parentReview(models.PersonaSecurityGuardian, 0.75, false, false),
		parentReview(models.PersonaUserAdvocate, 0.85, false, false),
	}

	plan := PlanReviews(parents, RerunConfidenceThreshold)

	assert.Equal(t, []string{models.PersonaCritic}, plan.Rerun)
	assert.Len(t, plan.Reuse, 4)
	for _, r := range plan.Reuse {
		assert.NotEqual(t, models.PersonaCritic, r.PersonaID)
	}
}

func TestPlanReviewsAllReusedIsValid(t *testing.T) {
	parents := []*models.PersonaReview{
		parentReview(models.PersonaArchitect, 0.90, false, false),
		parentReview(models.PersonaCritic, 0.85, false, false),
		parentReview(models.PersonaOptimist, 0.92, false, false),
		parentReview(models.PersonaSecurityGuardian, 0.82, false, false),
		parentReview(models.PersonaUserAdvocate, 0.88, false, false),
	}

	plan := PlanReviews(parents, RerunConfidenceThreshold)

	assert.Empty(t, plan.Rerun)
	assert.Len(t, plan.Reuse, 5)
}

func TestPlanReviewsRerunsBlockingAndSecurity(t *testing.T) {
	parents := []*models.PersonaReview{
		parentReview(models.PersonaArchitect, 0.90, true, false),
		parentReview(models.PersonaCritic, 0.85, false, false),
		parentReview(models.PersonaOptimist, 0.92, false, false),
		parentReview(models.PersonaSecurityGuardian, 0.82, false, true),
		parentReview(models.PersonaUserAdvocate, 0.88, false, false),
	}

	plan := PlanReviews(parents, RerunConfidenceThreshold)

	set := plan.RerunSet()
	assert.True(t, set[models.PersonaArchitect], "blocking issue forces rerun")
	assert.True(t, set[models.PersonaSecurityGuardian], "security concern forces rerun")
	assert.Len(t, plan.Rerun, 2)
}

func TestPlanReviewsMissingParentReviewIsRerun(t *testing.T) {
	parents := []*models.PersonaReview{
		parentReview(models.PersonaArchitect, 0.90, false, false),
	}

	plan := PlanReviews(parents, RerunConfidenceThreshold)

	assert.Len(t, plan.Rerun, 4)
	assert.Len(t, plan.Reuse, 1)
}

func TestShouldRerunBoundary(t *testing.T) {
	// Exactly at the threshold is reusable; strictly below is not.
	at := parentReview(models.PersonaCritic, 0.70, false, false)
	below := parentReview(models.PersonaCritic, 0.6999, false, false)

	assert.False(t, ShouldRerun(at, RerunConfidenceThreshold))
	assert.True(t, ShouldRerun(below, RerunConfidenceThreshold))
}

func TestSecurityConcernOnlyForcesRerunForGuardian(t *testing.T) {
	other := parentReview(models.PersonaOptimist, 0.90, false, true)
	guardian := parentReview(models.PersonaSecurityGuardian, 0.90, false, true)

	assert.False(t, ShouldRerun(other, RerunConfidenceThreshold))
	assert.True(t, ShouldRerun(guardian, RerunConfidenceThreshold))
}
