package aggregate

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumlabs/quorum/pkg/models"
)

func reviewSet(t *testing.T, scores map[string]float64) []*models.PersonaReview {
	t.Helper()
	reviews := make([]*models.PersonaReview, 0, len(scores))
	for _, p := range models.Personas {
		score, ok := scores[p.ID]
		if !ok {
			continue
		}
		payload, err := json.Marshal(models.ReviewPayload{
			ConfidenceScore: score,
			Strengths:       []string{"solid idea"},
			Concerns:        []models.Concern{},
			Recommendations: []string{"tighten the scope"},
			BlockingIssues:  []models.BlockingIssue{},
			EstimatedEffort: "medium",
			DependencyRisks: []string{},
		})
		require.NoError(t, err)
		reviews = append(reviews, &models.PersonaReview{
			ID:              uuid.New(),
			RunID:           uuid.New(),
			PersonaID:       p.ID,
			PersonaName:     p.Name,
			ReviewJSON:      payload,
			ConfidenceScore: score,
		})
	}
	return reviews
}

func withBlocking(t *testing.T, r *models.PersonaReview, securityCritical bool) *models.PersonaReview {
	t.Helper()
	payload, err := json.Marshal(models.ReviewPayload{
		ConfidenceScore: r.ConfidenceScore,
		Strengths:       []string{},
		Concerns:        []models.Concern{},
		Recommendations: []string{"resolve the blocker before proceeding"},
		BlockingIssues:  []models.BlockingIssue{{Text: "unresolved blocker", SecurityCritical: securityCritical}},
		EstimatedEffort: "medium",
		DependencyRisks: []string{},
	})
	require.NoError(t, err)
	r.ReviewJSON = payload
	r.BlockingPresent = true
	r.SecurityPresent = securityCritical
	return r
}

func TestAggregateWeightedConfidenceRevise(t *testing.T) {
	reviews := reviewSet(t, map[string]float64{
		models.PersonaArchitect:        0.80,
		models.PersonaCritic:           0.70,
		models.PersonaOptimist:         0.90,
		models.PersonaSecurityGuardian: 0.75,
		models.PersonaUserAdvocate:     0.85,
	})

	agg, err := Aggregate(reviews)
	require.NoError(t, err)

	assert.InDelta(t, 0.7875, agg.WeightedConfidence, 1e-9)
	assert.Equal(t, models.DecisionRevise, agg.Decision)
	assert.False(t, agg.AnyBlocking)
	assert.False(t, agg.SecurityVeto)
}

func TestAggregateApprove(t *testing.T) {
	reviews := reviewSet(t, map[string]float64{
		models.PersonaArchitect:        0.90,
		models.PersonaCritic:           0.85,
		models.PersonaOptimist:         0.92,
		models.PersonaSecurityGuardian: 0.82,
		models.PersonaUserAdvocate:     0.88,
	})

	agg, err := Aggregate(reviews)
	require.NoError(t, err)

	assert.InDelta(t, 0.875, agg.WeightedConfidence, 1e-9)
	assert.Equal(t, models.DecisionApprove, agg.Decision)
	assert.Empty(t, agg.MinorityReports)
}

func TestAggregateSecurityVetoOverridesConfidence(t *testing.T) {
	reviews := reviewSet(t, map[string]float64{
		models.PersonaArchitect:        0.90,
		models.PersonaCritic:           0.85,
		models.PersonaOptimist:         0.92,
		models.PersonaSecurityGuardian: 0.82,
		models.PersonaUserAdvocate:     0.88,
	})
	for _, r := range reviews {
		if r.PersonaID == models.PersonaSecurityGuardian {
			withBlocking(t, r, true)
		}
	}

	agg, err := Aggregate(reviews)
	require.NoError(t, err)

	assert.InDelta(t, 0.875, agg.WeightedConfidence, 1e-9)
	assert.Equal(t, models.DecisionReject, agg.Decision)
	assert.True(t, agg.SecurityVeto)

	cited := false
	for _, mr := range agg.MinorityReports {
		if mr.PersonaID == models.PersonaSecurityGuardian {
			cited = true
			assert.Contains(t, mr.BlockingSummary, "unresolved blocker")
		}
	}
	assert.True(t, cited, "security guardian must appear in minority reports")
}

func TestAggregateBlockingIssueRejectsHighConfidence(t *testing.T) {
	reviews := reviewSet(t, map[string]float64{
		models.PersonaArchitect:        0.95,
		models.PersonaCritic:           0.95,
		models.PersonaOptimist:         0.95,
		models.PersonaSecurityGuardian: 0.95,
		models.PersonaUserAdvocate:     0.95,
	})
	withBlocking(t, reviews[1], false)

	agg, err := Aggregate(reviews)
	require.NoError(t, err)

	assert.Equal(t, models.DecisionReject, agg.Decision)
	assert.True(t, agg.AnyBlocking)
	assert.False(t, agg.SecurityVeto)
}

func TestAggregateThresholdBoundaries(t *testing.T) {
	uniform := func(score float64) map[string]float64 {
		return map[string]float64{
			models.PersonaArchitect:        score,
			models.PersonaCritic:           score,
			models.PersonaOptimist:         score,
			models.PersonaSecurityGuardian: score,
			models.PersonaUserAdvocate:     score,
		}
	}

	cases := []struct {
		name  string
		score float64
		want  models.DecisionLabel
	}{
		{"exactly approve threshold", 0.80, models.DecisionApprove},
		{"just under approve threshold", 0.7999, models.DecisionRevise},
		{"exactly revise threshold", 0.60, models.DecisionRevise},
		{"just under revise threshold", 0.5999, models.DecisionReject},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			agg, err := Aggregate(reviewSet(t, uniform(tc.score)))
			require.NoError(t, err)
			assert.Equal(t, tc.want, agg.Decision)
			assert.InDelta(t, tc.score, agg.WeightedConfidence, 1e-9)
		})
	}
}

func TestAggregateNoReviewsIsInvariantViolation(t *testing.T) {
	_, err := Aggregate(nil)
	assert.ErrorIs(t, err, ErrNoReviews)
}

func TestAggregateMinorityReportOnBandDissent(t *testing.T) {
	// Critic at 0.50 lands in the reject band while the panel revises.
	reviews := reviewSet(t, map[string]float64{
		models.PersonaArchitect:        0.80,
		models.PersonaCritic:           0.50,
		models.PersonaOptimist:         0.80,
		models.PersonaSecurityGuardian: 0.80,
		models.PersonaUserAdvocate:     0.80,
	})

	agg, err := Aggregate(reviews)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionRevise, agg.Decision)

	ids := make([]string, 0, len(agg.MinorityReports))
	for _, mr := range agg.MinorityReports {
		ids = append(ids, mr.PersonaID)
	}
	assert.Contains(t, ids, models.PersonaCritic)
}

func TestAggregateScoreBreakdown(t *testing.T) {
	reviews := reviewSet(t, map[string]float64{
		models.PersonaArchitect:        0.80,
		models.PersonaCritic:           0.70,
		models.PersonaOptimist:         0.90,
		models.PersonaSecurityGuardian: 0.75,
		models.PersonaUserAdvocate:     0.85,
	})

	agg, err := Aggregate(reviews)
	require.NoError(t, err)

	bd := agg.ScoreBreakdown
	assert.Len(t, bd.Weights, 5)
	assert.Len(t, bd.IndividualScores, 5)
	assert.InDelta(t, 0.25*0.80, bd.WeightedContributions[models.PersonaArchitect], 1e-9)
	assert.InDelta(t, 0.20*0.75, bd.WeightedContributions[models.PersonaSecurityGuardian], 1e-9)
	assert.NotEmpty(t, bd.Formula)
}
