// Package aggregate turns a run's persona reviews into a single weighted
// decision with structured dissent.
package aggregate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/quorumlabs/quorum/pkg/models"
)

// Decision thresholds. First-match ordering is fixed: veto, blocking,
// approve, revise, reject.
const (
	ApproveThreshold = 0.80
	ReviseThreshold  = 0.60

	// DissentDelta is the confidence gap beyond which a persona files a
	// minority report regardless of label agreement.
	DissentDelta = 0.25
)

// ErrNoReviews indicates aggregation was invoked with an empty review set.
// This is an invariant violation, not a recoverable condition: the pipeline
// guarantees five reviews before the aggregate step.
var ErrNoReviews = errors.New("cannot aggregate: no persona reviews present")

// Aggregate computes the weighted decision over the run's persona reviews.
func Aggregate(reviews []*models.PersonaReview) (*models.DecisionAggregation, error) {
	if len(reviews) == 0 {
		return nil, ErrNoReviews
	}

	weights := models.PersonaWeights()
	individual := make(map[string]float64, len(reviews))
	contributions := make(map[string]float64, len(reviews))

	weighted := 0.0
	anyBlocking := false
	securityVeto := false

	for _, r := range reviews {
		w, ok := weights[r.PersonaID]
		if !ok {
			return nil, fmt.Errorf("unknown persona %q in review set", r.PersonaID)
		}
		individual[r.PersonaID] = r.ConfidenceScore
		contributions[r.PersonaID] = w * r.ConfidenceScore
		weighted += w * r.ConfidenceScore

		if r.BlockingPresent {
			anyBlocking = true
		}
		if r.PersonaID == models.PersonaSecurityGuardian && securityCriticalPresent(r) {
			securityVeto = true
		}
	}

	label := decide(securityVeto, anyBlocking, weighted)

	agg := &models.DecisionAggregation{
		Decision:           label,
		WeightedConfidence: weighted,
		AnyBlocking:        anyBlocking,
		SecurityVeto:       securityVeto,
		Rationale:          rationale(label, securityVeto, anyBlocking, weighted),
		ScoreBreakdown: models.ScoreBreakdown{
			Weights:               weights,
			IndividualScores:      individual,
			WeightedContributions: contributions,
			Formula:               "weighted_confidence = sum(weight_i * confidence_i)",
		},
		MinorityReports: minorityReports(reviews, label, weighted),
	}
	return agg, nil
}

func decide(securityVeto, anyBlocking bool, weighted float64) models.DecisionLabel {
	switch {
	case securityVeto:
		return models.DecisionReject
	case anyBlocking:
		return models.DecisionReject
	case weighted >= ApproveThreshold:
		return models.DecisionApprove
	case weighted >= ReviseThreshold:
		return models.DecisionRevise
	default:
		return models.DecisionReject
	}
}

// band maps a single confidence score to the label the thresholds alone
// would yield, ignoring blocking issues and the veto.
func band(score float64) models.DecisionLabel {
	switch {
	case score >= ApproveThreshold:
		return models.DecisionApprove
	case score >= ReviseThreshold:
		return models.DecisionRevise
	default:
		return models.DecisionReject
	}
}

// minorityReports collects structured dissent: a persona files one when its
// own score lands in a different band than the final label, when it raised a
// blocking issue yet the run was not rejected, or when its score strays more
// than DissentDelta from the weighted confidence.
func minorityReports(reviews []*models.PersonaReview, final models.DecisionLabel, weighted float64) []models.MinorityReport {
	reports := []models.MinorityReport{}
	for _, r := range reviews {
		dissents := band(r.ConfidenceScore) != final ||
			(r.BlockingPresent && final != models.DecisionReject) ||
			absDiff(r.ConfidenceScore, weighted) > DissentDelta
		if !dissents {
			continue
		}

		report := models.MinorityReport{
			PersonaID:       r.PersonaID,
			PersonaName:     r.PersonaName,
			ConfidenceScore: r.ConfidenceScore,
		}
		if payload, err := parseReview(r); err == nil {
			report.BlockingSummary = summarizeBlocking(payload.BlockingIssues)
			if len(payload.Recommendations) > 0 {
				report.MitigationRecommendation = payload.Recommendations[0]
			}
		}
		reports = append(reports, report)
	}
	return reports
}

func rationale(label models.DecisionLabel, securityVeto, anyBlocking bool, weighted float64) string {
	switch {
	case securityVeto:
		return "security guardian raised a security-critical blocking issue; vetoed regardless of confidence"
	case anyBlocking:
		return fmt.Sprintf("blocking issues present; rejected at weighted confidence %.4f", weighted)
	case label == models.DecisionApprove:
		return fmt.Sprintf("weighted confidence %.4f meets the approval threshold %.2f", weighted, ApproveThreshold)
	case label == models.DecisionRevise:
		return fmt.Sprintf("weighted confidence %.4f falls in the revision band [%.2f, %.2f)", weighted, ReviseThreshold, ApproveThreshold)
	default:
		return fmt.Sprintf("weighted confidence %.4f is below the revision threshold %.2f", weighted, ReviseThreshold)
	}
}

func securityCriticalPresent(r *models.PersonaReview) bool {
	if r.SecurityPresent {
		return true
	}
	payload, err := parseReview(r)
	if err != nil {
		return false
	}
	return payload.SecurityCriticalPresent()
}

func parseReview(r *models.PersonaReview) (*models.ReviewPayload, error) {
	var payload models.ReviewPayload
	if err := json.Unmarshal(r.ReviewJSON, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse review payload: %w", err)
	}
	return &payload, nil
}

func summarizeBlocking(issues []models.BlockingIssue) string {
	if len(issues) == 0 {
		return ""
	}
	parts := make([]string, 0, len(issues))
	for _, b := range issues {
		parts = append(parts, b.Text)
	}
	return strings.Join(parts, "; ")
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
