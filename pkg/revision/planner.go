package revision

import (
	"github.com/quorumlabs/quorum/pkg/models"
)

// RerunConfidenceThreshold is the default score below which a parent review
// is considered too weak to carry over.
const RerunConfidenceThreshold = 0.70

// Plan partitions the parent's reviews into reuse and re-run sets.
type Plan struct {
	// Rerun holds persona ids whose reviews must be executed fresh.
	Rerun []string
	// Reuse holds the parent reviews to copy into the revision run.
	Reuse []*models.PersonaReview
}

// ShouldRerun reports whether a single parent review must be re-executed for
// the revision: low confidence, any blocking issue, or security concerns on
// the security guardian.
func ShouldRerun(r *models.PersonaReview, confidenceThreshold float64) bool {
	if r.ConfidenceScore < confidenceThreshold {
		return true
	}
	if r.BlockingPresent {
		return true
	}
	if r.PersonaID == models.PersonaSecurityGuardian && r.SecurityPresent {
		return true
	}
	return false
}

// PlanReviews decides, for each persona on the panel, whether the parent's
// review carries over or must be re-run. Personas with no parent review are
// always re-run. An empty Rerun set (all five reused) is valid, as is a full
// one.
func PlanReviews(parentReviews []*models.PersonaReview, confidenceThreshold float64) Plan {
	byPersona := make(map[string]*models.PersonaReview, len(parentReviews))
	for _, r := range parentReviews {
		byPersona[r.PersonaID] = r
	}

	plan := Plan{}
	for _, p := range models.Personas {
		parent, ok := byPersona[p.ID]
		if !ok || ShouldRerun(parent, confidenceThreshold) {
			plan.Rerun = append(plan.Rerun, p.ID)
			continue
		}
		plan.Reuse = append(plan.Reuse, parent)
	}
	return plan
}

// RerunSet returns the plan's re-run persona ids as a membership set.
func (p Plan) RerunSet() map[string]bool {
	set := make(map[string]bool, len(p.Rerun))
	for _, id := range p.Rerun {
		set[id] = true
	}
	return set
}
