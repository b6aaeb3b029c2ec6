// Package revision computes proposal diffs and plans which persona reviews a
// revision run must re-execute.
package revision

import (
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/quorumlabs/quorum/pkg/models"
)

// Diffed proposal fields. Only structured fields participate; the raw text
// mirrors are excluded.
const (
	FieldProblemStatement = "problem_statement"
	FieldProposedSolution = "proposed_solution"
	FieldAssumptions      = "assumptions"
	FieldScopeNonGoals    = "scope_non_goals"
	FieldTitle            = "title"
	FieldSummary          = "summary"
)

// Diff computes the field-level diff between a parent proposal and its
// revision.
func Diff(parent, revised *models.ExpandedProposal) *models.ProposalDiff {
	changed := map[string]models.FieldChange{}

	diffString(changed, FieldTitle, parent.Title, revised.Title)
	diffString(changed, FieldSummary, parent.Summary, revised.Summary)
	diffString(changed, FieldProblemStatement, parent.ProblemStatement, revised.ProblemStatement)
	diffString(changed, FieldProposedSolution, parent.ProposedSolution, revised.ProposedSolution)
	diffList(changed, FieldAssumptions, parent.Assumptions, revised.Assumptions)
	diffList(changed, FieldScopeNonGoals, parent.ScopeNonGoals, revised.ScopeNonGoals)

	return &models.ProposalDiff{
		ChangedFields: changed,
		NumChanges:    len(changed),
		Timestamp:     time.Now().UTC(),
	}
}

func diffString(changed map[string]models.FieldChange, field, before, after string) {
	if before != after {
		changed[field] = models.FieldChange{Before: before, After: after}
	}
}

func diffList(changed map[string]models.FieldChange, field string, before, after []string) {
	if !equalLists(before, after) {
		changed[field] = models.FieldChange{Before: before, After: after}
	}
}

func equalLists(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TextDelta renders a compact human-readable delta between two texts, used
// in diff responses and logs.
func TextDelta(before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			b.WriteString("[+" + d.Text + "]")
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-" + d.Text + "]")
		default:
			b.WriteString(d.Text)
		}
	}
	return b.String()
}
