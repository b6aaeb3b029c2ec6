package revision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumlabs/quorum/pkg/models"
)

func baseProposal() *models.ExpandedProposal {
	return &models.ExpandedProposal{
		Title:            "Offline-first notes",
		Summary:          "A note app that syncs when online.",
		ProblemStatement: "Notes are lost without connectivity.",
		ProposedSolution: "Local-first storage with background sync.",
		Assumptions:      []string{"users have intermittent connectivity"},
		ScopeNonGoals:    []string{"no real-time collaboration"},
	}
}

func TestDiffDetectsSingleListChange(t *testing.T) {
	parent := baseProposal()
	revised := baseProposal()
	revised.ScopeNonGoals = []string{"no real-time collaboration", "no mobile app in v1"}

	diff := Diff(parent, revised)

	require.Equal(t, 1, diff.NumChanges)
	change, ok := diff.ChangedFields[FieldScopeNonGoals]
	require.True(t, ok)
	assert.Equal(t, parent.ScopeNonGoals, change.Before)
	assert.Equal(t, revised.ScopeNonGoals, change.After)
	assert.False(t, diff.Timestamp.IsZero())
}

func TestDiffIdenticalProposals(t *testing.T) {
	diff := Diff(baseProposal(), baseProposal())
	assert.Equal(t, 0, diff.NumChanges)
	assert.Empty(t, diff.ChangedFields)
}

func TestDiffMultipleFields(t *testing.T) {
	parent := baseProposal()
	revised := baseProposal()
	revised.Title = "Offline-first notes v2"
	revised.ProposedSolution = "CRDT-backed local-first storage with background sync."
	revised.Assumptions = []string{"users have intermittent connectivity", "devices have local storage"}

	diff := Diff(parent, revised)

	assert.Equal(t, 3, diff.NumChanges)
	for _, field := range []string{FieldTitle, FieldProposedSolution, FieldAssumptions} {
		_, ok := diff.ChangedFields[field]
		assert.True(t, ok, "expected %s to be reported", field)
	}
}

func TestDiffListReorderIsAChange(t *testing.T) {
	parent := baseProposal()
	parent.Assumptions = []string{"a", "b"}
	revised := baseProposal()
	revised.Assumptions = []string{"b", "a"}

	diff := Diff(parent, revised)
	_, ok := diff.ChangedFields[FieldAssumptions]
	assert.True(t, ok, "assumption order is significant")
}

func TestTextDelta(t *testing.T) {
	delta := TextDelta("local storage", "local encrypted storage")
	assert.Contains(t, delta, "[+")
	assert.Contains(t, delta, "encrypted")

	assert.Equal(t, "unchanged", TextDelta("unchanged", "unchanged"))
}
