package prompts

import (
	"fmt"
	"strings"
)

const expandSystem = `You expand raw product and engineering ideas into structured proposals. You
preserve the author's intent, make implicit assumptions explicit, and state
scope boundaries honestly. Respond with a single JSON object and nothing
else.`

const expandedProposalShape = `{
  "title": "short title (optional)",
  "summary": "one-paragraph summary (optional)",
  "problem_statement": "what problem this solves and for whom",
  "proposed_solution": "how the idea solves it",
  "assumptions": ["ordered list of assumptions the idea relies on"],
  "scope_non_goals": ["ordered list of things explicitly out of scope"],
  "raw_idea": "the original idea text, verbatim",
  "raw_expanded_proposal": "the full expanded proposal as readable prose"
}`

// ExpandSystem returns the system prompt for the expand step.
func ExpandSystem() string {
	return expandSystem
}

// ExpandUser builds the user prompt for an initial run's expand step.
func ExpandUser(idea string, extraContext string) string {
	var b strings.Builder
	b.WriteString("Expand the following idea into a structured proposal.\n\n")
	fmt.Fprintf(&b, "IDEA:\n%s\n", idea)
	if extraContext != "" {
		fmt.Fprintf(&b, "\nADDITIONAL CONTEXT:\n%s\n", extraContext)
	}
	fmt.Fprintf(&b, "\nRespond with exactly one JSON object of this shape:\n%s\n", expandedProposalShape)
	b.WriteString("\nSet raw_idea to the original idea text verbatim.")
	return b.String()
}

// RevisionExpandUser builds the user prompt for a revision run's expand
// step: the parent proposal merged with the author's edits.
func RevisionExpandUser(parentProposalJSON string, editedProposal, editNotes string) string {
	var b strings.Builder
	b.WriteString("A previously reviewed proposal has been edited by its author. Produce a\n")
	b.WriteString("coherent new structured proposal that incorporates the edits.\n\n")
	fmt.Fprintf(&b, "PARENT PROPOSAL (JSON):\n%s\n", parentProposalJSON)
	if editedProposal != "" {
		fmt.Fprintf(&b, "\nEDITED PROPOSAL:\n%s\n", editedProposal)
	}
	if editNotes != "" {
		fmt.Fprintf(&b, "\nEDIT NOTES:\n%s\n", editNotes)
	}
	fmt.Fprintf(&b, "\nRespond with exactly one JSON object of this shape:\n%s\n", expandedProposalShape)
	b.WriteString("\nKeep unedited fields faithful to the parent; apply the edits where they\n")
	b.WriteString("conflict. Set raw_idea to the parent's raw_idea verbatim.")
	return b.String()
}
