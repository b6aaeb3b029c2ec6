package prompts

import (
	"fmt"
	"strings"
)

const reviewPayloadShape = `{
  "confidence_score": 0.0,
  "strengths": ["..."],
  "concerns": [{"text": "...", "is_blocking": false}],
  "recommendations": ["..."],
  "blocking_issues": [{"text": "...", "security_critical": false}],
  "estimated_effort": "low|medium|high",
  "dependency_risks": ["..."]
}`

// ReviewSystem builds the system prompt for one persona's review step.
func ReviewSystem(personaID string) (string, error) {
	charter, err := PersonaCharter(personaID)
	if err != nil {
		return "", err
	}
	return charter + `

You respond with a single JSON object and nothing else. confidence_score is
your confidence in the proposal as a value between 0.0 and 1.0. Reserve
blocking_issues for problems that must be resolved before the proposal can
proceed.`, nil
}

// ReviewUser builds the user prompt shared by all persona review steps.
func ReviewUser(proposalJSON string) string {
	var b strings.Builder
	b.WriteString("Review the following proposal from your assigned perspective.\n\n")
	fmt.Fprintf(&b, "PROPOSAL (JSON):\n%s\n", proposalJSON)
	fmt.Fprintf(&b, "\nRespond with exactly one JSON object of this shape:\n%s\n", reviewPayloadShape)
	return b.String()
}
