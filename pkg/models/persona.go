package models

import (
	"fmt"
	"math"
)

// Persona is one of the five fixed reviewer roles. The panel's composition
// and weights are immutable; weights must sum to exactly 1.0.
type Persona struct {
	ID     string
	Name   string
	Weight float64
	Step   StepName
}

// Persona ids.
const (
	PersonaArchitect        = "architect"
	PersonaCritic           = "critic"
	PersonaOptimist         = "optimist"
	PersonaSecurityGuardian = "security_guardian"
	PersonaUserAdvocate     = "user_advocate"
)

// Personas is the fixed review panel, ordered to match the canonical review
// steps.
var Personas = []Persona{
	{ID: PersonaArchitect, Name: "Architect", Weight: 0.25, Step: StepReviewArchitect},
	{ID: PersonaCritic, Name: "Critic", Weight: 0.25, Step: StepReviewCritic},
	{ID: PersonaOptimist, Name: "Optimist", Weight: 0.15, Step: StepReviewOptimist},
	{ID: PersonaSecurityGuardian, Name: "Security Guardian", Weight: 0.20, Step: StepReviewSecurityGuardian},
	{ID: PersonaUserAdvocate, Name: "User Advocate", Weight: 0.15, Step: StepReviewUserAdvocate},
}

// PersonaByID returns the persona with the given id.
func PersonaByID(id string) (Persona, bool) {
	for _, p := range Personas {
		if p.ID == id {
			return p, true
		}
	}
	return Persona{}, false
}

// PersonaForStep returns the persona that owns a review step.
func PersonaForStep(step StepName) (Persona, bool) {
	for _, p := range Personas {
		if p.Step == step {
			return p, true
		}
	}
	return Persona{}, false
}

// PersonaWeights returns the weight table keyed by persona id.
func PersonaWeights() map[string]float64 {
	weights := make(map[string]float64, len(Personas))
	for _, p := range Personas {
		weights[p.ID] = p.Weight
	}
	return weights
}

// ValidatePersonaWeights asserts that the panel weights sum to exactly 1.0.
// Called once at startup; a violation is a configuration error, not a
// recoverable condition.
func ValidatePersonaWeights() error {
	sum := 0.0
	for _, p := range Personas {
		sum += p.Weight
	}
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("persona weights must sum to 1.0, got %v", sum)
	}
	return nil
}
