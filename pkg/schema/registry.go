// Package schema provides the versioned registry of structured LLM response
// schemas and the validator every pipeline output passes through before
// persistence.
package schema

import (
	"embed"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas
var schemaFS embed.FS

// Registered schema names.
const (
	ExpandedProposal    = "expanded_proposal"
	PersonaReview       = "persona_review"
	DecisionAggregation = "decision_aggregation"
)

// CurrentVersion is the semantic version of all currently registered schemas.
const CurrentVersion = "1.0.0"

// Registry holds compiled JSON Schemas keyed by (name, version).
// Schemas are compiled once at construction; Validate is safe for concurrent
// use.
type Registry struct {
	schemas map[string]map[string]*gojsonschema.Schema
}

// registered enumerates the embedded schema documents.
var registered = []struct {
	name    string
	version string
	file    string
}{
	{ExpandedProposal, "1.0.0", "schemas/expanded_proposal_1.0.0.json"},
	{PersonaReview, "1.0.0", "schemas/persona_review_1.0.0.json"},
	{DecisionAggregation, "1.0.0", "schemas/decision_aggregation_1.0.0.json"},
}

// NewRegistry loads and compiles all embedded schemas.
func NewRegistry() (*Registry, error) {
	r := &Registry{schemas: make(map[string]map[string]*gojsonschema.Schema)}
	for _, reg := range registered {
		raw, err := schemaFS.ReadFile(reg.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded schema %s: %w", reg.file, err)
		}
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s/%s: %w", reg.name, reg.version, err)
		}
		if r.schemas[reg.name] == nil {
			r.schemas[reg.name] = make(map[string]*gojsonschema.Schema)
		}
		r.schemas[reg.name][reg.version] = compiled
	}
	return r, nil
}

// Has reports whether (name, version) is registered.
func (r *Registry) Has(name, version string) bool {
	versions, ok := r.schemas[name]
	if !ok {
		return false
	}
	_, ok = versions[version]
	return ok
}

// lookup resolves a compiled schema or returns the sentinel errors that map
// to UNSUPPORTED_VERSION at the API boundary.
func (r *Registry) lookup(name, version string) (*gojsonschema.Schema, error) {
	versions, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, name)
	}
	compiled, ok := versions[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownVersion, name, version)
	}
	return compiled, nil
}
