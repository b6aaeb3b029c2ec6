package schema

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Validate checks a raw JSON document against the registered schema
// (name, version). On failure it returns a *ValidationError carrying
// field-level errors and the caller's correlation requestID. An instance that
// fails here is never stored as a committed artifact.
func (r *Registry) Validate(name, version, requestID string, raw []byte) error {
	compiled, err := r.lookup(name, version)
	if err != nil {
		return err
	}

	result, err := compiled.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		// The document is not even parseable JSON.
		return &ValidationError{
			Schema:    name,
			Version:   version,
			RequestID: requestID,
			Fields: []FieldError{
				{Field: "(document)", Message: err.Error(), Kind: "invalid_json"},
			},
		}
	}
	if result.Valid() {
		return nil
	}

	fields := make([]FieldError, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		fields = append(fields, FieldError{
			Field:   re.Field(),
			Message: re.Description(),
			Kind:    re.Type(),
		})
	}
	return &ValidationError{
		Schema:    name,
		Version:   version,
		RequestID: requestID,
		Fields:    fields,
	}
}

// MustValidateNames asserts at startup that the canonical schemas are
// registered under the current version.
func (r *Registry) MustValidateNames() error {
	for _, name := range []string{ExpandedProposal, PersonaReview, DecisionAggregation} {
		if !r.Has(name, CurrentVersion) {
			return fmt.Errorf("schema %s/%s not registered", name, CurrentVersion)
		}
	}
	return nil
}
