package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownSchema is returned when no schema is registered under the
	// requested name.
	ErrUnknownSchema = errors.New("unknown schema")

	// ErrUnknownVersion is returned when the schema name exists but the
	// requested version does not.
	ErrUnknownVersion = errors.New("unknown schema version")
)

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

// ValidationError reports that an instance failed validation against a
// registered schema. It carries field-level errors and the correlation
// context of the originating request.
type ValidationError struct {
	Schema    string       `json:"schema"`
	Version   string       `json:"schema_version"`
	RequestID string       `json:"request_id,omitempty"`
	Fields    []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Message)
	}
	return fmt.Sprintf("schema %s/%s validation failed: %s", e.Schema, e.Version, strings.Join(parts, "; "))
}

// IsValidationError reports whether err is a schema validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
