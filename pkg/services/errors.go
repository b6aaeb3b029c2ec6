package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// Code identifies an error kind surfaced to callers.
type Code string

// Caller-facing error codes.
const (
	CodeValidationError       Code = "VALIDATION_ERROR"
	CodeParentNotFound        Code = "PARENT_NOT_FOUND"
	CodeParentNotCompleted    Code = "PARENT_NOT_COMPLETED"
	CodeMissingEditInputs     Code = "MISSING_EDIT_INPUTS"
	CodeUnsupportedVersion    Code = "UNSUPPORTED_VERSION"
	CodeRunNotFound           Code = "RUN_NOT_FOUND"
	CodeIdenticalProposals    Code = "IDENTICAL_PROPOSALS"
	CodeSchemaValidationError Code = "SCHEMA_VALIDATION_ERROR"
	CodeLLMAuthError          Code = "LLM_AUTH_ERROR"
	CodeLLMRateLimit          Code = "LLM_RATE_LIMIT"
	CodeLLMTimeout            Code = "LLM_TIMEOUT"
	CodeLLMConnection         Code = "LLM_CONNECTION"
	CodeLLMServiceError       Code = "LLM_SERVICE_ERROR"
	CodeInternalError         Code = "INTERNAL_ERROR"
)

// Error is a caller-facing service error with a stable code and optional
// run reference and details.
type Error struct {
	Code    Code
	Message string
	RunID   *uuid.UUID
	Details interface{}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatus maps the error code to its response status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidationError:
		return http.StatusUnprocessableEntity
	case CodeParentNotFound, CodeRunNotFound:
		return http.StatusNotFound
	case CodeParentNotCompleted:
		return http.StatusConflict
	case CodeMissingEditInputs, CodeUnsupportedVersion, CodeIdenticalProposals:
		return http.StatusBadRequest
	case CodeLLMRateLimit, CodeLLMTimeout, CodeLLMConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AsError extracts a service Error from err, wrapping unknown errors as
// INTERNAL_ERROR.
func AsError(err error) *Error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}

func validationError(message string) *Error {
	return &Error{Code: CodeValidationError, Message: message}
}
