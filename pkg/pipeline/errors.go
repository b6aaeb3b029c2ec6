package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/quorumlabs/quorum/pkg/llm"
	"github.com/quorumlabs/quorum/pkg/schema"
)

// failureMessage renders the error_message persisted on failed steps and
// runs. The leading code matches the caller-facing error taxonomy so the run
// detail endpoint exposes the failure class without re-parsing.
func failureMessage(err error) string {
	var (
		authErr    *llm.AuthError
		rateErr    *llm.RateLimitError
		timeoutErr *llm.TimeoutError
		connErr    *llm.ConnectionError
		svcErr     *llm.ServiceError
	)

	switch {
	case schema.IsValidationError(err):
		return fmt.Sprintf("SCHEMA_VALIDATION_ERROR: %v", err)
	case errors.As(err, &authErr):
		return fmt.Sprintf("LLM_AUTH_ERROR: %v", err)
	case errors.As(err, &rateErr):
		return fmt.Sprintf("LLM_RATE_LIMIT: %v", err)
	case errors.As(err, &timeoutErr):
		return fmt.Sprintf("LLM_TIMEOUT: %v", err)
	case errors.As(err, &connErr):
		return fmt.Sprintf("LLM_CONNECTION: %v", err)
	case errors.As(err, &svcErr):
		return fmt.Sprintf("LLM_SERVICE_ERROR: %v", err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("LLM_TIMEOUT: %v", err)
	default:
		return fmt.Sprintf("INTERNAL_ERROR: %v", err)
	}
}
