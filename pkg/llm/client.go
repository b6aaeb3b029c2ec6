// Package llm produces schema-validated structured outputs from a language
// model provider, with typed error classification and bounded retry.
package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/quorumlabs/quorum/pkg/models"
	"github.com/quorumlabs/quorum/pkg/schema"
)

// Request is a single completion call to the underlying provider.
type Request struct {
	System      string
	User        string
	Model       string
	Temperature float64
}

// RawCompletion is the provider's untyped response.
type RawCompletion struct {
	Text         string
	FinishReason string
	InputTokens  int64
	OutputTokens int64
}

// Provider is the transport to a concrete LLM API. Implementations must
// return errors from the taxonomy in errors.go.
type Provider interface {
	Complete(ctx context.Context, req Request) (*RawCompletion, error)
}

// TokenUsage is the provider-reported token accounting for one call.
type TokenUsage struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
}

// Metadata describes how a structured output was obtained. AttemptCount is
// recorded even when all attempts fail.
type Metadata struct {
	RequestID    string        `json:"request_id"`
	Model        string        `json:"model"`
	Temperature  float64       `json:"temperature"`
	Latency      time.Duration `json:"latency"`
	AttemptCount int           `json:"attempt_count"`
	FinishReason string        `json:"finish_reason,omitempty"`
	TokenUsage   TokenUsage    `json:"token_usage"`
	Status       string        `json:"status"`
}

// GenerateInput parameterizes one structured-output generation.
type GenerateInput struct {
	System        string
	User          string
	SchemaName    string
	SchemaVersion string
	StepName      models.StepName
	PersonaID     string
	Model         string
	Temperature   float64

	// Retry policy. MaxRetries bounds total attempts; the delay before
	// attempt k (1-indexed) is InitialBackoff * Multiplier^(k-1), and
	// attempt 1 is never delayed.
	MaxRetries     int
	InitialBackoff time.Duration
	Multiplier     float64
}

// StructuredResult is a validated structured output plus call metadata.
// Raw holds the validated JSON document byte-for-byte as extracted from the
// completion; it is what gets persisted.
type StructuredResult struct {
	Raw      json.RawMessage
	Metadata Metadata
}

// Client wraps a Provider with schema validation and bounded retry.
type Client struct {
	provider Provider
	registry *schema.Registry

	// sleep is replaceable in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a structured-output client over the given provider.
func NewClient(provider Provider, registry *schema.Registry) *Client {
	return &Client{
		provider: provider,
		registry: registry,
		sleep:    sleepCtx,
	}
}

// Registry exposes the schema registry so callers can validate non-LLM
// payloads (the aggregator's output) against the same versions.
func (c *Client) Registry() *schema.Registry {
	return c.registry
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// GenerateStructured produces a structurally valid instance of the named
// response type. Only retryable provider errors consume attempts; auth and
// schema failures surface immediately. When attempts are exhausted the final
// provider error is returned; Metadata is non-nil in every case so callers
// can record attempt_count.
func (c *Client) GenerateStructured(ctx context.Context, in GenerateInput) (*StructuredResult, *Metadata, error) {
	requestID := uuid.New().String()
	log := slog.With(
		"request_id", requestID,
		"step", in.StepName,
		"schema", in.SchemaName,
		"model", in.Model,
	)
	if in.PersonaID != "" {
		log = log.With("persona_id", in.PersonaID)
	}

	maxAttempts := in.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	meta := Metadata{
		RequestID:   requestID,
		Model:       in.Model,
		Temperature: in.Temperature,
		Status:      "error",
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := backoffDelay(in.InitialBackoff, in.Multiplier, attempt)
			log.Info("Retrying LLM call", "attempt", attempt, "delay", delay)
			if err := c.sleep(ctx, delay); err != nil {
				meta.Latency = time.Since(start)
				return nil, &meta, &TimeoutError{Err: err}
			}
		}
		meta.AttemptCount = attempt

		completion, err := c.provider.Complete(ctx, Request{
			System:      in.System,
			User:        in.User,
			Model:       in.Model,
			Temperature: in.Temperature,
		})
		if err != nil {
			lastErr = err
			if !IsRetryable(err) {
				meta.Latency = time.Since(start)
				log.Error("LLM call failed (non-retryable)", "attempt", attempt, "error", err)
				return nil, &meta, err
			}
			log.Warn("LLM call failed (retryable)", "attempt", attempt, "error", err)
			continue
		}

		meta.FinishReason = completion.FinishReason
		meta.TokenUsage = TokenUsage{Input: completion.InputTokens, Output: completion.OutputTokens}

		raw := ExtractJSON(completion.Text)
		if err := c.registry.Validate(in.SchemaName, in.SchemaVersion, requestID, raw); err != nil {
			// Invalid structure is not retried here: the step fails and the
			// broker's redelivery policy governs any re-run.
			meta.Latency = time.Since(start)
			log.Error("LLM output failed schema validation", "attempt", attempt, "error", err)
			return nil, &meta, err
		}

		meta.Status = "ok"
		meta.Latency = time.Since(start)
		log.Info("LLM structured output produced",
			"attempt_count", attempt,
			"latency", meta.Latency,
			"input_tokens", completion.InputTokens,
			"output_tokens", completion.OutputTokens,
		)
		return &StructuredResult{Raw: raw, Metadata: meta}, &meta, nil
	}

	meta.Latency = time.Since(start)
	log.Error("LLM retries exhausted", "attempts", meta.AttemptCount, "error", lastErr)
	return nil, &meta, lastErr
}

// backoffDelay computes the delay before attempt k: initial * multiplier^(k-1).
func backoffDelay(initial time.Duration, multiplier float64, attempt int) time.Duration {
	if initial <= 0 {
		initial = time.Second
	}
	if multiplier < 1 {
		multiplier = 2
	}
	return time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt-1)))
}
