package llm

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultMaxTokens bounds every completion request.
const DefaultMaxTokens = 4096

// AnthropicProvider implements Provider over the Anthropic Messages API.
type AnthropicProvider struct {
	client    anthropic.Client
	maxTokens int64
}

// NewAnthropicProvider creates a provider using the given API key. An empty
// key falls back to the SDK's ANTHROPIC_API_KEY environment lookup.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &AnthropicProvider{
		client:    anthropic.NewClient(opts...),
		maxTokens: DefaultMaxTokens,
	}
}

// Complete sends one prompt to the Messages API and returns the raw text
// completion. Provider errors are mapped to the package taxonomy.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*RawCompletion, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   p.maxTokens,
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyProviderError(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &RawCompletion{
		Text:         text.String(),
		FinishReason: string(msg.StopReason),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}, nil
}

// classifyProviderError maps SDK and transport errors onto the typed
// taxonomy used by the retry policy.
func classifyProviderError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &TimeoutError{Err: err}
	}

	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 401 || apierr.StatusCode == 403:
			return &AuthError{Status: apierr.StatusCode, Err: err}
		case apierr.StatusCode == 429:
			return &RateLimitError{Err: err}
		case apierr.StatusCode == 408 || apierr.StatusCode == 504:
			return &TimeoutError{Err: err}
		case apierr.StatusCode >= 500:
			// 500/503/529 are transient on Anthropic's side.
			return &ServiceError{Status: apierr.StatusCode, Retryable: true, Err: err}
		default:
			return &ServiceError{Status: apierr.StatusCode, Retryable: false, Err: err}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &TimeoutError{Err: err}
		}
		return &ConnectionError{Err: err}
	}

	return &ConnectionError{Err: err}
}
