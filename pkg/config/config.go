// Package config loads and validates process configuration from the
// environment. All settings are resolved once at startup and passed by
// reference.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/quorumlabs/quorum/pkg/models"
)

// LLMConfig holds model selection and retry policy for pipeline LLM calls.
type LLMConfig struct {
	// Model is the fallback identifier when a step-specific model is unset.
	Model       string
	ExpandModel string
	ReviewModel string

	ExpandTemperature float64 // range [0,1]
	ReviewTemperature float64 // range [0,1]

	MaxRetriesPerPersona  int     // 1–10
	InitialBackoffSeconds float64 // 0.1–60
	BackoffMultiplier     float64 // 1–10

	APIKey string
}

// InitialBackoff returns the backoff base as a duration.
func (c LLMConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffSeconds * float64(time.Second))
}

// WorkerConfig controls the pipeline worker's concurrency and timeouts.
type WorkerConfig struct {
	MaxConcurrency          int // 1–1000
	AckDeadlineSeconds      int // 60–3600
	StepTimeoutSeconds      int // 10–1800
	JobTimeoutSeconds       int // 60–7200
	GracefulShutdownTimeout time.Duration
}

// StepTimeout returns the per-step soft timeout.
func (c WorkerConfig) StepTimeout() time.Duration {
	return time.Duration(c.StepTimeoutSeconds) * time.Second
}

// JobTimeout returns the overall per-job timeout.
func (c WorkerConfig) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSeconds) * time.Second
}

// AckDeadline returns the broker ack deadline.
func (c WorkerConfig) AckDeadline() time.Duration {
	return time.Duration(c.AckDeadlineSeconds) * time.Second
}

// BrokerConfig identifies the JetStream stream and consumer the pipeline
// uses.
type BrokerConfig struct {
	URL          string
	StreamName   string
	Subject      string
	DeadSubject  string
	ConsumerName string
	// MaxDeliveries is the delivery attempt cap before a message is routed
	// to the dead-letter subject.
	MaxDeliveries int
}

// Config is the root settings object.
type Config struct {
	HTTPPort string

	LLM    LLMConfig
	Worker WorkerConfig
	Broker BrokerConfig

	PersonaTemplateVersion   string
	PromptSetVersion         string
	RerunConfidenceThreshold float64
}

// Defaults mirrored from the configuration contract.
const (
	DefaultModel                 = "claude-sonnet-4-5"
	DefaultExpandTemperature     = 0.7
	DefaultReviewTemperature     = 0.2
	DefaultMaxRetries            = 3
	DefaultInitialBackoffSeconds = 1.0
	DefaultBackoffMultiplier     = 2.0
	DefaultMaxConcurrency        = 10
	DefaultAckDeadlineSeconds    = 300
	DefaultStepTimeoutSeconds    = 300
	DefaultJobTimeoutSeconds     = 3600
	DefaultRerunThreshold        = 0.70
	DefaultMaxDeliveries         = 5
)

// Load reads configuration from the environment, applies defaults, and
// validates ranges. Any violation aborts startup.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),
		LLM: LLMConfig{
			Model:                 getEnvOrDefault("LLM_MODEL", DefaultModel),
			ExpandModel:           os.Getenv("EXPAND_MODEL"),
			ReviewModel:           os.Getenv("REVIEW_MODEL"),
			ExpandTemperature:     DefaultExpandTemperature,
			ReviewTemperature:     DefaultReviewTemperature,
			MaxRetriesPerPersona:  DefaultMaxRetries,
			InitialBackoffSeconds: DefaultInitialBackoffSeconds,
			BackoffMultiplier:     DefaultBackoffMultiplier,
			APIKey:                os.Getenv("ANTHROPIC_API_KEY"),
		},
		Worker: WorkerConfig{
			MaxConcurrency:          DefaultMaxConcurrency,
			AckDeadlineSeconds:      DefaultAckDeadlineSeconds,
			StepTimeoutSeconds:      DefaultStepTimeoutSeconds,
			JobTimeoutSeconds:       DefaultJobTimeoutSeconds,
			GracefulShutdownTimeout: 30 * time.Second,
		},
		Broker: BrokerConfig{
			URL:           getEnvOrDefault("NATS_URL", "nats://localhost:4222"),
			StreamName:    getEnvOrDefault("BROKER_STREAM", "QUORUM_JOBS"),
			Subject:       getEnvOrDefault("BROKER_SUBJECT", "quorum.jobs.pipeline"),
			DeadSubject:   getEnvOrDefault("BROKER_DEAD_SUBJECT", "quorum.jobs.dead"),
			ConsumerName:  getEnvOrDefault("BROKER_CONSUMER", "quorum-pipeline"),
			MaxDeliveries: DefaultMaxDeliveries,
		},
		PersonaTemplateVersion:   getEnvOrDefault("PERSONA_TEMPLATE_VERSION", "v1"),
		PromptSetVersion:         getEnvOrDefault("PROMPT_SET_VERSION", "v1"),
		RerunConfidenceThreshold: DefaultRerunThreshold,
	}

	if cfg.LLM.ExpandModel == "" {
		cfg.LLM.ExpandModel = cfg.LLM.Model
	}
	if cfg.LLM.ReviewModel == "" {
		cfg.LLM.ReviewModel = cfg.LLM.Model
	}

	var err error
	if cfg.LLM.ExpandTemperature, err = floatInRange("EXPAND_TEMPERATURE", DefaultExpandTemperature, 0, 1); err != nil {
		return nil, err
	}
	if cfg.LLM.ReviewTemperature, err = floatInRange("REVIEW_TEMPERATURE", DefaultReviewTemperature, 0, 1); err != nil {
		return nil, err
	}
	if cfg.LLM.MaxRetriesPerPersona, err = intInRange("MAX_RETRIES_PER_PERSONA", DefaultMaxRetries, 1, 10); err != nil {
		return nil, err
	}
	if cfg.LLM.InitialBackoffSeconds, err = floatInRange("RETRY_INITIAL_BACKOFF_SECONDS", DefaultInitialBackoffSeconds, 0.1, 60); err != nil {
		return nil, err
	}
	if cfg.LLM.BackoffMultiplier, err = floatInRange("RETRY_BACKOFF_MULTIPLIER", DefaultBackoffMultiplier, 1, 10); err != nil {
		return nil, err
	}
	if cfg.Worker.MaxConcurrency, err = intInRange("WORKER_MAX_CONCURRENCY", DefaultMaxConcurrency, 1, 1000); err != nil {
		return nil, err
	}
	if cfg.Worker.AckDeadlineSeconds, err = intInRange("WORKER_ACK_DEADLINE_SECONDS", DefaultAckDeadlineSeconds, 60, 3600); err != nil {
		return nil, err
	}
	if cfg.Worker.StepTimeoutSeconds, err = intInRange("WORKER_STEP_TIMEOUT_SECONDS", DefaultStepTimeoutSeconds, 10, 1800); err != nil {
		return nil, err
	}
	if cfg.Worker.JobTimeoutSeconds, err = intInRange("WORKER_JOB_TIMEOUT_SECONDS", DefaultJobTimeoutSeconds, 60, 7200); err != nil {
		return nil, err
	}
	if cfg.RerunConfidenceThreshold, err = floatInRange("RERUN_CONFIDENCE_THRESHOLD", DefaultRerunThreshold, 0, 1); err != nil {
		return nil, err
	}
	if cfg.Broker.MaxDeliveries, err = intInRange("BROKER_MAX_DELIVERIES", DefaultMaxDeliveries, 1, 100); err != nil {
		return nil, err
	}

	// The panel's weight table is fixed; a weight sum other than 1.0 is a
	// build defect and must fail startup, not surface mid-pipeline.
	if err := models.ValidatePersonaWeights(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func intInRange(key string, defaultVal, min, max int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s must be in [%d, %d], got %d", key, min, max, v)
	}
	return v, nil
}

func floatInRange(key string, defaultVal, min, max float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s must be in [%v, %v], got %v", key, min, max, v)
	}
	return v, nil
}
