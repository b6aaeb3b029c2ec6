package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, cfg.LLM.Model)
	assert.Equal(t, cfg.LLM.Model, cfg.LLM.ExpandModel)
	assert.Equal(t, cfg.LLM.Model, cfg.LLM.ReviewModel)
	assert.InDelta(t, 0.7, cfg.LLM.ExpandTemperature, 1e-9)
	assert.InDelta(t, 0.2, cfg.LLM.ReviewTemperature, 1e-9)
	assert.Equal(t, 3, cfg.LLM.MaxRetriesPerPersona)
	assert.Equal(t, time.Second, cfg.LLM.InitialBackoff())
	assert.Equal(t, 10, cfg.Worker.MaxConcurrency)
	assert.Equal(t, 300*time.Second, cfg.Worker.StepTimeout())
	assert.Equal(t, time.Hour, cfg.Worker.JobTimeout())
	assert.InDelta(t, 0.70, cfg.RerunConfidenceThreshold, 1e-9)
	assert.Equal(t, "QUORUM_JOBS", cfg.Broker.StreamName)
}

func TestLoadRejectsOutOfRangeValues(t *testing.T) {
	cases := map[string]string{
		"MAX_RETRIES_PER_PERSONA":       "11",
		"RETRY_INITIAL_BACKOFF_SECONDS": "0.01",
		"RETRY_BACKOFF_MULTIPLIER":      "0.5",
		"WORKER_MAX_CONCURRENCY":        "0",
		"WORKER_ACK_DEADLINE_SECONDS":   "10",
		"WORKER_STEP_TIMEOUT_SECONDS":   "5000",
		"WORKER_JOB_TIMEOUT_SECONDS":    "30",
		"EXPAND_TEMPERATURE":            "1.5",
		"RERUN_CONFIDENCE_THRESHOLD":    "2",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoadRejectsNonNumeric(t *testing.T) {
	t.Setenv("WORKER_MAX_CONCURRENCY", "many")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadModelOverrides(t *testing.T) {
	t.Setenv("LLM_MODEL", "claude-sonnet-4-5")
	t.Setenv("EXPAND_MODEL", "claude-opus-4-1")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "claude-opus-4-1", cfg.LLM.ExpandModel)
	assert.Equal(t, "claude-sonnet-4-5", cfg.LLM.ReviewModel)
}
