package models

import (
	"time"

	"github.com/google/uuid"
)

// JobEnvelope is the broker message for one pipeline job. It is the
// authoritative work reference; everything else is fetched from the store by
// run_id.
type JobEnvelope struct {
	RunID       uuid.UUID  `json:"run_id"`
	RunType     RunType    `json:"run_type"`
	ParentRunID *uuid.UUID `json:"parent_run_id,omitempty"`
	Priority    Priority   `json:"priority"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
}
