// Package services implements the synchronous operations behind the HTTP
// surface: enqueueing runs and reading their state.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/quorumlabs/quorum/pkg/broker"
	"github.com/quorumlabs/quorum/pkg/config"
	"github.com/quorumlabs/quorum/pkg/models"
	"github.com/quorumlabs/quorum/pkg/schema"
	"github.com/quorumlabs/quorum/pkg/store"
)

// Input limits.
const (
	MaxIdeaChars         = 10_000
	MaxExtraContextChars = 50_000
	MaxIdeaSentences     = 10
)

// EnqueueService creates durable run records and publishes their jobs. Both
// flavors return as soon as the run is queued; pipeline execution is
// asynchronous.
type EnqueueService struct {
	store  *store.Store
	broker *broker.Broker
	cfg    *config.Config
	logger *slog.Logger
}

// NewEnqueueService creates an enqueue service.
func NewEnqueueService(st *store.Store, b *broker.Broker, cfg *config.Config, logger *slog.Logger) *EnqueueService {
	return &EnqueueService{store: st, broker: b, cfg: cfg, logger: logger}
}

// InitialRequest is the input for an initial run. ExtraContext accepts
// either a JSON string or a JSON object; it is normalized to a canonical
// string before storage.
type InitialRequest struct {
	Idea         string          `json:"idea"`
	ExtraContext json.RawMessage `json:"extra_context,omitempty"`
	Priority     string          `json:"priority,omitempty"`
}

// RevisionRequest is the input for a revision of a completed parent run.
type RevisionRequest struct {
	EditedProposal string `json:"edited_proposal,omitempty"`
	EditNotes      string `json:"edit_notes,omitempty"`
	Priority       string `json:"priority,omitempty"`
}

// JobEnqueued is the synchronous enqueue response.
type JobEnqueued struct {
	RunID    uuid.UUID        `json:"run_id"`
	Status   models.RunStatus `json:"status"`
	QueuedAt time.Time        `json:"queued_at"`
	Priority models.Priority  `json:"priority"`
	RunType  models.RunType   `json:"run_type"`
}

// EnqueueInitial validates the idea, creates the run in queued state with
// its pending step rows, publishes the job, and returns the queue metadata.
func (s *EnqueueService) EnqueueInitial(ctx context.Context, req InitialRequest) (*JobEnqueued, error) {
	idea := strings.TrimSpace(req.Idea)
	if err := validateIdea(idea); err != nil {
		return nil, err
	}
	extra, err := normalizeExtraContext(req.ExtraContext)
	if err != nil {
		return nil, err
	}
	if err := validateExtraContext(extra); err != nil {
		return nil, err
	}
	priority, err := parsePriority(req.Priority)
	if err != nil {
		return nil, err
	}

	run := s.newRun(models.RunTypeInitial, idea, priority)
	if extra != "" {
		run.ExtraContext = &extra
	}
	return s.persistAndPublish(ctx, run)
}

// EnqueueRevision validates the parent and the edit inputs, then enqueues a
// revision run. Planner logic (diff, persona selection) runs in the worker.
func (s *EnqueueService) EnqueueRevision(ctx context.Context, parentID uuid.UUID, req RevisionRequest) (*JobEnqueued, error) {
	parent, err := s.store.GetRun(ctx, parentID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return nil, &Error{Code: CodeParentNotFound, Message: fmt.Sprintf("parent run %s not found", parentID), RunID: &parentID}
		}
		return nil, err
	}
	if parent.Status != models.RunStatusCompleted {
		return nil, &Error{
			Code:    CodeParentNotCompleted,
			Message: fmt.Sprintf("parent run %s is %s, revisions require a completed parent", parentID, parent.Status),
			RunID:   &parentID,
		}
	}

	edited := strings.TrimSpace(req.EditedProposal)
	notes := strings.TrimSpace(req.EditNotes)
	if edited == "" && notes == "" {
		return nil, &Error{Code: CodeMissingEditInputs, Message: "at least one of edited_proposal or edit_notes is required"}
	}
	priority, err := parsePriority(req.Priority)
	if err != nil {
		return nil, err
	}

	run := s.newRun(models.RunTypeRevision, parent.InputIdea, priority)
	run.ParentRunID = &parent.ID
	run.ExtraContext = parent.ExtraContext
	if edited != "" {
		run.EditedProposal = &edited
	}
	if notes != "" {
		run.EditNotes = &notes
	}
	return s.persistAndPublish(ctx, run)
}

func (s *EnqueueService) newRun(runType models.RunType, idea string, priority models.Priority) *models.Run {
	now := time.Now().UTC()
	params, _ := json.Marshal(models.RunParameters{
		SchemaVersion:          schema.CurrentVersion,
		PromptSetVersion:       s.cfg.PromptSetVersion,
		PersonaTemplateVersion: s.cfg.PersonaTemplateVersion,
		MaxRetries:             s.cfg.LLM.MaxRetriesPerPersona,
		InitialBackoffSeconds:  s.cfg.LLM.InitialBackoffSeconds,
		BackoffMultiplier:      s.cfg.LLM.BackoffMultiplier,
	})
	return &models.Run{
		ID:             uuid.New(),
		RunType:        runType,
		Status:         models.RunStatusQueued,
		Priority:       priority,
		InputIdea:      idea,
		Model:          s.cfg.LLM.Model,
		Temperature:    s.cfg.LLM.ReviewTemperature,
		ParametersJSON: params,
		CreatedAt:      now,
		QueuedAt:       &now,
		UpdatedAt:      now,
	}
}

// persistAndPublish commits the run with its pending step rows, then
// publishes the job envelope. The run is durable before the message exists,
// so a publish failure leaves a queued run recoverable by the orphan sweep.
func (s *EnqueueService) persistAndPublish(ctx context.Context, run *models.Run) (*JobEnqueued, error) {
	err := s.store.InTx(ctx, func(tx *store.Store) error {
		if err := tx.CreateRun(ctx, run); err != nil {
			return err
		}
		for _, step := range models.CanonicalSteps {
			if err := tx.UpsertStepProgress(ctx, &models.StepProgress{
				RunID:    run.ID,
				StepName: step,
				Status:   models.StepPending,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist run: %w", err)
	}

	env := models.JobEnvelope{
		RunID:       run.ID,
		RunType:     run.RunType,
		ParentRunID: run.ParentRunID,
		Priority:    run.Priority,
		EnqueuedAt:  *run.QueuedAt,
	}
	if err := s.broker.Publish(ctx, env); err != nil {
		return nil, fmt.Errorf("failed to publish job: %w", err)
	}

	s.logger.Info("run enqueued",
		"run_id", run.ID,
		"run_type", run.RunType,
		"priority", run.Priority)

	return &JobEnqueued{
		RunID:    run.ID,
		Status:   run.Status,
		QueuedAt: *run.QueuedAt,
		Priority: run.Priority,
		RunType:  run.RunType,
	}, nil
}

// normalizeExtraContext accepts extra_context as either a JSON string or a
// JSON object and returns its canonical string form: the string value
// itself, or the object serialized compactly.
func normalizeExtraContext(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", validationError("extra_context is not valid JSON")
		}
		return s, nil
	case '{':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return "", validationError("extra_context is not valid JSON")
		}
		return buf.String(), nil
	default:
		return "", validationError("extra_context must be a string or an object")
	}
}

func validateExtraContext(extra string) error {
	if utf8.RuneCountInString(extra) > MaxExtraContextChars {
		return validationError(fmt.Sprintf("extra_context exceeds %d characters", MaxExtraContextChars))
	}
	return nil
}

func validateIdea(idea string) error {
	if idea == "" {
		return validationError("idea must not be empty")
	}
	if utf8.RuneCountInString(idea) > MaxIdeaChars {
		return validationError(fmt.Sprintf("idea exceeds %d characters", MaxIdeaChars))
	}
	n := countSentences(idea)
	if n < 1 || n > MaxIdeaSentences {
		return validationError(fmt.Sprintf("idea must be 1-%d sentences, got %d", MaxIdeaSentences, n))
	}
	return nil
}

// countSentences counts non-empty segments terminated by sentence
// punctuation. Unterminated trailing text counts as one sentence.
func countSentences(text string) int {
	count := 0
	segment := strings.Builder{}
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			if strings.TrimSpace(segment.String()) != "" {
				count++
			}
			segment.Reset()
		default:
			segment.WriteRune(r)
		}
	}
	if strings.TrimSpace(segment.String()) != "" {
		count++
	}
	return count
}

func parsePriority(raw string) (models.Priority, error) {
	switch raw {
	case "", string(models.PriorityNormal):
		return models.PriorityNormal, nil
	case string(models.PriorityHigh):
		return models.PriorityHigh, nil
	default:
		return "", validationError(fmt.Sprintf("unknown priority %q", raw))
	}
}
