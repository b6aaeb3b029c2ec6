package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quorumlabs/quorum/pkg/broker"
	"github.com/quorumlabs/quorum/pkg/config"
	"github.com/quorumlabs/quorum/pkg/models"
	"github.com/quorumlabs/quorum/pkg/store"
)

// Worker consumes job envelopes and drives their runs to terminal states.
// Concurrency across runs comes from the broker's dispatch; within one run,
// execution is strictly sequential.
type Worker struct {
	broker   *broker.Broker
	store    *store.Store
	executor *Executor
	cfg      *config.Config
	logger   *slog.Logger
}

// NewWorker creates a pipeline worker.
func NewWorker(b *broker.Broker, st *store.Store, exec *Executor, cfg *config.Config, logger *slog.Logger) *Worker {
	return &Worker{broker: b, store: st, executor: exec, cfg: cfg, logger: logger}
}

// Run consumes jobs until ctx is canceled, then returns after in-flight
// handlers finish.
func (w *Worker) Run(ctx context.Context) error {
	return w.broker.Consume(ctx, w.cfg.Worker.MaxConcurrency, w.cfg.Worker.AckDeadline(), w.Handle)
}

// Handle processes one delivery. A nil return acks; an error naks (and
// dead-letters at the delivery cap); ErrRedeliver defers without failing.
func (w *Worker) Handle(ctx context.Context, env models.JobEnvelope, d broker.Delivery) error {
	log := w.logger.With("run_id", env.RunID, "run_type", env.RunType, "deliveries", d.NumDelivered)

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.Worker.JobTimeout())
	defer cancel()

	// Claim inside a transaction: the row lock serializes workers racing on
	// the same run after a redelivery.
	var claim *store.Claim
	err := w.store.InTx(jobCtx, func(tx *store.Store) error {
		var claimErr error
		claim, claimErr = tx.ClaimForProcessing(jobCtx, env.RunID, d.Redelivery, w.cfg.Worker.JobTimeout())
		return claimErr
	})
	if err != nil {
		return fmt.Errorf("failed to claim run %s: %w", env.RunID, err)
	}

	switch claim.Outcome {
	case store.ClaimAlreadyCompleted:
		log.Info("idempotent_skip", "status", claim.Run.Status)
		return nil
	case store.ClaimFailedTerminal:
		log.Info("run failed and delivery is not a retry, acking", "status", claim.Run.Status)
		return nil
	case store.ClaimBusy:
		// Busy is not a failure; the message must come back later without
		// burning a delivery toward the dead-letter cap.
		return fmt.Errorf("run %s is held by another worker: %w", env.RunID, broker.ErrRedeliver)
	case store.ClaimRetrying:
		log.Info("retrying failed run", "retry_count", claim.Run.RetryCount)
	case store.ClaimReclaimed:
		log.Warn("reclaimed stale running run")
	}

	return w.executor.Execute(jobCtx, claim.Run)
}
