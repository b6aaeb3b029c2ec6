package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quorumlabs/quorum/pkg/broker"
	"github.com/quorumlabs/quorum/pkg/models"
	"github.com/quorumlabs/quorum/pkg/store"
)

// RequeueOrphans recovers runs orphaned by an unclean shutdown: anything
// stuck in running longer than staleAfter is reset to queued and
// re-published. Called once at startup before consuming begins.
func RequeueOrphans(ctx context.Context, st *store.Store, b *broker.Broker, staleAfter time.Duration, logger *slog.Logger) error {
	ids, err := st.RequeueOrphanedRuns(ctx, staleAfter)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	logger.Info("requeuing orphaned runs", "count", len(ids))
	for _, id := range ids {
		run, err := st.GetRun(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load orphaned run %s: %w", id, err)
		}
		env := models.JobEnvelope{
			RunID:       run.ID,
			RunType:     run.RunType,
			ParentRunID: run.ParentRunID,
			Priority:    run.Priority,
			EnqueuedAt:  time.Now().UTC(),
		}
		if err := b.Publish(ctx, env); err != nil {
			return fmt.Errorf("failed to republish orphaned run %s: %w", id, err)
		}
	}
	return nil
}
