package engine

import (
	"context"
	"fmt"
	"log/slog"

	"predict_go/internal/infra/storage"
)

// Replay rebuilds engine state by feeding the persisted WAL back
// through the sequencer, without re-logging. The target database must
// be fresh: contracts, users and orders seeded, no trades applied.
func Replay(ctx context.Context, seq *Sequencer, store *storage.Store, fromSeq uint64) error {
	events, err := store.LoadEvents(fromSeq)
	if err != nil {
		return fmt.Errorf("load WAL from %d: %w", fromSeq, err)
	}

	slog.Info("Replaying WAL", slog.Uint64("from", fromSeq), slog.Int("events", len(events)))
	for _, ev := range events {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		seq.ReplayEvent(ctx, ev)
	}
	slog.Info("Replay complete", slog.Uint64("next_seq", seq.NextSeq()))
	return nil
}
