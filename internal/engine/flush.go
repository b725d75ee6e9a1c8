package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/asbelov/alepiz-sub006/internal/store"
)

// flushLoop writes buffered repeats every flush interval and enables
// OCIDs whose disable window elapsed. Runs beside the call loop.
func (e *Engine) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(e.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.FlushRepeats(ctx); err != nil && ctx.Err() == nil {
				slog.Error("repeat flush failed", "error", err)
			}
			e.Enable(e.cache.ExpiredDisabled(e.clock.Now())...)
		}
	}
}

// FlushRepeats writes every buffered repeat to its event row, one at a time.
// A failed write is logged and the repeat dropped; only a cancelled context
// stops the flush early. Returns the number of rows written.
func (e *Engine) FlushRepeats(ctx context.Context) (int, error) {
	pending := e.cache.TakeRepeats()
	written := 0

	for i, p := range pending {
		if err := ctx.Err(); err != nil {
			slog.Warn("repeat flush interrupted", "dropped", len(pending)-i)
			return written, err
		}

		var updated bool
		err := e.store.WithTx(ctx, e.batchIDs.Generate(), func(q *store.Queries) error {
			var err error
			updated, err = q.UpdateEventData(ctx, p.EventID, p.EventData())
			return err
		})
		if err != nil {
			slog.Error("dropping buffered repeat", "event_id", p.EventID, "error", err)
			continue
		}
		if !updated {
			slog.Debug("event closed before its repeat was flushed", "event_id", p.EventID)
			continue
		}
		written++
	}

	if written > 0 {
		slog.Debug("repeats flushed", "written", written, "pending", len(pending))
	}
	return written, nil
}
