package ingestion_engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Start runs numWorkers goroutines that reindex queued sources until ctx ends.
// A job already in progress finishes under its own step timeouts.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	for w := 1; w <= numWorkers; w++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					i.log.Debug("reindex worker shutting down", "worker", w)
					return nil
				case sourceUID := <-i.jobs:
					i.log.Info("reindexing source", "source_uid", sourceUID, "worker", w)
					if err := i.Reindex(context.WithoutCancel(gctx), sourceUID); err != nil {
						i.log.Error("reindex failed", "source_uid", sourceUID, "worker", w, "error", err)
					}
				}
			}
		})
	}
	i.workers = g
}

// Enqueue schedules a source for reindexing, blocking while the queue is full.
func (i *DocumentIngestor) Enqueue(ctx context.Context, sourceUID string) error {
	select {
	case i.jobs <- sourceUID:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", sourceUID, ctx.Err())
	}
}

// Wait blocks until every worker started by Start has returned.
func (i *DocumentIngestor) Wait() error {
	if i.workers == nil {
		return nil
	}
	return i.workers.Wait()
}
