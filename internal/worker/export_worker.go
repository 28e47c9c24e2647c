// Package worker keeps the xlsx snapshot in sync with the store. It listens
// on the record change feed and additionally refreshes on a timer, so a
// missed message only delays the snapshot instead of losing it.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"facturas/internal/amqp"
	"facturas/internal/export"
	"facturas/internal/storage"
)

// ExportWorker rebuilds the workbook at ExportPath whenever records change.
// Changes are coalesced: the consumer only marks the snapshot dirty and the
// refresh loop does the actual rebuild, so a burst of writes costs one
// export.
type ExportWorker struct {
	store      *storage.Store
	amqpClient *amqp.Client
	exportPath string
	interval   time.Duration
	debounce   time.Duration

	dirty   atomic.Bool
	changed chan struct{}
}

// NewExportWorker creates a worker. interval bounds how stale the snapshot
// may get without any change messages; debounce is how long the worker waits
// after a change before rebuilding.
func NewExportWorker(store *storage.Store, amqpClient *amqp.Client, exportPath string, interval time.Duration) *ExportWorker {
	return &ExportWorker{
		store:      store,
		amqpClient: amqpClient,
		exportPath: exportPath,
		interval:   interval,
		debounce:   2 * time.Second,
		changed:    make(chan struct{}, 1),
	}
}

// Run consumes the change feed and refreshes the snapshot until ctx is
// cancelled. It always writes one snapshot on startup so a fresh deployment
// has a workbook before the first change arrives.
func (w *ExportWorker) Run(ctx context.Context) error {
	if err := w.refresh(ctx); err != nil {
		slog.ErrorContext(ctx, "Initial snapshot failed", "error", err)
	}

	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- w.amqpClient.ConsumeRecordChanges(ctx, w.handleChange)
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	debounce := time.NewTimer(w.debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-consumeErr:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("change feed stopped: %w", err)

		case <-ticker.C:
			if err := w.refresh(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic snapshot failed", "error", err)
			}

		case <-w.changed:
			// Restart the quiet window; the rebuild happens when it expires.
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(w.debounce)

		case <-debounce.C:
			if !w.dirty.Swap(false) {
				continue
			}
			if err := w.refresh(ctx); err != nil {
				// Leave dirty set so the next tick retries.
				w.dirty.Store(true)
				slog.ErrorContext(ctx, "Snapshot after change failed", "error", err)
			}
		}
	}
}

// handleChange runs on the consumer goroutine. It never touches the store;
// it only arms the debounce window.
func (w *ExportWorker) handleChange(msg *amqp.RecordChangeMessage) error {
	slog.Info("Record change received",
		"id", msg.ID,
		"action", msg.Action,
		"at", msg.Timestamp)
	w.dirty.Store(true)
	select {
	case w.changed <- struct{}{}:
	default:
	}
	return nil
}

func (w *ExportWorker) refresh(ctx context.Context) error {
	start := time.Now()
	if err := export.Snapshot(ctx, w.store, w.exportPath); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	slog.InfoContext(ctx, "Snapshot written",
		"path", w.exportPath,
		"took", time.Since(start))
	return nil
}
