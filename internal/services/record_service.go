// Package services orchestrates writes across the store and the change
// feed. Reads go to the store directly; only mutations need orchestration.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"facturas/internal/amqp"
	"facturas/internal/core"
	"facturas/internal/storage"
)

// RecordService persists first and then best-effort publishes a change
// message. A missing or failing broker never fails the write: the worker has
// the periodic snapshot as a catch-up path.
type RecordService struct {
	store      *storage.Store
	amqpClient *amqp.Client
}

// NewRecordService creates a service. amqpClient may be nil, in which case
// change messages are skipped.
func NewRecordService(store *storage.Store, amqpClient *amqp.Client) *RecordService {
	return &RecordService{
		store:      store,
		amqpClient: amqpClient,
	}
}

// Create inserts a record and announces the change.
func (s *RecordService) Create(ctx context.Context, in core.RecordInput) (int64, error) {
	id, err := s.store.AddRecord(ctx, in)
	if err != nil {
		return 0, fmt.Errorf("save record: %w", err)
	}

	s.publish(ctx, id, amqp.ActionCreated)
	return id, nil
}

// Update rewrites a record and announces the change when the id existed.
func (s *RecordService) Update(ctx context.Context, id int64, in core.RecordInput) (bool, error) {
	ok, err := s.store.UpdateRecord(ctx, id, in)
	if err != nil {
		return false, fmt.Errorf("update record: %w", err)
	}
	if ok {
		s.publish(ctx, id, amqp.ActionUpdated)
	}
	return ok, nil
}

// Delete removes a record and announces the change when the id existed.
func (s *RecordService) Delete(ctx context.Context, id int64) (bool, error) {
	ok, err := s.store.DeleteRecord(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	if ok {
		s.publish(ctx, id, amqp.ActionDeleted)
	}
	return ok, nil
}

func (s *RecordService) publish(ctx context.Context, id int64, action string) {
	if s.amqpClient == nil {
		return
	}
	if err := s.amqpClient.PublishRecordChange(ctx, id, action); err != nil {
		// The record is already persisted; the feed is advisory.
		slog.ErrorContext(ctx, "Failed to publish record change",
			"id", id, "action", action, "error", err)
	}
}

// Close releases the store and, when present, the AMQP connection.
func (s *RecordService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close record service: %v", errs)
	}
	return nil
}
