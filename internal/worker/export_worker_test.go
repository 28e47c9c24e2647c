package worker

import (
	"testing"
	"time"

	"facturas/internal/amqp"
)

func TestHandleChangeCoalesces(t *testing.T) {
	w := NewExportWorker(nil, nil, "out.xlsx", time.Minute)

	// Repeated changes must never block the consumer goroutine.
	for i := 0; i < 5; i++ {
		msg := amqp.NewRecordChangeMessage(int64(i), amqp.ActionCreated)
		if err := w.handleChange(msg); err != nil {
			t.Fatalf("handleChange: %v", err)
		}
	}

	if !w.dirty.Load() {
		t.Fatal("change did not mark the snapshot dirty")
	}

	// The five changes collapse into a single pending signal.
	select {
	case <-w.changed:
	default:
		t.Fatal("no change signal pending")
	}
	select {
	case <-w.changed:
		t.Fatal("changes were not coalesced")
	default:
	}
}
