package application

import (
	"context"
	"errors"
	"log"
	"time"

	commandsevents "fieldops-cloud/internal/commands/application/events"
	commands "fieldops-cloud/internal/commands/domain"
	"fieldops-cloud/internal/observability/metrics"
)

const defaultStoreTimeout = 5 * time.Second

// Reconciler writes acknowledgment outcomes to the command store. Store
// failures are logged and dropped; nothing is retried.
type Reconciler struct {
	store   CommandStore
	events  EventPublisher
	logger  *log.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewReconciler constructs a reconciler. events may be nil.
func NewReconciler(store CommandStore, events EventPublisher, timeout time.Duration, logger *log.Logger) (*Reconciler, error) {
	if store == nil {
		return nil, errors.New("reconciler: nil store")
	}
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Reconciler{
		store:   store,
		events:  events,
		logger:  logger,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Reconcile sends the acknowledgment to the store.
func (r *Reconciler) Reconcile(ctx context.Context, ack commands.Acknowledgment) {
	if ctx == nil {
		ctx = context.Background()
	}
	timestamp := ack.Timestamp
	if timestamp.IsZero() {
		timestamp = r.now()
	}
	update := commands.StatusUpdate{
		CommandID:     ack.CommandID,
		Status:        ack.Status,
		Message:       ack.Message,
		ExecutionData: ack.Data(),
		Timestamp:     timestamp.UTC(),
	}

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.store.UpdateCommandStatus(storeCtx, update); err != nil {
		metrics.IncReconcile(metrics.ResultError)
		r.logger.Printf("reconcile failed: command_id=%s status=%s err=%v", ack.CommandID, ack.Status, err)
		return
	}
	metrics.IncReconcile(metrics.ResultSuccess)

	if r.events == nil {
		return
	}
	event := commandsevents.CommandStatusChanged{
		CommandID:     ack.CommandID,
		DeviceID:      ack.DeviceID,
		Status:        ack.Status,
		Message:       ack.Message,
		ExecutionData: update.ExecutionData,
		Terminal:      ack.Status.IsTerminal(),
		OccurredAt:    update.Timestamp,
	}
	if err := r.events.Publish(ctx, event); err != nil {
		r.logger.Printf("status event failed: command_id=%s err=%v", ack.CommandID, err)
	}
}
