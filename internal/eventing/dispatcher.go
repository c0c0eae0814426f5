package eventing

import (
	"context"
	"log"
	"sync"
)

const defaultBatchSize = 50

// EventBus is the minimal publish interface.
type EventBus interface {
	Publish(ctx context.Context, event any) error
}

// OutboxStore provides access to outbox records.
type OutboxStore interface {
	Insert(ctx context.Context, env Envelope) (string, error)
	ListPending(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, cause error) error
}

// OutboxRecord represents a pending outbox entry.
type OutboxRecord struct {
	ID       string
	Envelope Envelope
}

// Dispatcher relays pending outbox events to the in-process bus.
type Dispatcher struct {
	mu       sync.Mutex
	bus      EventBus
	outbox   OutboxStore
	registry *Registry
	logger   *log.Logger
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(bus EventBus, outbox OutboxStore, registry *Registry, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{bus: bus, outbox: outbox, registry: registry, logger: logger}
}

// Dispatch delivers up to limit pending records and returns how many were
// delivered. Undecodable or rejected records are marked failed and skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, limit int) (int, error) {
	if d == nil || d.outbox == nil || d.bus == nil || d.registry == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = defaultBatchSize
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	records, err := d.outbox.ListPending(ctx, limit)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, record := range records {
		env := record.Envelope
		payload, err := d.registry.DecodePayload(env)
		if err == nil {
			err = d.bus.Publish(WithEnvelope(ctx, env), payload)
		}
		if err != nil {
			d.logger.Printf("outbox delivery failed: id=%s type=%s err=%v", record.ID, env.EventType, err)
			if markErr := d.outbox.MarkFailed(ctx, record.ID, err); markErr != nil {
				return delivered, markErr
			}
			continue
		}
		if err := d.outbox.MarkSent(ctx, record.ID); err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}
