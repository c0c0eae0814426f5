package application

import (
	"context"
	"time"

	commands "fieldops-cloud/internal/commands/domain"
)

// Transport is the pub/sub connection commands are published over.
type Transport interface {
	IsConnected() bool
	Publish(ctx context.Context, topic string, payload []byte) error
	Close()
}

// CommandStore persists command records.
type CommandStore interface {
	CreateCommand(ctx context.Context, cmd *commands.Command) (string, error)
	MarkSent(ctx context.Context, commandID string, sentAt time.Time) error
	UpdateCommandStatus(ctx context.Context, update commands.StatusUpdate) error
	GetCommand(ctx context.Context, commandID string) (*commands.Command, error)
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]commands.Command, error)
}

// EventPublisher receives command lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// StatusReconciler persists acknowledgment outcomes.
type StatusReconciler interface {
	Reconcile(ctx context.Context, ack commands.Acknowledgment)
}
