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

// Outcome describes what the correlator did with an acknowledgment.
type Outcome string

const (
	OutcomeTerminal     Outcome = "terminal"
	OutcomeIntermediate Outcome = "intermediate"
	OutcomeUnknown      Outcome = "unknown"
)

// Correlator matches inbound acknowledgments to in-flight commands.
type Correlator struct {
	registry   *InFlightRegistry
	reconciler StatusReconciler
	events     EventPublisher
	logger     *log.Logger
	now        func() time.Time
}

// NewCorrelator constructs a correlator. events may be nil.
func NewCorrelator(registry *InFlightRegistry, reconciler StatusReconciler, events EventPublisher, logger *log.Logger) (*Correlator, error) {
	if registry == nil {
		return nil, errors.New("correlator: nil registry")
	}
	if reconciler == nil {
		return nil, errors.New("correlator: nil reconciler")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Correlator{
		registry:   registry,
		reconciler: reconciler,
		events:     events,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// HandleAcknowledgment correlates a validated acknowledgment.
func (c *Correlator) HandleAcknowledgment(ctx context.Context, ack commands.Acknowledgment) Outcome {
	if ack.Status.IsTerminal() {
		if _, ok := c.registry.Remove(ack.CommandID, ack.DeviceID); !ok {
			return c.drop(ack)
		}
		metrics.SetInFlight(c.registry.Len())
		metrics.IncAck(metrics.AckOutcomeTerminal)
		metrics.IncCommandResult(string(ack.Status))
		c.logger.Printf("command finished: command_id=%s device_id=%s status=%s", ack.CommandID, ack.DeviceID, ack.Status)
		c.reconciler.Reconcile(ctx, ack)
		return OutcomeTerminal
	}

	if _, ok := c.registry.Lookup(ack.CommandID, ack.DeviceID); !ok {
		return c.drop(ack)
	}
	metrics.IncAck(metrics.AckOutcomeIntermediate)
	c.reconciler.Reconcile(ctx, ack)
	return OutcomeIntermediate
}

// HandleDeviceStatus records a device status report. It never touches
// in-flight commands.
func (c *Correlator) HandleDeviceStatus(ctx context.Context, deviceID string, status commands.Value) {
	if c.events == nil {
		return
	}
	event := commandsevents.DeviceStatusReported{
		DeviceID:   deviceID,
		Status:     status,
		OccurredAt: c.now(),
	}
	if err := c.events.Publish(ctx, event); err != nil {
		c.logger.Printf("device status event failed: device_id=%s err=%v", deviceID, err)
	}
}

func (c *Correlator) drop(ack commands.Acknowledgment) Outcome {
	metrics.IncAck(metrics.AckOutcomeUnknown)
	c.logger.Printf("ack dropped, command not in flight: command_id=%s device_id=%s status=%s", ack.CommandID, ack.DeviceID, ack.Status)
	return OutcomeUnknown
}
