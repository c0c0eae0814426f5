package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	commandsevents "fieldops-cloud/internal/commands/application/events"
	commands "fieldops-cloud/internal/commands/domain"
	"fieldops-cloud/internal/observability/metrics"
)

var (
	// ErrInvalidCommand marks an envelope that failed structural validation.
	ErrInvalidCommand = errors.New("commands: invalid command")
	// ErrNotConnected is returned when the transport is down. Commands are not buffered.
	ErrNotConnected = errors.New("commands: transport not connected")
	// ErrCommandExpired is returned when expiresAt already passed.
	ErrCommandExpired = errors.New("commands: command expired")
	// ErrPublishFailed wraps transport publish failures.
	ErrPublishFailed = errors.New("commands: publish failed")
	// ErrDispatcherClosed is returned after Shutdown.
	ErrDispatcherClosed = errors.New("commands: dispatcher closed")
)

const (
	defaultCommandTimeout = 5 * time.Minute
	defaultPublishTimeout = 5 * time.Second
)

// DispatcherConfig controls dispatch timing and topics.
type DispatcherConfig struct {
	CommandTimeout time.Duration
	PublishTimeout time.Duration
	Topics         commands.Topics
}

// DispatchOption adjusts a single dispatch.
type DispatchOption func(*dispatchOptions)

type dispatchOptions struct {
	timeout time.Duration
}

// WithTimeout overrides the command timeout for one dispatch.
func WithTimeout(timeout time.Duration) DispatchOption {
	return func(opts *dispatchOptions) {
		if timeout > 0 {
			opts.timeout = timeout
		}
	}
}

// Dispatcher publishes commands and tracks them until a terminal outcome.
type Dispatcher struct {
	transport  Transport
	registry   *InFlightRegistry
	reconciler StatusReconciler
	events     EventPublisher
	cfg        DispatcherConfig
	logger     *log.Logger
	now        func() time.Time
	closed     atomic.Bool
}

// NewDispatcher constructs a dispatcher. events may be nil.
func NewDispatcher(transport Transport, registry *InFlightRegistry, reconciler StatusReconciler, events EventPublisher, cfg DispatcherConfig, logger *log.Logger) (*Dispatcher, error) {
	if transport == nil {
		return nil, errors.New("dispatcher: nil transport")
	}
	if registry == nil {
		return nil, errors.New("dispatcher: nil registry")
	}
	if reconciler == nil {
		return nil, errors.New("dispatcher: nil reconciler")
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	if cfg.Topics.Prefix == "" {
		cfg.Topics = commands.NewTopics("")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		transport:  transport,
		registry:   registry,
		reconciler: reconciler,
		events:     events,
		cfg:        cfg,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Dispatch validates, publishes and registers a command. A nil error means the
// transport confirmed the publish; the device outcome arrives later.
func (d *Dispatcher) Dispatch(ctx context.Context, env commands.Envelope, opts ...DispatchOption) error {
	start := time.Now()
	if d.closed.Load() {
		return ErrDispatcherClosed
	}
	options := dispatchOptions{timeout: d.cfg.CommandTimeout}
	for _, opt := range opts {
		opt(&options)
	}

	if err := env.Validate(); err != nil {
		metrics.ObserveDispatch(metrics.DispatchResultInvalid, time.Since(start))
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	if !d.transport.IsConnected() {
		metrics.ObserveDispatch(metrics.DispatchResultNotConnected, time.Since(start))
		return ErrNotConnected
	}
	now := d.now()
	if env.Expired(now) {
		metrics.ObserveDispatch(metrics.DispatchResultExpired, time.Since(start))
		return fmt.Errorf("%w: expires_at=%s", ErrCommandExpired, env.ExpiresAt.UTC().Format(time.RFC3339))
	}

	payload, err := json.Marshal(env)
	if err != nil {
		metrics.ObserveDispatch(metrics.DispatchResultInvalid, time.Since(start))
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	// Registered before publish so an immediate ack finds the entry.
	inflight := InFlightCommand{
		CommandID:    env.CommandID,
		DeviceID:     env.DeviceID,
		Envelope:     env,
		DispatchedAt: now,
		ExpiresAt:    env.ExpiresAt,
		Timeout:      options.timeout,
	}
	if err := d.registry.Register(inflight); err != nil {
		metrics.ObserveDispatch(metrics.DispatchResultDuplicate, time.Since(start))
		return fmt.Errorf("%w: %s", err, env.CommandID)
	}

	topic := d.cfg.Topics.Command(env.DeviceID)
	publishCtx, cancel := context.WithTimeout(ctx, d.cfg.PublishTimeout)
	err = d.transport.Publish(publishCtx, topic, payload)
	cancel()
	if err != nil {
		d.registry.Release(env.CommandID)
		metrics.ObserveDispatch(metrics.DispatchResultPublishError, time.Since(start))
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	commandID := env.CommandID
	d.registry.Arm(commandID, options.timeout, func() { d.expire(commandID) })
	metrics.ObserveDispatch(metrics.ResultSuccess, time.Since(start))
	metrics.SetInFlight(d.registry.Len())
	d.logger.Printf("command dispatched: command_id=%s device_id=%s type=%s topic=%s timeout=%s", env.CommandID, env.DeviceID, env.Type, topic, options.timeout)

	if d.events != nil {
		event := commandsevents.CommandDispatched{
			CommandID:   env.CommandID,
			DeviceID:    env.DeviceID,
			CommandType: env.Type,
			Priority:    env.Priority,
			Topic:       topic,
			Timeout:     options.timeout,
			OccurredAt:  now,
		}
		if err := d.events.Publish(ctx, event); err != nil {
			d.logger.Printf("dispatch event failed: command_id=%s err=%v", env.CommandID, err)
		}
	}
	return nil
}

// expire runs when a command timer fires. It only acts if it still owns the entry.
func (d *Dispatcher) expire(commandID string) {
	cmd, ok := d.registry.Remove(commandID, "")
	if !ok {
		return
	}
	metrics.SetInFlight(d.registry.Len())
	metrics.IncCommandResult(string(commands.StatusTimeout))
	d.logger.Printf("command timed out: command_id=%s device_id=%s timeout=%s", cmd.CommandID, cmd.DeviceID, cmd.Timeout)
	d.reconciler.Reconcile(context.Background(), commands.Acknowledgment{
		CommandID: cmd.CommandID,
		DeviceID:  cmd.DeviceID,
		Status:    commands.StatusTimeout,
		Message:   fmt.Sprintf("no terminal acknowledgment within %s", cmd.Timeout),
		Timestamp: d.now(),
	})
}

// InFlight returns the number of commands awaiting an outcome.
func (d *Dispatcher) InFlight() int {
	return d.registry.Len()
}

// Connected reports transport connectivity.
func (d *Dispatcher) Connected() bool {
	return !d.closed.Load() && d.transport.IsConnected()
}

// Shutdown cancels all timers and closes the transport. In-flight commands
// are abandoned without a TIMEOUT outcome.
func (d *Dispatcher) Shutdown() {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}
	abandoned := d.registry.Clear()
	metrics.SetInFlight(0)
	d.transport.Close()
	d.logger.Printf("dispatcher stopped: abandoned=%d", abandoned)
}
