package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	commandsapp "fieldops-cloud/internal/commands/application"
	commands "fieldops-cloud/internal/commands/domain"
	"fieldops-cloud/internal/observability/metrics"
)

// Correlator receives decoded device messages.
type Correlator interface {
	HandleAcknowledgment(ctx context.Context, ack commands.Acknowledgment) commandsapp.Outcome
	HandleDeviceStatus(ctx context.Context, deviceID string, status commands.Value)
}

// Subscriber registers topic handlers on the transport.
type Subscriber interface {
	Subscribe(topic string, handler func(topic string, payload []byte)) error
}

// AckConsumer decodes acknowledgment and device-status messages and hands
// them to the correlator. Malformed messages are logged and dropped.
type AckConsumer struct {
	correlator Correlator
	topics     commands.Topics
	logger     *log.Logger
	now        func() time.Time
}

// NewAckConsumer constructs a consumer.
func NewAckConsumer(correlator Correlator, topics commands.Topics, logger *log.Logger) (*AckConsumer, error) {
	if correlator == nil {
		return nil, errors.New("ack consumer: nil correlator")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &AckConsumer{
		correlator: correlator,
		topics:     topics,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Register subscribes to every device's acknowledgment and status topics.
func (c *AckConsumer) Register(sub Subscriber) error {
	if err := sub.Subscribe(c.topics.AckSubscription(), c.HandleAck); err != nil {
		return err
	}
	return sub.Subscribe(c.topics.StatusSubscription(), c.HandleStatus)
}

// HandleAck processes one acknowledgment message.
func (c *AckConsumer) HandleAck(topic string, payload []byte) {
	deviceID, ok := c.topics.DeviceFromAck(topic)
	if !ok {
		c.malformed(topic, errors.New("unexpected topic"))
		return
	}
	var ack commands.Acknowledgment
	if err := json.Unmarshal(payload, &ack); err != nil {
		c.malformed(topic, err)
		return
	}
	if ack.DeviceID == "" {
		ack.DeviceID = deviceID
	}
	if ack.DeviceID != deviceID {
		c.malformed(topic, errors.New("device id does not match topic"))
		return
	}
	if err := ack.Validate(); err != nil {
		c.malformed(topic, err)
		return
	}
	if ack.Timestamp.IsZero() {
		ack.Timestamp = c.now()
	}
	c.correlator.HandleAcknowledgment(context.Background(), ack)
}

// HandleStatus processes one device-status message.
func (c *AckConsumer) HandleStatus(topic string, payload []byte) {
	deviceID, ok := c.topics.DeviceFromStatus(topic)
	if !ok {
		c.logger.Printf("device status dropped: topic=%s err=unexpected topic", topic)
		return
	}
	var status commands.Value
	if err := json.Unmarshal(payload, &status); err != nil {
		c.logger.Printf("device status dropped: topic=%s err=%v", topic, err)
		return
	}
	c.correlator.HandleDeviceStatus(context.Background(), deviceID, status)
}

func (c *AckConsumer) malformed(topic string, err error) {
	metrics.IncAck(metrics.AckOutcomeMalformed)
	c.logger.Printf("ack dropped: topic=%s err=%v", topic, err)
}
