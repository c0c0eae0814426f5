package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultQoS            = 1
	defaultConnectTimeout = 10 * time.Second
	disconnectQuiesceMS   = 250
)

// Config describes the broker connection.
type Config struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	ConnectTimeout time.Duration
}

// MessageHandler receives an inbound message.
type MessageHandler = func(topic string, payload []byte)

// Transport publishes commands and delivers inbound messages over MQTT.
// Subscriptions are restored after every reconnect.
type Transport struct {
	client  paho.Client
	cfg     Config
	logger  *log.Logger
	mu      sync.Mutex
	handles map[string]MessageHandler
}

// NewTransport builds a transport; call Connect before use.
func NewTransport(cfg Config, logger *log.Logger) (*Transport, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("mqtt: broker url required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("fieldops-%d", time.Now().UnixNano())
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt: invalid qos %d", cfg.QoS)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	t := &Transport{
		cfg:     cfg,
		logger:  logger,
		handles: make(map[string]MessageHandler),
	}
	t.client = paho.NewClient(t.clientOptions())
	return t, nil
}

func (t *Transport) clientOptions() *paho.ClientOptions {
	opts := paho.NewClientOptions().AddBroker(t.cfg.BrokerURL)
	opts.SetClientID(t.cfg.ClientID)
	if t.cfg.Username != "" {
		opts.SetUsername(t.cfg.Username)
		opts.SetPassword(t.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	// A broker that is down at startup is retried in the background.
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(t.cfg.ConnectTimeout)
	// Each inbound message is handled on its own goroutine.
	opts.SetOrderMatters(false)
	opts.SetOnConnectHandler(func(client paho.Client) {
		t.logger.Printf("mqtt connected: broker=%s client_id=%s", t.cfg.BrokerURL, t.cfg.ClientID)
		t.resubscribe(client)
	})
	opts.SetConnectionLostHandler(func(client paho.Client, err error) {
		t.logger.Printf("mqtt connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(client paho.Client, opts *paho.ClientOptions) {
		t.logger.Printf("mqtt reconnecting: broker=%s", t.cfg.BrokerURL)
	})
	opts.SetDefaultPublishHandler(func(client paho.Client, msg paho.Message) {
		t.logger.Printf("mqtt unrouted message: topic=%s", msg.Topic())
	})
	return opts
}

// Connect opens the broker connection.
func (t *Transport) Connect(ctx context.Context) error {
	token := t.client.Connect()
	if err := waitToken(ctx, token, t.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (t *Transport) IsConnected() bool {
	return t.client.IsConnectionOpen()
}

// Publish sends payload and waits for the broker's publish confirmation.
func (t *Transport) Publish(ctx context.Context, topic string, payload []byte) error {
	token := t.client.Publish(topic, t.qos(), false, payload)
	return waitToken(ctx, token, 0)
}

// Subscribe routes messages matching topic to handler.
func (t *Transport) Subscribe(topic string, handler MessageHandler) error {
	if topic == "" || handler == nil {
		return errors.New("mqtt: topic and handler required")
	}
	t.mu.Lock()
	t.handles[topic] = handler
	t.mu.Unlock()

	if !t.client.IsConnectionOpen() {
		return nil
	}
	token := t.client.Subscribe(topic, t.qos(), wrap(handler))
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, token.Error())
	}
	t.logger.Printf("mqtt subscribed: topic=%s", topic)
	return nil
}

// Close disconnects from the broker.
func (t *Transport) Close() {
	if t.client.IsConnected() {
		t.client.Disconnect(disconnectQuiesceMS)
	}
}

func (t *Transport) resubscribe(client paho.Client) {
	t.mu.Lock()
	filters := make(map[string]byte, len(t.handles))
	handlers := make(map[string]MessageHandler, len(t.handles))
	for topic, handler := range t.handles {
		filters[topic] = t.qos()
		handlers[topic] = handler
	}
	t.mu.Unlock()

	for topic, handler := range handlers {
		token := client.Subscribe(topic, filters[topic], wrap(handler))
		if token.Wait() && token.Error() != nil {
			t.logger.Printf("mqtt resubscribe failed: topic=%s err=%v", topic, token.Error())
			continue
		}
		t.logger.Printf("mqtt subscribed: topic=%s", topic)
	}
}

func (t *Transport) qos() byte {
	if t.cfg.QoS == 0 {
		return defaultQoS
	}
	return t.cfg.QoS
}

func wrap(handler MessageHandler) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	}
}

func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
