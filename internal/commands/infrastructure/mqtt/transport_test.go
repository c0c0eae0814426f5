package mqtt

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

func TestNewTransportValidatesConfig(t *testing.T) {
	if _, err := NewTransport(Config{}, nil); err == nil {
		t.Fatalf("expected error for missing broker")
	}
	if _, err := NewTransport(Config{BrokerURL: "tcp://localhost:1883", QoS: 3}, nil); err == nil {
		t.Fatalf("expected error for invalid qos")
	}
}

func TestClientOptions(t *testing.T) {
	transport, err := NewTransport(Config{
		BrokerURL: "tcp://broker.local:1883",
		ClientID:  "fieldops-test",
		Username:  "svc",
		Password:  "secret",
	}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	reader := paho.NewOptionsReader(transport.clientOptions())
	servers := reader.Servers()
	if len(servers) != 1 || servers[0].Host != "broker.local:1883" {
		t.Fatalf("unexpected servers: %v", servers)
	}
	if reader.ClientID() != "fieldops-test" || reader.Username() != "svc" {
		t.Fatalf("unexpected identity: %s %s", reader.ClientID(), reader.Username())
	}
	if !reader.AutoReconnect() {
		t.Fatalf("expected auto reconnect")
	}
	if reader.Order() {
		t.Fatalf("expected unordered delivery")
	}
	if transport.qos() != 1 {
		t.Fatalf("expected default qos 1, got %d", transport.qos())
	}
	if transport.IsConnected() {
		t.Fatalf("expected disconnected transport before Connect")
	}
}

func TestSubscribeBeforeConnectIsDeferred(t *testing.T) {
	transport, err := NewTransport(Config{BrokerURL: "tcp://localhost:1883"}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	if err := transport.Subscribe("devices/+/status", func(string, []byte) {}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, ok := transport.handles["devices/+/status"]; !ok {
		t.Fatalf("expected handler to be kept for resubscribe")
	}
	if err := transport.Subscribe("", nil); err == nil {
		t.Fatalf("expected error for empty subscription")
	}
}

type doneToken struct {
	done chan struct{}
	err  error
}

func (t *doneToken) Wait() bool {
	<-t.done
	return true
}

func (t *doneToken) WaitTimeout(d time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{} { return t.done }
func (t *doneToken) Error() error { return t.err }

func TestWaitToken(t *testing.T) {
	boom := errors.New("boom")
	finished := &doneToken{done: make(chan struct{}), err: boom}
	close(finished.done)
	if err := waitToken(context.Background(), finished, 0); !errors.Is(err, boom) {
		t.Fatalf("expected token error, got %v", err)
	}

	pending := &doneToken{done: make(chan struct{})}
	err := waitToken(context.Background(), pending, 10*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}
