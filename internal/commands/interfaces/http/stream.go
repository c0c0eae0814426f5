package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	commandsevents "fieldops-cloud/internal/commands/application/events"
)

const clientBuffer = 16

type streamMessage struct {
	event    string
	deviceID string
	payload  []byte
}

type streamClient struct {
	deviceID string
	ch       chan streamMessage
}

// StreamBroker fans command lifecycle events out to connected SSE clients.
// Slow clients miss events rather than block publishers.
type StreamBroker struct {
	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

// NewStreamBroker constructs a broker.
func NewStreamBroker() *StreamBroker {
	return &StreamBroker{clients: make(map[*streamClient]struct{})}
}

// HandleDispatched forwards a dispatch event.
func (b *StreamBroker) HandleDispatched(_ context.Context, evt commandsevents.CommandDispatched) error {
	return b.broadcast("dispatched", evt.DeviceID, evt)
}

// HandleStatusChanged forwards a status change.
func (b *StreamBroker) HandleStatusChanged(_ context.Context, evt commandsevents.CommandStatusChanged) error {
	return b.broadcast("status", evt.DeviceID, evt)
}

func (b *StreamBroker) subscribe(deviceID string) *streamClient {
	client := &streamClient{deviceID: deviceID, ch: make(chan streamMessage, clientBuffer)}
	b.mu.Lock()
	b.clients[client] = struct{}{}
	b.mu.Unlock()
	return client
}

func (b *StreamBroker) unsubscribe(client *streamClient) {
	b.mu.Lock()
	delete(b.clients, client)
	b.mu.Unlock()
}

func (b *StreamBroker) broadcast(event, deviceID string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg := streamMessage{event: event, deviceID: deviceID, payload: payload}
	b.mu.Lock()
	defer b.mu.Unlock()
	for client := range b.clients {
		if client.deviceID != "" && client.deviceID != deviceID {
			continue
		}
		select {
		case client.ch <- msg:
		default:
		}
	}
	return nil
}

// StreamHandler serves GET /api/v1/commands/stream[?device_id=].
type StreamHandler struct {
	broker *StreamBroker
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *StreamBroker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := h.broker.subscribe(r.URL.Query().Get("device_id"))
	defer h.broker.unsubscribe(client)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	for {
		select {
		case msg := <-client.ch:
			_, _ = w.Write([]byte("event: " + msg.event + "\ndata: "))
			_, _ = w.Write(msg.payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
