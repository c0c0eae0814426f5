package http

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	commandsevents "fieldops-cloud/internal/commands/application/events"
	commands "fieldops-cloud/internal/commands/domain"
)

func TestStreamDeliversDeviceEvents(t *testing.T) {
	broker := NewStreamBroker()
	server := httptest.NewServer(NewStreamHandler(broker))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"?device_id=pump-01", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		t.Helper()
		var name, data string
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "":
				return name, data
			}
		}
	}

	if name, _ := readEvent(); name != "ready" {
		t.Fatalf("expected ready event, got %s", name)
	}

	_ = broker.HandleStatusChanged(context.Background(), commandsevents.CommandStatusChanged{CommandID: "cmd-other", DeviceID: "pump-02", Status: commands.StatusCompleted})
	_ = broker.HandleStatusChanged(context.Background(), commandsevents.CommandStatusChanged{CommandID: "cmd-1", DeviceID: "pump-01", Status: commands.StatusCompleted})

	name, data := readEvent()
	if name != "status" || !strings.Contains(data, `"cmd-1"`) {
		t.Fatalf("unexpected event %s: %s", name, data)
	}
}

func TestStreamRejectsWrongMethod(t *testing.T) {
	resp := httptest.NewRecorder()
	NewStreamHandler(NewStreamBroker()).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/commands/stream", nil))
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
}
