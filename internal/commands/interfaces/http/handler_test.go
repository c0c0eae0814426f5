package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"fieldops-cloud/internal/audit"
	commandsapp "fieldops-cloud/internal/commands/application"
	commands "fieldops-cloud/internal/commands/domain"
	commandsmemory "fieldops-cloud/internal/commands/infrastructure/memory"
	templatesapp "fieldops-cloud/internal/templates/application"
	templates "fieldops-cloud/internal/templates/domain"
	templatesmemory "fieldops-cloud/internal/templates/infrastructure/memory"
)

type loopbackTransport struct {
	mu        sync.Mutex
	connected bool
	topics    []string
}

func (t *loopbackTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *loopbackTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.topics = append(t.topics, topic)
	return nil
}

func (t *loopbackTransport) Close() {}

type recordingAudit struct {
	entries []audit.Entry
}

func (a *recordingAudit) Log(ctx context.Context, entry audit.Entry) error {
	a.entries = append(a.entries, entry)
	return nil
}

type fixture struct {
	handler    *Handler
	transport  *loopbackTransport
	store      *commandsmemory.CommandRepository
	correlator *commandsapp.Correlator
	audit      *recordingAudit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	templateSvc, err := templatesapp.NewService(templatesmemory.NewTemplateRepository(), logger)
	if err != nil {
		t.Fatalf("template service: %v", err)
	}
	_, err = templateSvc.SaveTemplate(context.Background(), templates.CommandTemplate{
		Name:     "set_limits",
		Body:     "{LowLimit2: {{&LowLimit}},HighLimit2: {{&HighLimit}}}",
		IsActive: true,
		Variables: map[string]templates.VariableSpec{
			"LowLimit":  {Type: templates.TypeNumber, Required: true},
			"HighLimit": {Type: templates.TypeNumber, Required: true},
		},
	})
	if err != nil {
		t.Fatalf("save template: %v", err)
	}

	store := commandsmemory.NewCommandRepository()
	transport := &loopbackTransport{connected: true}
	registry := commandsapp.NewInFlightRegistry(time.Hour)
	reconciler, err := commandsapp.NewReconciler(store, nil, time.Second, logger)
	if err != nil {
		t.Fatalf("reconciler: %v", err)
	}
	dispatcher, err := commandsapp.NewDispatcher(transport, registry, reconciler, nil, commandsapp.DispatcherConfig{
		CommandTimeout: time.Minute,
		Topics:         commands.NewTopics(""),
	}, logger)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	t.Cleanup(dispatcher.Shutdown)
	correlator, err := commandsapp.NewCorrelator(registry, reconciler, nil, logger)
	if err != nil {
		t.Fatalf("correlator: %v", err)
	}
	service, err := commandsapp.NewService(store, templateSvc, dispatcher, "tenant-default", logger)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	recorder := &recordingAudit{}
	handler, err := NewHandler(service, recorder)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	return &fixture{handler: handler, transport: transport, store: store, correlator: correlator, audit: recorder}
}

func (f *fixture) do(method, target string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	resp := httptest.NewRecorder()
	f.handler.ServeHTTP(resp, httptest.NewRequest(method, target, reader))
	return resp
}

func TestExecuteThenAcknowledge(t *testing.T) {
	f := newFixture(t)
	resp := f.do(http.MethodPost, "/api/v1/commands/execute", map[string]any{
		"templateId": "set_limits",
		"deviceId":   "pump-01",
		"variables":  map[string]any{"LowLimit": 0, "HighLimit": 5},
	})
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}
	var executed commandsapp.ExecuteResponse
	if err := json.NewDecoder(resp.Body).Decode(&executed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if executed.RenderedCommand != "{LowLimit2: 0,HighLimit2: 5}" || executed.Status != commands.StatusSent {
		t.Fatalf("unexpected response: %+v", executed)
	}
	if len(f.transport.topics) != 1 || f.transport.topics[0] != "devices/pump-01/commands" {
		t.Fatalf("unexpected publishes: %v", f.transport.topics)
	}
	if len(f.audit.entries) != 1 || f.audit.entries[0].ResourceID != executed.CommandID {
		t.Fatalf("expected audit entry, got %+v", f.audit.entries)
	}

	f.correlator.HandleAcknowledgment(context.Background(), commands.Acknowledgment{
		CommandID: executed.CommandID,
		DeviceID:  "pump-01",
		Status:    commands.StatusCompleted,
		Message:   "limits applied",
		Timestamp: time.Now().UTC(),
	})

	get := f.do(http.MethodGet, "/api/v1/commands/"+executed.CommandID, nil)
	if get.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", get.Code)
	}
	var view commandView
	if err := json.NewDecoder(get.Body).Decode(&view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Status != "COMPLETED" || view.Message != "limits applied" || view.CompletedAt == nil {
		t.Fatalf("unexpected view: %+v", view)
	}

	list := f.do(http.MethodGet, "/api/v1/commands?device_id=pump-01", nil)
	var views []commandView
	if err := json.NewDecoder(list.Body).Decode(&views); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected one command, got %d", len(views))
	}
}

func TestExecuteErrors(t *testing.T) {
	f := newFixture(t)

	invalid := f.do(http.MethodPost, "/api/v1/commands/execute", map[string]any{
		"templateId": "set_limits",
		"deviceId":   "pump-01",
		"variables":  map[string]any{"LowLimit": "low"},
	})
	if invalid.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", invalid.Code)
	}

	missing := f.do(http.MethodPost, "/api/v1/commands/execute", map[string]any{"templateId": "nope", "deviceId": "pump-01"})
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.Code)
	}

	f.transport.mu.Lock()
	f.transport.connected = false
	f.transport.mu.Unlock()
	offline := f.do(http.MethodPost, "/api/v1/commands/execute", map[string]any{"commandType": "PUMP_STOP", "deviceId": "pump-01"})
	if offline.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", offline.Code)
	}

	badJSON := httptest.NewRecorder()
	f.handler.ServeHTTP(badJSON, httptest.NewRequest(http.MethodPost, "/api/v1/commands/execute", bytes.NewBufferString("{")))
	if badJSON.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", badJSON.Code)
	}

	if resp := f.do(http.MethodGet, "/api/v1/commands", nil); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without device_id, got %d", resp.Code)
	}
	if resp := f.do(http.MethodGet, "/api/v1/commands/unknown", nil); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if resp := f.do(http.MethodDelete, "/api/v1/commands/execute", nil); resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
}
