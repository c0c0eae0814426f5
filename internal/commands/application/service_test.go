package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"fieldops-cloud/internal/auth"
	commands "fieldops-cloud/internal/commands/domain"
	templatesapp "fieldops-cloud/internal/templates/application"
	templates "fieldops-cloud/internal/templates/domain"
	templatesmemory "fieldops-cloud/internal/templates/infrastructure/memory"
)

func float(v float64) *float64 { return &v }

func newTemplateService(t *testing.T) *templatesapp.Service {
	t.Helper()
	svc, err := templatesapp.NewService(templatesmemory.NewTemplateRepository(), quietLogger())
	if err != nil {
		t.Fatalf("new template service: %v", err)
	}
	_, err = svc.SaveTemplate(context.Background(), templates.CommandTemplate{
		Name:     "set_limits",
		Body:     "{LowLimit2: {{&LowLimit}},HighLimit2: {{&HighLimit}}}",
		Category: templates.CategoryConfiguration,
		IsActive: true,
		Variables: map[string]templates.VariableSpec{
			"LowLimit":  {Type: templates.TypeNumber, Required: true, Validation: &templates.Validation{Min: float(0)}},
			"HighLimit": {Type: templates.TypeNumber, Required: true, Validation: &templates.Validation{Max: float(100)}},
		},
	})
	if err != nil {
		t.Fatalf("save template: %v", err)
	}
	_, err = svc.SaveTemplate(context.Background(), templates.CommandTemplate{
		Name:         "factory_reset",
		Body:         "RESET",
		IsActive:     true,
		RequiredRole: "admin",
	})
	if err != nil {
		t.Fatalf("save template: %v", err)
	}
	return svc
}

func newCommandService(t *testing.T, h *harness, store *stubStore) *Service {
	t.Helper()
	svc, err := NewService(store, newTemplateService(t), h.dispatcher, "tenant-default", quietLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestExecuteTemplateCommand(t *testing.T) {
	h := newHarness(t, time.Minute)
	store := newStubStore()
	svc := newCommandService(t, h, store)

	resp, err := svc.ExecuteCommand(context.Background(), ExecuteRequest{
		TemplateID: "set_limits",
		DeviceID:   "pump-01",
		Variables: map[string]commands.Value{
			"LowLimit":  commands.Number(0),
			"HighLimit": commands.Number(5),
		},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if resp.RenderedCommand != "{LowLimit2: 0,HighLimit2: 5}" {
		t.Fatalf("unexpected rendered command: %s", resp.RenderedCommand)
	}
	if resp.Status != commands.StatusSent || resp.CommandID == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if got := store.status(resp.CommandID); got != commands.StatusSent {
		t.Fatalf("expected stored SENT, got %s", got)
	}
	record, err := svc.GetCommand(context.Background(), resp.CommandID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.TenantID != "tenant-default" || record.TemplateName != "set_limits" || record.Priority != commands.PriorityNormal {
		t.Fatalf("unexpected record: %+v", record)
	}

	messages := h.transport.published()
	if len(messages) != 1 {
		t.Fatalf("expected one publish, got %d", len(messages))
	}
}

func TestExecuteRejectsInvalidValuesBeforeDispatch(t *testing.T) {
	h := newHarness(t, time.Minute)
	store := newStubStore()
	svc := newCommandService(t, h, store)

	_, err := svc.ExecuteCommand(context.Background(), ExecuteRequest{
		TemplateID: "set_limits",
		DeviceID:   "pump-01",
		Variables: map[string]commands.Value{
			"LowLimit":  commands.Number(-1),
			"HighLimit": commands.Number(500),
		},
	})
	errs, ok := templates.AsValidationError(err)
	if !ok {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(errs) != 2 {
		t.Fatalf("expected two value errors, got %v", errs)
	}
	if len(store.records) != 0 || len(h.transport.published()) != 0 {
		t.Fatalf("expected nothing stored or published")
	}
}

func TestExecuteDispatchFailureMarksFailed(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.transport.connected = false
	store := newStubStore()
	svc := newCommandService(t, h, store)

	_, err := svc.ExecuteCommand(context.Background(), ExecuteRequest{
		CommandID:   "cmd-offline",
		CommandType: "PUMP_STOP",
		DeviceID:    "pump-01",
	})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if got := store.status("cmd-offline"); got != commands.StatusFailed {
		t.Fatalf("expected FAILED record, got %s", got)
	}
}

func TestExecuteDirectCommand(t *testing.T) {
	h := newHarness(t, time.Minute)
	store := newStubStore()
	svc := newCommandService(t, h, store)

	resp, err := svc.ExecuteCommand(context.Background(), ExecuteRequest{
		CommandType:    "set_speed",
		DeviceID:       "pump-01",
		Parameters:     map[string]commands.Value{"rpm": commands.Number(900)},
		Priority:       "HIGH",
		TimeoutSeconds: 30,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if resp.RenderedCommand != `{"rpm":900}` {
		t.Fatalf("unexpected rendered parameters: %s", resp.RenderedCommand)
	}
	cmd, ok := h.registry.Lookup(resp.CommandID, "pump-01")
	if !ok {
		t.Fatalf("expected command in flight")
	}
	if cmd.Timeout != 30*time.Second || cmd.Envelope.Priority != commands.PriorityHigh {
		t.Fatalf("unexpected in-flight command: %+v", cmd)
	}
}

func TestExecuteRequestValidation(t *testing.T) {
	h := newHarness(t, time.Minute)
	svc := newCommandService(t, h, newStubStore())
	cases := []ExecuteRequest{
		{TemplateID: "set_limits"},
		{DeviceID: "pump-01"},
		{DeviceID: "pump-01", TemplateID: "set_limits", CommandType: "PUMP_START"},
		{DeviceID: "pump-01", CommandType: "WARP_DRIVE"},
		{DeviceID: "pump-01", CommandType: "PUMP_START", Priority: "urgent"},
	}
	for _, req := range cases {
		if _, err := svc.ExecuteCommand(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest for %+v, got %v", req, err)
		}
	}
	if _, err := svc.ExecuteCommand(context.Background(), ExecuteRequest{DeviceID: "pump-01", TemplateID: "missing"}); !errors.Is(err, templates.ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestExecuteEnforcesTemplateRole(t *testing.T) {
	h := newHarness(t, time.Minute)
	svc := newCommandService(t, h, newStubStore())
	operator := auth.WithIdentity(context.Background(), auth.Identity{TenantID: "tenant-a", Subject: "user-1", Role: auth.RoleOperator})

	_, err := svc.ExecuteCommand(operator, ExecuteRequest{TemplateID: "factory_reset", DeviceID: "pump-01"})
	if !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	admin := auth.WithIdentity(context.Background(), auth.Identity{TenantID: "tenant-a", Subject: "user-2", Role: auth.RoleAdmin})
	if _, err := svc.ExecuteCommand(admin, ExecuteRequest{TemplateID: "factory_reset", DeviceID: "pump-01"}); err != nil {
		t.Fatalf("expected admin allowed, got %v", err)
	}
	if _, err := svc.ExecuteCommand(admin, ExecuteRequest{TenantID: "tenant-b", CommandType: "PING", DeviceID: "pump-01"}); !errors.Is(err, auth.ErrTenantMismatch) {
		t.Fatalf("expected tenant mismatch, got %v", err)
	}
}

func TestListCommandsFiltersTenant(t *testing.T) {
	h := newHarness(t, time.Minute)
	store := newStubStore()
	svc := newCommandService(t, h, store)
	store.records["a"] = &commands.Command{CommandID: "a", TenantID: "tenant-a", DeviceID: "pump-01"}
	store.records["b"] = &commands.Command{CommandID: "b", TenantID: "tenant-b", DeviceID: "pump-01"}

	ctx := auth.WithIdentity(context.Background(), auth.Identity{TenantID: "tenant-a", Subject: "user-1", Role: auth.RoleViewer})
	list, err := svc.ListCommands(ctx, "pump-01", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].CommandID != "a" {
		t.Fatalf("unexpected list: %+v", list)
	}
	if _, err := svc.GetCommand(ctx, "b"); !errors.Is(err, commands.ErrCommandNotFound) {
		t.Fatalf("expected other tenant's command hidden, got %v", err)
	}
}
