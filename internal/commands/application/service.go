package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"fieldops-cloud/internal/auth"
	commands "fieldops-cloud/internal/commands/domain"
	"fieldops-cloud/internal/observability/metrics"
	templatesapp "fieldops-cloud/internal/templates/application"
)

// ErrInvalidRequest marks a malformed execution request.
var ErrInvalidRequest = errors.New("commands: invalid request")

const defaultListLimit = 100

// ExecuteRequest asks for a command to be compiled and dispatched. Exactly
// one of TemplateID or CommandType is set.
type ExecuteRequest struct {
	CommandID      string                    `json:"commandId,omitempty"`
	TenantID       string                    `json:"tenantId,omitempty"`
	TemplateID     string                    `json:"templateId,omitempty"`
	CommandType    string                    `json:"commandType,omitempty"`
	DeviceID       string                    `json:"deviceId"`
	Action         string                    `json:"action,omitempty"`
	Variables      map[string]commands.Value `json:"variables,omitempty"`
	Parameters     map[string]commands.Value `json:"parameters,omitempty"`
	Priority       string                    `json:"priority,omitempty"`
	TimeoutSeconds int                       `json:"timeoutSeconds,omitempty"`
	ExpiresAt      *time.Time                `json:"expiresAt,omitempty"`
}

// ExecuteResponse is returned once the command is published.
type ExecuteResponse struct {
	CommandID       string          `json:"commandId"`
	RenderedCommand string          `json:"renderedCommand"`
	Status          commands.Status `json:"status"`
}

// TemplateCompiler compiles stored templates.
type TemplateCompiler interface {
	Compile(ctx context.Context, name string, values map[string]commands.Value) (*templatesapp.Compiled, error)
}

// CommandDispatcher publishes envelopes.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, env commands.Envelope, opts ...DispatchOption) error
}

// Service executes commands and answers command queries.
type Service struct {
	store      CommandStore
	compiler   TemplateCompiler
	dispatcher CommandDispatcher
	tenantID   string
	logger     *log.Logger
	now        func() time.Time
	newID      func() string
}

// NewService constructs a command service.
func NewService(store CommandStore, compiler TemplateCompiler, dispatcher CommandDispatcher, tenantID string, logger *log.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("commands: nil store")
	}
	if compiler == nil {
		return nil, errors.New("commands: nil template compiler")
	}
	if dispatcher == nil {
		return nil, errors.New("commands: nil dispatcher")
	}
	if tenantID == "" {
		return nil, errors.New("commands: empty tenant id")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:      store,
		compiler:   compiler,
		dispatcher: dispatcher,
		tenantID:   tenantID,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}, nil
}

// ExecuteCommand compiles the request, records it as PENDING, dispatches it
// and marks it SENT. A failed dispatch leaves the record FAILED and returns the
// dispatch error.
func (s *Service) ExecuteCommand(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	if err := validateExecute(req); err != nil {
		return nil, err
	}
	priority, ok := commands.NormalizePriority(strings.ToLower(req.Priority))
	if !ok {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidRequest, req.Priority)
	}
	tenantID, err := s.resolveTenant(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	env := commands.Envelope{
		DeviceID:  req.DeviceID,
		Action:    req.Action,
		Priority:  priority,
		ExpiresAt: req.ExpiresAt,
	}
	var rendered string
	var templateName string
	if req.TemplateID != "" {
		compiled, err := s.compiler.Compile(ctx, req.TemplateID, req.Variables)
		if err != nil {
			return nil, err
		}
		if err := auth.Authorize(ctx, compiled.Template.RequiredRole); err != nil {
			return nil, err
		}
		templateName = compiled.Template.Name
		rendered = compiled.Rendered
		env.Type = commands.TypeTemplate
		env.Payload = rendered
		env.Parameters = compiled.Values
		if env.Action == "" {
			env.Action = templateName
		}
	} else {
		commandType, ok := commands.ParseCommandType(req.CommandType)
		if !ok {
			return nil, fmt.Errorf("%w: unknown command type %q", ErrInvalidRequest, req.CommandType)
		}
		env.Type = commandType
		env.Parameters = req.Parameters
		rendered, err = renderParameters(req.Parameters)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	now := s.now()
	commandID := strings.TrimSpace(req.CommandID)
	if commandID == "" {
		commandID = s.newID()
	}
	record := &commands.Command{
		CommandID:     commandID,
		TenantID:      tenantID,
		DeviceID:      req.DeviceID,
		TemplateName:  templateName,
		CommandType:   env.Type,
		Payload:       []byte(rendered),
		Priority:      priority,
		Status:        commands.StatusPending,
		ExecutionData: commands.Null(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	commandID, err = s.store.CreateCommand(ctx, record)
	if err != nil {
		return nil, err
	}
	metrics.IncCommandIssued()

	env.CommandID = commandID
	env.Timestamp = now
	var opts []DispatchOption
	if req.TimeoutSeconds > 0 {
		opts = append(opts, WithTimeout(time.Duration(req.TimeoutSeconds)*time.Second))
	}
	if err := s.dispatcher.Dispatch(ctx, env, opts...); err != nil {
		s.markFailed(ctx, commandID, err)
		return nil, err
	}

	if err := s.store.MarkSent(ctx, commandID, s.now()); err != nil {
		s.logger.Printf("mark sent failed: command_id=%s err=%v", commandID, err)
	}
	return &ExecuteResponse{
		CommandID:       commandID,
		RenderedCommand: rendered,
		Status:          commands.StatusSent,
	}, nil
}

// GetCommand returns a command record.
func (s *Service) GetCommand(ctx context.Context, commandID string) (*commands.Command, error) {
	if strings.TrimSpace(commandID) == "" {
		return nil, fmt.Errorf("%w: command id required", ErrInvalidRequest)
	}
	cmd, err := s.store.GetCommand(ctx, commandID)
	if err != nil {
		return nil, err
	}
	if cmd == nil {
		return nil, commands.ErrCommandNotFound
	}
	if tenantID := auth.TenantIDFromContext(ctx); tenantID != "" && cmd.TenantID != "" && cmd.TenantID != tenantID {
		return nil, commands.ErrCommandNotFound
	}
	return cmd, nil
}

// ListCommands returns the latest commands of a device.
func (s *Service) ListCommands(ctx context.Context, deviceID string, limit int) ([]commands.Command, error) {
	if strings.TrimSpace(deviceID) == "" {
		return nil, fmt.Errorf("%w: device id required", ErrInvalidRequest)
	}
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	list, err := s.store.ListByDevice(ctx, deviceID, limit)
	if err != nil {
		return nil, err
	}
	tenantID := auth.TenantIDFromContext(ctx)
	if tenantID == "" {
		return list, nil
	}
	filtered := list[:0]
	for _, cmd := range list {
		if cmd.TenantID == "" || cmd.TenantID == tenantID {
			filtered = append(filtered, cmd)
		}
	}
	return filtered, nil
}

func (s *Service) resolveTenant(ctx context.Context, requested string) (string, error) {
	tenantID := auth.TenantIDFromContext(ctx)
	if tenantID != "" && requested != "" && requested != tenantID {
		return "", auth.ErrTenantMismatch
	}
	if tenantID == "" {
		tenantID = requested
	}
	if tenantID == "" {
		tenantID = s.tenantID
	}
	return tenantID, nil
}

func (s *Service) markFailed(ctx context.Context, commandID string, cause error) {
	update := commands.StatusUpdate{
		CommandID:     commandID,
		Status:        commands.StatusFailed,
		Message:       cause.Error(),
		ExecutionData: commands.Null(),
		Timestamp:     s.now(),
	}
	if err := s.store.UpdateCommandStatus(context.WithoutCancel(ctx), update); err != nil {
		s.logger.Printf("mark failed failed: command_id=%s err=%v", commandID, err)
	}
	s.logger.Printf("dispatch failed: command_id=%s err=%v", commandID, cause)
}

func validateExecute(req ExecuteRequest) error {
	if strings.TrimSpace(req.DeviceID) == "" {
		return fmt.Errorf("%w: deviceId required", ErrInvalidRequest)
	}
	hasTemplate := strings.TrimSpace(req.TemplateID) != ""
	hasType := strings.TrimSpace(req.CommandType) != ""
	if hasTemplate == hasType {
		return fmt.Errorf("%w: exactly one of templateId or commandType required", ErrInvalidRequest)
	}
	if hasType && len(req.Variables) > 0 {
		return fmt.Errorf("%w: variables require templateId", ErrInvalidRequest)
	}
	if req.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: timeoutSeconds must be positive", ErrInvalidRequest)
	}
	return nil
}

func renderParameters(params map[string]commands.Value) (string, error) {
	if len(params) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
