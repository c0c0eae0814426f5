package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	apihttp "fieldops-cloud/internal/api/http"
	"fieldops-cloud/internal/audit"
	commandsapp "fieldops-cloud/internal/commands/application"
	commands "fieldops-cloud/internal/commands/domain"
)

const (
	commandsPath = "/api/v1/commands"
	executePath  = "/api/v1/commands/execute"
	maxBodyBytes = 1 << 20
)

// Handler provides command HTTP endpoints.
type Handler struct {
	service     *commandsapp.Service
	auditLogger audit.Logger
}

// NewHandler constructs a handler. auditLogger may be nil.
func NewHandler(service *commandsapp.Service, auditLogger audit.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("commands handler: nil service")
	}
	return &Handler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP handles POST /api/v1/commands/execute, GET /api/v1/commands and
// GET /api/v1/commands/{id}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == executePath:
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleExecute(w, r)
	case path == commandsPath:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r)
	case strings.HasPrefix(path, commandsPath+"/"):
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGet(w, r, strings.TrimPrefix(path, commandsPath+"/"))
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req commandsapp.ExecuteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	resp, err := h.service.ExecuteCommand(r.Context(), req)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusAccepted, resp)
	h.logAudit(r, resp.CommandID, req)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		http.Error(w, "device_id is required", http.StatusBadRequest)
		return
	}
	limit := 0
	if value := r.URL.Query().Get("limit"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	list, err := h.service.ListCommands(r.Context(), deviceID, limit)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	views := make([]commandView, 0, len(list))
	for _, cmd := range list {
		views = append(views, toView(cmd))
	}
	apihttp.WriteJSON(w, http.StatusOK, views)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, commandID string) {
	cmd, err := h.service.GetCommand(r.Context(), commandID)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, toView(*cmd))
}

func (h *Handler) logAudit(r *http.Request, commandID string, req commandsapp.ExecuteRequest) {
	if h.auditLogger == nil {
		return
	}
	entry := audit.FromRequest(r, audit.ActionCommandExecute, "command", commandID, map[string]any{
		"device_id":    req.DeviceID,
		"template_id":  req.TemplateID,
		"command_type": req.CommandType,
		"priority":     req.Priority,
	})
	_ = h.auditLogger.Log(r.Context(), entry)
}

type commandView struct {
	CommandID     string         `json:"commandId"`
	TenantID      string         `json:"tenantId"`
	DeviceID      string         `json:"deviceId"`
	TemplateName  string         `json:"templateName,omitempty"`
	CommandType   string         `json:"commandType"`
	Payload       string         `json:"payload"`
	Priority      string         `json:"priority"`
	Status        string         `json:"status"`
	Message       string         `json:"message,omitempty"`
	ExecutionData commands.Value `json:"executionData"`
	CreatedAt     time.Time      `json:"createdAt"`
	SentAt        *time.Time     `json:"sentAt,omitempty"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
}

func toView(cmd commands.Command) commandView {
	return commandView{
		CommandID:     cmd.CommandID,
		TenantID:      cmd.TenantID,
		DeviceID:      cmd.DeviceID,
		TemplateName:  cmd.TemplateName,
		CommandType:   string(cmd.CommandType),
		Payload:       string(cmd.Payload),
		Priority:      string(cmd.Priority),
		Status:        string(cmd.Status),
		Message:       cmd.Message,
		ExecutionData: cmd.ExecutionData,
		CreatedAt:     cmd.CreatedAt,
		SentAt:        optionalTime(cmd.SentAt),
		UpdatedAt:     cmd.UpdatedAt,
		CompletedAt:   optionalTime(cmd.CompletedAt),
	}
}

func optionalTime(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	return &value
}
