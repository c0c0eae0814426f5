package apihttp

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"fieldops-cloud/internal/auth"
	commandsapp "fieldops-cloud/internal/commands/application"
	commands "fieldops-cloud/internal/commands/domain"
	templates "fieldops-cloud/internal/templates/domain"
)

const healthTimeout = 2 * time.Second

// ErrorBody is the JSON error response.
type ErrorBody struct {
	Error  string   `json:"error"`
	Errors []string `json:"errors,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps service errors to HTTP status codes.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	body := ErrorBody{Error: err.Error()}
	if errs, ok := templates.AsValidationError(err); ok {
		body.Error = "validation failed"
		body.Errors = errs
	}
	if status == http.StatusInternalServerError {
		body.Error = "internal error"
	}
	WriteJSON(w, status, body)
}

// StatusFor returns the HTTP status for an error.
func StatusFor(err error) int {
	var verr *templates.ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, templates.ErrTemplateNotFound), errors.Is(err, commands.ErrCommandNotFound):
		return http.StatusNotFound
	case errors.Is(err, templates.ErrTemplateInactive), errors.Is(err, templates.ErrDefaultTemplate),
		errors.Is(err, commandsapp.ErrDuplicateCommand):
		return http.StatusConflict
	case errors.Is(err, commandsapp.ErrNotConnected), errors.Is(err, commandsapp.ErrDispatcherClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, commandsapp.ErrPublishFailed):
		return http.StatusBadGateway
	case errors.Is(err, commandsapp.ErrCommandExpired), errors.Is(err, commandsapp.ErrInvalidCommand),
		errors.Is(err, commandsapp.ErrInvalidRequest), errors.Is(err, templates.ErrEmptyName):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, auth.ErrTenantMismatch):
		return http.StatusForbidden
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Connectivity reports transport state.
type Connectivity interface {
	Connected() bool
	InFlight() int
}

// HealthHandler serves GET /healthz.
type HealthHandler struct {
	db        *sql.DB
	transport Connectivity
}

// NewHealthHandler constructs a health handler. db may be nil.
func NewHealthHandler(db *sql.DB, transport Connectivity) *HealthHandler {
	return &HealthHandler{db: db, transport: transport}
}

type healthResponse struct {
	Status   string `json:"status"`
	MQTT     string `json:"mqtt"`
	Database string `json:"database"`
	InFlight int    `json:"inFlight"`
}

// ServeHTTP reports 200 when the broker and database are reachable.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp := healthResponse{Status: "ok", MQTT: "disconnected", Database: "disabled"}
	if h.transport != nil {
		if h.transport.Connected() {
			resp.MQTT = "connected"
		} else {
			resp.Status = "degraded"
		}
		resp.InFlight = h.transport.InFlight()
	}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			resp.Database = "unreachable"
			resp.Status = "degraded"
		} else {
			resp.Database = "ok"
		}
	}
	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, resp)
}
