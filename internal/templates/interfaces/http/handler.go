package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	apihttp "fieldops-cloud/internal/api/http"
	"fieldops-cloud/internal/audit"
	templatesapp "fieldops-cloud/internal/templates/application"
	templates "fieldops-cloud/internal/templates/domain"
)

const (
	templatesPath = "/api/v1/templates"
	validatePath  = "/api/v1/templates/validate"
	maxBodyBytes  = 1 << 20
)

// Handler provides template HTTP endpoints.
type Handler struct {
	service     *templatesapp.Service
	auditLogger audit.Logger
}

// NewHandler constructs a handler. auditLogger may be nil.
func NewHandler(service *templatesapp.Service, auditLogger audit.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("templates handler: nil service")
	}
	return &Handler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP routes /api/v1/templates and /api/v1/templates/{name}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == validatePath:
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleValidate(w, r)
	case path == templatesPath:
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleSave(w, r, "")
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case strings.HasPrefix(path, templatesPath+"/"):
		name := strings.TrimPrefix(path, templatesPath+"/")
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r, name)
		case http.MethodPut:
			h.handleSave(w, r, name)
		case http.MethodDelete:
			h.handleDelete(w, r, name)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req templatesapp.ValidateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, h.service.ValidateTemplate(r.Context(), req))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListTemplates(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	if list == nil {
		list = []templates.CommandTemplate{}
	}
	apihttp.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, name string) {
	tpl, err := h.service.GetTemplate(r.Context(), name)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, tpl)
}

type saveRequest struct {
	Name         string                            `json:"name"`
	DisplayName  string                            `json:"displayName"`
	Description  string                            `json:"description"`
	Template     string                            `json:"template"`
	Category     string                            `json:"category"`
	Variables    map[string]templates.VariableSpec `json:"variables"`
	IsActive     *bool                             `json:"isActive"`
	RequiredRole string                            `json:"requiredRole"`
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request, name string) {
	var req saveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if name != "" {
		if req.Name != "" && req.Name != name {
			http.Error(w, "name does not match path", http.StatusBadRequest)
			return
		}
		req.Name = name
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	saved, err := h.service.SaveTemplate(r.Context(), templates.CommandTemplate{
		Name:         req.Name,
		DisplayName:  req.DisplayName,
		Description:  req.Description,
		Body:         req.Template,
		Category:     templates.Category(req.Category),
		Variables:    req.Variables,
		IsActive:     active,
		RequiredRole: req.RequiredRole,
	})
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	apihttp.WriteJSON(w, status, saved)
	h.logAudit(r, audit.ActionTemplateSave, saved.Name)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, name string) {
	if err := h.service.DeleteTemplate(r.Context(), name); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	h.logAudit(r, audit.ActionTemplateDelete, name)
}

func (h *Handler) logAudit(r *http.Request, action, name string) {
	if h.auditLogger == nil {
		return
	}
	_ = h.auditLogger.Log(r.Context(), audit.FromRequest(r, action, "template", name, nil))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return false
	}
	defer r.Body.Close()
	if err := json.Unmarshal(body, dst); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}
