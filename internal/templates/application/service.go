package application

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	commands "fieldops-cloud/internal/commands/domain"
	"fieldops-cloud/internal/observability/metrics"
	templates "fieldops-cloud/internal/templates/domain"
)

// Repository persists command templates.
type Repository interface {
	GetTemplateByName(ctx context.Context, name string) (*templates.CommandTemplate, error)
	Save(ctx context.Context, tpl *templates.CommandTemplate) error
	List(ctx context.Context, category templates.Category) ([]templates.CommandTemplate, error)
	Delete(ctx context.Context, name string) error
}

// ValidateRequest asks for a template definition check.
type ValidateRequest struct {
	Template     string                            `json:"template"`
	Variables    map[string]templates.VariableSpec `json:"variables"`
	SampleValues map[string]commands.Value         `json:"sampleValues,omitempty"`
}

// ValidateResponse reports the outcome of a validation.
type ValidateResponse struct {
	IsValid         bool     `json:"isValid"`
	Errors          []string `json:"errors"`
	RenderedCommand string   `json:"renderedCommand,omitempty"`
}

// Compiled is a validated, rendered template ready for dispatch.
type Compiled struct {
	Template *templates.CommandTemplate
	Values   map[string]commands.Value
	Rendered string
}

// Service compiles, validates and manages command templates.
type Service struct {
	repo   Repository
	logger *log.Logger
	now    func() time.Time
}

// NewService constructs a template service.
func NewService(repo Repository, logger *log.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("templates: nil repo")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{repo: repo, logger: logger, now: func() time.Time { return time.Now().UTC() }}, nil
}

// ValidateTemplate checks a template body against its variables and optional
// sample values. The rendered command is returned only for valid input with samples.
func (s *Service) ValidateTemplate(_ context.Context, req ValidateRequest) ValidateResponse {
	errs := templates.Validate(req.Template, req.Variables, req.SampleValues)
	resp := ValidateResponse{IsValid: len(errs) == 0, Errors: errs}
	if resp.IsValid && req.SampleValues != nil {
		tpl := templates.CommandTemplate{Body: req.Template, Variables: req.Variables}
		resp.RenderedCommand = templates.Render(req.Template, tpl.WithDefaults(req.SampleValues))
	}
	if resp.IsValid {
		metrics.IncTemplateValidation(metrics.ResultSuccess)
	} else {
		metrics.IncTemplateValidation(metrics.ResultError)
	}
	return resp
}

// Compile loads a template by name, merges defaults, validates and renders it.
func (s *Service) Compile(ctx context.Context, name string, values map[string]commands.Value) (*Compiled, error) {
	tpl, err := s.repo.GetTemplateByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, templates.ErrTemplateNotFound
	}
	if !tpl.IsActive {
		return nil, templates.ErrTemplateInactive
	}
	merged := tpl.WithDefaults(values)
	if errs := templates.Validate(tpl.Body, tpl.Variables, merged); len(errs) > 0 {
		metrics.IncTemplateValidation(metrics.ResultError)
		return nil, &templates.ValidationError{Errors: errs}
	}
	metrics.IncTemplateValidation(metrics.ResultSuccess)
	return &Compiled{
		Template: tpl,
		Values:   merged,
		Rendered: templates.Render(tpl.Body, merged),
	}, nil
}

// SaveTemplate validates a template definition and stores it.
func (s *Service) SaveTemplate(ctx context.Context, tpl templates.CommandTemplate) (*templates.CommandTemplate, error) {
	tpl.Name = strings.TrimSpace(tpl.Name)
	if tpl.Name == "" {
		return nil, templates.ErrEmptyName
	}
	category, ok := templates.NormalizeCategory(string(tpl.Category))
	if !ok {
		return nil, &templates.ValidationError{Errors: []string{"Unknown category '" + string(tpl.Category) + "'"}}
	}
	tpl.Category = category
	if tpl.DisplayName == "" {
		tpl.DisplayName = tpl.Name
	}
	variables := make(map[string]templates.VariableSpec, len(tpl.Variables))
	for name, spec := range tpl.Variables {
		if spec.Name == "" {
			spec.Name = name
		}
		variables[name] = spec
	}
	tpl.Variables = variables
	if errs := templates.ValidateDefinition(tpl.Body, tpl.Variables); len(errs) > 0 {
		return nil, &templates.ValidationError{Errors: errs}
	}

	now := s.now()
	existing, err := s.repo.GetTemplateByName(ctx, tpl.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		tpl.CreatedAt = existing.CreatedAt
		tpl.IsDefault = existing.IsDefault || tpl.IsDefault
	} else {
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now
	if err := s.repo.Save(ctx, &tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// GetTemplate returns a template by name.
func (s *Service) GetTemplate(ctx context.Context, name string) (*templates.CommandTemplate, error) {
	tpl, err := s.repo.GetTemplateByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, templates.ErrTemplateNotFound
	}
	return tpl, nil
}

// ListTemplates returns templates, optionally filtered by category.
func (s *Service) ListTemplates(ctx context.Context, category string) ([]templates.CommandTemplate, error) {
	if category == "" {
		return s.repo.List(ctx, "")
	}
	normalized, ok := templates.NormalizeCategory(category)
	if !ok {
		return nil, &templates.ValidationError{Errors: []string{"Unknown category '" + category + "'"}}
	}
	return s.repo.List(ctx, normalized)
}

// DeleteTemplate removes a user-defined template.
func (s *Service) DeleteTemplate(ctx context.Context, name string) error {
	tpl, err := s.GetTemplate(ctx, name)
	if err != nil {
		return err
	}
	if tpl.IsDefault {
		return templates.ErrDefaultTemplate
	}
	return s.repo.Delete(ctx, name)
}

// SeedDefaults stores system templates that are not present yet.
func (s *Service) SeedDefaults(ctx context.Context, defaults []templates.CommandTemplate) (int, error) {
	seeded := 0
	for _, tpl := range defaults {
		existing, err := s.repo.GetTemplateByName(ctx, tpl.Name)
		if err != nil {
			return seeded, err
		}
		if existing != nil {
			continue
		}
		tpl.IsDefault = true
		if _, err := s.SaveTemplate(ctx, tpl); err != nil {
			return seeded, err
		}
		seeded++
	}
	if seeded > 0 {
		s.logger.Printf("templates seeded: count=%d", seeded)
	}
	return seeded, nil
}
