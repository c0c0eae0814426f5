package memory

import (
	"context"
	"sort"
	"sync"

	templates "fieldops-cloud/internal/templates/domain"
)

// TemplateRepository is an in-memory repository for command templates.
type TemplateRepository struct {
	mu   sync.RWMutex
	data map[string]templates.CommandTemplate
}

// NewTemplateRepository constructs a repository.
func NewTemplateRepository() *TemplateRepository {
	return &TemplateRepository{data: make(map[string]templates.CommandTemplate)}
}

// GetTemplateByName loads a template; nil when missing.
func (r *TemplateRepository) GetTemplateByName(ctx context.Context, name string) (*templates.CommandTemplate, error) {
	_ = ctx
	r.mu.RLock()
	tpl, ok := r.data[name]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	copy := cloneTemplate(tpl)
	return &copy, nil
}

// Save stores a template (overwrites existing).
func (r *TemplateRepository) Save(ctx context.Context, tpl *templates.CommandTemplate) error {
	_ = ctx
	if tpl == nil || tpl.Name == "" {
		return templates.ErrEmptyName
	}
	r.mu.Lock()
	r.data[tpl.Name] = cloneTemplate(*tpl)
	r.mu.Unlock()
	return nil
}

// List returns templates sorted by name, filtered by category when set.
func (r *TemplateRepository) List(ctx context.Context, category templates.Category) ([]templates.CommandTemplate, error) {
	_ = ctx
	r.mu.RLock()
	result := make([]templates.CommandTemplate, 0, len(r.data))
	for _, tpl := range r.data {
		if category != "" && tpl.Category != category {
			continue
		}
		result = append(result, cloneTemplate(tpl))
	}
	r.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Delete removes a template.
func (r *TemplateRepository) Delete(ctx context.Context, name string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[name]; !ok {
		return templates.ErrTemplateNotFound
	}
	delete(r.data, name)
	return nil
}

func cloneTemplate(tpl templates.CommandTemplate) templates.CommandTemplate {
	vars := make(map[string]templates.VariableSpec, len(tpl.Variables))
	for k, v := range tpl.Variables {
		vars[k] = v
	}
	tpl.Variables = vars
	return tpl
}
