package application

import (
	"fmt"
	"os"

	commands "fieldops-cloud/internal/commands/domain"
	templates "fieldops-cloud/internal/templates/domain"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Templates []templateYAML `yaml:"templates"`
}

type templateYAML struct {
	Name         string                  `yaml:"name"`
	DisplayName  string                  `yaml:"display_name"`
	Description  string                  `yaml:"description"`
	Template     string                  `yaml:"template"`
	Category     string                  `yaml:"category"`
	RequiredRole string                  `yaml:"required_role"`
	Active       *bool                   `yaml:"active"`
	Variables    map[string]variableYAML `yaml:"variables"`
}

type variableYAML struct {
	Type        string          `yaml:"type"`
	Description string          `yaml:"description"`
	Required    bool            `yaml:"required"`
	Default     any             `yaml:"default"`
	Validation  *validationYAML `yaml:"validation"`
}

type validationYAML struct {
	Min     *float64 `yaml:"min"`
	Max     *float64 `yaml:"max"`
	Pattern string   `yaml:"pattern"`
	Options []string `yaml:"options"`
}

// LoadSeedFile reads default templates from a YAML file.
func LoadSeedFile(path string) ([]templates.CommandTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeed(data)
}

// ParseSeed decodes a YAML document with a top-level `templates` list.
func ParseSeed(data []byte) ([]templates.CommandTemplate, error) {
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("templates: parse seed: %w", err)
	}
	result := make([]templates.CommandTemplate, 0, len(file.Templates))
	for _, item := range file.Templates {
		tpl, err := item.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, tpl)
	}
	return result, nil
}

// ParseTemplate decodes a single YAML template document.
func ParseTemplate(data []byte) (templates.CommandTemplate, error) {
	var item templateYAML
	if err := yaml.Unmarshal(data, &item); err != nil {
		return templates.CommandTemplate{}, fmt.Errorf("templates: parse template: %w", err)
	}
	return item.toDomain()
}

func (t templateYAML) toDomain() (templates.CommandTemplate, error) {
	active := true
	if t.Active != nil {
		active = *t.Active
	}
	tpl := templates.CommandTemplate{
		Name:         t.Name,
		DisplayName:  t.DisplayName,
		Description:  t.Description,
		Body:         t.Template,
		Category:     templates.Category(t.Category),
		RequiredRole: t.RequiredRole,
		IsActive:     active,
		Variables:    make(map[string]templates.VariableSpec, len(t.Variables)),
	}
	for name, v := range t.Variables {
		spec := templates.VariableSpec{
			Name:        name,
			Type:        templates.VariableType(v.Type),
			Description: v.Description,
			Required:    v.Required,
		}
		if v.Default != nil {
			value, err := commands.FromAny(v.Default)
			if err != nil {
				return templates.CommandTemplate{}, fmt.Errorf("templates: %s.%s default: %w", t.Name, name, err)
			}
			spec.DefaultValue = &value
		}
		if v.Validation != nil {
			spec.Validation = &templates.Validation{
				Min:     v.Validation.Min,
				Max:     v.Validation.Max,
				Pattern: v.Validation.Pattern,
				Options: v.Validation.Options,
			}
		}
		tpl.Variables[name] = spec
	}
	return tpl, nil
}
