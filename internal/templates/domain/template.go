package templates

import (
	"time"

	commands "fieldops-cloud/internal/commands/domain"
)

// VariableType is the declared type of a template variable.
type VariableType string

const (
	TypeString  VariableType = "string"
	TypeNumber  VariableType = "number"
	TypeBoolean VariableType = "boolean"
	TypeEnum    VariableType = "enum"
)

// Valid reports whether the variable type is known.
func (t VariableType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeEnum:
		return true
	default:
		return false
	}
}

// Category groups templates for operators.
type Category string

const (
	CategoryControl       Category = "control"
	CategoryConfiguration Category = "configuration"
	CategorySystem        Category = "system"
	CategorySecurity      Category = "security"
	CategoryMonitoring    Category = "monitoring"
	CategoryMaintenance   Category = "maintenance"
	CategoryDiagnostic    Category = "diagnostic"
	CategoryGeneral       Category = "general"
)

// NormalizeCategory validates a category, defaulting empty input to general.
func NormalizeCategory(value string) (Category, bool) {
	switch Category(value) {
	case "":
		return CategoryGeneral, true
	case CategoryControl, CategoryConfiguration, CategorySystem, CategorySecurity,
		CategoryMonitoring, CategoryMaintenance, CategoryDiagnostic, CategoryGeneral:
		return Category(value), true
	default:
		return "", false
	}
}

// Validation holds optional value constraints.
type Validation struct {
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Pattern string   `json:"pattern,omitempty"`
	Options []string `json:"options,omitempty"`
}

// VariableSpec describes one template parameter.
type VariableSpec struct {
	Name         string          `json:"name"`
	Type         VariableType    `json:"type"`
	Description  string          `json:"description,omitempty"`
	Required     bool            `json:"required"`
	DefaultValue *commands.Value `json:"defaultValue,omitempty"`
	Validation   *Validation     `json:"validation,omitempty"`
}

// CommandTemplate is a named command pattern with typed placeholders.
type CommandTemplate struct {
	Name         string                  `json:"name"`
	DisplayName  string                  `json:"displayName"`
	Description  string                  `json:"description,omitempty"`
	Body         string                  `json:"template"`
	Category     Category                `json:"category"`
	Variables    map[string]VariableSpec `json:"variables"`
	IsDefault    bool                    `json:"isDefault"`
	IsActive     bool                    `json:"isActive"`
	RequiredRole string                  `json:"requiredRole,omitempty"`
	CreatedAt    time.Time               `json:"createdAt"`
	UpdatedAt    time.Time               `json:"updatedAt"`
}

// Defaults returns the declared default values keyed by variable name.
func (t CommandTemplate) Defaults() map[string]commands.Value {
	defaults := make(map[string]commands.Value)
	for name, spec := range t.Variables {
		if spec.DefaultValue != nil {
			defaults[name] = *spec.DefaultValue
		}
	}
	return defaults
}

// WithDefaults overlays supplied values on the declared defaults.
func (t CommandTemplate) WithDefaults(values map[string]commands.Value) map[string]commands.Value {
	merged := t.Defaults()
	for name, value := range values {
		if value.IsNull() {
			continue
		}
		merged[name] = value
	}
	return merged
}
