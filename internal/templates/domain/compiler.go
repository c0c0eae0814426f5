package templates

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	commands "fieldops-cloud/internal/commands/domain"
)

var placeholderPattern = regexp.MustCompile(`\{\{&(\w+)\}\}`)

// Placeholder builds the literal token for a variable name.
func Placeholder(name string) string {
	return "{{&" + name + "}}"
}

// ExtractPlaceholders returns the distinct placeholder names in order of first appearance.
func ExtractPlaceholders(body string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, match := range matches {
		name := match[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// Validate checks the template definition and, when sampleValues is non-nil,
// the supplied values. An empty result means the template is valid.
func Validate(body string, variables map[string]VariableSpec, sampleValues map[string]commands.Value) []string {
	errs := ValidateDefinition(body, variables)
	if sampleValues != nil {
		errs = append(errs, ValidateValues(variables, sampleValues)...)
	}
	return errs
}

// ValidateDefinition cross-checks placeholders against declared variables and
// verifies each variable spec is usable.
func ValidateDefinition(body string, variables map[string]VariableSpec) []string {
	errs := []string{}
	placeholders := ExtractPlaceholders(body)
	used := make(map[string]struct{}, len(placeholders))
	for _, name := range placeholders {
		used[name] = struct{}{}
		if _, ok := variables[name]; !ok {
			errs = append(errs, fmt.Sprintf("Variable '%s' is used but not defined", name))
		}
	}
	for _, name := range sortedNames(variables) {
		if _, ok := used[name]; !ok {
			errs = append(errs, fmt.Sprintf("Variable '%s' is defined but not used", name))
		}
	}
	for _, name := range sortedNames(variables) {
		errs = append(errs, checkSpec(name, variables[name])...)
	}
	return errs
}

// ValidateValues checks supplied values against every declared variable.
func ValidateValues(variables map[string]VariableSpec, values map[string]commands.Value) []string {
	errs := []string{}
	for _, name := range sortedNames(variables) {
		spec := variables[name]
		value, present := values[name]
		if !present || value.IsEmpty() {
			if spec.Required {
				errs = append(errs, fmt.Sprintf("Variable '%s' is required", name))
			}
			continue
		}
		errs = append(errs, checkValue(name, spec, value)...)
	}
	return errs
}

func checkSpec(name string, spec VariableSpec) []string {
	var errs []string
	if spec.Name != "" && spec.Name != name {
		errs = append(errs, fmt.Sprintf("Variable '%s' is declared under name '%s'", name, spec.Name))
	}
	if !spec.Type.Valid() {
		return append(errs, fmt.Sprintf("Variable '%s' has unknown type '%s'", name, spec.Type))
	}
	if v := spec.Validation; v != nil {
		if spec.Type == TypeEnum && len(v.Options) == 0 {
			errs = append(errs, fmt.Sprintf("Variable '%s' of type enum requires options", name))
		}
		if v.Min != nil && v.Max != nil && *v.Min > *v.Max {
			errs = append(errs, fmt.Sprintf("Variable '%s' has min greater than max", name))
		}
		if v.Pattern != "" {
			if _, err := regexp.Compile(v.Pattern); err != nil {
				errs = append(errs, fmt.Sprintf("Variable '%s' has invalid pattern: %v", name, err))
			}
		}
	} else if spec.Type == TypeEnum {
		errs = append(errs, fmt.Sprintf("Variable '%s' of type enum requires options", name))
	}
	if len(errs) == 0 && spec.DefaultValue != nil && !spec.DefaultValue.IsEmpty() {
		for _, problem := range checkValue(name, spec, *spec.DefaultValue) {
			errs = append(errs, "Default value: "+problem)
		}
	}
	return errs
}

func checkValue(name string, spec VariableSpec, value commands.Value) []string {
	var errs []string
	number, isNumber := numericValue(value)

	switch spec.Type {
	case TypeString:
		if value.Kind() != commands.KindString {
			return []string{fmt.Sprintf("Variable '%s' must be a string", name)}
		}
	case TypeNumber:
		if !isNumber {
			return []string{fmt.Sprintf("Variable '%s' must be a number", name)}
		}
	case TypeBoolean:
		if !isBoolean(value) {
			return []string{fmt.Sprintf("Variable '%s' must be a boolean", name)}
		}
	case TypeEnum:
		var options []string
		if spec.Validation != nil {
			options = spec.Validation.Options
		}
		if !containsString(options, value.Text()) {
			return []string{fmt.Sprintf("Variable '%s' must be one of: %s", name, strings.Join(options, ", "))}
		}
	default:
		return []string{fmt.Sprintf("Variable '%s' has unknown type '%s'", name, spec.Type)}
	}

	rules := spec.Validation
	if rules == nil {
		return errs
	}
	if isNumber {
		if rules.Min != nil && number < *rules.Min {
			errs = append(errs, fmt.Sprintf("Variable '%s' must be at least %s", name, formatNumber(*rules.Min)))
		}
		if rules.Max != nil && number > *rules.Max {
			errs = append(errs, fmt.Sprintf("Variable '%s' must be at most %s", name, formatNumber(*rules.Max)))
		}
	}
	if rules.Pattern != "" {
		re, err := regexp.Compile(rules.Pattern)
		if err != nil {
			errs = append(errs, fmt.Sprintf("Variable '%s' has invalid pattern: %v", name, err))
		} else if !re.MatchString(value.Text()) {
			errs = append(errs, fmt.Sprintf("Variable '%s' does not match pattern '%s'", name, rules.Pattern))
		}
	}
	return errs
}

// numericValue accepts numbers and numeric strings, as posted by HTML forms.
func numericValue(value commands.Value) (float64, bool) {
	if n, ok := value.AsNumber(); ok {
		return n, true
	}
	if s, ok := value.AsString(); ok {
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err == nil {
			return n, true
		}
	}
	return 0, false
}

func isBoolean(value commands.Value) bool {
	if _, ok := value.AsBool(); ok {
		return true
	}
	s, ok := value.AsString()
	return ok && (s == "true" || s == "false")
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func formatNumber(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func sortedNames(variables map[string]VariableSpec) []string {
	names := make([]string, 0, len(variables))
	for name := range variables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
