package templates

import (
	"sort"
	"strings"

	commands "fieldops-cloud/internal/commands/domain"
)

// Render substitutes every {{&name}} token for which a value is supplied.
// It does not validate; callers run Validate first.
func Render(body string, values map[string]commands.Value) string {
	if len(values) == 0 {
		return body
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names)*2)
	for _, name := range names {
		pairs = append(pairs, Placeholder(name), values[name].Text())
	}
	return strings.NewReplacer(pairs...).Replace(body)
}

// HasUnresolved reports whether any placeholder token remains in body.
func HasUnresolved(body string) bool {
	return placeholderPattern.MatchString(body)
}
