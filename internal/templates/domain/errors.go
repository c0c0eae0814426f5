package templates

import (
	"errors"
	"strings"
)

var (
	// ErrTemplateNotFound is returned when no template matches the name.
	ErrTemplateNotFound = errors.New("template: not found")
	// ErrTemplateInactive is returned when executing a disabled template.
	ErrTemplateInactive = errors.New("template: inactive")
	// ErrDefaultTemplate is returned when deleting a system-seeded template.
	ErrDefaultTemplate = errors.New("template: default templates cannot be deleted")
	// ErrEmptyName is returned when a template has no name.
	ErrEmptyName = errors.New("template: empty name")
)

// ValidationError carries every definition or value problem found in one pass.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Errors) == 0 {
		return "template: validation failed"
	}
	return "template: " + strings.Join(e.Errors, "; ")
}

// AsValidationError returns the validation errors carried by err, if any.
func AsValidationError(err error) ([]string, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Errors, true
	}
	return nil, false
}
