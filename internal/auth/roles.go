package auth

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrForbidden is returned when the caller role is below the resource role.
	ErrForbidden = errors.New("auth: forbidden")
	// ErrTenantMismatch indicates a resource belongs to a different tenant.
	ErrTenantMismatch = errors.New("auth: tenant mismatch")
)

// Role represents a user role.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// NormalizeRole validates and normalizes a role string.
func NormalizeRole(value string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleViewer:
		return RoleViewer, true
	case RoleOperator:
		return RoleOperator, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// RoleAtLeast returns true when role satisfies required role.
func RoleAtLeast(role Role, required Role) bool {
	return roleRank(role) >= roleRank(required)
}

// Authorize checks the caller identity in ctx against a resource role such
// as a template's required role. Requests without an identity (auth
// disabled, CLI) and resources without a role are allowed.
func Authorize(ctx context.Context, required string) error {
	if strings.TrimSpace(required) == "" {
		return nil
	}
	id, ok := IdentityFromContext(ctx)
	if !ok || id.Role == "" {
		return nil
	}
	needed, ok := NormalizeRole(required)
	if !ok {
		return ErrForbidden
	}
	if !RoleAtLeast(id.Role, needed) {
		return ErrForbidden
	}
	return nil
}

func roleRank(role Role) int {
	switch role {
	case RoleViewer:
		return 1
	case RoleOperator:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}
