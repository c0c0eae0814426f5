package auth

import (
	"net/http"
	"strings"
)

// RouteRule maps a path (or path prefix when it ends in "/") to the roles
// needed to read and to mutate it.
type RouteRule struct {
	Path  string
	Read  Role
	Write Role
}

func (r RouteRule) matches(path string) bool {
	if strings.HasSuffix(r.Path, "/") {
		return strings.HasPrefix(path, r.Path)
	}
	return path == r.Path
}

// Policy determines required roles by request.
type Policy struct {
	Exempt map[string]struct{}
	Rules  []RouteRule
}

// DefaultRules cover the template and command APIs. Earlier rules win.
var DefaultRules = []RouteRule{
	{Path: "/api/v1/templates/validate", Read: RoleViewer, Write: RoleViewer},
	{Path: "/api/v1/templates", Read: RoleViewer, Write: RoleAdmin},
	{Path: "/api/v1/templates/", Read: RoleViewer, Write: RoleAdmin},
	{Path: "/api/v1/commands/execute", Read: RoleOperator, Write: RoleOperator},
	{Path: "/api/v1/commands", Read: RoleViewer, Write: RoleOperator},
	{Path: "/api/v1/commands/", Read: RoleViewer, Write: RoleOperator},
	{Path: "/api/", Read: RoleViewer, Write: RoleOperator},
}

// NewDefaultPolicy builds the default rule set with exempt paths.
func NewDefaultPolicy(exemptPaths ...string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{Exempt: set, Rules: DefaultRules}
}

// IsExempt reports whether a request skips authentication entirely.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	_, ok := p.Exempt[r.URL.Path]
	return ok
}

// RequiredRole resolves the role a request needs. ok is false for paths no
// rule covers.
func (p Policy) RequiredRole(r *http.Request) (role Role, ok bool) {
	if r == nil {
		return "", false
	}
	for _, rule := range p.Rules {
		if !rule.matches(r.URL.Path) {
			continue
		}
		if isRead(r.Method) {
			return rule.Read, true
		}
		return rule.Write, true
	}
	return "", false
}

func isRead(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
