package auth

import (
	"net/http"
	"strings"
)

// Rule maps requests to the role they need. Path matches exactly, Prefix
// matches by prefix and an empty Method matches any method.
type Rule struct {
	Method string
	Path   string
	Prefix string
	Role   Role
}

func (r Rule) matches(req *http.Request) bool {
	if r.Method != "" && r.Method != req.Method {
		return false
	}
	if r.Path != "" {
		return req.URL.Path == r.Path
	}
	return r.Prefix != "" && strings.HasPrefix(req.URL.Path, r.Prefix)
}

// Policy resolves the role a request needs. The first matching rule wins.
type Policy struct {
	public map[string]struct{}
	rules  []Rule
}

// NewPolicy builds a policy from rules. Public paths skip authentication.
func NewPolicy(rules []Rule, public ...string) Policy {
	set := make(map[string]struct{}, len(public))
	for _, path := range public {
		set[path] = struct{}{}
	}
	return Policy{public: set, rules: append([]Rule(nil), rules...)}
}

// ReportRules is the access table of the report API.
func ReportRules() []Rule {
	return []Rule{
		{Method: http.MethodPost, Path: "/api/v1/runs", Role: RoleOperator},
		{Method: http.MethodGet, Path: "/api/v1/runs", Role: RoleViewer},
		{Method: http.MethodGet, Path: "/api/v1/generation", Role: RoleViewer},
		{Method: http.MethodGet, Prefix: "/api/v1/generation.", Role: RoleViewer},
		{Method: http.MethodGet, Prefix: "/api/v1/snapshots/", Role: RoleViewer},
		{Prefix: "/api/", Role: RoleAdmin},
	}
}

// Required returns the role a request needs. ok is false for public paths
// and for requests no rule covers.
func (p Policy) Required(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	if _, public := p.public[r.URL.Path]; public {
		return "", false
	}
	for _, rule := range p.rules {
		if rule.matches(r) {
			return rule.Role, true
		}
	}
	return "", false
}
