package rbac

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/pennant-io/pennant/pkg/auth"
)

// Objects the management API exposes. Definitions is the combined
// read-only view; flags and segments are the mutable collections; sync
// covers the cross-environment copy operations.
const (
	ObjectDefinitions = "definitions"
	ObjectFlags       = "flags"
	ObjectSegments    = "segments"
	ObjectSync        = "sync"
)

// Actions on management objects.
const (
	ActionRead  = "read"
	ActionWrite = "write"
)

// Policy decides what a management role may do. Backed by a Casbin
// enforcer loaded with the built-in role table.
type Policy struct {
	enforcer *casbin.Enforcer
}

// NewPolicy builds the enforcer and loads the default role policies:
// viewers read everything, editors also write flags and segments, and
// admins additionally run sync.
func NewPolicy() (*Policy, error) {
	modelText := `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && regexMatch(r.act, p.act)
`

	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create enforcer: %w", err)
	}

	p := &Policy{enforcer: enforcer}
	if err := p.loadDefaultPolicies(); err != nil {
		return nil, fmt.Errorf("failed to load default policies: %w", err)
	}
	return p, nil
}

func (p *Policy) loadDefaultPolicies() error {
	policies := [][]string{
		{"role:viewer", ObjectDefinitions, ActionRead},
		{"role:viewer", ObjectFlags, ActionRead},
		{"role:viewer", ObjectSegments, ActionRead},

		{"role:editor", ObjectFlags, "read|write"},
		{"role:editor", ObjectSegments, "read|write"},

		{"role:admin", ObjectSync, "read|write"},
	}

	for _, policy := range policies {
		if _, err := p.enforcer.AddPolicy(policy); err != nil {
			return fmt.Errorf("failed to add policy %v: %w", policy, err)
		}
	}

	// Each role inherits everything the next weaker role can do.
	inherits := [][]string{
		{"role:editor", "role:viewer"},
		{"role:admin", "role:editor"},
	}
	for _, link := range inherits {
		if _, err := p.enforcer.AddGroupingPolicy(link[0], link[1]); err != nil {
			return fmt.Errorf("failed to add role inheritance %v: %w", link, err)
		}
	}

	return nil
}

// Authorize checks whether role may perform action on object.
func (p *Policy) Authorize(role auth.Role, object, action string) (bool, error) {
	allowed, err := p.enforcer.Enforce("role:"+string(role), object, action)
	if err != nil {
		return false, fmt.Errorf("enforcement error: %w", err)
	}
	return allowed, nil
}

// Policies returns the loaded policy table, mainly for diagnostics.
func (p *Policy) Policies() [][]string {
	return p.enforcer.GetPolicy()
}
