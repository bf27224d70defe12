package flags

import (
	"encoding/json"
	"regexp"
	"time"
)

// DefaultApp and DefaultEnv name the tenant used when a caller supplies no
// tenant headers.
const (
	DefaultApp = "default"
	DefaultEnv = "production"
)

var keyPartPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// Tenant identifies one (app, environment) pair. Each tenant owns exactly one
// document of flags and segments; nothing is shared across tenants.
type Tenant struct {
	App string `json:"app"`
	Env string `json:"env"`
}

// DefaultTenant returns the tenant used when no headers are supplied.
func DefaultTenant() Tenant {
	return Tenant{App: DefaultApp, Env: DefaultEnv}
}

// NewTenant builds a tenant from raw header values. Empty or malformed parts
// fall back to the defaults; tenant resolution never fails.
func NewTenant(app, env string) Tenant {
	if !ValidKeyPart(app) {
		app = DefaultApp
	}
	if !ValidKeyPart(env) {
		env = DefaultEnv
	}
	return Tenant{App: app, Env: env}
}

// ValidKeyPart reports whether s is usable as an app or environment name.
// The storage key is colon-delimited, so the character set is restricted.
func ValidKeyPart(s string) bool {
	return keyPartPattern.MatchString(s)
}

// Key returns the versioned storage key for the tenant document.
func (t Tenant) Key() string {
	return "v1:" + t.App + ":" + t.Env
}

// WithEnv returns a tenant for the same app in another environment.
func (t Tenant) WithEnv(env string) Tenant {
	return Tenant{App: t.App, Env: env}
}

func (t Tenant) String() string {
	return t.App + "/" + t.Env
}

// Type discriminates the three flag kinds.
type Type string

const (
	TypeBoolean Type = "boolean"
	TypePayload Type = "payload"
	TypeVariant Type = "variant"
)

// Valid reports whether t is one of the known flag types.
func (t Type) Valid() bool {
	switch t {
	case TypeBoolean, TypePayload, TypeVariant:
		return true
	}
	return false
}

// Definition is a single flag definition within a tenant document.
//
// Payload distinguishes "absent" (nil) from an explicit JSON null
// (json.RawMessage("null")); payload flags require the field to be present
// but accept null as its value.
type Definition struct {
	ID          string          `json:"id"`
	Type        Type            `json:"type"`
	Enabled     bool            `json:"enabled"`
	Rules       []string        `json:"rules,omitempty"`
	Segments    []string        `json:"segments,omitempty"`
	Rollout     *int            `json:"rollout,omitempty"`
	Rollouts    []RolloutStep   `json:"rollouts,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Variations  []Variation     `json:"variations,omitempty"`
	Label       string          `json:"label,omitempty"`
	Description string          `json:"description,omitempty"`
	IsTrackable bool            `json:"isTrackable,omitempty"`
}

// EffectiveRollout returns the base rollout percentage, defaulting to 100
// when the field was never set.
func (d Definition) EffectiveRollout() int {
	if d.Rollout == nil {
		return 100
	}
	return *d.Rollout
}

// HasPayload reports whether the payload field is present, counting an
// explicit null as present.
func (d Definition) HasPayload() bool {
	return len(d.Payload) > 0
}

// Clone returns a deep copy of the definition.
func (d Definition) Clone() Definition {
	out := d
	if d.Rules != nil {
		out.Rules = append([]string(nil), d.Rules...)
	}
	if d.Segments != nil {
		out.Segments = append([]string(nil), d.Segments...)
	}
	if d.Rollout != nil {
		v := *d.Rollout
		out.Rollout = &v
	}
	if d.Rollouts != nil {
		out.Rollouts = make([]RolloutStep, len(d.Rollouts))
		for i, s := range d.Rollouts {
			out.Rollouts[i] = s.Clone()
		}
	}
	if d.Payload != nil {
		out.Payload = append(json.RawMessage(nil), d.Payload...)
	}
	if d.Variations != nil {
		out.Variations = make([]Variation, len(d.Variations))
		for i, v := range d.Variations {
			out.Variations[i] = v.Clone()
		}
	}
	return out
}

// RolloutStep is one scheduled clause of a progressive release. At least one
// of Percentage or Segment must be set; when both are set both must pass.
type RolloutStep struct {
	Start      string `json:"start"`
	Percentage *int   `json:"percentage,omitempty"`
	Segment    string `json:"segment,omitempty"`
}

// Clone returns a deep copy of the step.
func (s RolloutStep) Clone() RolloutStep {
	out := s
	if s.Percentage != nil {
		v := *s.Percentage
		out.Percentage = &v
	}
	return out
}

// Variation is one weighted arm of a variant flag.
type Variation struct {
	ID      string          `json:"id"`
	Weight  int             `json:"weight"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Label   string          `json:"label,omitempty"`
}

// Clone returns a deep copy of the variation.
func (v Variation) Clone() Variation {
	out := v
	if v.Payload != nil {
		out.Payload = append(json.RawMessage(nil), v.Payload...)
	}
	return out
}

// Document is the tenant document: every flag and every segment for one
// (app, env), plus write metadata. It is the sole source of truth for
// evaluation within its tenant.
type Document struct {
	Flags     map[string]Definition `json:"flags"`
	Segments  map[string]string     `json:"segments"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

// NewDocument returns an empty document with initialised maps.
func NewDocument() Document {
	return Document{
		Flags:    make(map[string]Definition),
		Segments: make(map[string]string),
	}
}

// Clone returns a deep copy of the document.
func (doc Document) Clone() Document {
	out := Document{
		Flags:     make(map[string]Definition, len(doc.Flags)),
		Segments:  make(map[string]string, len(doc.Segments)),
		UpdatedAt: doc.UpdatedAt,
	}
	for id, def := range doc.Flags {
		out.Flags[id] = def.Clone()
	}
	for id, expr := range doc.Segments {
		out.Segments[id] = expr
	}
	return out
}
