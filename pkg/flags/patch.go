package flags

import "encoding/json"

// Patch is a partial update to a flag definition. Nil fields are left
// untouched; a non-nil field replaces the previous value wholesale. Payload
// follows the same present/absent convention as Definition.Payload, so
// {"payload": null} sets an explicit null while omitting the key changes
// nothing.
type Patch struct {
	Type        *Type            `json:"type,omitempty"`
	Enabled     *bool            `json:"enabled,omitempty"`
	Rules       *[]string        `json:"rules,omitempty"`
	Segments    *[]string        `json:"segments,omitempty"`
	Rollout     *int             `json:"rollout,omitempty"`
	Rollouts    *[]RolloutStep   `json:"rollouts,omitempty"`
	Payload     json.RawMessage  `json:"payload,omitempty"`
	Variations  *[]Variation     `json:"variations,omitempty"`
	Label       *string          `json:"label,omitempty"`
	Description *string          `json:"description,omitempty"`
	IsTrackable *bool            `json:"isTrackable,omitempty"`
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p.Type == nil &&
		p.Enabled == nil &&
		p.Rules == nil &&
		p.Segments == nil &&
		p.Rollout == nil &&
		p.Rollouts == nil &&
		p.Payload == nil &&
		p.Variations == nil &&
		p.Label == nil &&
		p.Description == nil &&
		p.IsTrackable == nil
}

// Apply merges the patch into a copy of d and returns the result. The id is
// never patchable. Callers re-validate the merged definition.
func (p Patch) Apply(d Definition) Definition {
	out := d.Clone()
	if p.Type != nil {
		out.Type = *p.Type
	}
	if p.Enabled != nil {
		out.Enabled = *p.Enabled
	}
	if p.Rules != nil {
		out.Rules = append([]string(nil), (*p.Rules)...)
	}
	if p.Segments != nil {
		out.Segments = append([]string(nil), (*p.Segments)...)
	}
	if p.Rollout != nil {
		v := *p.Rollout
		out.Rollout = &v
	}
	if p.Rollouts != nil {
		steps := make([]RolloutStep, len(*p.Rollouts))
		for i, s := range *p.Rollouts {
			steps[i] = s.Clone()
		}
		out.Rollouts = steps
	}
	if p.Payload != nil {
		out.Payload = append(json.RawMessage(nil), p.Payload...)
	}
	if p.Variations != nil {
		vars := make([]Variation, len(*p.Variations))
		for i, v := range *p.Variations {
			vars[i] = v.Clone()
		}
		out.Variations = vars
	}
	if p.Label != nil {
		out.Label = *p.Label
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.IsTrackable != nil {
		out.IsTrackable = *p.IsTrackable
	}
	return out
}
