package flags

import (
	"errors"
	"fmt"
	"regexp"
)

// Validation failures wrap one of these sentinels so callers can map them to
// transport error codes without string matching.
var (
	// ErrInvalid marks any schema violation on a definition write.
	ErrInvalid = errors.New("invalid definition")
	// ErrUnknownSegment marks a flag write referencing a segment that does
	// not exist in the tenant document. It wraps ErrInvalid.
	ErrUnknownSegment = fmt.Errorf("%w: unknown segment", ErrInvalid)
)

// MaxExpressionLen bounds rule and segment expression sources at write time.
const MaxExpressionLen = 4096

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidID reports whether s is usable as a flag, segment, or variation id.
func ValidID(s string) bool {
	return idPattern.MatchString(s)
}

// Normalize fills defaults ahead of validation and persistence: the base
// rollout becomes an explicit 100 and duplicate segment references collapse,
// preserving first-seen order.
func Normalize(d Definition) Definition {
	out := d.Clone()
	if out.Rollout == nil {
		v := 100
		out.Rollout = &v
	}
	if len(out.Segments) > 1 {
		seen := make(map[string]struct{}, len(out.Segments))
		deduped := out.Segments[:0]
		for _, id := range out.Segments {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			deduped = append(deduped, id)
		}
		out.Segments = deduped
	}
	return out
}

// Validate checks a definition against the schema and the referential
// invariants. segments is the tenant segment map the definition will live
// next to; every id in d.Segments must exist there.
//
// Rollout step segments are deliberately not checked here: a step whose
// segment is missing fails at evaluation time instead of blocking the write.
func Validate(d Definition, segments map[string]string) error {
	if !ValidID(d.ID) {
		return fmt.Errorf("%w: flag id %q", ErrInvalid, d.ID)
	}
	if !d.Type.Valid() {
		return fmt.Errorf("%w: flag %q has unknown type %q", ErrInvalid, d.ID, d.Type)
	}
	for i, rule := range d.Rules {
		if rule == "" {
			return fmt.Errorf("%w: flag %q rule %d is empty", ErrInvalid, d.ID, i)
		}
		if len(rule) > MaxExpressionLen {
			return fmt.Errorf("%w: flag %q rule %d exceeds %d bytes", ErrInvalid, d.ID, i, MaxExpressionLen)
		}
	}
	for _, id := range d.Segments {
		if _, ok := segments[id]; !ok {
			return fmt.Errorf("%w: flag %q references segment %q", ErrUnknownSegment, d.ID, id)
		}
	}
	if d.Rollout != nil && (*d.Rollout < 0 || *d.Rollout > 100) {
		return fmt.Errorf("%w: flag %q rollout %d out of range", ErrInvalid, d.ID, *d.Rollout)
	}
	for i, step := range d.Rollouts {
		if step.Start == "" {
			return fmt.Errorf("%w: flag %q rollout step %d has no start", ErrInvalid, d.ID, i)
		}
		if step.Percentage == nil && step.Segment == "" {
			return fmt.Errorf("%w: flag %q rollout step %d needs a percentage or a segment", ErrInvalid, d.ID, i)
		}
		if step.Percentage != nil && (*step.Percentage < 0 || *step.Percentage > 100) {
			return fmt.Errorf("%w: flag %q rollout step %d percentage %d out of range", ErrInvalid, d.ID, i, *step.Percentage)
		}
	}

	switch d.Type {
	case TypeBoolean:
		if d.HasPayload() {
			return fmt.Errorf("%w: boolean flag %q carries a payload", ErrInvalid, d.ID)
		}
		if len(d.Variations) > 0 {
			return fmt.Errorf("%w: boolean flag %q carries variations", ErrInvalid, d.ID)
		}
	case TypePayload:
		if !d.HasPayload() {
			return fmt.Errorf("%w: payload flag %q has no payload field", ErrInvalid, d.ID)
		}
		if len(d.Variations) > 0 {
			return fmt.Errorf("%w: payload flag %q carries variations", ErrInvalid, d.ID)
		}
	case TypeVariant:
		if d.HasPayload() {
			return fmt.Errorf("%w: variant flag %q carries a top-level payload", ErrInvalid, d.ID)
		}
		if len(d.Variations) < 2 {
			return fmt.Errorf("%w: variant flag %q needs at least two variations", ErrInvalid, d.ID)
		}
		for i, v := range d.Variations {
			if !ValidID(v.ID) {
				return fmt.Errorf("%w: flag %q variation %d has invalid id %q", ErrInvalid, d.ID, i, v.ID)
			}
			if v.Weight < 0 || v.Weight > 100 {
				return fmt.Errorf("%w: flag %q variation %q weight %d out of range", ErrInvalid, d.ID, v.ID, v.Weight)
			}
		}
	}
	return nil
}

// ValidateSegment checks a segment id and expression ahead of a segment
// upsert. Segments stand alone, so there is nothing referential to verify.
func ValidateSegment(id, expression string) error {
	if !ValidID(id) {
		return fmt.Errorf("%w: segment id %q", ErrInvalid, id)
	}
	if expression == "" {
		return fmt.Errorf("%w: segment %q has an empty expression", ErrInvalid, id)
	}
	if len(expression) > MaxExpressionLen {
		return fmt.Errorf("%w: segment %q expression exceeds %d bytes", ErrInvalid, id, MaxExpressionLen)
	}
	return nil
}
