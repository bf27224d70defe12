package store

import (
	"fmt"

	"github.com/pennant-io/pennant/pkg/flags"
)

// The document mutations below are pure: they take a document, return the
// replacement, and never touch storage. Every backend funnels them through
// Mutate, so referential integrity is enforced once regardless of backend.
// On error the input document is returned unchanged.

// PutFlag validates def against the document and upserts it wholesale.
func PutFlag(doc flags.Document, def flags.Definition) (flags.Document, error) {
	def = flags.Normalize(def)
	if err := flags.Validate(def, doc.Segments); err != nil {
		return doc, err
	}
	out := doc.Clone()
	out.Flags[def.ID] = def
	return out, nil
}

// UpdateFlag merges patch into an existing flag and re-validates the result.
func UpdateFlag(doc flags.Document, id string, patch flags.Patch) (flags.Document, error) {
	if patch.IsZero() {
		return doc, fmt.Errorf("%w: empty patch for flag %q", flags.ErrInvalid, id)
	}
	current, ok := doc.Flags[id]
	if !ok {
		return doc, fmt.Errorf("%w: flag %q", ErrNotFound, id)
	}
	merged := flags.Normalize(patch.Apply(current))
	if err := flags.Validate(merged, doc.Segments); err != nil {
		return doc, err
	}
	out := doc.Clone()
	out.Flags[id] = merged
	return out, nil
}

// DeleteFlag removes a single flag.
func DeleteFlag(doc flags.Document, id string) (flags.Document, error) {
	if _, ok := doc.Flags[id]; !ok {
		return doc, fmt.Errorf("%w: flag %q", ErrNotFound, id)
	}
	out := doc.Clone()
	delete(out.Flags, id)
	return out, nil
}

// PutSegment upserts a segment expression. Segments stand alone, so there
// is nothing referential to check beyond the id and expression shape.
func PutSegment(doc flags.Document, id, expression string) (flags.Document, error) {
	if err := flags.ValidateSegment(id, expression); err != nil {
		return doc, err
	}
	out := doc.Clone()
	out.Segments[id] = expression
	return out, nil
}

// DeleteSegment removes a segment and strips the reference from every flag
// in the same document, keeping the no-dangling-references invariant in a
// single write.
func DeleteSegment(doc flags.Document, id string) (flags.Document, error) {
	if _, ok := doc.Segments[id]; !ok {
		return doc, fmt.Errorf("%w: segment %q", ErrNotFound, id)
	}
	out := doc.Clone()
	delete(out.Segments, id)
	for flagID, def := range out.Flags {
		kept := def.Segments[:0]
		for _, ref := range def.Segments {
			if ref != id {
				kept = append(kept, ref)
			}
		}
		if len(kept) == 0 {
			def.Segments = nil
		} else {
			def.Segments = kept
		}
		out.Flags[flagID] = def
	}
	return out, nil
}

// MergeEnv copies every flag and segment from source into target. Copied
// flags land disabled unless overwrite is set; target-only keys survive.
func MergeEnv(target, source flags.Document, overwrite bool) flags.Document {
	out := target.Clone()
	for id, def := range source.Flags {
		copied := def.Clone()
		if !overwrite {
			copied.Enabled = false
		}
		out.Flags[id] = copied
	}
	for id, expression := range source.Segments {
		out.Segments[id] = expression
	}
	return out
}

// MergeFlag copies one flag from source into target along with the segments
// it references, so the target document stays referentially whole. Unrelated
// source segments are left behind.
func MergeFlag(target, source flags.Document, id string, overwrite bool) (flags.Document, error) {
	def, ok := source.Flags[id]
	if !ok {
		return target, fmt.Errorf("%w: flag %q", ErrNotFound, id)
	}
	out := target.Clone()
	copied := def.Clone()
	if !overwrite {
		copied.Enabled = false
	}
	out.Flags[id] = copied
	for _, segID := range def.Segments {
		if expression, ok := source.Segments[segID]; ok {
			out.Segments[segID] = expression
		}
	}
	return out, nil
}
