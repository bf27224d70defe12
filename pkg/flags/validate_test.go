package flags

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestNormalizeFillsDefaults(t *testing.T) {
	def := Normalize(Definition{ID: "new-dashboard", Type: TypeBoolean})
	require.NotNil(t, def.Rollout)
	assert.Equal(t, 100, *def.Rollout)

	kept := Normalize(Definition{ID: "new-dashboard", Type: TypeBoolean, Rollout: intPtr(30)})
	assert.Equal(t, 30, *kept.Rollout)
}

func TestNormalizeDedupesSegments(t *testing.T) {
	def := Normalize(Definition{
		ID:       "new-dashboard",
		Type:     TypeBoolean,
		Segments: []string{"beta", "internal", "beta"},
	})
	assert.Equal(t, []string{"beta", "internal"}, def.Segments)
}

func TestValidateSchema(t *testing.T) {
	segments := map[string]string{"beta-users": "user.beta == true"}

	tests := []struct {
		name    string
		def     Definition
		wantErr error
	}{
		{
			name: "boolean ok",
			def:  Definition{ID: "new-dashboard", Type: TypeBoolean},
		},
		{
			name:    "empty id",
			def:     Definition{Type: TypeBoolean},
			wantErr: ErrInvalid,
		},
		{
			name:    "id with colon",
			def:     Definition{ID: "bad:key", Type: TypeBoolean},
			wantErr: ErrInvalid,
		},
		{
			name:    "unknown type",
			def:     Definition{ID: "x", Type: Type("toggle")},
			wantErr: ErrInvalid,
		},
		{
			name:    "unknown segment reference",
			def:     Definition{ID: "x", Type: TypeBoolean, Segments: []string{"missing"}},
			wantErr: ErrUnknownSegment,
		},
		{
			name: "known segment reference",
			def:  Definition{ID: "x", Type: TypeBoolean, Segments: []string{"beta-users"}},
		},
		{
			name:    "rollout out of range",
			def:     Definition{ID: "x", Type: TypeBoolean, Rollout: intPtr(101)},
			wantErr: ErrInvalid,
		},
		{
			name:    "empty rule",
			def:     Definition{ID: "x", Type: TypeBoolean, Rules: []string{""}},
			wantErr: ErrInvalid,
		},
		{
			name:    "oversized rule",
			def:     Definition{ID: "x", Type: TypeBoolean, Rules: []string{strings.Repeat("a", MaxExpressionLen+1)}},
			wantErr: ErrInvalid,
		},
		{
			name:    "boolean with payload",
			def:     Definition{ID: "x", Type: TypeBoolean, Payload: json.RawMessage(`true`)},
			wantErr: ErrInvalid,
		},
		{
			name: "boolean with variations",
			def: Definition{ID: "x", Type: TypeBoolean, Variations: []Variation{
				{ID: "a", Weight: 50}, {ID: "b", Weight: 50},
			}},
			wantErr: ErrInvalid,
		},
		{
			name:    "payload flag without payload",
			def:     Definition{ID: "x", Type: TypePayload},
			wantErr: ErrInvalid,
		},
		{
			name: "payload flag with explicit null",
			def:  Definition{ID: "x", Type: TypePayload, Payload: json.RawMessage(`null`)},
		},
		{
			name:    "variant with one variation",
			def:     Definition{ID: "x", Type: TypeVariant, Variations: []Variation{{ID: "only", Weight: 100}}},
			wantErr: ErrInvalid,
		},
		{
			name: "variant ok",
			def: Definition{ID: "x", Type: TypeVariant, Variations: []Variation{
				{ID: "control", Weight: 50}, {ID: "treatment", Weight: 50},
			}},
		},
		{
			name: "variant weight out of range",
			def: Definition{ID: "x", Type: TypeVariant, Variations: []Variation{
				{ID: "control", Weight: 150}, {ID: "treatment", Weight: 50},
			}},
			wantErr: ErrInvalid,
		},
		{
			name: "variant with top-level payload",
			def: Definition{ID: "x", Type: TypeVariant, Payload: json.RawMessage(`{}`), Variations: []Variation{
				{ID: "control", Weight: 50}, {ID: "treatment", Weight: 50},
			}},
			wantErr: ErrInvalid,
		},
		{
			name:    "step without percentage or segment",
			def:     Definition{ID: "x", Type: TypeBoolean, Rollouts: []RolloutStep{{Start: "2025-01-01T00:00:00Z"}}},
			wantErr: ErrInvalid,
		},
		{
			name:    "step without start",
			def:     Definition{ID: "x", Type: TypeBoolean, Rollouts: []RolloutStep{{Percentage: intPtr(10)}}},
			wantErr: ErrInvalid,
		},
		{
			name: "step referencing a segment that does not exist yet",
			// Step segments are resolved at evaluation time, not write time.
			def: Definition{ID: "x", Type: TypeBoolean, Rollouts: []RolloutStep{
				{Start: "2025-01-01T00:00:00Z", Segment: "not-there-yet"},
			}},
		},
		{
			name: "step with both percentage and segment",
			def: Definition{ID: "x", Type: TypeBoolean, Rollouts: []RolloutStep{
				{Start: "2025-01-01T00:00:00Z", Percentage: intPtr(10), Segment: "beta-users"},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.def, segments)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUnknownSegmentWrapsInvalid(t *testing.T) {
	err := Validate(Definition{ID: "x", Type: TypeBoolean, Segments: []string{"ghost"}}, nil)
	assert.ErrorIs(t, err, ErrUnknownSegment)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidateSegment(t *testing.T) {
	assert.NoError(t, ValidateSegment("beta-users", "user.beta == true"))
	assert.ErrorIs(t, ValidateSegment("", "true"), ErrInvalid)
	assert.ErrorIs(t, ValidateSegment("bad:id", "true"), ErrInvalid)
	assert.ErrorIs(t, ValidateSegment("beta-users", ""), ErrInvalid)
	assert.ErrorIs(t, ValidateSegment("beta-users", strings.Repeat("x", MaxExpressionLen+1)), ErrInvalid)
}
