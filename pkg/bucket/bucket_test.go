package bucket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// These values are pinned: any change to the hash or the bucket mapping
// reshuffles live users between experiment arms.
func TestHashPinnedValues(t *testing.T) {
	assert.Equal(t, uint32(3459576216), Hash("user-123:test-flag"))
}

func TestBucketPinnedValues(t *testing.T) {
	assert.Equal(t, 95, Bucket("user-123", "new-dashboard"))
	assert.Equal(t, 34, Bucket("user-456", "new-dashboard"))
	assert.Equal(t, 17, Bucket("user-123", "test-flag"))
}

func TestBucketRange(t *testing.T) {
	identities := []string{"", "a", "user-123", "anon-4f2a", "Ümläut-user"}
	for _, id := range identities {
		b := Bucket(id, "new-dashboard")
		assert.GreaterOrEqual(t, b, 1)
		assert.LessOrEqual(t, b, 100)
	}
}

func TestBucketIsIndependentAcrossFlags(t *testing.T) {
	// The same identity must not occupy the same bucket on unrelated flags,
	// and swapping identity with flag key lands elsewhere too.
	assert.NotEqual(t, Bucket("user-123", "button-color"), Bucket("user-123", "checkout-flow"))
	assert.NotEqual(t, Bucket("user-123", "button-color"), Bucket("button-color", "user-123"))
}

func TestInRollout(t *testing.T) {
	// user-123 buckets at 95 and user-456 at 34 on new-dashboard.
	assert.False(t, InRollout("user-123", "new-dashboard", 50))
	assert.True(t, InRollout("user-456", "new-dashboard", 50))

	// Exact boundary: bucket == pct is inside.
	assert.Equal(t, 95, Bucket("user-123", "new-dashboard"))
	assert.True(t, InRollout("user-123", "new-dashboard", 95))
	assert.False(t, InRollout("user-123", "new-dashboard", 94))
}

func TestInRolloutEdges(t *testing.T) {
	// 100 admits everyone, including bucket 100 itself; 0 admits no one,
	// including bucket 1.
	assert.Equal(t, 100, Bucket("user-22", "button-color"))
	assert.True(t, InRollout("user-22", "button-color", 100))

	assert.Equal(t, 1, Bucket("user-21", "button-color"))
	assert.False(t, InRollout("user-21", "button-color", 0))
	assert.True(t, InRollout("user-21", "button-color", 1))
}

func TestChooseVariant(t *testing.T) {
	weights := []int{50, 50}

	// alice buckets at 26 on button-color, bob at 65.
	assert.Equal(t, 26, Bucket("alice", "button-color"))
	assert.Equal(t, 0, ChooseVariant("alice", "button-color", weights))
	assert.Equal(t, 65, Bucket("bob", "button-color"))
	assert.Equal(t, 1, ChooseVariant("bob", "button-color", weights))

	// user-20 buckets at exactly 50: cumulative 50 >= 50 selects the first.
	assert.Equal(t, 50, Bucket("user-20", "button-color"))
	assert.Equal(t, 0, ChooseVariant("user-20", "button-color", weights))

	// bucket 100 needs the full cumulative weight to be covered.
	assert.Equal(t, 1, ChooseVariant("user-22", "button-color", weights))
}

func TestChooseVariantUnderflow(t *testing.T) {
	// carol buckets at 91; weights summing to 20 leave her uncovered.
	assert.Equal(t, 91, Bucket("carol", "button-color"))
	assert.Equal(t, -1, ChooseVariant("carol", "button-color", []int{10, 10}))

	// user-21 buckets at 1 and is always covered by the first arm.
	assert.Equal(t, 0, ChooseVariant("user-21", "button-color", []int{10, 10}))
}

func TestChooseVariantStability(t *testing.T) {
	// Changing the weights of later variations must not move an identity
	// whose cumulative prefix is unchanged.
	before := ChooseVariant("alice", "button-color", []int{50, 50})
	after := ChooseVariant("alice", "button-color", []int{50, 10})
	assert.Equal(t, before, after)
	assert.Equal(t, 0, after)
}
