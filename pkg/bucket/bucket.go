// Package bucket assigns identities to deterministic 1..100 buckets.
//
// The mapping is part of the public contract: existing users already occupy
// buckets, so neither the hash nor the modulo step may ever change.
package bucket

// FNV-1a 32-bit parameters.
const (
	offset32 = 2166136261
	prime32  = 16777619
)

// Hash returns the FNV-1a 32-bit hash of the UTF-8 bytes of s.
func Hash(s string) uint32 {
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}

// Bucket maps an (identity, flagKey) pair to a bucket in 1..100. The flag key
// is folded into the hash so one user lands in unrelated buckets across
// flags and never rides a single lucky number through every experiment.
func Bucket(identity, flagKey string) int {
	return int(Hash(identity+":"+flagKey)%100) + 1
}

// InRollout reports whether the identity falls inside a percentage rollout.
// pct 100 admits everyone without hashing; pct 0 admits no one.
func InRollout(identity, flagKey string, pct int) bool {
	if pct == 100 {
		return true
	}
	return Bucket(identity, flagKey) <= pct
}

// ChooseVariant walks weights in declared order accumulating them and
// returns the index of the first whose cumulative weight reaches the
// identity's bucket. When the weights sum to less than the bucket it returns
// -1 and the caller falls back to the default result; the shortfall is the
// caller's to fix, not ours to paper over.
func ChooseVariant(identity, flagKey string, weights []int) int {
	b := Bucket(identity, flagKey)
	cumulative := 0
	for i, w := range weights {
		cumulative += w
		if cumulative >= b {
			return i
		}
	}
	return -1
}
