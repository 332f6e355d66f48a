// Package hashutil provides a stable FNV-1a 64 hasher used wherever catalog
// seeds must not depend on host std-library hash randomization.
package hashutil

const (
	offset64 uint64 = 14695981039346656037
	prime64  uint64 = 1099511628211
)

// FNV1a64 returns the FNV-1a 64-bit hash of data.
func FNV1a64(data []byte) uint64 {
	h := offset64
	for _, b := range data {
		h ^= uint64(b)
		h *= prime64
	}
	return h
}

// FNV1a64String is a convenience wrapper avoiding a []byte allocation for
// the common case of hashing a string.
func FNV1a64String(s string) uint64 {
	h := offset64
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}

// SeedFor derives a deterministic per-variant seed from a base catalog id
// and a variant offset, used by the espionage generators (§4.5) to expand
// templates without a shared mutable counter.
func SeedFor(baseID string, variantOffset uint64) uint64 {
	return FNV1a64String(baseID) ^ variantOffset
}

// TileSeed returns a stable per-tile hash of (seed, x, y), used by world
// generation (§4.8) wherever a local decision must be reproducible without
// consuming from the shared RNG stream.
func TileSeed(seed int64, x, y int32) uint64 {
	h := offset64
	h = mix(h, uint64(seed))
	h = mix(h, uint64(uint32(x)))
	h = mix(h, uint64(uint32(y)))
	return h
}

func mix(h, v uint64) uint64 {
	for i := 0; i < 8; i++ {
		h ^= (v >> uint(8*i)) & 0xFF
		h *= prime64
	}
	return h
}
