package cmbtable

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/spaolacci/murmur3"
)

// Hasher selects the function used to hash keys into table slots.
// Both hashers are order-sensitive: keys holding the same values in a
// different order hash differently.
type Hasher uint8

const (
	// HashCombine folds a per-element 64-bit mix into a running seed, left to right.
	HashCombine Hasher = iota
	// HashMurmur3 hashes the little-endian byte encoding of the key with murmur3 x64.
	HashMurmur3
)

const goldenRatio64 = 0x9e3779b97f4a7c15

// ParseHasher maps a hasher name ("combine", "murmur3") to a Hasher.
// The empty string selects HashCombine.
func ParseHasher(name string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "combine":
		return HashCombine, nil
	case "murmur3":
		return HashMurmur3, nil
	}
	return 0, fmt.Errorf("%w: unknown hasher %q", ErrInvalidArgument, name)
}

func (h Hasher) String() string {
	switch h {
	case HashCombine:
		return "combine"
	case HashMurmur3:
		return "murmur3"
	}
	return fmt.Sprintf("Hasher(%d)", uint8(h))
}

// sum hashes key. buf must hold at least 8*len(key) bytes for HashMurmur3.
func (h Hasher) sum(key []int64, buf []byte) uint64 {
	if h == HashMurmur3 {
		for i, v := range key {
			binary.LittleEndian.PutUint64(buf[i*8:], uint64(v))
		}
		return murmur3.Sum64(buf[:len(key)*8])
	}
	return combineHash(key)
}

func combineHash(key []int64) uint64 {
	var seed uint64
	for _, v := range key {
		seed ^= mix64(uint64(v)) + goldenRatio64 + (seed << 6) + (seed >> 2)
	}
	return seed
}

// mix64 is the splitmix64 finalizer.
func mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
