package finalize

import (
	"encoding/binary"
	"fmt"
)

// MaxCombiner keeps the larger of two little-endian uint64 payloads.
func MaxCombiner(existing, incoming []byte) []byte {
	if decodeUint64(incoming) > decodeUint64(existing) {
		return incoming
	}
	return existing
}

// MinCombiner keeps the smaller of two little-endian uint64 payloads.
func MinCombiner(existing, incoming []byte) []byte {
	if decodeUint64(incoming) < decodeUint64(existing) {
		return incoming
	}
	return existing
}

// SumCombiner adds two little-endian uint64 payloads.
func SumCombiner(existing, incoming []byte) []byte {
	return encodeUint64(decodeUint64(existing) + decodeUint64(incoming))
}

// ByName resolves a config-file combiner name ("overwrite", "max", "min",
// "sum") to a Combiner, per SPEC_FULL.md §6.
func ByName(name string) (Combiner, error) {
	switch name {
	case "", "overwrite":
		return OverwriteCombiner, nil
	case "max":
		return MaxCombiner, nil
	case "min":
		return MinCombiner, nil
	case "sum":
		return SumCombiner, nil
	default:
		return nil, fmt.Errorf("finalize: unknown combiner %q", name)
	}
}

func decodeUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}
