package subsetfa

// Golden ratio bit mixers, as used by the teacher's bitmixer.go.
const (
	phiC32 = uint32(0x9e3779b9)
	phiC64 = uint64(0x9e3779b97f4a7c15)
)

// mix32 is the 32-bit finalization step of MurmurHash3, used here to derive
// the states.hash_hint secondary index column from a vertex ID. It has no
// bearing on interning correctness: vertex_str remains the sole canonical
// key, and state lookups compare vertex_str only; no query reads hash_hint.
func mix32(v int64) int32 {
	k := uint32(v)
	k = (k ^ (k >> 16)) * 0x85ebca6b
	k = (k ^ (k >> 13)) * 0xc2b2ae35
	return int32(k ^ (k >> 16))
}

// mixVertexSet folds a sorted, deduplicated vertex list into a single
// int64 hash hint: a length-seeded running sum of mix32 of each member,
// matching stateset.go's own additive Hash() shape. Addition is
// commutative, so the result does not depend on member order.
func mixVertexSet(sorted []int64) int64 {
	var h uint64 = uint64(len(sorted)) * phiC64
	for _, v := range sorted {
		h += uint64(uint32(mix32(v)))
	}
	return int64(h)
}
