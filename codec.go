package subsetfa

import (
	"database/sql/driver"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// EncodeVertexSet canonicalizes a set of NFA vertex IDs into the codec's
// wire form: an ASCII JSON array of ascending, deduplicated integers, no
// whitespace. Two vertex sets are the same DFA state iff their encodings
// are byte-identical; this function is the host-side half of that
// contract, adapted from the sort-then-materialize shape of the teacher's
// StateSet.GetArray / FrozenIntSet.GetArray.
//
// Negative IDs are rejected by the loader before they ever reach here;
// EncodeVertexSet itself only sorts and dedupes, per §4.1.
func EncodeVertexSet(vertices []int64) string {
	sorted := sortedUniqueVertices(vertices)
	return encodeSorted(sorted)
}

// sortedUniqueVertices returns vertices sorted ascending with adjacent
// duplicates removed. The teacher's StateSet keeps membership as a
// map[int]int and sorts on GetArray(); the equivalent here is a plain
// sort over a copy, so the caller's slice is left untouched.
func sortedUniqueVertices(vertices []int64) []int64 {
	if len(vertices) == 0 {
		return nil
	}
	out := make([]int64, len(vertices))
	copy(out, vertices)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	upto := 0
	for i, v := range out {
		if i == 0 || v != out[upto-1] {
			out[upto] = v
			upto++
		}
	}
	return out[:upto]
}

func encodeSorted(sorted []int64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(v, 10))
	}
	b.WriteByte(']')
	return b.String()
}

// DecodeVertexSet is the inverse of EncodeVertexSet: it parses the
// canonical JSON-array form back into a sorted, deduplicated []int64.
// codec.decode(codec.encode(S)) == sorted(unique(S)) is the round-trip
// law tested in codec_test.go.
func DecodeVertexSet(key string) ([]int64, error) {
	key = strings.TrimSpace(key)
	if len(key) < 2 || key[0] != '[' || key[len(key)-1] != ']' {
		return nil, fmt.Errorf("subsetfa: malformed vertex-set key %q", key)
	}
	body := key[1 : len(key)-1]
	if body == "" {
		return nil, nil
	}
	parts := strings.Split(body, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("subsetfa: malformed vertex-set key %q: %w", key, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// VertexSetAgg is the codec's other half: a SQLite user-defined aggregate,
// registered as vertex_set_encode(vertex_id) through the vertexSetAggSQL
// wrapper in store.go, so that an aggregate query inside the store can
// produce a canonical DFA-state key without the query planner ever leaving
// SQL, per §4.1. A fresh value is constructed per group, Step is called
// once per non-NULL input row, and Done finalizes.
//
// An aggregate over zero input rows still finalizes, to "[]" (the dead
// state's key); computeTargets relies on this for a work item whose join
// chain matches no rows.
type VertexSetAgg struct {
	seen map[int64]struct{}
}

// Step accumulates one candidate vertex ID. A nil argument is ignored, so
// a VertexSetAgg that only ever saw nil steps finalizes to "[]".
func (a *VertexSetAgg) Step(v *int64) {
	if v == nil {
		return
	}
	if a.seen == nil {
		a.seen = make(map[int64]struct{})
	}
	a.seen[*v] = struct{}{}
}

// Done implements the aggregate finalizer: sort, dedupe (already
// deduplicated by the set), encode.
func (a *VertexSetAgg) Done() (driver.Value, error) {
	vertices := make([]int64, 0, len(a.seen))
	for v := range a.seen {
		vertices = append(vertices, v)
	}
	return EncodeVertexSet(vertices), nil
}
