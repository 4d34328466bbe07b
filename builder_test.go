package subsetfa

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDSN gives each test its own named in-memory SQLite database so
// concurrent t.Run subtests never share a shared-cache instance.
func testDSN(name string) string {
	sanitized := strings.NewReplacer("/", "_", " ", "_").Replace(name)
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", sanitized)
}

func alwaysFalse(int64, int64) (bool, error) { return false, nil }
func notNullable(int64) (bool, error)        { return false, nil }

func Test_NewBuilder_TwoVertexChain(t *testing.T) {
	// Scenario 1, §8: alphabet {1}, vertices {2,3}, edge (2,3),
	// nullable(v) = (v == 2), matches(3,1) = true (else false).
	nullable := func(v int64) (bool, error) { return v == 2, nil }
	matches := func(v, i int64) (bool, error) { return v == 3 && i == 1, nil }

	b, err := NewBuilder(context.Background(), []int64{1}, nullable, matches,
		WithVertices([]int64{2, 3}),
		WithEdges([][2]int64{{2, 3}}),
		WithStorageDSN(testDSN(t.Name())))
	require.NoError(t, err)
	defer b.Close()

	start, err := b.FindOrCreateStateID(context.Background(), []int64{2})
	require.NoError(t, err)

	vertices, err := b.VerticesInState(context.Background(), start)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, vertices)

	resolved, err := b.RunToFixpoint(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, resolved)

	tuples, err := b.TransitionsAsTuples3(context.Background())
	require.NoError(t, err)
	assert.Len(t, tuples, 2)
	for _, tr := range tuples {
		assert.Equal(t, int64(1), tr.Input)
		assert.Equal(t, b.DeadStateID(), tr.Dst)
	}
}

func Test_NewBuilder_EmptyAlphabet(t *testing.T) {
	// Scenario 2, §8.
	b, err := NewBuilder(context.Background(), nil, notNullable, alwaysFalse,
		WithStorageDSN(testDSN(t.Name())))
	require.NoError(t, err)
	defer b.Close()

	resolved, err := b.ComputeSomeTransitions(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, resolved)

	var count int
	it, err := b.StateVerticesIterator(context.Background())
	require.NoError(t, err)
	it(func(id int64, vertices []int64) bool {
		count++
		assert.Equal(t, b.DeadStateID(), id)
		assert.Empty(t, vertices)
		return true
	})
	assert.Equal(t, 1, count)
}

func Test_NewBuilder_AllNullable(t *testing.T) {
	// Scenario 3, §8: vertices {1,2,3}, edges (1,2),(2,3), all nullable,
	// alphabet {7}, no matches.
	nullable := func(int64) (bool, error) { return true, nil }

	b, err := NewBuilder(context.Background(), []int64{7}, nullable, alwaysFalse,
		WithVertices([]int64{1, 2, 3}),
		WithEdges([][2]int64{{1, 2}, {2, 3}}),
		WithStorageDSN(testDSN(t.Name())))
	require.NoError(t, err)
	defer b.Close()

	start, err := b.FindOrCreateStateID(context.Background(), []int64{1})
	require.NoError(t, err)

	vertices, err := b.VerticesInState(context.Background(), start)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, vertices)

	_, err = b.RunToFixpoint(context.Background(), 100)
	require.NoError(t, err)

	tuples, err := b.TransitionsAsTuples3(context.Background())
	require.NoError(t, err)
	for _, tr := range tuples {
		if tr.Src == start {
			assert.Equal(t, b.DeadStateID(), tr.Dst)
		}
	}
}

func Test_NewBuilder_SelfLoop(t *testing.T) {
	// Scenario 4, §8: vertex {1}, edge (1,1), nullable(1)=false,
	// matches(1,7)=true, alphabet {7}.
	nullable := func(int64) (bool, error) { return false, nil }
	matches := func(v, i int64) (bool, error) { return v == 1 && i == 7, nil }

	b, err := NewBuilder(context.Background(), []int64{7}, nullable, matches,
		WithVertices([]int64{1}),
		WithEdges([][2]int64{{1, 1}}),
		WithStorageDSN(testDSN(t.Name())))
	require.NoError(t, err)
	defer b.Close()

	start, err := b.FindOrCreateStateID(context.Background(), []int64{1})
	require.NoError(t, err)

	vertices, err := b.VerticesInState(context.Background(), start)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, vertices)

	_, err = b.RunToFixpoint(context.Background(), 100)
	require.NoError(t, err)

	tuples, err := b.TransitionsAsTuples3(context.Background())
	require.NoError(t, err)

	var found bool
	for _, tr := range tuples {
		if tr.Src == start && tr.Input == 7 {
			assert.Equal(t, start, tr.Dst)
			found = true
		}
	}
	assert.True(t, found, "expected a (start, 7, start) self-loop transition")
}

// canonTuple is a Transition3 relabeled by canonical vertex-set key
// instead of state ID, so two separately-built DFAs with different
// interning orders can be compared structurally.
type canonTuple struct {
	Src   string
	Input int64
	Dst   string
}

func canonicalize(t *testing.T, b *Builder, tuples []Transition3) []canonTuple {
	t.Helper()
	keys := make(map[int64]string)
	key := func(id int64) string {
		if got, ok := keys[id]; ok {
			return got
		}
		vs, err := b.VerticesInState(context.Background(), id)
		require.NoError(t, err)
		k := EncodeVertexSet(vs)
		keys[id] = k
		return k
	}

	out := make([]canonTuple, 0, len(tuples))
	for _, tr := range tuples {
		out = append(out, canonTuple{Src: key(tr.Src), Input: tr.Input, Dst: key(tr.Dst)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Src != out[j].Src {
			return out[i].Src < out[j].Src
		}
		return out[i].Input < out[j].Input
	})
	return out
}

func Test_Determinism_AcrossWorkLimits(t *testing.T) {
	// Scenario 6, §8: build the same NFA twice, with limit=1 and with a
	// limit (1000) larger than any batch of pending transitions, so each
	// call resolves everything pending when it starts; the two DFAs must
	// be equal as sets once relabeled by canonical key.
	nullable := func(v int64) (bool, error) { return v%2 == 0, nil }
	matches := func(v, i int64) (bool, error) { return (v+i)%3 == 0, nil }
	edges := [][2]int64{{1, 2}, {2, 3}, {3, 4}, {4, 1}, {2, 4}}
	alphabet := []int64{1, 2, 3}

	build := func(dsn string, limit int) (*Builder, []Transition3) {
		b, err := NewBuilder(context.Background(), alphabet, nullable, matches,
			WithVertices([]int64{1, 2, 3, 4}),
			WithEdges(edges),
			WithStorageDSN(dsn))
		require.NoError(t, err)

		_, err = b.FindOrCreateStateID(context.Background(), []int64{1})
		require.NoError(t, err)

		_, err = b.RunToFixpoint(context.Background(), limit)
		require.NoError(t, err)

		tuples, err := b.TransitionsAsTuples3(context.Background())
		require.NoError(t, err)
		return b, tuples
	}

	bSlow, tuplesSlow := build(testDSN(t.Name()+"_slow"), 1)
	defer bSlow.Close()
	bFast, tuplesFast := build(testDSN(t.Name()+"_fast"), 1000)
	defer bFast.Close()

	got := canonicalize(t, bSlow, tuplesSlow)
	want := canonicalize(t, bFast, tuplesFast)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DFA built with different work limits diverged (-want +got):\n%s", diff)
	}
}

func Test_FindOrCreateStateID_Interning(t *testing.T) {
	b, err := NewBuilder(context.Background(), []int64{1}, notNullable, alwaysFalse,
		WithStorageDSN(testDSN(t.Name())))
	require.NoError(t, err)
	defer b.Close()

	a, err := b.FindOrCreateStateID(context.Background(), []int64{5, 6})
	require.NoError(t, err)
	c, err := b.FindOrCreateStateID(context.Background(), []int64{6, 5, 5})
	require.NoError(t, err)
	assert.Equal(t, a, c, "same vertex set must intern to the same state id")
}

func Test_FindOrCreateStateID_AutoRegistersUnknownVertices(t *testing.T) {
	// §9 open question 3: a vertex ID the loader never saw is registered
	// as isolated and non-nullable, inside the same atomic call.
	b, err := NewBuilder(context.Background(), []int64{1}, notNullable, alwaysFalse,
		WithStorageDSN(testDSN(t.Name())))
	require.NoError(t, err)
	defer b.Close()

	id, err := b.FindOrCreateStateID(context.Background(), []int64{999})
	require.NoError(t, err)

	vertices, err := b.VerticesInState(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []int64{999}, vertices)
}

func Test_Totality_AfterFixpoint(t *testing.T) {
	// §8 invariant: once compute_some_transitions returns 0, every
	// (state, input) pair has a resolved transition.
	nullable := func(v int64) (bool, error) { return v == 1, nil }
	matches := func(v, i int64) (bool, error) { return v == 2, nil }

	b, err := NewBuilder(context.Background(), []int64{1, 2}, nullable, matches,
		WithVertices([]int64{1, 2}),
		WithEdges([][2]int64{{1, 2}}),
		WithStorageDSN(testDSN(t.Name())))
	require.NoError(t, err)
	defer b.Close()

	_, err = b.FindOrCreateStateID(context.Background(), []int64{1})
	require.NoError(t, err)

	_, err = b.RunToFixpoint(context.Background(), 1)
	require.NoError(t, err)

	n, err := b.ComputeSomeTransitions(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	tuples, err := b.TransitionsAsTuples3(context.Background())
	require.NoError(t, err)
	for _, tr := range tuples {
		assert.NotZero(t, tr.Dst)
	}
}
