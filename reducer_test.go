package subsetfa

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test_CleanupDeadStates_MergesDeadBranches is scenario 5, §8: two states
// that each lead only to the dead state collapse into dead_state_id once
// cleanup runs with an oracle that accepts only the start.
//
// NFA: vertex 0 is nullable and epsilon-reaches A and B. A consumes input
// 10 and moves to X; B consumes input 20 and moves to Y. Neither X nor Y
// has any outgoing edge or match, so both dead-end. find_or_create_state
// on {0} yields the start state {0,A,B}.
func Test_CleanupDeadStates_MergesDeadBranches(t *testing.T) {
	nullable := func(v int64) (bool, error) { return v == 0, nil }
	matches := func(v, i int64) (bool, error) {
		switch {
		case v == 1 && i == 10: // A, input 10
			return true, nil
		case v == 2 && i == 20: // B, input 20
			return true, nil
		default:
			return false, nil
		}
	}

	b, err := NewBuilder(context.Background(), []int64{10, 20}, nullable, matches,
		WithVertices([]int64{0, 1, 2, 3, 4}),
		WithEdges([][2]int64{{0, 1}, {0, 2}, {1, 3}, {2, 4}}),
		WithStorageDSN(testDSN(t.Name())))
	require.NoError(t, err)
	defer b.Close()

	start, err := b.FindOrCreateStateID(context.Background(), []int64{0})
	require.NoError(t, err)

	vertices, err := b.VerticesInState(context.Background(), start)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 2}, vertices)

	_, err = b.RunToFixpoint(context.Background(), 100)
	require.NoError(t, err)

	before, err := b.TransitionsAsTuples3(context.Background())
	require.NoError(t, err)

	var xID, yID int64
	for _, tr := range before {
		if tr.Src != start {
			continue
		}
		switch tr.Input {
		case 10:
			xID = tr.Dst
		case 20:
			yID = tr.Dst
		}
	}
	require.NotZero(t, xID)
	require.NotZero(t, yID)
	assert.NotEqual(t, xID, yID, "the two dead-end branches must intern to distinct states before cleanup")
	assert.NotEqual(t, b.DeadStateID(), xID)
	assert.NotEqual(t, b.DeadStateID(), yID)

	acceptsOnlyStart := func(vs []int64) (bool, error) {
		return len(vs) == 3 && vs[0] == 0, nil
	}
	accepting, err := b.CleanupDeadStates(context.Background(), acceptsOnlyStart)
	require.NoError(t, err)
	assert.Equal(t, []int64{start}, accepting)

	after, err := b.TransitionsAsTuples3(context.Background())
	require.NoError(t, err)
	for _, tr := range after {
		if tr.Src == start {
			assert.Equal(t, b.DeadStateID(), tr.Dst, "start's branches must redirect straight to the dead state")
		}
	}

	_, err = b.VerticesInState(context.Background(), xID)
	assert.Error(t, err, "the pruned branch state must no longer exist")
	_, err = b.VerticesInState(context.Background(), yID)
	assert.Error(t, err, "the pruned branch state must no longer exist")

	tuples5, err := b.TransitionsAsTuples5(context.Background())
	require.NoError(t, err)
	for _, tr := range tuples5 {
		assert.NotEqual(t, b.DeadStateID(), tr.DstState, "transitions_as_5tuples must never name the dead state")
	}
}

func Test_CleanupDeadStates_Idempotent(t *testing.T) {
	nullable := func(int64) (bool, error) { return false, nil }
	matches := func(v, i int64) (bool, error) { return v == 1 && i == 1, nil }

	b, err := NewBuilder(context.Background(), []int64{1}, nullable, matches,
		WithVertices([]int64{1, 2}),
		WithEdges([][2]int64{{1, 2}}),
		WithStorageDSN(testDSN(t.Name())))
	require.NoError(t, err)
	defer b.Close()

	start, err := b.FindOrCreateStateID(context.Background(), []int64{1})
	require.NoError(t, err)
	_, err = b.RunToFixpoint(context.Background(), 100)
	require.NoError(t, err)

	acceptAll := func([]int64) (bool, error) { return true, nil }

	_, err = b.CleanupDeadStates(context.Background(), acceptAll)
	require.NoError(t, err)
	firstPass, err := b.TransitionsAsTuples3(context.Background())
	require.NoError(t, err)

	_, err = b.CleanupDeadStates(context.Background(), acceptAll)
	require.NoError(t, err)
	secondPass, err := b.TransitionsAsTuples3(context.Background())
	require.NoError(t, err)

	assert.Equal(t, firstPass, secondPass, "a second cleanup pass on an already-clean store must be a no-op")
	assert.NotZero(t, start)
}
