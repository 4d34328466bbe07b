package subsetfa

import (
	"context"
	"fmt"
	"sort"

	"github.com/bits-and-blooms/bitset"
)

// DenseGraph is an optional, read-only in-memory export of a finished DFA,
// for inspection and tests — adapted from the teacher's Automaton packed
// array layout (states/transitions as parallel int slices, sorted and
// reduced per source state). It deliberately keeps only the bookkeeping
// half of that type: no Step, no Next, no Run. Streaming matching is this
// spec's explicit non-goal ("the system produces a DFA; it does not run
// one"), so the interpreter half of automaton.go has no place here.
type DenseGraph struct {
	// states[2*s] is the offset into transitions where state s's rows
	// begin; states[2*s+1] is its transition count. Same packing as the
	// teacher's Automaton.states.
	states []int

	// transitions holds (dest, input, input) triples — input is stored
	// twice, in the min/max slots, to keep the teacher's sort/reduce
	// machinery below unmodified even though this DFA's alphabet is
	// discrete symbols rather than ranges.
	transitions []int
	nextTransition int

	isAccept *bitset.BitSet

	curState int
}

// NewDenseGraph allocates an empty DenseGraph with room for the given
// number of states and transitions, mirroring NewAutomatonV1.
func NewDenseGraph(numStates, numTransitions int) *DenseGraph {
	return &DenseGraph{
		curState:    -1,
		states:      make([]int, 0, numStates*2),
		isAccept:    bitset.New(uint(numStates)),
		transitions: make([]int, 0, numTransitions*3),
	}
}

// CreateState allocates the next sequential dense state index.
func (g *DenseGraph) CreateState() int {
	state := len(g.states) / 2
	g.states = append(g.states, -1, 0)
	return state
}

// SetAccept marks state as accepting.
func (g *DenseGraph) SetAccept(state int, accept bool) {
	g.isAccept.SetTo(uint(state), accept)
}

// IsAccept reports whether state is accepting.
func (g *DenseGraph) IsAccept(state int) bool {
	return g.isAccept.Test(uint(state))
}

// AddTransitionLabel adds one discrete-input transition. Every
// transition for a given source state must be added consecutively, per
// the teacher's Automaton.AddTransition contract ("Each state must have
// all of its transitions added at once").
func (g *DenseGraph) AddTransitionLabel(source, dest int, label int64) error {
	if g.curState != source {
		if g.curState != -1 {
			g.finishCurrentState()
		}
		g.curState = source
		if g.states[2*source] != -1 {
			return fmt.Errorf("subsetfa: dense state %d already had transitions added", source)
		}
		g.states[2*source] = g.nextTransition
	}

	g.transitions = append(g.transitions, dest, int(label), int(label))
	g.nextTransition += 3
	g.states[2*g.curState+1]++
	return nil
}

// FinishState finalizes the last state's transitions. Call once after
// the last AddTransitionLabel.
func (g *DenseGraph) FinishState() {
	if g.curState != -1 {
		g.finishCurrentState()
		g.curState = -1
	}
}

// finishCurrentState sorts the current state's transitions by
// (min, max, dest), the same ordering automaton.go's finishCurrentState
// leaves them in, minus the adjacent-range reduction pass (this DFA's
// labels are discrete symbols, never adjacent ranges to merge).
func (g *DenseGraph) finishCurrentState() {
	n := g.states[2*g.curState+1]
	offset := g.states[2*g.curState]
	start := offset / 3

	sort.Sort(&denseMinMaxDestSorter{from: start, to: start + n, g: g})
}

// GetNumStates returns how many states this graph has.
func (g *DenseGraph) GetNumStates() int {
	return len(g.states) / 2
}

// GetNumTransitionsWithState returns how many transitions leave state.
func (g *DenseGraph) GetNumTransitionsWithState(state int) int {
	count := g.states[2*state+1]
	if count == -1 {
		return 0
	}
	return count
}

// Transition describes one outgoing edge read back out of a DenseGraph.
type Transition struct {
	Dest  int
	Input int64
}

// TransitionAt returns the index'th transition leaving state.
func (g *DenseGraph) TransitionAt(state, index int) Transition {
	i := g.states[2*state] + 3*index
	return Transition{Dest: g.transitions[i], Input: int64(g.transitions[i+1])}
}

type denseMinMaxDestSorter struct {
	from, to int
	g        *DenseGraph
}

func (s *denseMinMaxDestSorter) Len() int { return s.to - s.from }

func (s *denseMinMaxDestSorter) Less(i, j int) bool {
	iStart, jStart := 3*(s.from+i), 3*(s.from+j)
	t := s.g.transitions
	if t[iStart+1] != t[jStart+1] {
		return t[iStart+1] < t[jStart+1]
	}
	return t[iStart] < t[jStart]
}

func (s *denseMinMaxDestSorter) Swap(i, j int) {
	iStart, jStart := 3*(s.from+i), 3*(s.from+j)
	t := s.g.transitions
	t[iStart], t[jStart] = t[jStart], t[iStart]
	t[iStart+1], t[jStart+1] = t[jStart+1], t[iStart+1]
	t[iStart+2], t[jStart+2] = t[jStart+2], t[iStart+2]
}

// ExportDense materializes the current, fully-resolved DFA as a
// DenseGraph, for inspection or debugging. It is read-only and built from
// a single snapshot (transitions_as_3tuples plus the accepting set the
// caller supplies); it is not kept in sync with further
// ComputeSomeTransitions calls.
func (b *Builder) ExportDense(ctx context.Context, accepting []int64) (*DenseGraph, error) {
	var iterFn func(func(int64, []int64) bool)
	seq, err := b.stateVerticesIterator(ctx)
	if err != nil {
		return nil, err
	}
	iterFn = seq

	var ids []int64
	iterFn(func(id int64, _ []int64) bool {
		ids = append(ids, id)
		return true
	})

	denseIndex := make(map[int64]int, len(ids))
	g := NewDenseGraph(len(ids), len(ids))
	for _, id := range ids {
		denseIndex[id] = g.CreateState()
	}

	acceptSet := make(map[int64]struct{}, len(accepting))
	for _, a := range accepting {
		acceptSet[a] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := acceptSet[id]; ok {
			g.SetAccept(denseIndex[id], true)
		}
	}

	tuples, err := b.TransitionsAsTuples3(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tuples {
		srcIdx, ok := denseIndex[t.Src]
		if !ok {
			continue
		}
		dstIdx, ok := denseIndex[t.Dst]
		if !ok {
			continue
		}
		if err := g.AddTransitionLabel(srcIdx, dstIdx, t.Input); err != nil {
			return nil, err
		}
	}
	g.FinishState()

	return g, nil
}
