package subsetfa

import (
	"context"
	"database/sql"
	"iter"
)

// Builder is the top-level handle for one NFA-to-DFA subset construction,
// per §2/§6. It owns a store (the durable relational state), the fixed
// input alphabet, the host-side nullable-oracle memo, and the logger
// every component call routes its debug/warn/error lines through. All of
// its exported methods are atomic with respect to each other, via
// store.withTx.
type Builder struct {
	store       *store
	alphabet    []int64
	logger      Logger
	cache       *nullableCache
	deadStateID int64
	workLimit   int
}

// NewBuilder runs §4.2's initial load followed by §4.3's closure fixpoint,
// then interns the dead state (the empty vertex set, at distance 0) so
// every other state can be redirected to a real row from the moment it
// exists. nullable and matches are required; vertices, edges, the storage
// DSN, the logger, and the default work limit are supplied via Option.
func NewBuilder(ctx context.Context, alphabet []int64, nullable NullableOracle, matches MatchesOracle, opts ...Option) (*Builder, error) {
	o := newOptions(opts...)

	for _, a := range alphabet {
		if a < 0 {
			return nil, validationErrorf("alphabet symbol %d is negative", a)
		}
	}
	if nullable == nil {
		return nil, validationErrorf("vertex_nullable oracle is required")
	}
	if matches == nil {
		return nil, validationErrorf("vertex_matches oracle is required")
	}

	s, err := openStore(ctx, o.storageDSN, o.logger)
	if err != nil {
		return nil, err
	}

	b := &Builder{
		store:     s,
		alphabet:  append([]int64(nil), alphabet...),
		logger:    o.logger,
		cache:     newNullableCache(),
		workLimit: o.workLimit,
	}

	cfg := loadConfig{
		alphabet: b.alphabet,
		vertices: o.vertices,
		edges:    o.edges,
		nullable: nullable,
		matches:  matches,
	}

	err = s.withTx(ctx, "NewBuilder", func(tx *sql.Tx) error {
		if err := load(ctx, tx, cfg, b.cache); err != nil {
			return err
		}
		if err := buildClosure(ctx, tx); err != nil {
			return err
		}
		deadKey := EncodeVertexSet(nil)
		deadID, _, err := internState(ctx, tx, b.alphabet, deadKey, 0)
		if err != nil {
			return err
		}
		b.deadStateID = deadID
		return nil
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	b.logger.Infof("subsetfa: builder ready, alphabet size %d, dead state %d", len(b.alphabet), b.deadStateID)
	return b, nil
}

// DeadStateID returns the interned empty-vertex-set state: the target of
// every transition whose computed target set is empty, and of every
// transition CleanupDeadStates redirects.
func (b *Builder) DeadStateID() int64 {
	return b.deadStateID
}

// FindOrCreateStateID implements find_or_create_state (§4.4).
func (b *Builder) FindOrCreateStateID(ctx context.Context, vertexList []int64) (int64, error) {
	return b.findOrCreateStateID(ctx, vertexList)
}

// VerticesInState implements the §4.4 inverse lookup.
func (b *Builder) VerticesInState(ctx context.Context, stateID int64) ([]int64, error) {
	return b.verticesInState(ctx, stateID)
}

// StateVerticesIterator implements the §6 iterator primitive: a snapshot,
// taken at call time, of every (state_id, vertex_list) pair then present.
func (b *Builder) StateVerticesIterator(ctx context.Context) (iter.Seq2[int64, []int64], error) {
	return b.stateVerticesIterator(ctx)
}

// ComputeSomeTransitions implements compute_some_transitions (§4.5):
// resolve up to limit unresolved (src, input) transitions in one atomic
// pass, and report how many were resolved. A return of 0 with a nil error
// means the DFA has already reached its fixpoint.
func (b *Builder) ComputeSomeTransitions(ctx context.Context, limit int) (int, error) {
	return computeSomeTransitions(ctx, b.store, b.alphabet, limit)
}

// RunToFixpoint repeatedly calls ComputeSomeTransitions, using limit if
// positive or else the work-limit configured via WithWorkLimit (default
// 1000), until a call resolves nothing. It is a convenience wrapper, not
// part of the core algorithm itself: every atomic step it takes is still
// exactly one ComputeSomeTransitions call.
func (b *Builder) RunToFixpoint(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = b.workLimit
	}
	var total int
	for {
		n, err := b.ComputeSomeTransitions(ctx, limit)
		if err != nil {
			return total, err
		}
		total += n
		if n == 0 {
			return total, nil
		}
	}
}

// CleanupDeadStates implements the §4.6 dead-state reducer: every state
// with no path to an accepting state is redirected to the dead state and
// pruned. It returns the state IDs accepts reported as accepting, since
// callers that then want ExportDense need that set and would otherwise
// have to re-run the oracle themselves.
func (b *Builder) CleanupDeadStates(ctx context.Context, accepts AcceptsOracle) ([]int64, error) {
	return cleanupDeadStates(ctx, b.store, b.deadStateID, accepts)
}

// TransitionsAsTuples3 implements transitions_as_3tuples (§6).
func (b *Builder) TransitionsAsTuples3(ctx context.Context) ([]Transition3, error) {
	var out []Transition3
	err := b.store.withTx(ctx, "TransitionsAsTuples3", func(tx *sql.Tx) error {
		var err error
		out, err = transitionsAsTuples3(ctx, tx)
		return err
	})
	return out, err
}

// TransitionsAsTuples5 implements transitions_as_5tuples (§6).
func (b *Builder) TransitionsAsTuples5(ctx context.Context) ([]Transition5, error) {
	var out []Transition5
	err := b.store.withTx(ctx, "TransitionsAsTuples5", func(tx *sql.Tx) error {
		var err error
		out, err = transitionsAsTuples5(ctx, tx, b.deadStateID)
		return err
	})
	return out, err
}

// BackupToFile implements the §6 snapshot primitive.
func (b *Builder) BackupToFile(version, path string) error {
	return b.store.backupToFile(version, path)
}

// Close releases the underlying store's connection. A Builder must not be
// used after Close.
func (b *Builder) Close() error {
	return b.store.Close()
}
