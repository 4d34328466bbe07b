package subsetfa

import (
	"context"
	"database/sql"
)

// NullableOracle answers whether vertex v matches the empty input. Called
// at most once per distinct vertex ID over the lifetime of a Builder — see
// §6. Must be pure: it is invoked host-side, never re-entered from inside
// a query.
type NullableOracle func(v int64) (bool, error)

// MatchesOracle answers whether vertex v consumes input symbol i. Called
// at most once per distinct (vertex, input) pair. Must be pure.
type MatchesOracle func(v, i int64) (bool, error)

// AcceptsOracle answers whether the given (sorted, deduplicated) vertex
// set is an accepting DFA state. Used only by CleanupDeadStates (§4.6).
type AcceptsOracle func(vertices []int64) (bool, error)

type loadConfig struct {
	alphabet []int64
	vertices []int64
	edges    [][2]int64
	nullable NullableOracle
	matches  MatchesOracle
}

func validateLoadConfig(cfg loadConfig) error {
	if cfg.nullable == nil {
		return validationErrorf("vertex_nullable oracle is required")
	}
	if cfg.matches == nil {
		return validationErrorf("vertex_matches oracle is required")
	}
	for _, a := range cfg.alphabet {
		if a < 0 {
			return validationErrorf("alphabet symbol %d is negative", a)
		}
	}
	for _, v := range cfg.vertices {
		if v < 0 {
			return validationErrorf("vertex id %d is negative", v)
		}
	}
	for _, e := range cfg.edges {
		if e[0] < 0 || e[1] < 0 {
			return validationErrorf("edge (%d, %d) has a negative endpoint", e[0], e[1])
		}
	}
	return nil
}

// load runs §4.2 in full, inside the given transaction: it inserts the
// alphabet, every explicit and edge-discovered vertex (evaluating
// vertex_nullable once per vertex: ensureVertex skips a vertex already in
// the table, so one named twice — once explicitly, once as an edge
// endpoint — is only asked about once), every edge, and finally the full
// {vertices} × {alphabet} cross-product of vertex_matches. An oracle
// error or store error aborts the whole call; the caller's transaction
// wrapper (store.withTx) rolls back, leaving an empty store per §4.2's
// atomicity requirement.
func load(ctx context.Context, tx *sql.Tx, cfg loadConfig, cache *nullableCache) error {
	if err := validateLoadConfig(cfg); err != nil {
		return err
	}

	seenAlphabet := make(map[int64]struct{})
	for _, a := range cfg.alphabet {
		if _, ok := seenAlphabet[a]; ok {
			continue
		}
		seenAlphabet[a] = struct{}{}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO alphabet(input) VALUES (?)`, a); err != nil {
			return storeErrorf("load: insert alphabet", err)
		}
	}

	for _, v := range cfg.vertices {
		if err := ensureVertex(ctx, tx, v, cfg.nullable, cache); err != nil {
			return err
		}
	}

	for _, e := range cfg.edges {
		if err := ensureVertex(ctx, tx, e[0], cfg.nullable, cache); err != nil {
			return err
		}
		if err := ensureVertex(ctx, tx, e[1], cfg.nullable, cache); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO edges(src, dst) VALUES (?, ?)`, e[0], e[1]); err != nil {
			return storeErrorf("load: insert edge", err)
		}
	}

	rows, err := tx.QueryContext(ctx, `SELECT id FROM vertices ORDER BY id`)
	if err != nil {
		return storeErrorf("load: list vertices", err)
	}
	var allVertices []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return storeErrorf("load: scan vertex", err)
		}
		allVertices = append(allVertices, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return storeErrorf("load: list vertices", err)
	}
	rows.Close()

	insertMatch, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO matches(vertex, input) VALUES (?, ?)`)
	if err != nil {
		return storeErrorf("load: prepare matches", err)
	}
	defer insertMatch.Close()

	for _, v := range allVertices {
		for a := range seenAlphabet {
			ok, err := cfg.matches(v, a)
			if err != nil {
				return &OracleError{Oracle: "matches", Err: err}
			}
			if !ok {
				continue
			}
			if _, err := insertMatch.ExecContext(ctx, v, a); err != nil {
				return storeErrorf("load: insert match", err)
			}
		}
	}

	return nil
}

// ensureVertex registers v (evaluating vertex_nullable exactly once per
// distinct ID, via cache) if it is not already present, and seeds its
// reflexive closure row per §3 ("Contains (v, v) for every vertex v").
// This same helper backs both the loader and the registry's auto-
// registration of vertex IDs unnamed by input_vertices/input_edges
// (§9 open question 3, resolved in registry.go).
func ensureVertex(ctx context.Context, tx *sql.Tx, v int64, nullable NullableOracle, cache *nullableCache) error {
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM vertices WHERE id = ?`, v).Scan(&exists); err == nil {
		return nil
	} else if err != sql.ErrNoRows {
		return storeErrorf("ensureVertex: lookup", err)
	}

	isNullable, ok := cache.Get(v)
	if !ok {
		var err error
		isNullable, err = nullable(v)
		if err != nil {
			return &OracleError{Oracle: "nullable", Err: err}
		}
		cache.Put(v, isNullable)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO vertices(id, nullable) VALUES (?, ?)`, v, boolToInt(isNullable)); err != nil {
		return storeErrorf("ensureVertex: insert", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO closure(root, reachable) VALUES (?, ?)`, v, v); err != nil {
		return storeErrorf("ensureVertex: seed closure", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
