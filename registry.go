package subsetfa

import (
	"context"
	"database/sql"
	"iter"
)

// internState finds or creates the state whose canonical key is
// vertexStr, allocating one unresolved transition row per alphabet
// symbol for a newly created state (§4.4: "On creation of a new state,
// the registry inserts one unresolved transition row per alphabet
// symbol"). It is the one place that ever inserts into states, and is
// shared by FindOrCreateStateID, the dead-state construction in
// NewBuilder, and the expander's step 3.
func internState(ctx context.Context, tx *sql.Tx, alphabet []int64, vertexStr string, distance int64) (id int64, created bool, err error) {
	vertices, err := DecodeVertexSet(vertexStr)
	if err != nil {
		return 0, false, err
	}
	hashHint := mixVertexSet(sortedUniqueVertices(vertices))

	row := tx.QueryRowContext(ctx, `
INSERT INTO states(vertex_str, hash_hint, distance) VALUES (?, ?, ?)
ON CONFLICT(vertex_str) DO NOTHING
RETURNING id`, vertexStr, hashHint, distance)

	var newID int64
	if scanErr := row.Scan(&newID); scanErr == nil {
		if err := populateNewState(ctx, tx, alphabet, newID, vertices); err != nil {
			return 0, false, err
		}
		return newID, true, nil
	} else if scanErr != sql.ErrNoRows {
		return 0, false, storeErrorf("internState: insert", scanErr)
	}

	var existingID int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM states WHERE vertex_str = ?`, vertexStr).Scan(&existingID); err != nil {
		return 0, false, storeErrorf("internState: lookup", err)
	}
	return existingID, false, nil
}

// populateNewState fills in the two relations that depend on a state
// existing: its vertex membership (state_vertices) and its alphabet-wide
// row of unresolved transitions.
func populateNewState(ctx context.Context, tx *sql.Tx, alphabet []int64, stateID int64, vertices []int64) error {
	insertMember, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO state_vertices(state_id, vertex_id) VALUES (?, ?)`)
	if err != nil {
		return storeErrorf("populateNewState: prepare members", err)
	}
	defer insertMember.Close()
	for _, v := range vertices {
		if _, err := insertMember.ExecContext(ctx, stateID, v); err != nil {
			return storeErrorf("populateNewState: insert member", err)
		}
	}

	insertTransition, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO transitions(src, input, dst) VALUES (?, ?, NULL)`)
	if err != nil {
		return storeErrorf("populateNewState: prepare transitions", err)
	}
	defer insertTransition.Close()
	for _, a := range alphabet {
		if _, err := insertTransition.ExecContext(ctx, stateID, a); err != nil {
			return storeErrorf("populateNewState: insert transition", err)
		}
	}
	return nil
}

// findOrCreateStateID implements §4.4's find_or_create_state: close the
// given list under epsilon-closure, canonicalize, intern. Vertex IDs not
// yet known to the NFA are auto-registered as isolated, non-nullable
// vertices within the same atomic call, resolving §9 open question 3.
func (b *Builder) findOrCreateStateID(ctx context.Context, vertexList []int64) (int64, error) {
	for _, v := range vertexList {
		if v < 0 {
			return 0, validationErrorf("vertex id %d is negative", v)
		}
	}

	var id int64
	err := b.store.withTx(ctx, "FindOrCreateStateID", func(tx *sql.Tx) error {
		for _, v := range vertexList {
			if err := ensureVertex(ctx, tx, v, alwaysNonNullable, b.cache); err != nil {
				return err
			}
		}
		vertexStr, err := closureOf(ctx, tx, vertexList)
		if err != nil {
			return err
		}
		newID, _, err := internState(ctx, tx, b.alphabet, vertexStr, 0)
		if err != nil {
			return err
		}
		id = newID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// alwaysNonNullable is the oracle ensureVertex falls back to when
// registering a vertex the caller never described: §9's recommendation
// is to treat it "as if it were freshly inserted, non-nullable, and
// isolated."
func alwaysNonNullable(int64) (bool, error) { return false, nil }

// verticesInState decodes a state's canonical key, per §4.4.
func (b *Builder) verticesInState(ctx context.Context, stateID int64) ([]int64, error) {
	var vertexStr string
	err := b.store.withTx(ctx, "VerticesInState", func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `SELECT vertex_str FROM states WHERE id = ?`, stateID).Scan(&vertexStr)
	})
	if err == sql.ErrNoRows {
		return nil, validationErrorf("no such state id %d", stateID)
	}
	if err != nil {
		return nil, err
	}
	return DecodeVertexSet(vertexStr)
}

// stateVerticesIterator yields (state_id, vertex_list) in ascending
// state_id order for every state present at the moment this is called,
// per §6: "iterator must reflect states present at creation time and is
// not required to observe subsequent insertions." It is implemented as a
// snapshot read (one query, fully buffered) rather than a live cursor
// held open across caller iterations, so that is true by construction.
func (b *Builder) stateVerticesIterator(ctx context.Context) (iter.Seq2[int64, []int64], error) {
	type row struct {
		id        int64
		vertexStr string
	}
	var rows []row
	err := b.store.withTx(ctx, "StateVerticesIterator", func(tx *sql.Tx) error {
		r, err := tx.QueryContext(ctx, `SELECT id, vertex_str FROM states ORDER BY id ASC`)
		if err != nil {
			return storeErrorf("StateVerticesIterator: query", err)
		}
		defer r.Close()
		for r.Next() {
			var x row
			if err := r.Scan(&x.id, &x.vertexStr); err != nil {
				return storeErrorf("StateVerticesIterator: scan", err)
			}
			rows = append(rows, x)
		}
		return r.Err()
	})
	if err != nil {
		return nil, err
	}

	return func(yield func(int64, []int64) bool) {
		for _, r := range rows {
			vertices, err := DecodeVertexSet(r.vertexStr)
			if err != nil {
				// A canonical key written by this package's own codec
				// failing to decode is an invariant violation, not a
				// recoverable per-row condition; stop iterating.
				return
			}
			if !yield(r.id, vertices) {
				return
			}
		}
	}, nil
}
