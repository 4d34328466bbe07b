package subsetfa

import (
	"context"
	"database/sql"
)

// Transition3 is a resolved DFA transition, per
// transitions_as_3tuples (§6).
type Transition3 struct {
	Src   int64
	Input int64
	Dst   int64
}

// Transition5 is a DFA transition together with the NFA edge that
// witnesses it, per transitions_as_5tuples (§6).
type Transition5 struct {
	SrcState  int64
	SrcVertex int64
	Input     int64
	DstState  int64
	DstVertex int64
}

// transitionsAsTuples3 is transitions_as_3tuples: every resolved
// transition, dead-state destinations included, unresolved rows excluded.
func transitionsAsTuples3(ctx context.Context, tx *sql.Tx) ([]Transition3, error) {
	rows, err := tx.QueryContext(ctx, `
SELECT src, input, dst FROM transitions WHERE dst IS NOT NULL
ORDER BY src ASC, input ASC`)
	if err != nil {
		return nil, storeErrorf("transitionsAsTuples3", err)
	}
	defer rows.Close()

	var out []Transition3
	for rows.Next() {
		var t Transition3
		if err := rows.Scan(&t.Src, &t.Input, &t.Dst); err != nil {
			return nil, storeErrorf("transitionsAsTuples3: scan", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// transitionsAsTuples5 is transitions_as_5tuples: the join of DFA
// transitions against the NFA edges that witness them. dst_vertex ranges
// over the epsilon-closure of each witnessing edge's target (including
// its reflexive row — "plus nullable self-loops" in §6 — since a state's
// vertex set is, by construction, exactly the union of those closures).
// Transitions touching the dead state, as either endpoint, are excluded.
func transitionsAsTuples5(ctx context.Context, tx *sql.Tx, deadStateID int64) ([]Transition5, error) {
	rows, err := tx.QueryContext(ctx, `
SELECT t.src, e.src, t.input, t.dst, cl.reachable
FROM transitions t
JOIN state_vertices sv ON sv.state_id = t.src
JOIN edges e ON e.src = sv.vertex_id
JOIN matches m ON m.vertex = e.src AND m.input = t.input
JOIN closure cl ON cl.root = e.dst
JOIN state_vertices dstv ON dstv.state_id = t.dst AND dstv.vertex_id = cl.reachable
WHERE t.dst IS NOT NULL AND t.dst != ? AND t.src != ?
ORDER BY t.src ASC, t.input ASC, e.src ASC, cl.reachable ASC`, deadStateID, deadStateID)
	if err != nil {
		return nil, storeErrorf("transitionsAsTuples5", err)
	}
	defer rows.Close()

	var out []Transition5
	for rows.Next() {
		var t Transition5
		if err := rows.Scan(&t.SrcState, &t.SrcVertex, &t.Input, &t.DstState, &t.DstVertex); err != nil {
			return nil, storeErrorf("transitionsAsTuples5: scan", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
