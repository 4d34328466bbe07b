package subsetfa

import (
	"context"
	"database/sql"
)

// buildClosure computes the epsilon-closure fixpoint (§4.3) as a single
// recursive query:
//
//	C <- {(v, v) : v in V} u {(r, d) : (r, s) in C, nullable(s), (s, d) in E}
//
// The query starts from the reflexive rows of every vertex and inserts
// every row it reaches; the reflexive rows ensureVertex already seeded are
// skipped by INSERT OR IGNORE.
func buildClosure(ctx context.Context, tx *sql.Tx) error {
	const q = `
WITH RECURSIVE reach(root, node) AS (
	SELECT id, id FROM vertices
	UNION
	SELECT reach.root, e.dst
	FROM reach
	JOIN vertices v ON v.id = reach.node AND v.nullable = 1
	JOIN edges e ON e.src = reach.node
)
INSERT OR IGNORE INTO closure(root, reachable)
SELECT DISTINCT root, node FROM reach;
`
	if _, err := tx.ExecContext(ctx, q); err != nil {
		return storeErrorf("buildClosure", err)
	}
	return nil
}

// closureOf returns the union of the epsilon-closures of the given roots,
// as vertex_set_encode's canonical key, computed entirely inside the
// store (§4.1: "invocable inside the store as a user-defined aggregate
// finalizer"). Any root not present in `roots` as a known vertex has
// already been registered (with a reflexive closure row) by the caller
// before this runs, per §9 open question 3's resolution.
func closureOf(ctx context.Context, tx *sql.Tx, roots []int64) (string, error) {
	if len(roots) == 0 {
		return EncodeVertexSet(nil), nil
	}
	placeholders, args := inClause(roots)
	q := `SELECT vertex_set_encode(reachable) FROM closure WHERE root IN (` + placeholders + `)`
	var key string
	if err := tx.QueryRowContext(ctx, q, args...).Scan(&key); err != nil {
		return "", storeErrorf("closureOf", err)
	}
	return key, nil
}

func inClause(ids []int64) (string, []interface{}) {
	args := make([]interface{}, len(ids))
	b := make([]byte, 0, len(ids)*2)
	for i, id := range ids {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
		args[i] = id
	}
	return string(b), args
}
