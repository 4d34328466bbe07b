package subsetfa

import (
	"context"
	"database/sql"
	"fmt"
)

// workItem is one unresolved (src, input) pair picked up by a single
// compute_some_transitions call, together with the distance hint its
// source state carried — the BFS scheduling priority from §4.5 step 1.
type workItem struct {
	src       int64
	input     int64
	srcDist   int64
	targetKey string
}

// computeSomeTransitions is the central algorithm, §4.5, implemented as
// the completion of the teacher's DeterminizeAutomaton stub (operations.go
// built a worklist and a FrozenIntSet-keyed newState map and then gave up
// with "// TODO:"; this is that TODO, done against the store instead of
// an in-memory Automaton/Builder pair).
func computeSomeTransitions(ctx context.Context, s *store, alphabet []int64, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}

	var resolved int
	err := s.withTx(ctx, "ComputeSomeTransitions", func(tx *sql.Tx) error {
		work, err := pickWork(ctx, tx, limit)
		if err != nil {
			return err
		}
		if len(work) == 0 {
			resolved = 0
			return nil
		}

		if err := computeTargets(ctx, tx, work); err != nil {
			return err
		}

		stateIDs, err := internTargets(ctx, tx, alphabet, work)
		if err != nil {
			return err
		}

		if err := resolveWork(ctx, tx, work, stateIDs); err != nil {
			return err
		}

		resolved = len(work)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return resolved, nil
}

// pickWork is §4.5 step 1: select up to limit unresolved transitions,
// preferring the smallest source-state distance.
func pickWork(ctx context.Context, tx *sql.Tx, limit int) ([]workItem, error) {
	rows, err := tx.QueryContext(ctx, `
SELECT t.src, t.input, s.distance
FROM transitions t
JOIN states s ON s.id = t.src
WHERE t.dst IS NULL
ORDER BY s.distance ASC, t.src ASC, t.input ASC
LIMIT ?`, limit)
	if err != nil {
		return nil, storeErrorf("pickWork", err)
	}
	defer rows.Close()

	var work []workItem
	for rows.Next() {
		var w workItem
		if err := rows.Scan(&w.src, &w.input, &w.srcDist); err != nil {
			return nil, storeErrorf("pickWork: scan", err)
		}
		work = append(work, w)
	}
	return work, rows.Err()
}

// computeTargets is §4.5 step 2: for each work row, compute
//
//	target(s, i) = union{ closure(w) : exists v in vertices(s), (v, w) in E, matches(v, i) }
//
// as its vertex_set_encode-canonicalized key, entirely inside the store.
// An INNER JOIN chain that matches no rows for a given (src, input) is
// exactly the "no matching edges" / "all targets dead" edge case from
// §4.5: vertex_set_encode, called zero times, finalizes to the empty-set
// key, which is the dead state's key.
func computeTargets(ctx context.Context, tx *sql.Tx, work []workItem) error {
	stmt, err := tx.PrepareContext(ctx, `
SELECT vertex_set_encode(cl.reachable)
FROM state_vertices sv
JOIN edges e ON e.src = sv.vertex_id
JOIN matches m ON m.vertex = e.src AND m.input = ?
JOIN closure cl ON cl.root = e.dst
WHERE sv.state_id = ?`)
	if err != nil {
		return storeErrorf("computeTargets: prepare", err)
	}
	defer stmt.Close()

	for i := range work {
		var key string
		if err := stmt.QueryRowContext(ctx, work[i].input, work[i].src).Scan(&key); err != nil {
			return storeErrorf("computeTargets: query", err)
		}
		work[i].targetKey = key
	}
	return nil
}

// internTargets is §4.5 step 3: intern one state per distinct target key
// found across this batch, using the minimum distance observed for that
// key (the "one-greater distance" propagated from each work item's
// source). Returns the map from target key to interned state ID used by
// resolveWork.
func internTargets(ctx context.Context, tx *sql.Tx, alphabet []int64, work []workItem) (map[string]int64, error) {
	minDistance := make(map[string]int64, len(work))
	for _, w := range work {
		d := w.srcDist + 1
		if cur, ok := minDistance[w.targetKey]; !ok || d < cur {
			minDistance[w.targetKey] = d
		}
	}

	stateIDs := make(map[string]int64, len(minDistance))
	for key, distance := range minDistance {
		id, _, err := internState(ctx, tx, alphabet, key, distance)
		if err != nil {
			return nil, err
		}
		stateIDs[key] = id
	}
	return stateIDs, nil
}

// resolveWork is §4.5 step 4.
func resolveWork(ctx context.Context, tx *sql.Tx, work []workItem, stateIDs map[string]int64) error {
	stmt, err := tx.PrepareContext(ctx, `UPDATE transitions SET dst = ? WHERE src = ? AND input = ?`)
	if err != nil {
		return storeErrorf("resolveWork: prepare", err)
	}
	defer stmt.Close()

	for _, w := range work {
		dst, ok := stateIDs[w.targetKey]
		if !ok {
			return storeErrorf("resolveWork", fmt.Errorf("no interned state for target key %q", w.targetKey))
		}
		if _, err := stmt.ExecContext(ctx, dst, w.src, w.input); err != nil {
			return storeErrorf("resolveWork: update", err)
		}
	}
	return nil
}
