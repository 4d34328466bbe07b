package subsetfa

import (
	"context"
	"database/sql"

	"github.com/bits-and-blooms/bitset"
)

// cleanupDeadStates implements §4.6, the dead-state reducer. The backward-
// reachability pass mirrors the teacher's getLiveStatesFromInitial /
// getLiveStatesToAccept (operations.go): a bitset marks visited state IDs
// while a worklist walks a reverse adjacency built from the transition
// table, exactly the shape those functions use over a packed transition
// array. Two open questions from §9 are resolved by this definition being
// semantic rather than structural: a state is redirected to the dead sink
// the moment it has no path to an accepting state, regardless of whether
// its own vertex set happens to be empty (scenario 5, §8); and because the
// resulting graph after a first call already satisfies "every non-dead
// state reaches an accepting state," a second call is a no-op rather than
// an error (§8's idempotence invariant).
func cleanupDeadStates(ctx context.Context, s *store, deadStateID int64, accepts AcceptsOracle) ([]int64, error) {
	var acceptingIDs []int64

	err := s.withTx(ctx, "CleanupDeadStates", func(tx *sql.Tx) error {
		states, err := loadAllStatesForReduction(ctx, tx)
		if err != nil {
			return err
		}

		var maxID uint
		for _, st := range states {
			if uint(st.id) > maxID {
				maxID = uint(st.id)
			}
		}

		live := bitset.New(maxID + 1)
		var accepting []int64
		var queue []int64
		for _, st := range states {
			ok, err := accepts(st.vertices)
			if err != nil {
				return &OracleError{Oracle: "accepts", Err: err}
			}
			if ok {
				accepting = append(accepting, st.id)
				if !live.Test(uint(st.id)) {
					live.Set(uint(st.id))
					queue = append(queue, st.id)
				}
			}
		}

		reverseAdj, err := loadReverseAdjacency(ctx, tx)
		if err != nil {
			return err
		}

		for len(queue) > 0 {
			cur := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			for _, pred := range reverseAdj[cur] {
				if !live.Test(uint(pred)) {
					live.Set(uint(pred))
					queue = append(queue, pred)
				}
			}
		}

		if err := redirectAndPrune(ctx, tx, live, deadStateID); err != nil {
			return err
		}

		acceptingIDs = accepting
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acceptingIDs, nil
}

type reducerState struct {
	id       int64
	vertices []int64
}

func loadAllStatesForReduction(ctx context.Context, tx *sql.Tx) ([]reducerState, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, vertex_str FROM states`)
	if err != nil {
		return nil, storeErrorf("cleanupDeadStates: list states", err)
	}
	defer rows.Close()

	var out []reducerState
	for rows.Next() {
		var id int64
		var vertexStr string
		if err := rows.Scan(&id, &vertexStr); err != nil {
			return nil, storeErrorf("cleanupDeadStates: scan state", err)
		}
		vertices, err := DecodeVertexSet(vertexStr)
		if err != nil {
			return nil, err
		}
		out = append(out, reducerState{id: id, vertices: vertices})
	}
	return out, rows.Err()
}

func loadReverseAdjacency(ctx context.Context, tx *sql.Tx) (map[int64][]int64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT src, dst FROM transitions WHERE dst IS NOT NULL`)
	if err != nil {
		return nil, storeErrorf("cleanupDeadStates: list transitions", err)
	}
	defer rows.Close()

	adj := make(map[int64][]int64)
	for rows.Next() {
		var src, dst int64
		if err := rows.Scan(&src, &dst); err != nil {
			return nil, storeErrorf("cleanupDeadStates: scan transition", err)
		}
		adj[dst] = append(adj[dst], src)
	}
	return adj, rows.Err()
}

// redirectAndPrune is §4.6 steps 3-4: every transition landing on a
// non-live state is redirected to deadStateID, then every non-live state
// other than the dead state itself is deleted; ON DELETE CASCADE on
// transitions.src takes their now-orphaned outgoing rows with them.
func redirectAndPrune(ctx context.Context, tx *sql.Tx, live *bitset.BitSet, deadStateID int64) error {
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS live_states_scratch`); err != nil {
		return storeErrorf("redirectAndPrune: drop scratch", err)
	}
	if _, err := tx.ExecContext(ctx, `CREATE TEMP TABLE live_states_scratch (id INTEGER PRIMARY KEY)`); err != nil {
		return storeErrorf("redirectAndPrune: create scratch", err)
	}

	insert, err := tx.PrepareContext(ctx, `INSERT INTO live_states_scratch(id) VALUES (?)`)
	if err != nil {
		return storeErrorf("redirectAndPrune: prepare insert", err)
	}
	for i, ok := live.NextSet(0); ok; i, ok = live.NextSet(i + 1) {
		if _, err := insert.ExecContext(ctx, int64(i)); err != nil {
			insert.Close()
			return storeErrorf("redirectAndPrune: insert scratch row", err)
		}
	}
	insert.Close()

	if _, err := tx.ExecContext(ctx, `
UPDATE transitions SET dst = ?
WHERE dst IS NOT NULL AND dst NOT IN (SELECT id FROM live_states_scratch)`, deadStateID); err != nil {
		return storeErrorf("redirectAndPrune: redirect", err)
	}

	if _, err := tx.ExecContext(ctx, `
DELETE FROM states
WHERE id NOT IN (SELECT id FROM live_states_scratch) AND id != ?`, deadStateID); err != nil {
		return storeErrorf("redirectAndPrune: prune", err)
	}

	if _, err := tx.ExecContext(ctx, `DROP TABLE live_states_scratch`); err != nil {
		return storeErrorf("redirectAndPrune: drop scratch", err)
	}
	return nil
}
