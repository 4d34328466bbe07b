package subsetfa

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	"github.com/mattn/go-sqlite3"
)

// driverName is registered once, on the first openStore call, with a
// ConnectHook that wires VertexSetAgg (through vertexSetAggSQL) into every
// connection this package opens. §4.1
// requires the codec be "invocable inside the store as a user-defined
// aggregate finalizer"; RegisterAggregator is mattn/go-sqlite3's mechanism
// for that. Per §9's design note on oracle callbacks, nothing else is
// registered here — nullable/matches/accepts oracles are never invoked by
// the store, only by host code at load and cleanup time (see loader.go,
// reducer.go), so there is no builder back-reference for the store to
// accidentally outlive.
const driverName = "sqlite3_subsetfa"

var registerOnce sync.Once

// vertexSetAggSQL is the type registered as vertex_set_encode.
// mattn/go-sqlite3 converts aggregate arguments to scalar kinds or
// interface{}, never to pointers, so its Step takes interface{}: an
// INTEGER argument arrives as int64 and is passed on to VertexSetAgg.Step;
// a NULL argument (a nil []byte) is ignored. Done is VertexSetAgg's.
type vertexSetAggSQL struct {
	VertexSetAgg
}

func (a *vertexSetAggSQL) Step(v interface{}) {
	if id, ok := v.(int64); ok {
		a.VertexSetAgg.Step(&id)
	}
}

func registerDriver() {
	registerOnce.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				if err := conn.RegisterAggregator("vertex_set_encode", func() *vertexSetAggSQL {
					return &vertexSetAggSQL{}
				}, true); err != nil {
					return err
				}
				_, err := conn.Exec("PRAGMA foreign_keys = ON", nil)
				return err
			},
		})
	})
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS alphabet (
	input INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS vertices (
	id       INTEGER PRIMARY KEY,
	nullable INTEGER NOT NULL CHECK (nullable IN (0, 1))
);

CREATE TABLE IF NOT EXISTS edges (
	src INTEGER NOT NULL REFERENCES vertices(id),
	dst INTEGER NOT NULL REFERENCES vertices(id),
	UNIQUE (src, dst)
);
CREATE INDEX IF NOT EXISTS edges_src_idx ON edges(src);

CREATE TABLE IF NOT EXISTS matches (
	vertex INTEGER NOT NULL REFERENCES vertices(id),
	input  INTEGER NOT NULL REFERENCES alphabet(input),
	UNIQUE (vertex, input)
);
CREATE INDEX IF NOT EXISTS matches_vertex_input_idx ON matches(vertex, input);

CREATE TABLE IF NOT EXISTS closure (
	root      INTEGER NOT NULL REFERENCES vertices(id),
	reachable INTEGER NOT NULL REFERENCES vertices(id),
	UNIQUE (root, reachable)
);
CREATE INDEX IF NOT EXISTS closure_root_idx ON closure(root);

CREATE TABLE IF NOT EXISTS states (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	vertex_str TEXT NOT NULL UNIQUE,
	hash_hint  INTEGER NOT NULL,
	distance   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS states_hash_hint_idx ON states(hash_hint);

CREATE TABLE IF NOT EXISTS state_vertices (
	state_id  INTEGER NOT NULL REFERENCES states(id) ON DELETE CASCADE,
	vertex_id INTEGER NOT NULL,
	UNIQUE (state_id, vertex_id)
);
CREATE INDEX IF NOT EXISTS state_vertices_vertex_idx ON state_vertices(vertex_id);

CREATE TABLE IF NOT EXISTS transitions (
	src   INTEGER NOT NULL REFERENCES states(id) ON DELETE CASCADE,
	input INTEGER NOT NULL,
	dst   INTEGER REFERENCES states(id) ON DELETE CASCADE,
	UNIQUE (src, input)
);
CREATE INDEX IF NOT EXISTS transitions_pending_idx ON transitions(src, input) WHERE dst IS NULL;
`

// store wraps the *sql.DB backing a Builder. It owns schema creation and
// the handful of cross-cutting helpers (transaction wrapper, backup) that
// every component in this package rides on.
type store struct {
	db     *sql.DB
	logger Logger
}

func openStore(ctx context.Context, dsn string, logger Logger) (*store, error) {
	registerDriver()

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, storeErrorf("open", err)
	}
	// The core is single-threaded cooperative (§5): one connection is
	// exactly the right amount of concurrency, and it keeps an
	// in-memory DSN's data from being invisible across pooled
	// connections.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, storeErrorf("pragma foreign_keys", err)
	}
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		db.Close()
		return nil, storeErrorf("schema", err)
	}
	return &store{db: db, logger: logger}, nil
}

func (s *store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction (SQLite's default deferred BEGIN, on
// the store's single connection) and commits iff fn returns nil. Per §5: "If a call fails mid-way, the store must be
// left as if the call never began" — this is what makes every exported
// Builder method atomic.
func (s *store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErrorf(op, err)
	}
	if err := fn(tx); err != nil {
		s.logger.Debugf("subsetfa: %s failed, rolling back: %v", op, err)
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Errorf("subsetfa: %s rollback failed: %v", op, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErrorf(op, err)
	}
	return nil
}

// backupToFile snapshots the entire store to path using SQLite's online
// backup API, per §6. "v0" is the only version this schema understands;
// anything else is a fatal, non-recoverable caller error (§7).
func (s *store) backupToFile(version, path string) error {
	if version != "v0" {
		return &VersionError{Got: version}
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return storeErrorf("backup", err)
	}

	destDSN := fmt.Sprintf("file:%s", path)
	destDB, err := sql.Open(driverName, destDSN)
	if err != nil {
		return storeErrorf("backup", err)
	}
	defer destDB.Close()

	srcConn, err := s.db.Conn(context.Background())
	if err != nil {
		return storeErrorf("backup", err)
	}
	defer srcConn.Close()

	destConn, err := destDB.Conn(context.Background())
	if err != nil {
		return storeErrorf("backup", err)
	}
	defer destConn.Close()

	var backupErr error
	rawErr := destConn.Raw(func(destDriverConn interface{}) error {
		return srcConn.Raw(func(srcDriverConn interface{}) error {
			srcSQLite, ok := srcDriverConn.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("subsetfa: unexpected source driver connection type %T", srcDriverConn)
			}
			destSQLite, ok := destDriverConn.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("subsetfa: unexpected destination driver connection type %T", destDriverConn)
			}

			backup, err := destSQLite.Backup("main", srcSQLite, "main")
			if err != nil {
				return err
			}
			defer backup.Close()

			done, err := backup.Step(-1)
			if err != nil {
				backupErr = err
				return nil
			}
			if !done {
				backupErr = fmt.Errorf("subsetfa: backup did not complete in one step")
				return nil
			}
			return backup.Finish()
		})
	})
	if rawErr != nil {
		return storeErrorf("backup", rawErr)
	}
	if backupErr != nil {
		return storeErrorf("backup", backupErr)
	}
	return nil
}
