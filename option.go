package subsetfa

import (
	"fmt"
	"sync/atomic"
)

// Option configures a Builder at construction time. The pattern is the
// teacher's map.go options idiom (optionsHashMap / OptionsHashMap /
// WithCapacity), generalized from one option to several.
type Option func(*options)

type options struct {
	vertices   []int64
	edges      [][2]int64
	storageDSN string
	logger     Logger
	workLimit  int
}

// anonymousDBCounter gives every Builder opened without WithStorageDSN its
// own SQLite database name. "file::memory:?cache=shared" is SQLite's
// documented idiom for an *anonymous shared-cache* database — anonymous
// meaning every connection that opens that exact URI shares the same
// underlying database, not a fresh one per open. Using the literal string
// as a default would make two unrelated Builders in the same process
// silently share one store, violating §5's "the store handle is exclusive
// to one builder". Naming each default database uniquely avoids that
// while still going through cache=shared, matching SetMaxOpenConns(1) with
// a harmless no-op on data isolation (a lone connection, or none, ever
// touches any given name).
var anonymousDBCounter atomic.Int64

func defaultStorageDSN() string {
	n := anonymousDBCounter.Add(1)
	return fmt.Sprintf("file:subsetfa-anon-%d?mode=memory&cache=shared", n)
}

func newOptions(opts ...Option) *options {
	o := &options{
		storageDSN: defaultStorageDSN(),
		logger:     NopLogger{},
		workLimit:  1000,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithVertices supplies the optional input_vertices sequence (§6).
// Vertices not listed here may still be auto-registered from edges.
func WithVertices(vertices []int64) Option {
	return func(o *options) { o.vertices = vertices }
}

// WithEdges supplies the input_edges sequence (§6).
func WithEdges(edges [][2]int64) Option {
	return func(o *options) { o.edges = edges }
}

// WithStorageDSN overrides storage_dsn (§6). Default is an ephemeral
// in-memory SQLite database.
func WithStorageDSN(dsn string) Option {
	return func(o *options) { o.storageDSN = dsn }
}

// WithLogger injects the debug/info/warn/error sink (§9: "replace with an
// injected sink handle on the builder"). Default is NopLogger.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithWorkLimit overrides the default limit passed to
// compute_some_transitions when callers use RunToFixpoint. Per §6 the
// per-call default is 1000.
func WithWorkLimit(limit int) Option {
	return func(o *options) {
		if limit > 0 {
			o.workLimit = limit
		}
	}
}
