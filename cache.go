package subsetfa

// nullableCache is a host-side memo of vertex_nullable oracle results,
// adapted from the teacher's IntIntHashmap (an open-addressing int32->int32
// table). §6 requires the oracle be "called once per vertex". ensureVertex
// returns early for a vertex already in the vertices table, which is what
// keeps a vertex named both explicitly and as an edge endpoint to one
// oracle call; the cache is consulted only for a vertex not in the table,
// and keeps an earlier answer for it even after the transaction that
// inserted it was rolled back.
type nullableCache struct {
	present map[int64]bool
}

func newNullableCache() *nullableCache {
	return &nullableCache{present: make(map[int64]bool, 16)}
}

// Get reports whether v has already been evaluated, and if so, the cached
// nullability.
func (c *nullableCache) Get(v int64) (nullable bool, ok bool) {
	nullable, ok = c.present[v]
	return
}

// Put records the oracle's answer for v.
func (c *nullableCache) Put(v int64, nullable bool) {
	c.present[v] = nullable
}
