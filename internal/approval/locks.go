package approval

import (
	"hash/fnv"
	"sync"
)

// keyedMutex serializes work per request id. SQLite offers no row-level
// SELECT FOR UPDATE, so decisions on the same request are serialized in
// process and the version column catches anything that slips past.
type keyedMutex struct {
	stripes [64]sync.Mutex
}

func (m *keyedMutex) lock(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	mu := &m.stripes[h.Sum32()%uint32(len(m.stripes))]
	mu.Lock()
	return mu
}
