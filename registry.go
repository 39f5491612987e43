package resweep

import (
	"sort"
	"sync"
	"time"
)

// registry is the in-memory table of registered resources, keyed by ID.
// Pure data: insert, remove, list. The Manager decides when mutations are
// allowed; the registry itself only guards against races.
type registry struct {
	mu      sync.RWMutex
	entries map[string]*Resource
	nextSeq uint64
}

func newRegistry() *registry {
	return &registry{
		entries: make(map[string]*Resource),
	}
}

// insert adds or overwrites an entry by ID, stamping CreatedAt and the
// registration sequence. Returns whether an existing entry was replaced.
func (r *registry) insert(res *Resource) (overwrote bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, overwrote = r.entries[res.ID]
	r.nextSeq++
	res.seq = r.nextSeq
	res.CreatedAt = time.Now()
	r.entries[res.ID] = res
	return overwrote
}

// remove deletes an entry without invoking its cleanup.
// Returns whether the entry existed.
func (r *registry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entries[id]
	delete(r.entries, id)
	return ok
}

// get returns the entry for id, if present.
func (r *registry) get(id string) (Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.entries[id]
	if !ok {
		return Resource{}, false
	}
	return *res, true
}

// list returns a snapshot of all entries in registration order.
func (r *registry) list() []Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Resource, 0, len(r.entries))
	for _, res := range r.entries {
		out = append(out, *res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// listByType returns a snapshot of entries of one type, in registration
// order.
func (r *registry) listByType(t ResourceType) []Resource {
	var out []Resource
	for _, res := range r.list() {
		if res.Type == t {
			out = append(out, res)
		}
	}
	return out
}

// clear removes all entries.
func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*Resource)
}

// size returns the number of live entries.
func (r *registry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
