package timer

import (
	"sort"
	"sync"
)

// Registry holds backend factories ordered by priority. It is an explicit,
// dependency-injected object: each host integration constructs its own and
// hands it to the timers it owns, so independent hosts in one process can
// carry different backend sets and tests stay isolated.
type Registry struct {
	mu      sync.Mutex
	entries []regEntry
	seq     int
}

type regEntry struct {
	name     string
	priority int
	seq      int
	factory  func() Backend
}

// Entry is a read-only view of one registration, in selection order.
type Entry struct {
	Name     string
	Priority int
	// Seq is the registration order, starting at 0. It breaks priority
	// ties: the earlier registration wins.
	Seq int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// NewDefaultRegistry returns a registry preloaded with the goroutine backend
// at priority 0, so auto-selection always has a fallback.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("goroutine", 0, func() Backend { return GoroutineBackend{} })
	return r
}

// Register adds a backend factory under name with the given priority.
// Factories are invoked lazily at selection time so registration itself has
// no side effects. Must be called before a timer using this registry starts
// for the change to affect that timer.
func (r *Registry) Register(name string, priority int, factory func() Backend) {
	if factory == nil {
		return
	}
	r.mu.Lock()
	r.entries = append(r.entries, regEntry{name: name, priority: priority, seq: r.seq, factory: factory})
	r.seq++
	r.mu.Unlock()
}

// Select instantiates candidates in descending priority order (insertion
// order breaks ties) and returns the first whose Available() reports true.
// An unavailable backend is routine, not an error; only the case where no
// candidate is available surfaces as one.
func (r *Registry) Select() (Backend, error) {
	for _, e := range r.sorted() {
		b := e.factory()
		if b != nil && b.Available() {
			return b, nil
		}
	}
	return nil, noBackendError{}
}

// Entries returns the registrations in selection order, for determinism
// inspection and logging.
func (r *Registry) Entries() []Entry {
	sorted := r.sorted()
	out := make([]Entry, 0, len(sorted))
	for _, e := range sorted {
		out = append(out, Entry{Name: e.name, Priority: e.priority, Seq: e.seq})
	}
	return out
}

func (r *Registry) sorted() []regEntry {
	r.mu.Lock()
	entries := make([]regEntry, len(r.entries))
	copy(entries, r.entries)
	r.mu.Unlock()
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority > entries[j].priority
		}
		return entries[i].seq < entries[j].seq
	})
	return entries
}
