// Package generation stamps asynchronous requests so that only the response
// to the most recent request in each category is applied.
package generation

import "sync"

// Category groups requests that supersede one another.
type Category string

const (
	// Selection covers every request that moves the selected anchor: alert
	// queries, lookups, row clicks and node clicks.
	Selection Category = "selection"
	Graph     Category = "graph"
	Notes     Category = "notes"
)

// Stamp identifies one issued request.
type Stamp struct {
	Category Category
	Seq      uint64
}

// Tracker issues monotonically increasing stamps per category.
type Tracker struct {
	mu     sync.Mutex
	latest map[Category]uint64
}

// NewTracker creates a tracker.
func NewTracker() *Tracker {
	return &Tracker{latest: make(map[Category]uint64)}
}

// Next issues a new stamp for c, superseding every earlier one.
func (t *Tracker) Next(c Category) Stamp {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latest[c]++
	return Stamp{Category: c, Seq: t.latest[c]}
}

// IsLatest reports whether s is still the newest stamp of its category.
func (t *Tracker) IsLatest(s Stamp) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest[s.Category] == s.Seq
}

// Invalidate supersedes any in-flight request in the given categories
// without issuing a stamp for a new one.
func (t *Tracker) Invalidate(cs ...Category) {
	t.mu.Lock()
	t.invalidateLocked(cs)
	t.mu.Unlock()
}

// Apply runs fn only if s is still the newest stamp of its category, and
// supersedes the invalidate categories in the same critical section. No
// stamp can be issued between the check and fn. fn must not call back into
// the tracker.
func (t *Tracker) Apply(s Stamp, fn func(), invalidate ...Category) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latest[s.Category] != s.Seq {
		return false
	}
	t.invalidateLocked(invalidate)
	fn()
	return true
}

// Supersede runs fn atomically with respect to Apply and invalidates cs
// when fn reports that it changed anything. fn must not call back into the
// tracker.
func (t *Tracker) Supersede(fn func() bool, cs ...Category) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fn() {
		t.invalidateLocked(cs)
	}
}

func (t *Tracker) invalidateLocked(cs []Category) {
	for _, c := range cs {
		t.latest[c]++
	}
}
