package bookmark

import "sync"

// Tracker keeps the latest bookmark Set per logical session key.
type Tracker struct {
	mu   sync.RWMutex
	sets map[string]Set
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{sets: make(map[string]Set)}
}

// Current returns the bookmarks to seed the next transaction on key with.
func (t *Tracker) Current(key string) Set {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.sets[key]
}

// Update records the bookmarks produced by a committed transaction that was seeded with seeded.
//
// The seeded tokens are superseded by the produced ones; tokens added concurrently by other
// transactions on the same key are kept. An empty produced set (a transport without bookmarks)
// leaves the tracker untouched. Returns the new current set.
func (t *Tracker) Update(key string, seeded, produced Set) Set {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.sets[key]
	if produced.IsEmpty() {
		return current
	}

	next := current.Without(seeded).Union(produced)
	t.sets[key] = next

	return next
}

// Replace sets the bookmarks of key wholesale, e.g. from a bookmark handed over by another process.
func (t *Tracker) Replace(key string, set Set) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if set.IsEmpty() {
		delete(t.sets, key)
		return
	}

	t.sets[key] = set
}

// Reset forgets the bookmarks of key.
func (t *Tracker) Reset(key string) {
	t.Replace(key, Set{})
}
