// ABOUTME: Thread-safe set of remote identifiers already transferred
// ABOUTME: Read by callers while the coordinator goroutine marks new entries

package artifact

import (
	"sort"
	"sync"
)

// syncedSet records remote identifiers that were pulled successfully.
// Entries are never evicted: a session's output is bounded and a file must
// not be pulled twice.
type syncedSet struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

func newSyncedSet(ids ...string) *syncedSet {
	s := &syncedSet{seen: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.seen[id] = struct{}{}
	}
	return s
}

// Check reports whether id has been transferred.
func (s *syncedSet) Check(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[id]
	return ok
}

// Mark records id as transferred.
func (s *syncedSet) Mark(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[id] = struct{}{}
}

// Len returns the number of transferred identifiers.
func (s *syncedSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}

// List returns the identifiers in sorted order.
func (s *syncedSet) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.seen))
	for id := range s.seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
