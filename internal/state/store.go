package state

import "sync"

// Store is the ordered annotation sequence of one document. Insertion order is
// z-order: later annotations draw on top. Only the last annotation can be removed.
type Store struct {
	mu    sync.RWMutex
	items []Annotation
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{items: make([]Annotation, 0)}
}

// Append adds a on top. Non-finite geometry is the only thing rejected.
func (s *Store) Append(a Annotation) error {
	if a == nil || !a.Finite() {
		return ErrInvalidGeometry
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, a)
	return nil
}

// RemoveLast pops the most recently appended annotation. It is a no-op on an
// empty store; the boolean reports whether anything was removed.
func (s *Store) RemoveLast() (Annotation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.items)
	if n == 0 {
		return nil, false
	}
	last := s.items[n-1]
	s.items[n-1] = nil
	s.items = s.items[:n-1]
	return last, true
}

// ReplaceAll swaps the whole sequence in one step.
func (s *Store) ReplaceAll(list []Annotation) {
	items := make([]Annotation, len(list))
	copy(items, list)
	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
}

// ToArray returns an ordered copy.
func (s *Store) ToArray() []Annotation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Annotation, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of annotations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
