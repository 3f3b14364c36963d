package params

import "sync"

// Store guards a Parameters value shared between the render loop, keyboard
// input, and web handlers. Reads return deep copies.
type Store struct {
	mu sync.RWMutex
	p  Parameters
}

// NewStore wraps an initial configuration.
func NewStore(p Parameters) *Store {
	p.Normalize()
	return &Store{p: p.Clone()}
}

// Parameters returns a consistent copy of the current configuration.
func (s *Store) Parameters() Parameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p.Clone()
}

// Update applies fn under the write lock and refreshes derived band resolutions.
func (s *Store) Update(fn func(p *Parameters)) Parameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.p)
	s.p.UpdateResolution()
	return s.p.Clone()
}

// Replace swaps in a whole new configuration.
func (s *Store) Replace(p Parameters) {
	p.Normalize()
	s.mu.Lock()
	s.p = p.Clone()
	s.mu.Unlock()
}
