// Package params is the mirrored parameter store for one camera: every
// control and status value the driver surfaces lives here as a named typed
// slot with change notification. The driver writes to it after each
// attribute round-trip; it is never authoritative input except for pending
// user writes.
package params

import "sync"

// ChangeFunc receives the name and new value of a slot that changed.
type ChangeFunc func(name string, value any)

// Store holds typed named slots. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	ints    map[string]int
	floats  map[string]float64
	strings map[string]string
	subs    map[int]ChangeFunc
	nextSub int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		ints:    make(map[string]int),
		floats:  make(map[string]float64),
		strings: make(map[string]string),
		subs:    make(map[int]ChangeFunc),
	}
}

// Subscribe registers a change callback and returns a cancel function.
// Callbacks fire outside the store lock, only when a value actually changes.
func (s *Store) Subscribe(fn ChangeFunc) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(name string, value any) {
	s.mu.RLock()
	fns := make([]ChangeFunc, 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(name, value)
	}
}

// SetInt writes an integer slot.
func (s *Store) SetInt(name string, value int) {
	s.mu.Lock()
	old, existed := s.ints[name]
	s.ints[name] = value
	s.mu.Unlock()
	if !existed || old != value {
		s.notify(name, value)
	}
}

// Int reads an integer slot, zero if unset.
func (s *Store) Int(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ints[name]
}

// LookupInt reads an integer slot and whether it was ever written.
func (s *Store) LookupInt(name string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.ints[name]
	return v, ok
}

// SetFloat writes a float slot.
func (s *Store) SetFloat(name string, value float64) {
	s.mu.Lock()
	old, existed := s.floats[name]
	s.floats[name] = value
	s.mu.Unlock()
	if !existed || old != value {
		s.notify(name, value)
	}
}

// Float reads a float slot, zero if unset.
func (s *Store) Float(name string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.floats[name]
}

// SetString writes a string slot.
func (s *Store) SetString(name, value string) {
	s.mu.Lock()
	old, existed := s.strings[name]
	s.strings[name] = value
	s.mu.Unlock()
	if !existed || old != value {
		s.notify(name, value)
	}
}

// String reads a string slot, empty if unset.
func (s *Store) String(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.strings[name]
}

// Snapshot returns a copy of every slot keyed by name.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.ints)+len(s.floats)+len(s.strings))
	for k, v := range s.ints {
		out[k] = v
	}
	for k, v := range s.floats {
		out[k] = v
	}
	for k, v := range s.strings {
		out[k] = v
	}
	return out
}
