// Package keys tracks which keyboard keys are held and streams that state.
//
// The held set is fed by a process-wide key hook (gohook) that is wrapped in an
// owned handle, and sampled at a fixed cadence by the Sampler.
package keys

import (
	"sort"
	"strings"
	"sync"
)

// State is the set of currently held key names. Safe for concurrent use.
type State struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewState returns an empty key state.
func NewState() *State {
	return &State{held: make(map[string]struct{})}
}

// Press adds name to the held set.
func (s *State) Press(name string) {
	if name == "" {
		return
	}
	s.mu.Lock()
	s.held[name] = struct{}{}
	s.mu.Unlock()
}

// Release removes name from the held set.
func (s *State) Release(name string) {
	s.mu.Lock()
	delete(s.held, name)
	s.mu.Unlock()
}

// Clear empties the held set.
func (s *State) Clear() {
	s.mu.Lock()
	clear(s.held)
	s.mu.Unlock()
}

// Held returns the held key names sorted lexicographically.
func (s *State) Held() []string {
	s.mu.Lock()
	names := make([]string, 0, len(s.held))
	for name := range s.held {
		names = append(names, name)
	}
	s.mu.Unlock()
	sort.Strings(names)
	return names
}

// Serialize renders the held set as the wire payload.
func (s *State) Serialize(sep, empty string) string {
	return Serialize(s.Held(), sep, empty)
}

// Serialize joins names in sorted order with sep, or returns empty when there are none.
// The result depends only on the set of names, not on their order.
func Serialize(names []string, sep, empty string) string {
	if len(names) == 0 {
		return empty
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return strings.Join(sorted, sep)
}
