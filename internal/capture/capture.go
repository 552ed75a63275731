// Package capture records keypress responses keyed by trial index. Recording
// is idempotent per (index, key), and an index's responses are dropped the
// moment that index is vacated so a late press for trial N can never be
// counted against trial N+1.
package capture

// Key identifies one of the two meaningful response keys.
type Key string

const (
	// KeyRepeat signals "I detected a 1-back repeat".
	KeyRepeat Key = "repeat"

	// KeyCue signals "I detected a prospective-memory cue".
	KeyCue Key = "cue"
)

// Map stores observed response keys per trial index. It is not safe for
// concurrent use; the session controller serializes all access.
type Map struct {
	byIndex map[int]map[Key]struct{}
}

// NewMap creates an empty response map.
func NewMap() *Map {
	return &Map{byIndex: make(map[int]map[Key]struct{})}
}

// Record notes a response key for a trial index. Returns true when this is
// the first time the key was seen for the index; repeated presses of the
// same key within one trial add nothing.
func (m *Map) Record(index int, key Key) bool {
	keys, ok := m.byIndex[index]
	if !ok {
		keys = make(map[Key]struct{}, 2)
		m.byIndex[index] = keys
	}
	if _, seen := keys[key]; seen {
		return false
	}
	keys[key] = struct{}{}
	return true
}

// Has reports whether a key was recorded for a trial index.
func (m *Map) Has(index int, key Key) bool {
	_, ok := m.byIndex[index][key]
	return ok
}

// Drop prunes all responses recorded for a trial index. Called when the
// index is vacated, before it can become current again.
func (m *Map) Drop(index int) {
	delete(m.byIndex, index)
}

// Reset clears the map for a block transition.
func (m *Map) Reset() {
	m.byIndex = make(map[int]map[Key]struct{})
}

// Len returns the number of trial indices with at least one response.
func (m *Map) Len() int {
	return len(m.byIndex)
}
