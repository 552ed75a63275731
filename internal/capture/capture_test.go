package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap_RecordIdempotent(t *testing.T) {
	m := NewMap()

	assert.True(t, m.Record(3, KeyRepeat))
	assert.False(t, m.Record(3, KeyRepeat))
	assert.False(t, m.Record(3, KeyRepeat))

	// A different key for the same trial is still new.
	assert.True(t, m.Record(3, KeyCue))

	assert.True(t, m.Has(3, KeyRepeat))
	assert.True(t, m.Has(3, KeyCue))
	assert.Equal(t, 1, m.Len())
}

func TestMap_ResponseIsolation(t *testing.T) {
	m := NewMap()
	m.Record(5, KeyRepeat)

	// Vacating trial 5 drops its responses before index 5 can recur.
	m.Drop(5)

	assert.False(t, m.Has(5, KeyRepeat))
	assert.True(t, m.Record(5, KeyRepeat), "a fresh visit records cleanly")
}

func TestMap_DropUnknownIndex(t *testing.T) {
	m := NewMap()
	m.Drop(99) // no-op
	assert.Equal(t, 0, m.Len())
}

func TestMap_Reset(t *testing.T) {
	m := NewMap()
	m.Record(0, KeyRepeat)
	m.Record(1, KeyCue)

	m.Reset()

	assert.Equal(t, 0, m.Len())
	assert.False(t, m.Has(0, KeyRepeat))
	assert.False(t, m.Has(1, KeyCue))
}
