package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zrps/gateway/internal/protocol"
)

func TestTickStrictlyMonotonic(t *testing.T) {
	w := New(100, 100, nil)
	prev := w.Tick()
	for i := 0; i < 256; i++ {
		next := w.Advance()
		require.Equal(t, prev+1, next, "tick must advance by exactly one")
		prev = next
	}
}

func TestAdoptTickNeverDecreases(t *testing.T) {
	w := New(100, 100, nil)
	w.AdoptTick(50)
	assert.Equal(t, uint64(50), w.Tick())
	w.AdoptTick(10)
	assert.Equal(t, uint64(50), w.Tick())
}

func TestEntityIDsNeverReused(t *testing.T) {
	w := New(100, 100, nil)
	require.True(t, w.Spawn("e1", nil))
	assert.False(t, w.Spawn("e1", nil), "duplicate id must be refused")

	require.True(t, w.Remove("e1"))
	assert.False(t, w.Spawn("e1", nil), "removed ids must not come back")
}

func TestSeededWorldSnapshotIsACopy(t *testing.T) {
	seed := []protocol.EntitySnapshot{
		{ID: "rock", Attributes: map[string]any{"x": float64(3)}},
	}
	w := New(100, 100, seed)

	snap := w.Snapshot()
	require.Len(t, snap, 1)
	snap[0].Attributes["x"] = float64(99)

	assert.True(t, w.Mutate("rock", func(e *Entity) {
		assert.Equal(t, float64(3), e.Float("x"), "snapshot mutation must not leak into the world")
	}))
}

func TestDrainDeleted(t *testing.T) {
	w := New(100, 100, nil)
	w.Spawn("a", nil)
	w.Spawn("b", nil)
	w.Remove("a")

	assert.Equal(t, []string{"a"}, w.DrainDeleted())
	assert.Nil(t, w.DrainDeleted(), "drain must clear the pending list")
}

func TestMutateAbsentEntityIsNoop(t *testing.T) {
	w := New(100, 100, nil)
	called := false
	ok := w.Mutate("ghost", func(*Entity) { called = true })
	assert.False(t, ok)
	assert.False(t, called)
}

func TestEntityFloatCoercions(t *testing.T) {
	e := &Entity{Attrs: map[string]any{"a": 2, "b": int64(3), "c": float32(4), "d": "nope"}}
	assert.Equal(t, float64(2), e.Float("a"))
	assert.Equal(t, float64(3), e.Float("b"))
	assert.Equal(t, float64(4), e.Float("c"))
	assert.Equal(t, float64(0), e.Float("d"))
	assert.Equal(t, float64(0), e.Float("missing"))
}
