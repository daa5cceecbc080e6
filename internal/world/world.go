// Package world holds the per-connection simulation state of the game
// gateway: a monotonic tick counter and the entity table.
package world

import (
	"sync"

	"github.com/zrps/gateway/internal/protocol"
)

// Entity is one simulated object: an id plus a named bag of typed attribute
// values. The attribute shape is defined by the codec's schema.
type Entity struct {
	ID    string
	Attrs map[string]any
}

// Float reads a numeric attribute, tolerating the types JSON-ish codecs
// produce. Missing or non-numeric attributes read as 0.
func (e *Entity) Float(name string) float64 {
	switch v := e.Attrs[name].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// World is created at a successful game-gateway handshake and destroyed on
// disconnect. The tick counter never decreases while the connection is open,
// and only the tick streamer writes it; RPC handlers mutate entities only.
type World struct {
	mu       sync.Mutex
	tick     uint64
	entities map[string]*Entity
	usedIDs  map[string]bool
	deleted  []string

	Width  float64
	Height float64
}

// New builds a world seeded from the canonical starting snapshot.
func New(width, height float64, seed []protocol.EntitySnapshot) *World {
	w := &World{
		entities: make(map[string]*Entity),
		usedIDs:  make(map[string]bool),
		Width:    width,
		Height:   height,
	}
	for _, s := range seed {
		w.Spawn(s.ID, s.Attributes)
	}
	return w
}

// Tick returns the current tick.
func (w *World) Tick() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tick
}

// Advance increments the tick counter by one and returns the new value.
// Only the tick streamer calls this.
func (w *World) Advance() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tick++
	return w.tick
}

// AdoptTick fast-forwards the counter to the baseline snapshot's tick when a
// stream starts. The counter never moves backwards.
func (w *World) AdoptTick(tick uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if tick > w.tick {
		w.tick = tick
	}
}

// Spawn creates an entity. Ids are caller-assigned and never reused within a
// world's lifetime; a reused or duplicate id is refused.
func (w *World) Spawn(id string, attrs map[string]any) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.usedIDs[id] {
		return false
	}
	if attrs == nil {
		attrs = make(map[string]any)
	}
	w.usedIDs[id] = true
	w.entities[id] = &Entity{ID: id, Attrs: attrs}
	return true
}

// Remove deletes an entity and records the deletion for the next delta.
func (w *World) Remove(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.entities[id]; !ok {
		return false
	}
	delete(w.entities, id)
	w.deleted = append(w.deleted, id)
	return true
}

// Has reports whether the entity currently exists.
func (w *World) Has(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.entities[id]
	return ok
}

// Mutate runs fn against the entity under the world lock. Reports false (and
// does not call fn) when the entity is absent, which handlers treat as a
// no-op.
func (w *World) Mutate(id string, fn func(*Entity)) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entities[id]
	if !ok {
		return false
	}
	fn(e)
	return true
}

// Snapshot copies the entity table for broadcasting outside the lock.
func (w *World) Snapshot() []protocol.EntitySnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]protocol.EntitySnapshot, 0, len(w.entities))
	for _, e := range w.entities {
		attrs := make(map[string]any, len(e.Attrs))
		for k, v := range e.Attrs {
			attrs[k] = v
		}
		out = append(out, protocol.EntitySnapshot{ID: e.ID, Attributes: attrs})
	}
	return out
}

// DrainDeleted returns and clears the ids removed since the last delta.
func (w *World) DrainDeleted() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	d := w.deleted
	w.deleted = nil
	return d
}
