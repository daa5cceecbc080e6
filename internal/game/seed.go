package game

import "github.com/zrps/gateway/internal/protocol"

// SeedEntities is the canonical starting snapshot every fresh world is
// populated from before the entrant's own entity is spawned.
func SeedEntities() []protocol.EntitySnapshot {
	return []protocol.EntitySnapshot{
		{ID: "spawn-beacon", Attributes: map[string]any{
			"kind": "beacon",
			"x":    float64(0),
			"y":    float64(0),
		}},
		{ID: "supply-crate-1", Attributes: map[string]any{
			"kind": "crate",
			"x":    float64(512),
			"y":    float64(640),
		}},
		{ID: "supply-crate-2", Attributes: map[string]any{
			"kind": "crate",
			"x":    float64(-768),
			"y":    float64(256),
		}},
	}
}

// playerAttributes is the starting tick state of an entrant's own entity.
func playerAttributes(name string) map[string]any {
	return map[string]any{
		"kind":      "player",
		"name":      name,
		"x":         float64(0),
		"y":         float64(0),
		"health":    float64(100),
		"resources": float64(0),
		"god":       false,
		"firing":    false,
		"skin":      "default",
		"emote":     "",
		"loadout":   []any{},
		"equipped":  "",
	}
}
