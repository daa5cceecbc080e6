package game

import (
	"context"
	"math"
	"time"

	"github.com/zrps/gateway/internal/protocol"
	"github.com/zrps/gateway/internal/world"
)

const (
	// moveSpeed is the per-input displacement magnitude.
	moveSpeed = 5.0
	// markerScale converts minimap marker coordinates to world units.
	markerScale = 4.0
	// fireCooldown is the intended debounce window between shots.
	fireCooldown = 250 * time.Millisecond

	// debugChatCommand is the reserved chat string for the operator cheat
	// mutation. Only honored when config.Game.DebugCommands is set.
	debugChatCommand = "#debug"
)

// FireGuard decides whether a fire input passes the debounce. lastFire is the
// time the guard last fired.
type FireGuard func(now, lastFire time.Time) bool

// FireGuardObserved keeps the shipped behavior: the guard always passes.
// Stays the default pending a product decision.
func FireGuardObserved(now, lastFire time.Time) bool {
	return true
}

// FireGuardCooldown is the corrected rule: a shot only registers once the
// cooldown window has elapsed.
func FireGuardCooldown(now, lastFire time.Time) bool {
	return now.Sub(lastFire) >= fireCooldown
}

// HandlerFunc mutates the connection's world and/or emits outbound RPCs in
// response to one decoded call. Handlers run synchronously on the read path.
type HandlerFunc func(ctx context.Context, c *Conn, rpc *protocol.RPC)

// Dispatcher routes decoded RPCs by name. Unknown or undecodable calls are
// silently ignored; they are not errors.
type Dispatcher struct {
	handlers  map[string]HandlerFunc
	fireGuard FireGuard

	// DataBlobs are the compressed data payloads streamed during the
	// second-stage platform negotiation.
	DataBlobs [][]byte
}

// NewDispatcher builds a dispatcher with the full handler table registered.
func NewDispatcher(fireGuard FireGuard) *Dispatcher {
	if fireGuard == nil {
		fireGuard = FireGuardObserved
	}
	d := &Dispatcher{
		handlers:  make(map[string]HandlerFunc),
		fireGuard: fireGuard,
	}
	d.handlers["startStream"] = handleStartStream
	d.handlers["selectPlatform"] = d.handleSelectPlatform
	d.handlers["sendChat"] = handleChat
	d.handlers["equipItem"] = handleEquip
	d.handlers["setLoadout"] = handleLoadout
	d.handlers["placeMarker"] = handleMarker
	d.handlers["emote"] = handleEmote
	d.handlers["changeSkin"] = handleSkin
	d.handlers["input"] = d.handleInput
	return d
}

// Dispatch decodes one keyed RPC payload and routes it. Decode failures and
// unresolved names are no-ops.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Conn, payload []byte) {
	c.mu.Lock()
	key, platform := c.key, c.platform
	c.mu.Unlock()

	rpc, err := c.codec.DecodeRPC(key, platform, payload)
	if err != nil || rpc == nil || rpc.Name == "" {
		c.log.Debug("undecodable rpc ignored")
		return
	}
	h, ok := d.handlers[rpc.Name]
	if !ok {
		c.log.WithField("rpc", rpc.Name).Debug("unknown rpc ignored")
		return
	}
	h(ctx, c, rpc)
}

// emitRPC encodes and sends one outbound RPC on the connection.
func emitRPC(ctx context.Context, c *Conn, name string, params map[string]any) {
	c.mu.Lock()
	key, platform := c.key, c.platform
	c.mu.Unlock()

	encoded, err := c.codec.EncodeRPC(key, platform, name, params)
	if err != nil {
		c.log.WithError(err).WithField("rpc", name).Warn("failed to encode rpc")
		return
	}
	if err := c.send(ctx, encoded); err != nil {
		c.log.WithError(err).WithField("rpc", name).Debug("failed to send rpc")
	}
}

func handleStartStream(ctx context.Context, c *Conn, _ *protocol.RPC) {
	c.startStream(ctx)
}

// handleSelectPlatform is the second-stage platform negotiation: it streams
// every data blob the client needs, then the game status, the data-finished
// marker, the baseline inventory and a player-count summary.
func (d *Dispatcher) handleSelectPlatform(ctx context.Context, c *Conn, _ *protocol.RPC) {
	w := c.World()
	if w == nil || !w.Has(c.ID()) {
		return
	}
	for i, blob := range d.DataBlobs {
		emitRPC(ctx, c, "dataBlob", map[string]any{"index": i, "data": blob})
	}
	emitRPC(ctx, c, "gameStatus", map[string]any{"status": "lobby"})
	emitRPC(ctx, c, "dataFinished", nil)
	emitRPC(ctx, c, "inventory", map[string]any{"items": []any{}})
	emitRPC(ctx, c, "playerCount", map[string]any{"count": 1})
}

// handleChat echoes the message back to the sender. The reserved debug
// command mutates the caller's entity, and only when the gateway runs with
// debug commands enabled.
func handleChat(ctx context.Context, c *Conn, rpc *protocol.RPC) {
	w := c.World()
	if w == nil {
		return
	}
	msg, _ := rpc.Params["message"].(string)

	if msg == debugChatCommand && c.cfg.DebugCommands {
		w.Mutate(c.ID(), func(e *world.Entity) {
			e.Attrs["resources"] = float64(999999)
			e.Attrs["god"] = true
			e.Attrs["health"] = float64(100)
		})
		return
	}

	if !w.Has(c.ID()) {
		return
	}
	emitRPC(ctx, c, "receiveChat", map[string]any{
		"from":    c.ID(),
		"message": msg,
	})
}

func handleEquip(ctx context.Context, c *Conn, rpc *protocol.RPC) {
	w := c.World()
	if w == nil {
		return
	}
	item, _ := rpc.Params["item"].(string)
	if !w.Mutate(c.ID(), func(e *world.Entity) {
		e.Attrs["equipped"] = item
	}) {
		return
	}
	emitRPC(ctx, c, "equipItem", map[string]any{"id": c.ID(), "item": item})
}

func handleLoadout(ctx context.Context, c *Conn, rpc *protocol.RPC) {
	w := c.World()
	if w == nil {
		return
	}
	items, _ := rpc.Params["items"].([]any)
	if !w.Mutate(c.ID(), func(e *world.Entity) {
		e.Attrs["loadout"] = items
	}) {
		return
	}
	emitRPC(ctx, c, "setLoadout", map[string]any{"id": c.ID(), "items": items})
}

// handleMarker rescales minimap coordinates to world units before the echo.
func handleMarker(ctx context.Context, c *Conn, rpc *protocol.RPC) {
	w := c.World()
	if w == nil || !w.Has(c.ID()) {
		return
	}
	x, _ := rpc.Params["x"].(float64)
	y, _ := rpc.Params["y"].(float64)
	emitRPC(ctx, c, "placeMarker", map[string]any{
		"id": c.ID(),
		"x":  x * markerScale,
		"y":  y * markerScale,
	})
}

func handleEmote(ctx context.Context, c *Conn, rpc *protocol.RPC) {
	w := c.World()
	if w == nil {
		return
	}
	emote, _ := rpc.Params["emote"].(string)
	if !w.Mutate(c.ID(), func(e *world.Entity) {
		e.Attrs["emote"] = emote
	}) {
		return
	}
	emitRPC(ctx, c, "emote", map[string]any{"id": c.ID(), "emote": emote})
}

func handleSkin(ctx context.Context, c *Conn, rpc *protocol.RPC) {
	w := c.World()
	if w == nil {
		return
	}
	skin, _ := rpc.Params["skin"].(string)
	if !w.Mutate(c.ID(), func(e *world.Entity) {
		e.Attrs["skin"] = skin
	}) {
		return
	}
	emitRPC(ctx, c, "changeSkin", map[string]any{"id": c.ID(), "skin": skin})
}

// handleInput applies one movement input to the caller's position and runs
// the firing debounce.
func (d *Dispatcher) handleInput(ctx context.Context, c *Conn, rpc *protocol.RPC) {
	w := c.World()
	if w == nil {
		return
	}

	dx, dy := movementDelta(rpc.Params)

	fire, _ := rpc.Params["fire"].(bool)
	now := time.Now()

	w.Mutate(c.ID(), func(e *world.Entity) {
		e.Attrs["x"] = e.Float("x") + dx
		e.Attrs["y"] = e.Float("y") + dy

		if fire {
			c.mu.Lock()
			if d.fireGuard(now, c.lastFire) {
				c.firing = true
				c.lastFire = now
				e.Attrs["firing"] = true
			}
			c.mu.Unlock()
		} else {
			c.mu.Lock()
			c.firing = false
			c.mu.Unlock()
			e.Attrs["firing"] = false
		}
	})
}

// movementDelta computes a displacement from either an explicit angle or the
// four directional flags normalized to constant speed.
func movementDelta(params map[string]any) (float64, float64) {
	if angle, ok := params["angle"].(float64); ok {
		return math.Cos(angle) * moveSpeed, math.Sin(angle) * moveSpeed
	}

	var vx, vy float64
	if up, _ := params["up"].(bool); up {
		vy += 1
	}
	if down, _ := params["down"].(bool); down {
		vy -= 1
	}
	if right, _ := params["right"].(bool); right {
		vx += 1
	}
	if left, _ := params["left"].(bool); left {
		vx -= 1
	}
	mag := math.Hypot(vx, vy)
	if mag == 0 {
		return 0, 0
	}
	return vx / mag * moveSpeed, vy / mag * moveSpeed
}
