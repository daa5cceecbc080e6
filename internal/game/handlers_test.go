package game

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zrps/gateway/internal/protocol"
)

func TestMovementDeltaNormalization(t *testing.T) {
	cases := []struct {
		name   string
		params map[string]any
		dx, dy float64
	}{
		{"idle", map[string]any{}, 0, 0},
		{"up", map[string]any{"up": true}, 0, moveSpeed},
		{"left", map[string]any{"left": true}, -moveSpeed, 0},
		{"up right diagonal", map[string]any{"up": true, "right": true},
			moveSpeed / math.Sqrt2, moveSpeed / math.Sqrt2},
		{"down left diagonal", map[string]any{"down": true, "left": true},
			-moveSpeed / math.Sqrt2, -moveSpeed / math.Sqrt2},
		{"opposing flags cancel", map[string]any{"up": true, "down": true}, 0, 0},
		{"angle zero", map[string]any{"angle": float64(0)}, moveSpeed, 0},
		{"angle quarter turn", map[string]any{"angle": math.Pi / 2}, 0, moveSpeed},
		{"angle overrides flags", map[string]any{"angle": float64(0), "up": true}, moveSpeed, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dx, dy := movementDelta(tc.params)
			assert.InDelta(t, tc.dx, dx, 1e-9)
			assert.InDelta(t, tc.dy, dy, 1e-9)
		})
	}
}

func TestMovementDeltaConstantSpeed(t *testing.T) {
	// Every non-idle flag combination moves at exactly moveSpeed.
	for mask := 1; mask < 16; mask++ {
		params := map[string]any{
			"up":    mask&1 != 0,
			"down":  mask&2 != 0,
			"left":  mask&4 != 0,
			"right": mask&8 != 0,
		}
		dx, dy := movementDelta(params)
		if dx == 0 && dy == 0 {
			continue
		}
		assert.InDelta(t, moveSpeed, math.Hypot(dx, dy), 1e-9, "mask %04b", mask)
	}
}

func TestInputMovesEntity(t *testing.T) {
	c, sink, _ := newTestConn(t, testConfig())
	key := enter(t, c, sink)

	var before *protocol.EntitySnapshot
	for _, snap := range c.World().Snapshot() {
		if snap.ID == c.ID() {
			s := snap
			before = &s
		}
	}
	require.NotNil(t, before)
	x0, _ := before.Attributes["x"].(float64)
	y0, _ := before.Attributes["y"].(float64)

	frame := rpcFrame(t, key, "input", map[string]any{"up": true, "right": true})
	require.NoError(t, c.HandleMessage(context.Background(), frame))

	found := false
	for _, snap := range c.World().Snapshot() {
		if snap.ID != c.ID() {
			continue
		}
		found = true
		x, _ := snap.Attributes["x"].(float64)
		y, _ := snap.Attributes["y"].(float64)
		assert.InDelta(t, x0+moveSpeed/math.Sqrt2, x, 1e-9)
		assert.InDelta(t, y0+moveSpeed/math.Sqrt2, y, 1e-9)
	}
	require.True(t, found)
}

func TestFireGuardObservedAlwaysPasses(t *testing.T) {
	now := time.Now()
	assert.True(t, FireGuardObserved(now, now))
	assert.True(t, FireGuardObserved(now, now.Add(-time.Nanosecond)))
}

func TestFireGuardCooldown(t *testing.T) {
	now := time.Now()
	assert.False(t, FireGuardCooldown(now, now.Add(-fireCooldown/2)))
	assert.True(t, FireGuardCooldown(now, now.Add(-fireCooldown)))
	assert.True(t, FireGuardCooldown(now, now.Add(-2*fireCooldown)))
}

func TestInputFiringFlag(t *testing.T) {
	c, sink, _ := newTestConn(t, testConfig())
	key := enter(t, c, sink)

	require.NoError(t, c.HandleMessage(context.Background(),
		rpcFrame(t, key, "input", map[string]any{"fire": true})))
	assert.True(t, entityAttr(t, c, "firing").(bool))

	require.NoError(t, c.HandleMessage(context.Background(),
		rpcFrame(t, key, "input", map[string]any{"fire": false})))
	assert.False(t, entityAttr(t, c, "firing").(bool))
}

func TestMarkerRescale(t *testing.T) {
	c, sink, _ := newTestConn(t, testConfig())
	key := enter(t, c, sink)

	frame := rpcFrame(t, key, "placeMarker", map[string]any{"x": 10.0, "y": -2.5})
	require.NoError(t, c.HandleMessage(context.Background(), frame))

	name, params := lastRPC(t, c, sink, key)
	require.Equal(t, "placeMarker", name)
	assert.InDelta(t, 40.0, params["x"].(float64), 1e-9)
	assert.InDelta(t, -10.0, params["y"].(float64), 1e-9)
	assert.Equal(t, c.ID(), params["id"])
}

func TestChatEcho(t *testing.T) {
	c, sink, _ := newTestConn(t, testConfig())
	key := enter(t, c, sink)

	frame := rpcFrame(t, key, "sendChat", map[string]any{"message": "gg"})
	require.NoError(t, c.HandleMessage(context.Background(), frame))

	name, params := lastRPC(t, c, sink, key)
	assert.Equal(t, "receiveChat", name)
	assert.Equal(t, "gg", params["message"])
	assert.Equal(t, c.ID(), params["from"])
}

func TestChatDebugCommandGated(t *testing.T) {
	t.Run("disabled echoes like any chat", func(t *testing.T) {
		c, sink, _ := newTestConn(t, testConfig())
		key := enter(t, c, sink)

		require.NoError(t, c.HandleMessage(context.Background(),
			rpcFrame(t, key, "sendChat", map[string]any{"message": debugChatCommand})))

		name, params := lastRPC(t, c, sink, key)
		assert.Equal(t, "receiveChat", name)
		assert.Equal(t, debugChatCommand, params["message"])
		assert.NotEqual(t, true, entityAttr(t, c, "god"))
	})

	t.Run("enabled mutates the caller silently", func(t *testing.T) {
		cfg := testConfig()
		cfg.DebugCommands = true
		c, sink, _ := newTestConn(t, cfg)
		key := enter(t, c, sink)
		before := sink.count()

		require.NoError(t, c.HandleMessage(context.Background(),
			rpcFrame(t, key, "sendChat", map[string]any{"message": debugChatCommand})))

		assert.Equal(t, before, sink.count(), "debug command must not echo")
		assert.Equal(t, true, entityAttr(t, c, "god"))
		assert.InDelta(t, 999999.0, entityAttr(t, c, "resources").(float64), 1e-9)
		assert.InDelta(t, 100.0, entityAttr(t, c, "health").(float64), 1e-9)
	})
}

func TestCosmeticMutationsEcho(t *testing.T) {
	cases := []struct {
		rpc, key, value, attr string
	}{
		{"equipItem", "item", "axe", "equipped"},
		{"emote", "emote", "wave", "emote"},
		{"changeSkin", "skin", "crimson", "skin"},
	}
	for _, tc := range cases {
		t.Run(tc.rpc, func(t *testing.T) {
			c, sink, _ := newTestConn(t, testConfig())
			key := enter(t, c, sink)

			frame := rpcFrame(t, key, tc.rpc, map[string]any{tc.key: tc.value})
			require.NoError(t, c.HandleMessage(context.Background(), frame))

			assert.Equal(t, tc.value, entityAttr(t, c, tc.attr))
			name, params := lastRPC(t, c, sink, key)
			assert.Equal(t, tc.rpc, name)
			assert.Equal(t, tc.value, params[tc.key])
			assert.Equal(t, c.ID(), params["id"])
		})
	}
}

func TestSetLoadout(t *testing.T) {
	c, sink, _ := newTestConn(t, testConfig())
	key := enter(t, c, sink)

	frame := rpcFrame(t, key, "setLoadout", map[string]any{"items": []any{"bow", "torch"}})
	require.NoError(t, c.HandleMessage(context.Background(), frame))

	name, params := lastRPC(t, c, sink, key)
	assert.Equal(t, "setLoadout", name)
	assert.Equal(t, []any{"bow", "torch"}, params["items"])
	assert.Equal(t, []any{"bow", "torch"}, entityAttr(t, c, "loadout"))
}

func TestSelectPlatformStreamsData(t *testing.T) {
	c, sink, disp := newTestConn(t, testConfig())
	key := enter(t, c, sink)
	disp.DataBlobs = [][]byte{[]byte("blob-a"), []byte("blob-b")}
	start := sink.count()

	require.NoError(t, c.HandleMessage(context.Background(),
		rpcFrame(t, key, "selectPlatform", nil)))

	var names []string
	for i := start; i < sink.count(); i++ {
		n, _ := decodeRPCFrame(t, key, sink.frame(i))
		names = append(names, n)
	}
	assert.Equal(t, []string{
		"dataBlob", "dataBlob", "gameStatus", "dataFinished",
		"inventory", "playerCount",
	}, names)
}

// entityAttr reads one attribute off the caller's own entity.
func entityAttr(t *testing.T, c *Conn, attr string) any {
	t.Helper()
	for _, snap := range c.World().Snapshot() {
		if snap.ID == c.ID() {
			return snap.Attributes[attr]
		}
	}
	t.Fatalf("caller entity missing from snapshot")
	return nil
}

func decodeRPCFrame(t *testing.T, key []byte, frame []byte) (string, map[string]any) {
	t.Helper()
	require.Equal(t, byte(protocol.PacketRPC), frame[0])
	rpc, err := (protocol.DevCodec{}).DecodeRPC(key, "web", frame[1:])
	require.NoError(t, err)
	require.NotNil(t, rpc)
	return rpc.Name, rpc.Params
}

// lastRPC decodes the most recent outbound frame as an RPC.
func lastRPC(t *testing.T, c *Conn, sink *frameSink, key []byte) (string, map[string]any) {
	t.Helper()
	require.Greater(t, sink.count(), 0)
	return decodeRPCFrame(t, key, sink.frame(sink.count()-1))
}
