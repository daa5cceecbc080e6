// Package game implements the game gateway's per-connection state machine:
// the proof-of-work gated handshake, the tick streamer, and the RPC
// dispatcher mutating the connection's world.
package game

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/zrps/gateway/internal/config"
	"github.com/zrps/gateway/internal/metrics"
	"github.com/zrps/gateway/internal/protocol"
	"github.com/zrps/gateway/internal/world"
)

// Connection states. Any validation failure is terminal: the connection is
// closed and no further state is reached.
const (
	stateConnecting = iota
	stateEntered
	stateStreaming
)

var (
	// ErrBadProof means the proof-of-work solution did not validate for
	// this endpoint. Terminal; no response frame is owed.
	ErrBadProof = errors.New("invalid proof of work")
	// ErrProtocol covers frames that violate the handshake ordering or
	// cannot be decoded at the packet level.
	ErrProtocol = errors.New("protocol violation")
)

// SendFunc writes one binary frame to the client.
type SendFunc func(ctx context.Context, payload []byte) error

// Conn is one game-gateway connection. All methods run on the connection's
// read goroutine except the tick streamer, which shares the World through its
// internal lock.
type Conn struct {
	// EndpointTag is the per-connection shard tag taken from the upgrade
	// path suffix; it feeds proof-of-work validation and key derivation.
	EndpointTag string

	codec protocol.Codec
	cfg   config.Game
	log   *logrus.Entry
	send  SendFunc
	disp  *Dispatcher

	mu       sync.Mutex
	state    int
	id       string
	name     string
	platform string
	version  int
	key      []byte
	world    *world.World
	baseline *protocol.EntityUpdate

	streamCancel context.CancelFunc

	firing   bool
	lastFire time.Time
}

// NewConn builds a connection in the Connecting state.
func NewConn(endpointTag string, codec protocol.Codec, cfg config.Game, disp *Dispatcher, log *logrus.Entry, send SendFunc) *Conn {
	return &Conn{
		EndpointTag: endpointTag,
		codec:       codec,
		cfg:         cfg,
		log:         log,
		send:        send,
		disp:        disp,
		state:       stateConnecting,
	}
}

// ID returns the unique id assigned at handshake; it doubles as the caller's
// entity id in the world.
func (c *Conn) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// World returns the connection's world, nil before a successful handshake.
func (c *Conn) World() *world.World {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.world
}

// HandleMessage processes one inbound binary frame. A returned error is
// terminal: the transport must be closed and Close called.
func (c *Conn) HandleMessage(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return ErrProtocol
	}
	tag := protocol.PacketType(data[0])
	payload := data[1:]

	c.mu.Lock()
	entered := c.state != stateConnecting
	c.mu.Unlock()

	if !entered {
		// The first inbound message must be the enter-world request.
		if tag != protocol.PacketEnterWorld {
			return ErrProtocol
		}
		return c.enterWorld(ctx, payload)
	}

	switch tag {
	case protocol.PacketPing:
		return c.handlePing(ctx, payload)
	case protocol.PacketRPC:
		c.disp.Dispatch(ctx, c, payload)
		return nil
	default:
		if tag.IsUDP() {
			c.log.WithField("tag", tag).Debug("udp frame acknowledged, unhandled")
			return nil
		}
		c.log.WithField("tag", tag).Debug("unexpected packet tag, ignored")
		return nil
	}
}

// enterWorld runs the proof-of-work gate and, on success, builds the world
// and sends the enter-world response.
func (c *Conn) enterWorld(ctx context.Context, payload []byte) error {
	req, err := c.codec.DecodeEnterWorldRequest(payload)
	if err != nil {
		return ErrProtocol
	}

	ok, platform := c.codec.ValidateProofOfWork(req.Proof, c.EndpointTag)
	if !ok {
		// Close before any response frame; no partial state is retained.
		return ErrBadProof
	}

	w := world.New(c.cfg.WorldWidth, c.cfg.WorldHeight, SeedEntities())
	id := uuid.NewString()
	w.Spawn(id, playerAttributes(req.Name))

	resp := &protocol.EnterWorldResponse{
		Version:      req.Version,
		ID:           id,
		StartingTick: w.Tick(),
		TickRate:     c.cfg.TickRate,
		WorldWidth:   c.cfg.WorldWidth,
		WorldHeight:  c.cfg.WorldHeight,
		Entities:     w.Snapshot(),
		RPCTable:     c.codec.RPCTable(platform),
	}
	encoded, err := c.codec.EncodeEnterWorldResponse(resp)
	if err != nil {
		return err
	}
	if err := c.send(ctx, encoded); err != nil {
		return err
	}

	// Key derivation happens right after the response so every subsequent
	// RPC on this connection is keyed. The key is a capability created
	// once here and threaded through the dispatcher, never recomputed.
	key := c.codec.ComputeRPCKey(req.Version, c.EndpointTag, req.Proof)

	c.mu.Lock()
	c.state = stateEntered
	c.id = id
	c.name = req.Name
	c.platform = platform
	c.version = req.Version
	c.key = key
	c.world = w
	c.baseline = &protocol.EntityUpdate{
		Tick:    w.Tick(),
		Created: resp.Entities,
	}
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"id":       id,
		"platform": platform,
		"version":  req.Version,
	}).Info("entered world")

	_ = metrics.Publish(ctx, metrics.EventRecord{
		Kind:      "world_entered",
		SessionID: id,
		Payload:   map[string]any{"platform": platform, "endpoint": c.EndpointTag},
	})
	return nil
}

// handlePing echoes the client's tick value alongside the server's current
// tick for latency and clock-sync estimation. A frame too short to carry a
// round-trip payload gets a minimal 2-byte placeholder instead.
func (c *Conn) handlePing(ctx context.Context, payload []byte) error {
	if len(payload) < 4 {
		return c.send(ctx, []byte{byte(protocol.PacketPing), 0})
	}
	w := c.World()
	out := make([]byte, 9)
	out[0] = byte(protocol.PacketPing)
	copy(out[1:5], payload[:4])
	binary.LittleEndian.PutUint32(out[5:9], uint32(w.Tick()))
	return c.send(ctx, out)
}

// startStream sends the captured baseline snapshot, adopts its tick and
// starts the per-connection tick streamer. Idempotent: a second start is a
// no-op.
func (c *Conn) startStream(ctx context.Context) {
	c.mu.Lock()
	if c.state != stateEntered {
		c.mu.Unlock()
		return
	}
	c.state = stateStreaming
	baseline := c.baseline
	w := c.world
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.streamCancel = cancel
	c.mu.Unlock()

	if baseline != nil {
		if encoded, err := c.codec.EncodeEntityUpdate(baseline); err == nil {
			if err := c.send(ctx, encoded); err != nil {
				c.log.WithError(err).Warn("failed to send baseline snapshot")
			}
		}
		w.AdoptTick(baseline.Tick)
	}

	go c.streamTicks(streamCtx, w)
}

// streamTicks drives the fixed-rate tick loop until the context is
// cancelled. The ticker keeps an absolute schedule, so per-tick jitter does
// not accumulate into tick-rate decay.
func (c *Conn) streamTicks(ctx context.Context, w *world.World) {
	interval := time.Second / time.Duration(c.cfg.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick := w.Advance()
			update := &protocol.EntityUpdate{
				Tick:    tick,
				Created: w.Snapshot(),
				Deleted: w.DrainDeleted(),
			}
			encoded, err := c.codec.EncodeEntityUpdate(update)
			if err != nil {
				c.log.WithError(err).Warn("failed to encode entity update")
				continue
			}
			if err := c.send(ctx, encoded); err != nil {
				// Transport is gone; the read loop handles teardown.
				return
			}
		}
	}
}

// Close cancels the tick streamer and releases the world. Safe to call more
// than once; the transport close itself belongs to the caller.
func (c *Conn) Close() {
	c.mu.Lock()
	cancel := c.streamCancel
	c.streamCancel = nil
	c.world = nil
	c.baseline = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
