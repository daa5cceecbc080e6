// Package protocol defines the game gateway's binary packet tags and the
// contract of the external codec component. The codec (attribute encoding,
// RPC name<->index tables, proof-of-work validation, payload obfuscation) is
// consumed through the Codec interface, never reimplemented here.
package protocol

// PacketType is the first byte of every binary frame on a game connection.
type PacketType byte

const (
	PacketEntityUpdate PacketType = iota
	PacketPlayerCounterUpdate
	PacketSetWorldDimensions
	PacketInput
	PacketEnterWorld
	PacketPing
	PacketRPC
	PacketUDPHandshake
	PacketUDPPing
	PacketUDPRPC
)

// IsUDP reports whether the tag belongs to the UDP family. Those frames are
// recognized but otherwise unhandled by this gateway.
func (t PacketType) IsUDP() bool {
	return t == PacketUDPHandshake || t == PacketUDPPing || t == PacketUDPRPC
}

// EnterWorldRequest is the first message a client must send: protocol
// version, requested display name and a proof-of-work solution.
type EnterWorldRequest struct {
	Version int
	Name    string
	Proof   []byte
}

// EntitySnapshot is one entity's full attribute bag as carried on the wire.
// The attribute schema is the codec's business, not this layer's.
type EntitySnapshot struct {
	ID         string
	Attributes map[string]any
}

// EnterWorldResponse is sent once the proof-of-work gate passes.
type EnterWorldResponse struct {
	Version      int
	ID           string
	StartingTick uint64
	TickRate     int
	WorldWidth   float64
	WorldHeight  float64
	Entities     []EntitySnapshot
	// RPCTable is the full ordered name<->index table for the entrant's
	// platform; clients address RPCs by position in it.
	RPCTable []string
}

// EntityUpdate is one tick's delta broadcast.
type EntityUpdate struct {
	Tick    uint64
	Created []EntitySnapshot
	Deleted []string
}

// RPC is a decoded inbound remote call.
type RPC struct {
	Index  int
	Name   string
	Params map[string]any
}

// Codec is the external codec/proof-of-work collaborator.
type Codec interface {
	// DecodeEnterWorldRequest parses the EnterWorld payload (without the
	// packet tag byte).
	DecodeEnterWorldRequest(payload []byte) (*EnterWorldRequest, error)

	// ValidateProofOfWork checks the solution against the connection's
	// endpoint tag. A valid solution also yields the platform tag that
	// selects the RPC table for the rest of the connection.
	ValidateProofOfWork(proof []byte, endpointTag string) (ok bool, platform string)

	// RPCTable returns the ordered RPC name table for a platform.
	RPCTable(platform string) []string

	// ComputeRPCKey derives the per-connection symmetric obfuscation key.
	ComputeRPCKey(version int, endpointTag string, proof []byte) []byte

	EncodeEnterWorldResponse(resp *EnterWorldResponse) ([]byte, error)

	// EncodeRPC / DecodeRPC translate between named calls and keyed,
	// index-addressed payloads for the given platform.
	EncodeRPC(key []byte, platform, name string, params map[string]any) ([]byte, error)
	DecodeRPC(key []byte, platform string, payload []byte) (*RPC, error)

	EncodeEntityUpdate(update *EntityUpdate) ([]byte, error)
}
