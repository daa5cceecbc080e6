package protocol

import (
	"crypto/hmac"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// DevCodec is the development stand-in for the external codec component. It
// speaks a JSON attribute encoding with XOR payload obfuscation and a
// hash-prefix proof-of-work check. Production builds link the real codec and
// hand it to the gateways instead; nothing outside this file assumes the
// DevCodec wire shapes.
type DevCodec struct{}

// DefaultCodec returns the codec the server boots with when no production
// codec is linked in.
func DefaultCodec() Codec { return DevCodec{} }

// Platform-specific RPC tables. Different platforms use structurally
// different orderings; clients address RPCs by position.
var rpcTables = map[string][]string{
	"web": {
		"startStream", "selectPlatform", "sendChat", "receiveChat",
		"equipItem", "setLoadout", "placeMarker", "emote", "changeSkin",
		"input", "dataBlob", "gameStatus", "dataFinished", "inventory",
		"playerCount",
	},
	"android": {
		"selectPlatform", "startStream", "input", "sendChat", "receiveChat",
		"placeMarker", "equipItem", "setLoadout", "changeSkin", "emote",
		"dataBlob", "gameStatus", "dataFinished", "inventory", "playerCount",
	},
	"ios": {
		"selectPlatform", "startStream", "input", "sendChat", "receiveChat",
		"placeMarker", "equipItem", "setLoadout", "changeSkin", "emote",
		"dataBlob", "gameStatus", "dataFinished", "inventory", "playerCount",
	},
}

const powPrefixLen = 16

// DevProof builds a proof-of-work solution DevCodec accepts for the given
// endpoint tag and platform. Exported for clients and tests.
func DevProof(endpointTag, platform string) []byte {
	sum := blake2b.Sum256([]byte("pow:" + endpointTag))
	return append(sum[:powPrefixLen], []byte(platform)...)
}

type devEnterWorld struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
	Proof   []byte `json:"proof"`
}

func (DevCodec) DecodeEnterWorldRequest(payload []byte) (*EnterWorldRequest, error) {
	var req devEnterWorld
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode enter world request: %w", err)
	}
	return &EnterWorldRequest{Version: req.Version, Name: req.Name, Proof: req.Proof}, nil
}

func (DevCodec) ValidateProofOfWork(proof []byte, endpointTag string) (bool, string) {
	if len(proof) <= powPrefixLen {
		return false, ""
	}
	sum := blake2b.Sum256([]byte("pow:" + endpointTag))
	if !hmac.Equal(proof[:powPrefixLen], sum[:powPrefixLen]) {
		return false, ""
	}
	platform := string(proof[powPrefixLen:])
	if _, ok := rpcTables[platform]; !ok {
		return false, ""
	}
	return true, platform
}

func (DevCodec) RPCTable(platform string) []string {
	return rpcTables[platform]
}

func (DevCodec) ComputeRPCKey(version int, endpointTag string, proof []byte) []byte {
	h, _ := blake2b.New256(nil)
	var v [4]byte
	binary.LittleEndian.PutUint32(v[:], uint32(version))
	h.Write(v[:])
	h.Write([]byte(endpointTag))
	h.Write(proof)
	return h.Sum(nil)
}

func (DevCodec) EncodeEnterWorldResponse(resp *EnterWorldResponse) ([]byte, error) {
	body, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode enter world response: %w", err)
	}
	return append([]byte{byte(PacketEnterWorld)}, body...), nil
}

// EncodeRPC produces a complete frame: the RPC packet tag, the table index,
// and the obfuscated JSON parameter bag.
func (DevCodec) EncodeRPC(key []byte, platform, name string, params map[string]any) ([]byte, error) {
	table := rpcTables[platform]
	idx := -1
	for i, n := range table {
		if n == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("rpc %q not in %s table", name, platform)
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode rpc %q: %w", name, err)
	}
	frame := make([]byte, 0, len(body)+2)
	frame = append(frame, byte(PacketRPC), byte(idx))
	frame = append(frame, xorKeystream(body, key)...)
	return frame, nil
}

// DecodeRPC takes the tag-stripped payload: the table index followed by the
// obfuscated parameter bag. An index with no definition resolves to nil.
func (DevCodec) DecodeRPC(key []byte, platform string, payload []byte) (*RPC, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("rpc frame too short")
	}
	idx := int(payload[0])
	table := rpcTables[platform]
	if idx >= len(table) {
		return nil, nil
	}
	params := map[string]any{}
	if len(payload) > 1 {
		if err := json.Unmarshal(xorKeystream(payload[1:], key), &params); err != nil {
			return nil, fmt.Errorf("decode rpc params: %w", err)
		}
	}
	return &RPC{Index: idx, Name: table[idx], Params: params}, nil
}

func (DevCodec) EncodeEntityUpdate(update *EntityUpdate) ([]byte, error) {
	body, err := json.Marshal(update)
	if err != nil {
		return nil, fmt.Errorf("encode entity update: %w", err)
	}
	return append([]byte{byte(PacketEntityUpdate)}, body...), nil
}

// xorKeystream obfuscates data against a repeating key. Symmetric.
func xorKeystream(data, key []byte) []byte {
	if len(key) == 0 {
		return append([]byte(nil), data...)
	}
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}
