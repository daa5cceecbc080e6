// Package wire implements the lobby gateway's handshake and event framing.
// The format is compatible with the Engine.IO v4 / Socket.IO text protocol:
// "0{json}" handshake, "40" connect ack, "2"/"3" ping-pong, and
// "42[name,data]" events. Only the subset the lobby speaks is implemented;
// there is no dependency on a ready-made implementation.
package wire

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"
)

const (
	packetHandshake = "0"
	ConnectAck      = "40"
	Ping            = "2"
	Pong            = "3"
	eventPrefix     = "42"
)

const sidAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// SessionIDLength is the length of generated logical session identifiers.
const SessionIDLength = 20

// FrameKind discriminates the decoded frame variants.
type FrameKind int

const (
	// KindInvalid covers malformed frames and shapes this layer does not
	// speak. They are logged and dropped, never dispatched.
	KindInvalid FrameKind = iota
	// KindPing is the client liveness heartbeat; answer with Pong.
	KindPing
	// KindEvent is a named event with an optional JSON payload.
	KindEvent
)

// Frame is one decoded inbound message.
type Frame struct {
	Kind  FrameKind
	Name  string
	Data  json.RawMessage
}

// handshakePayload is the structured body of the "0" packet.
type handshakePayload struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int64    `json:"pingInterval"`
	PingTimeout  int64    `json:"pingTimeout"`
}

// NewSessionID generates a random session identifier from the alphanumeric
// alphabet. rand.Read only fails when the platform entropy source is broken,
// in which case the connection is unusable anyway.
func NewSessionID() (string, error) {
	buf := make([]byte, SessionIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	for i, b := range buf {
		buf[i] = sidAlphabet[int(b)%len(sidAlphabet)]
	}
	return string(buf), nil
}

// EncodeHandshake builds the opening "0{json}" frame for a fresh session.
func EncodeHandshake(sid string, pingInterval, pingTimeout time.Duration) (string, error) {
	body, err := json.Marshal(handshakePayload{
		SID:          sid,
		Upgrades:     []string{},
		PingInterval: pingInterval.Milliseconds(),
		PingTimeout:  pingTimeout.Milliseconds(),
	})
	if err != nil {
		return "", fmt.Errorf("encode handshake: %w", err)
	}
	return packetHandshake + string(body), nil
}

// EncodeEvent builds a "42" event frame carrying [name, args...].
func EncodeEvent(name string, args ...any) (string, error) {
	payload := make([]any, 0, len(args)+1)
	payload = append(payload, name)
	payload = append(payload, args...)
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode event %q: %w", name, err)
	}
	return eventPrefix + string(body), nil
}

// DecodeFrame classifies one inbound text frame. Decoding never fails hard:
// anything that is not a well-formed ping or event comes back as KindInvalid.
func DecodeFrame(msg string) Frame {
	if msg == Ping {
		return Frame{Kind: KindPing}
	}
	if len(msg) < len(eventPrefix) || msg[:len(eventPrefix)] != eventPrefix {
		return Frame{Kind: KindInvalid}
	}

	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(msg[len(eventPrefix):]), &parts); err != nil {
		return Frame{Kind: KindInvalid}
	}
	if len(parts) < 1 || len(parts) > 2 {
		return Frame{Kind: KindInvalid}
	}

	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil || name == "" {
		return Frame{Kind: KindInvalid}
	}

	f := Frame{Kind: KindEvent, Name: name}
	if len(parts) == 2 {
		f.Data = parts[1]
	}
	return f
}
