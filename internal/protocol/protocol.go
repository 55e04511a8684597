// Package protocol defines the signaling frame schema shared by the realm,
// the router and the transport adapters. Frames are UTF-8 JSON text.
package protocol

import (
	"encoding/json"
)

// Message types carried in the "type" field. The set is closed; the
// validator rejects anything else before it reaches the router.
const (
	TypeOpen       = "OPEN"
	TypeLeave      = "LEAVE"
	TypeCandidate  = "CANDIDATE"
	TypeOffer      = "OFFER"
	TypeAnswer     = "ANSWER"
	TypeExpire     = "EXPIRE"
	TypeHeartbeat  = "HEARTBEAT"
	TypeIDTaken    = "ID-TAKEN"
	TypeError      = "ERROR"
	TypeRelay      = "RELAY"
	TypeRelayOpen  = "RELAY_OPEN"
	TypeRelayClose = "RELAY_CLOSE"
	TypeGoAway     = "GOAWAY"
)

var knownTypes = map[string]struct{}{
	TypeOpen:       {},
	TypeLeave:      {},
	TypeCandidate:  {},
	TypeOffer:      {},
	TypeAnswer:     {},
	TypeExpire:     {},
	TypeHeartbeat:  {},
	TypeIDTaken:    {},
	TypeError:      {},
	TypeRelay:      {},
	TypeRelayOpen:  {},
	TypeRelayClose: {},
	TypeGoAway:     {},
}

// KnownType reports whether t is part of the frame catalog.
func KnownType(t string) bool {
	_, ok := knownTypes[t]
	return ok
}

// Routed reports whether frames of type t are forwarded to a destination
// peer (as opposed to being handled in place).
func Routed(t string) bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeCandidate, TypeLeave,
		TypeRelay, TypeRelayOpen, TypeRelayClose:
		return true
	}
	return false
}

// RelayType reports whether t belongs to the WebSocket fallback transport.
func RelayType(t string) bool {
	switch t {
	case TypeRelay, TypeRelayOpen, TypeRelayClose:
		return true
	}
	return false
}

// Message is one signaling frame. Src is rewritten to the authenticated
// sender id before forwarding; a peer cannot spoof origin. Payload stays a
// decoded generic value until a consumer needs a concrete shape.
type Message struct {
	Type    string `json:"type"`
	Src     string `json:"src,omitempty"`
	Dst     string `json:"dst,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Encode marshals the frame for the wire.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Error builds an ERROR frame with a human-readable message.
func Error(msg string) Message {
	return Message{Type: TypeError, Payload: map[string]any{"msg": msg}}
}

// IDTaken builds the rejection frame for a second connection presenting a
// live id with the wrong token.
func IDTaken() Message {
	return Message{Type: TypeIDTaken, Payload: map[string]any{"msg": "ID is already taken"}}
}

// Expire builds the notification synthesized for a swept queued message,
// reporting the original source.
func Expire(src, dst string) Message {
	return Message{Type: TypeExpire, Src: src, Dst: dst}
}

// GoAway builds the shutdown broadcast frame.
func GoAway(reason string) Message {
	m := Message{Type: TypeGoAway}
	if reason != "" {
		m.Payload = map[string]any{"reason": reason}
	}
	return m
}

// PayloadField extracts a string field from a generic payload, if present.
func (m Message) PayloadField(key string) (string, bool) {
	obj, ok := m.Payload.(map[string]any)
	if !ok {
		return "", false
	}
	v, ok := obj[key].(string)
	return v, ok
}

// ConnectionID returns the virtual channel id carried by relay and
// negotiation payloads.
func (m Message) ConnectionID() string {
	v, _ := m.PayloadField("connectionId")
	return v
}

// PayloadDataSize returns the JSON-encoded size of payload.data, used to
// enforce the relay byte budget. Zero when absent or unencodable.
func (m Message) PayloadDataSize() int {
	obj, ok := m.Payload.(map[string]any)
	if !ok {
		return 0
	}
	data, ok := obj["data"]
	if !ok {
		return 0
	}
	b, err := json.Marshal(data)
	if err != nil {
		return 0
	}
	return len(b)
}
