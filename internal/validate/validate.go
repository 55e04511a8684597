// Package validate holds the structural checks applied to peer-supplied
// identifiers and inbound signaling frames before they reach the realm.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// MaxFieldLength bounds ids, tokens and API keys.
	MaxFieldLength = 64

	// MaxPayloadDepth bounds nesting of message payloads. Arrays and
	// objects each count one level.
	MaxPayloadDepth = 10
)

var (
	idPattern    = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_=-]+$`)
)

// Failure reasons surfaced to callers; the peer only ever sees a generic
// validation ERROR frame.
var (
	ErrEmpty        = errors.New("empty")
	ErrTooLong      = errors.New("too long")
	ErrInvalidChars = errors.New("invalid characters")
	ErrTooLarge     = errors.New("message too large")
	ErrNotObject    = errors.New("message is not an object")
	ErrMissingType  = errors.New("missing message type")
	ErrUnknownType  = errors.New("unknown message type")
	ErrTooDeep      = errors.New("payload nested too deeply")
)

func checkField(s string, pattern *regexp.Regexp) error {
	if strings.TrimSpace(s) == "" {
		return ErrEmpty
	}
	if len(s) > MaxFieldLength {
		return ErrTooLong
	}
	if !pattern.MatchString(s) {
		return ErrInvalidChars
	}
	return nil
}

// ID validates a peer identifier.
func ID(s string) error { return checkField(s, idPattern) }

// Token validates a reconnection token. Base64 padding is accepted.
func Token(s string) error { return checkField(s, tokenPattern) }

// Key validates a client API key.
func Key(s string) error { return checkField(s, idPattern) }

// SafeParse decodes raw JSON after checking the byte budget. The size check
// runs before any allocation proportional to the input.
func SafeParse(data []byte, maxBytes int) (map[string]any, error) {
	if maxBytes > 0 && len(data) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return obj, nil
}

// Message checks a decoded frame: a string "type" from the known set, and a
// payload whose nesting stays within MaxPayloadDepth.
func Message(obj map[string]any, knownType func(string) bool) error {
	rawType, ok := obj["type"]
	if !ok {
		return ErrMissingType
	}
	typ, ok := rawType.(string)
	if !ok || typ == "" {
		return ErrMissingType
	}
	if knownType != nil && !knownType(typ) {
		return fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	if payload, ok := obj["payload"]; ok {
		if depth(payload, 0) > MaxPayloadDepth {
			return ErrTooDeep
		}
	}
	return nil
}

func depth(v any, d int) int {
	if d > MaxPayloadDepth {
		return d
	}
	switch t := v.(type) {
	case map[string]any:
		max := d + 1
		for _, child := range t {
			if cd := depth(child, d+1); cd > max {
				max = cd
			}
		}
		return max
	case []any:
		max := d + 1
		for _, child := range t {
			if cd := depth(child, d+1); cd > max {
				max = cd
			}
		}
		return max
	default:
		return d
	}
}
