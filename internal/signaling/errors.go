package signaling

import "errors"

// Error kinds counted under errors.byType and carried on error:occurred
// events. Kinds are stable strings, not Go types.
const (
	KindValidation      = "validation"
	KindAuth            = "auth"
	KindCapacity        = "capacity"
	KindRateLimit       = "rate_limit"
	KindExpired         = "expired"
	KindSendFailed      = "send_failed"
	KindQueueOverflow   = "queue_overflow"
	KindRelayOversize   = "relay_oversize"
	KindRelayDisabled   = "relay_disabled"
	KindMessageHandling = "message_handling"
)

// Connection admission failures. The adapter maps these to socket behavior:
// every one of them closes the incoming socket after the rejection frame has
// been written.
var (
	ErrInvalidKey   = errors.New("invalid api key")
	ErrInvalidID    = errors.New("invalid peer id")
	ErrInvalidToken = errors.New("invalid token")
	ErrIDTaken      = errors.New("id is already taken")
	ErrAtCapacity   = errors.New("server has reached its concurrent connection limit")
	ErrBanned       = errors.New("client is banned")
	ErrShuttingDown = errors.New("server is shutting down")
)
