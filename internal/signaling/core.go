// Package signaling implements the realm core: connection admission, the
// message router, and the lifecycle sweepers.
package signaling

import (
	"crypto/subtle"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/relaymesh/conduit/internal/protocol"
	"github.com/relaymesh/conduit/internal/ratelimit"
	"github.com/relaymesh/conduit/internal/realm"
	"github.com/rs/zerolog/log"
)

// Options is the realm-facing slice of the process configuration.
type Options struct {
	Key             string
	ConcurrentLimit int
	AliveTimeout    time.Duration
	ExpireTimeout   time.Duration
	CleanupInterval time.Duration
	MaxMessageBytes int

	RelayEnabled  bool
	MaxRelayBytes int

	RateLimitEnabled bool
}

// DefaultOptions mirrors the config defaults; used directly in tests.
func DefaultOptions() Options {
	return Options{
		Key:             "conduit",
		ConcurrentLimit: 5000,
		AliveTimeout:    60 * time.Second,
		ExpireTimeout:   5 * time.Minute,
		CleanupInterval: time.Minute,
		MaxMessageBytes: 1 << 20,
		RelayEnabled:    false,
		MaxRelayBytes:   64 * 1024,
	}
}

// ConnectionParams carries the handshake query parameters plus the remote
// address harvested by the adapter.
type ConnectionParams struct {
	Key      string
	ID       string
	Token    string
	RemoteIP string
}

// BanCheck lets the admin plane veto an admission by peer id or IP without
// the core depending on admin types.
type BanCheck func(id, ip string) bool

// Core routes signaling messages between peers and owns the realm's
// lifecycle timers.
type Core struct {
	realm   *realm.Realm
	limiter *ratelimit.Limiter
	hooks   *Hooks

	mu       sync.Mutex
	opts     Options
	banCheck BanCheck
	draining bool

	sweeper *sweeper
}

// NewCore wires a core over a realm and an optional rate limiter.
func NewCore(r *realm.Realm, limiter *ratelimit.Limiter, opts Options) *Core {
	c := &Core{
		realm:   r,
		limiter: limiter,
		hooks:   NewHooks(),
	}
	c.opts = opts
	r.Queue().OnOverflow(func(dst string, dropped protocol.Message) {
		c.hooks.errorOccurred(KindQueueOverflow, fmt.Sprintf("queue overflow for %s, dropped %s", dst, dropped.Type))
	})
	return c
}

// Realm returns the underlying registry.
func (c *Core) Realm() *realm.Realm { return c.realm }

// Hooks returns the observer registration point.
func (c *Core) Hooks() *Hooks { return c.hooks }

// Limiter returns the rate limiter (may be nil when disabled).
func (c *Core) Limiter() *ratelimit.Limiter { return c.limiter }

// Options returns a copy of the current options.
func (c *Core) Options() Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// SetRelayEnabled toggles the relay transport at runtime.
func (c *Core) SetRelayEnabled(enabled bool) {
	c.mu.Lock()
	c.opts.RelayEnabled = enabled
	c.mu.Unlock()
}

// SetRateLimitEnabled toggles rate limiting at runtime.
func (c *Core) SetRateLimitEnabled(enabled bool) {
	c.mu.Lock()
	c.opts.RateLimitEnabled = enabled
	c.mu.Unlock()
}

// SetBanCheck installs the admission veto. Pass nil to clear.
func (c *Core) SetBanCheck(fn BanCheck) {
	c.mu.Lock()
	c.banCheck = fn
	c.mu.Unlock()
}

// HandleConnection admits, rebinds or rejects an incoming socket. On error
// the rejection frame has already been written; the caller closes the
// socket. On success the peer holds the socket and has received OPEN plus
// any queued messages.
func (c *Core) HandleConnection(params ConnectionParams, socket realm.Socket) (*realm.Peer, error) {
	opts := c.Options()

	c.mu.Lock()
	draining := c.draining
	check := c.banCheck
	c.mu.Unlock()

	if draining {
		c.sendRaw(socket, protocol.Error("server is shutting down"))
		return nil, ErrShuttingDown
	}

	if subtle.ConstantTimeCompare([]byte(params.Key), []byte(opts.Key)) != 1 {
		c.hooks.errorOccurred(KindAuth, "api key mismatch")
		c.sendRaw(socket, protocol.Error("invalid key provided"))
		return nil, ErrInvalidKey
	}

	if err := validateParams(params); err != nil {
		c.hooks.errorOccurred(KindValidation, err.Error())
		c.sendRaw(socket, protocol.Error(err.Error()))
		return nil, err
	}

	if check != nil && check(params.ID, params.RemoteIP) {
		c.hooks.errorOccurred(KindAuth, "banned client rejected: "+params.ID)
		c.sendRaw(socket, protocol.Error("client is banned"))
		return nil, ErrBanned
	}

	peer := realm.NewPeer(params.ID, params.Token)
	existing, registered, full := c.realm.RegisterIfAbsent(peer, opts.ConcurrentLimit)
	if full {
		c.hooks.errorOccurred(KindCapacity, "concurrent connection limit reached")
		c.sendRaw(socket, protocol.Error("server has reached its concurrent connection limit"))
		return nil, ErrAtCapacity
	}
	if !registered {
		// A live id: rebind only when the reconnect secret matches.
		if existing.Token != params.Token {
			c.sendRaw(socket, protocol.IDTaken())
			return nil, ErrIDTaken
		}
		peer = existing
	}

	displaced := peer.Attach(socket, params.RemoteIP)
	if displaced != nil {
		_ = displaced.Close(4000, "superseded by reconnect")
	}

	if err := peer.Send(protocol.Message{Type: protocol.TypeOpen}); err != nil {
		log.Warn().Err(err).Str("peer", peer.ID).Msg("Failed to deliver OPEN frame")
	}

	if registered {
		c.hooks.connectionOpened(peer.ID)
		log.Info().Str("peer", peer.ID).Str("ip", params.RemoteIP).Msg("Peer connected")
	} else {
		log.Info().Str("peer", peer.ID).Msg("Peer rebound existing id")
	}

	c.drainInto(peer)
	return peer, nil
}

// drainInto flushes queued messages for a newly attached peer, in order.
func (c *Core) drainInto(peer *realm.Peer) {
	pending := c.realm.Queue().Drain(peer.ID)
	if len(pending) == 0 {
		return
	}
	delivered := 0
	for _, msg := range pending {
		if err := peer.Send(msg); err != nil {
			// Socket died mid-drain; requeue the rest.
			c.realm.Queue().Enqueue(peer.ID, msg)
			c.hooks.errorOccurred(KindSendFailed, err.Error())
			continue
		}
		delivered++
		c.hooks.messageRelayed(msg.Src, peer.ID, msg.Type)
	}
	c.hooks.queueDrained(peer.ID, delivered)
	log.Debug().Str("peer", peer.ID).Int("count", delivered).Msg("Drained queued messages")
}

// HandleMessage processes one inbound text frame from an authenticated
// peer. Handler panics are contained here; they never kill the read pump.
func (c *Core) HandleMessage(peer *realm.Peer, raw []byte) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("error", r).
				Str("peer", peer.ID).
				Bytes("stack", debug.Stack()).
				Msg("Panic recovered in message handler")
			c.hooks.errorOccurred(KindMessageHandling, fmt.Sprint(r))
			_ = peer.Send(protocol.Error("internal error"))
		}
		c.hooks.messageHandled(time.Since(start))
	}()

	peer.Touch()
	opts := c.Options()

	if opts.RateLimitEnabled && c.limiter != nil {
		allowed := c.limiter.TryConsume(peer.ID)
		c.hooks.rateLimited(peer.ID, !allowed)
		if !allowed {
			c.hooks.errorOccurred(KindRateLimit, "peer "+peer.ID)
			_ = peer.Send(protocol.Error("Rate limit exceeded"))
			return
		}
	}

	obj, err := protocolParse(raw, opts.MaxMessageBytes)
	if err != nil {
		c.hooks.errorOccurred(KindValidation, err.Error())
		_ = peer.Send(protocol.Error("invalid message"))
		return
	}

	c.dispatch(peer, obj, opts)
}

// HandleDisconnect detaches the socket but keeps the peer registered so the
// client may reconnect within the alive timeout. Final removal is the
// broken-connection sweeper's job.
func (c *Core) HandleDisconnect(peer *realm.Peer, socket realm.Socket) {
	peer.Detach(socket)
	log.Debug().Str("peer", peer.ID).Msg("Peer detached, reconnect window open")
}

// RemovePeer force-removes a peer: close, unregister, drop the rate bucket.
// Used by the sweeper and the admin disconnect action.
func (c *Core) RemovePeer(id string, code int, reason string) bool {
	peer := c.realm.RemovePeer(id)
	if peer == nil {
		return false
	}
	peer.Close(code, reason)
	if c.limiter != nil {
		c.limiter.RemoveClient(id)
	}
	c.hooks.connectionClosed(id)
	log.Info().Str("peer", id).Str("reason", reason).Msg("Peer removed")
	return true
}

// Broadcast sends a frame to every live peer, returning the number of
// successful deliveries.
func (c *Core) Broadcast(msg protocol.Message) int {
	sent := 0
	for _, peer := range c.realm.Peers() {
		if err := peer.Send(msg); err == nil {
			sent++
		}
	}
	return sent
}

// Shutdown broadcasts GOAWAY, allows a short grace for the frames to flush,
// then closes every socket with code 1001.
func (c *Core) Shutdown(reason string) {
	c.mu.Lock()
	c.draining = true
	c.mu.Unlock()

	n := c.Broadcast(protocol.GoAway(reason))
	log.Info().Int("notified", n).Msg("GOAWAY broadcast, draining")
	time.Sleep(100 * time.Millisecond)

	for _, peer := range c.realm.Peers() {
		peer.Close(1001, "server shutting down")
	}
}

func (c *Core) sendRaw(socket realm.Socket, msg protocol.Message) {
	data, err := msg.Encode()
	if err != nil {
		return
	}
	_ = socket.Send(data)
}
