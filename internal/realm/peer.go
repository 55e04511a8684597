package realm

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relaymesh/conduit/internal/protocol"
)

// ErrDetached is returned when a send is attempted while the peer has no
// bound socket.
var ErrDetached = errors.New("peer has no attached socket")

// Socket is the narrow capability a transport adapter hands to the realm:
// send one text frame, or close. Implementations must tolerate concurrent
// Close calls.
type Socket interface {
	Send(data []byte) error
	Close(code int, reason string) error
}

// Peer is a live signaling client. At most one Peer exists per id; during a
// reconnect window the socket may be nil while the Peer stays registered.
type Peer struct {
	ID    string
	Token string

	mu       sync.Mutex
	socket   Socket
	remoteIP string

	lastPing atomic.Int64 // unix nanos, updated on every inbound frame
}

// NewPeer creates a peer with lastPing set to now.
func NewPeer(id, token string) *Peer {
	p := &Peer{ID: id, Token: token}
	p.lastPing.Store(time.Now().UnixNano())
	return p
}

// Attach binds a socket, replacing any previous one. The displaced socket is
// returned so the caller can close it outside the lock.
func (p *Peer) Attach(s Socket, remoteIP string) (displaced Socket) {
	p.mu.Lock()
	displaced = p.socket
	p.socket = s
	if remoteIP != "" {
		p.remoteIP = remoteIP
	}
	p.mu.Unlock()
	p.Touch()
	return displaced
}

// Detach clears the socket if it is still the given one. Detaching does not
// remove the peer; removal is the broken-connection sweeper's job so the
// client may reconnect within the alive timeout.
func (p *Peer) Detach(s Socket) {
	p.mu.Lock()
	if p.socket == s || s == nil {
		p.socket = nil
	}
	p.mu.Unlock()
}

// Attached reports whether a socket is currently bound.
func (p *Peer) Attached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.socket != nil
}

// RemoteIP returns the address recorded by the adapter at bind time. May be
// empty; IP bans are advisory when it is.
func (p *Peer) RemoteIP() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remoteIP
}

// Touch updates the liveness timestamp.
func (p *Peer) Touch() {
	p.lastPing.Store(time.Now().UnixNano())
}

// LastPing returns the last inbound-frame time.
func (p *Peer) LastPing() time.Time {
	return time.Unix(0, p.lastPing.Load())
}

// Send encodes and writes one frame. Never blocks: the adapter's socket
// buffers outbound frames and fails fast when full.
func (p *Peer) Send(msg protocol.Message) error {
	p.mu.Lock()
	s := p.socket
	p.mu.Unlock()
	if s == nil {
		return ErrDetached
	}
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	return s.Send(data)
}

// Close closes the bound socket, if any, and detaches it.
func (p *Peer) Close(code int, reason string) {
	p.mu.Lock()
	s := p.socket
	p.socket = nil
	p.mu.Unlock()
	if s != nil {
		_ = s.Close(code, reason)
	}
}
