// Package realm is the in-process registry of live peers plus the
// store-and-forward queue for offline destinations.
package realm

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
)

const idByteLength = 12

// Realm maps peer ids to live peers. It exclusively owns the peer set and
// the message queue; transports and the admin plane reach it through narrow
// interfaces.
type Realm struct {
	mu    sync.Mutex
	peers map[string]*Peer
	queue *MessageQueue
}

// New creates an empty realm with a queue capped at queueCap messages per
// destination (<=0 uses the default).
func New(queueCap int) *Realm {
	return &Realm{
		peers: make(map[string]*Peer),
		queue: NewMessageQueue(queueCap),
	}
}

// Queue returns the realm's message queue.
func (r *Realm) Queue() *MessageQueue {
	return r.queue
}

// GenerateID returns a cryptographically random base64url id that is not
// currently mapped. IDs double as addressing tokens, so a CSPRNG is
// mandatory here.
func (r *Realm) GenerateID() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		buf := make([]byte, idByteLength)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate peer id: %w", err)
		}
		id := base64.RawURLEncoding.EncodeToString(buf)
		if _, taken := r.peers[id]; !taken {
			return id, nil
		}
	}
}

// SetPeer registers a peer under its id, replacing any previous mapping.
func (r *Realm) SetPeer(p *Peer) {
	r.mu.Lock()
	r.peers[p.ID] = p
	r.mu.Unlock()
}

// RegisterIfAbsent atomically maps the peer unless the id is already live or
// the realm holds limit peers (limit <= 0 disables the cap). The existing
// peer is returned on an id conflict so the caller can run the token-rebind
// check without a lookup race; rebinds never count against the cap. The cap
// is checked under the same lock as the insert so concurrent admissions
// cannot both squeeze past it.
func (r *Realm) RegisterIfAbsent(p *Peer, limit int) (existing *Peer, registered bool, full bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.peers[p.ID]; ok {
		return cur, false, false
	}
	if limit > 0 && len(r.peers) >= limit {
		return nil, false, true
	}
	r.peers[p.ID] = p
	return nil, true, false
}

// RemovePeer unmaps the id and returns the removed peer, if any.
func (r *Realm) RemovePeer(id string) *Peer {
	r.mu.Lock()
	p := r.peers[id]
	delete(r.peers, id)
	r.mu.Unlock()
	return p
}

// GetPeer returns the live peer for id, or nil.
func (r *Realm) GetPeer(id string) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peers[id]
}

// PeerExists reports whether id is currently mapped.
func (r *Realm) PeerExists(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.peers[id]
	return ok
}

// PeerIDs returns a copy of the live id set.
func (r *Realm) PeerIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	return ids
}

// Peers returns a copy of the live peer set.
func (r *Realm) Peers() []*Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}

// Len returns the live peer count.
func (r *Realm) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}
