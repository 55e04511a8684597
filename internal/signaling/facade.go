package signaling

import (
	"time"

	"github.com/relaymesh/conduit/internal/protocol"
)

// PeerSummary is the realm-private-free view of a peer handed to the admin
// plane.
type PeerSummary struct {
	ID        string    `json:"id"`
	Connected bool      `json:"connected"`
	RemoteIP  string    `json:"remoteIp,omitempty"`
	LastPing  time.Time `json:"lastPing"`
	Queued    int       `json:"queuedMessages"`
}

// PeerIDs returns the live peer id set.
func (c *Core) PeerIDs() []string {
	return c.realm.PeerIDs()
}

// PeerSummaries lists every live peer.
func (c *Core) PeerSummaries() []PeerSummary {
	peers := c.realm.Peers()
	out := make([]PeerSummary, 0, len(peers))
	for _, p := range peers {
		out = append(out, PeerSummary{
			ID:        p.ID,
			Connected: p.Attached(),
			RemoteIP:  p.RemoteIP(),
			LastPing:  p.LastPing(),
			Queued:    c.realm.Queue().Len(p.ID),
		})
	}
	return out
}

// PeerSummary returns one peer's view, if live.
func (c *Core) PeerSummary(id string) (PeerSummary, bool) {
	p := c.realm.GetPeer(id)
	if p == nil {
		return PeerSummary{}, false
	}
	return PeerSummary{
		ID:        p.ID,
		Connected: p.Attached(),
		RemoteIP:  p.RemoteIP(),
		LastPing:  p.LastPing(),
		Queued:    c.realm.Queue().Len(p.ID),
	}, true
}

// PeerIP returns the recorded remote address for a live peer.
func (c *Core) PeerIP(id string) string {
	p := c.realm.GetPeer(id)
	if p == nil {
		return ""
	}
	return p.RemoteIP()
}

// Disconnect force-removes one peer on behalf of the admin plane.
func (c *Core) Disconnect(id, reason string) bool {
	return c.RemovePeer(id, 4100, reason)
}

// QueueLen returns the pending message count for a destination.
func (c *Core) QueueLen(dst string) int {
	return c.realm.Queue().Len(dst)
}

// ClearQueue purges a destination's pending messages. The purge count is
// reported through the drain hook so queue gauges stay in step.
func (c *Core) ClearQueue(dst string) int {
	n := c.realm.Queue().Clear(dst)
	if n > 0 {
		c.hooks.queueDrained(dst, n)
	}
	return n
}

// TotalQueued returns pending messages across all destinations.
func (c *Core) TotalQueued() int {
	return c.realm.Queue().TotalLen()
}

// BroadcastFrame delivers an arbitrary frame to every live peer.
func (c *Core) BroadcastFrame(msg protocol.Message) int {
	return c.Broadcast(msg)
}
