package admin

import (
	"sync"
	"time"
)

// BanKind distinguishes the two disjoint ban namespaces.
type BanKind string

const (
	BanKindClient BanKind = "client"
	BanKindIP     BanKind = "ip"
)

// BanEntry records one active ban.
type BanEntry struct {
	ID       string    `json:"id"`
	Kind     BanKind   `json:"kind"`
	Reason   string    `json:"reason,omitempty"`
	BannedAt time.Time `json:"bannedAt"`
	BannedBy string    `json:"bannedBy,omitempty"`
}

// BanList holds client-id bans and IP bans in separate namespaces, so a
// peer id that happens to look like an address never collides with an
// address ban.
type BanList struct {
	mu      sync.RWMutex
	clients map[string]BanEntry
	ips     map[string]BanEntry
}

func NewBanList() *BanList {
	return &BanList{
		clients: make(map[string]BanEntry),
		ips:     make(map[string]BanEntry),
	}
}

// BanClient records a client-id ban, replacing any prior entry.
func (b *BanList) BanClient(id, reason, by string) BanEntry {
	entry := BanEntry{ID: id, Kind: BanKindClient, Reason: reason, BannedAt: time.Now(), BannedBy: by}
	b.mu.Lock()
	b.clients[id] = entry
	b.mu.Unlock()
	return entry
}

// BanIP records an IP ban, replacing any prior entry.
func (b *BanList) BanIP(ip, reason, by string) BanEntry {
	entry := BanEntry{ID: ip, Kind: BanKindIP, Reason: reason, BannedAt: time.Now(), BannedBy: by}
	b.mu.Lock()
	b.ips[ip] = entry
	b.mu.Unlock()
	return entry
}

// UnbanClient removes a client ban, reporting whether one existed.
func (b *BanList) UnbanClient(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[id]; !ok {
		return false
	}
	delete(b.clients, id)
	return true
}

// UnbanIP removes an IP ban, reporting whether one existed.
func (b *BanList) UnbanIP(ip string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.ips[ip]; !ok {
		return false
	}
	delete(b.ips, ip)
	return true
}

// IsBanned reports whether the client id or its remote IP carries a ban.
func (b *BanList) IsBanned(id, ip string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.clients[id]; ok {
		return true
	}
	if ip != "" {
		if _, ok := b.ips[ip]; ok {
			return true
		}
	}
	return false
}

// List returns every active ban, clients first.
func (b *BanList) List() []BanEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]BanEntry, 0, len(b.clients)+len(b.ips))
	for _, e := range b.clients {
		out = append(out, e)
	}
	for _, e := range b.ips {
		out = append(out, e)
	}
	return out
}

// ListClients returns only client-id bans.
func (b *BanList) ListClients() []BanEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]BanEntry, 0, len(b.clients))
	for _, e := range b.clients {
		out = append(out, e)
	}
	return out
}

// ListIPs returns only IP bans.
func (b *BanList) ListIPs() []BanEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]BanEntry, 0, len(b.ips))
	for _, e := range b.ips {
		out = append(out, e)
	}
	return out
}

// Clear removes every ban and returns the number removed.
func (b *BanList) Clear() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.clients) + len(b.ips)
	b.clients = make(map[string]BanEntry)
	b.ips = make(map[string]BanEntry)
	return n
}

// Len returns the total number of active bans.
func (b *BanList) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients) + len(b.ips)
}
