package admin

import (
	"errors"
	"fmt"

	"github.com/relaymesh/conduit/internal/protocol"
)

// ErrNotAttached is returned by mutating actions before AttachToServer.
var ErrNotAttached = errors.New("admin core not attached to a server")

// Feature names accepted by ToggleFeature.
const (
	FeatureRelay     = "relay"
	FeatureDiscovery = "discovery"
	FeatureRateLimit = "rateLimit"
)

func (a *AdminCore) server() (Instrumentable, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.srv == nil {
		return nil, ErrNotAttached
	}
	return a.srv, nil
}

// record writes the audit entry and mirrors it onto the event bus. Every
// mutation goes through here with the acting user's id.
func (a *AdminCore) record(actorID, action, target string, details map[string]any) {
	entry := a.Audit.Log(actorID, action, target, details)
	a.Events.Publish(EventAuditEntry, entry)
}

// DisconnectClient force-closes one peer's socket and removes it.
func (a *AdminCore) DisconnectClient(actorID, clientID, reason string) (bool, error) {
	srv, err := a.server()
	if err != nil {
		return false, err
	}
	if reason == "" {
		reason = "disconnected by admin"
	}
	removed := srv.Disconnect(clientID, reason)
	a.record(actorID, ActionDisconnectClient, clientID, map[string]any{
		"reason":  reason,
		"removed": removed,
	})
	return removed, nil
}

// BanClient bans a client id and disconnects it if currently live.
func (a *AdminCore) BanClient(actorID, clientID, reason string) (BanEntry, error) {
	srv, err := a.server()
	if err != nil {
		return BanEntry{}, err
	}
	entry := a.Bans.BanClient(clientID, reason, actorID)
	disconnected := srv.Disconnect(clientID, "banned: "+reason)
	a.Events.Publish(EventBanAdded, entry)
	a.record(actorID, ActionBanClient, clientID, map[string]any{
		"reason":       reason,
		"disconnected": disconnected,
	})
	return entry, nil
}

// UnbanClient lifts a client ban. Returns false when no ban existed.
func (a *AdminCore) UnbanClient(actorID, clientID string) bool {
	removed := a.Bans.UnbanClient(clientID)
	if removed {
		a.Events.Publish(EventBanRemoved, map[string]any{"id": clientID, "kind": BanKindClient})
	}
	a.record(actorID, ActionUnbanClient, clientID, map[string]any{"removed": removed})
	return removed
}

// BanIP bans an address and disconnects every live peer currently on it.
// Returns the ban entry and the number of disconnected peers.
func (a *AdminCore) BanIP(actorID, ip, reason string) (BanEntry, int, error) {
	srv, err := a.server()
	if err != nil {
		return BanEntry{}, 0, err
	}
	entry := a.Bans.BanIP(ip, reason, actorID)
	disconnected := 0
	for _, id := range srv.PeerIDs() {
		if srv.PeerIP(id) == ip && srv.Disconnect(id, "ip banned: "+reason) {
			disconnected++
		}
	}
	a.Events.Publish(EventBanAdded, entry)
	a.record(actorID, ActionBanIP, ip, map[string]any{
		"reason":       reason,
		"disconnected": disconnected,
	})
	return entry, disconnected, nil
}

// UnbanIP lifts an IP ban. Returns false when no ban existed.
func (a *AdminCore) UnbanIP(actorID, ip string) bool {
	removed := a.Bans.UnbanIP(ip)
	if removed {
		a.Events.Publish(EventBanRemoved, map[string]any{"id": ip, "kind": BanKindIP})
	}
	a.record(actorID, ActionUnbanIP, ip, map[string]any{"removed": removed})
	return removed
}

// Broadcast delivers a server-originated frame to every live peer and
// returns the recipient count.
func (a *AdminCore) Broadcast(actorID string, msg protocol.Message) (int, error) {
	srv, err := a.server()
	if err != nil {
		return 0, err
	}
	sent := srv.BroadcastFrame(msg)
	a.record(actorID, ActionBroadcast, "", map[string]any{
		"type":           msg.Type,
		"recipientCount": sent,
	})
	return sent, nil
}

// UpdateRateLimits replaces the token bucket parameters for all peers.
func (a *AdminCore) UpdateRateLimits(actorID string, maxTokens int, refillRate float64) error {
	srv, err := a.server()
	if err != nil {
		return err
	}
	if maxTokens < 1 || refillRate <= 0 {
		return fmt.Errorf("invalid rate limit parameters: maxTokens=%d refillRate=%g", maxTokens, refillRate)
	}
	limiter := srv.Limiter()
	if limiter == nil {
		return errors.New("rate limiter not configured")
	}
	limiter.SetLimits(maxTokens, refillRate)
	a.record(actorID, ActionUpdateRateLimits, "", map[string]any{
		"maxTokens":  maxTokens,
		"refillRate": refillRate,
	})
	return nil
}

// ToggleFeature flips a runtime feature flag: relay, discovery or
// rateLimit.
func (a *AdminCore) ToggleFeature(actorID, feature string, enabled bool) error {
	srv, err := a.server()
	if err != nil {
		return err
	}
	switch feature {
	case FeatureRelay:
		srv.SetRelayEnabled(enabled)
	case FeatureRateLimit:
		srv.SetRateLimitEnabled(enabled)
	case FeatureDiscovery:
		a.mu.Lock()
		fn := a.onDiscoveryToggle
		a.mu.Unlock()
		if fn == nil {
			return errors.New("discovery toggle not wired")
		}
		fn(enabled)
	default:
		return fmt.Errorf("unknown feature %q", feature)
	}
	a.record(actorID, ActionToggleFeature, feature, map[string]any{"enabled": enabled})
	return nil
}

// ResetMetrics zeroes every counter and drops the snapshot history.
func (a *AdminCore) ResetMetrics(actorID string) {
	a.Registry.Reset()
	a.Collector.ResetHistory()
	a.record(actorID, ActionResetMetrics, "", nil)
}

// DisconnectAll force-removes every live peer and returns the count.
func (a *AdminCore) DisconnectAll(actorID, reason string) (int, error) {
	srv, err := a.server()
	if err != nil {
		return 0, err
	}
	if reason == "" {
		reason = "disconnected by admin"
	}
	removed := 0
	for _, id := range srv.PeerIDs() {
		if srv.Disconnect(id, reason) {
			removed++
		}
	}
	a.record(actorID, ActionDisconnectClient, "*", map[string]any{
		"reason":  reason,
		"removed": removed,
	})
	return removed, nil
}

// ClearBans lifts every ban and returns the number removed.
func (a *AdminCore) ClearBans(actorID string) int {
	n := a.Bans.Clear()
	a.record(actorID, ActionUnbanClient, "*", map[string]any{"removed": n})
	return n
}

// ClearAudit drops the retained audit trail.
func (a *AdminCore) ClearAudit(actorID string) {
	a.Audit.Clear()
	a.record(actorID, "clear_audit", "", nil)
}

// ClearQueue purges a destination's pending messages and returns the
// number dropped.
func (a *AdminCore) ClearQueue(actorID, clientID string) (int, error) {
	srv, err := a.server()
	if err != nil {
		return 0, err
	}
	dropped := srv.ClearQueue(clientID)
	a.record(actorID, ActionClearQueue, clientID, map[string]any{"dropped": dropped})
	return dropped, nil
}
