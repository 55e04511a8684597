package admin

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/relaymesh/conduit/internal/buffer"
)

// Audit action names recorded by the action layer.
const (
	ActionDisconnectClient = "disconnect_client"
	ActionBanClient        = "ban_client"
	ActionUnbanClient      = "unban_client"
	ActionBanIP            = "ban_ip"
	ActionUnbanIP          = "unban_ip"
	ActionBroadcast        = "broadcast"
	ActionUpdateRateLimits = "update_rate_limits"
	ActionToggleFeature    = "toggle_feature"
	ActionResetMetrics     = "reset_metrics"
	ActionClearQueue       = "clear_queue"
	ActionLogin            = "login"
	ActionLogout           = "logout"
)

// AuditEntry is one recorded admin action. IDs are ULIDs so entries sort
// by creation time.
type AuditEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	UserID    string         `json:"userId"`
	Action    string         `json:"action"`
	Target    string         `json:"target,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// AuditQuery filters Query results. Zero values mean no filter.
type AuditQuery struct {
	UserID string
	Action string
	Since  time.Time
	Until  time.Time
	Limit  int
}

// AuditLogger keeps a bounded in-memory trail of admin actions.
type AuditLogger struct {
	mu      sync.Mutex
	entries *buffer.Ring[AuditEntry]
	enabled bool
	entropy *ulid.MonotonicEntropy
}

// NewAuditLogger allocates the trail. maxEntries bounds retention; the
// oldest entries are evicted first.
func NewAuditLogger(maxEntries int, enabled bool) *AuditLogger {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &AuditLogger{
		entries: buffer.NewRing[AuditEntry](maxEntries),
		enabled: enabled,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Log records one action. The entry is built and returned even when the
// trail is disabled, so callers can still publish it as an event.
func (a *AuditLogger) Log(userID, action, target string, details map[string]any) AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry := AuditEntry{
		ID:        ulid.MustNew(ulid.Timestamp(time.Now()), a.entropy).String(),
		Timestamp: time.Now(),
		UserID:    userID,
		Action:    action,
		Target:    target,
		Details:   details,
	}
	if a.enabled {
		a.entries.Push(entry)
	}
	log.Info().
		Str("user", userID).
		Str("action", action).
		Str("target", target).
		Msg("Admin action")
	return entry
}

// Query returns matching entries, newest first.
func (a *AuditLogger) Query(q AuditQuery) []AuditEntry {
	a.mu.Lock()
	all := a.entries.Items()
	a.mu.Unlock()

	out := make([]AuditEntry, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		e := all[i]
		if q.UserID != "" && e.UserID != q.UserID {
			continue
		}
		if q.Action != "" && e.Action != q.Action {
			continue
		}
		if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && e.Timestamp.After(q.Until) {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out
}

// Len returns the retained entry count.
func (a *AuditLogger) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entries.Len()
}

// Clear drops all retained entries.
func (a *AuditLogger) Clear() {
	a.mu.Lock()
	a.entries.Clear()
	a.mu.Unlock()
}
