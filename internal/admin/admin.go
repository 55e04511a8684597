package admin

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/relaymesh/conduit/internal/config"
	"github.com/relaymesh/conduit/internal/metrics"
	"github.com/relaymesh/conduit/internal/protocol"
	"github.com/relaymesh/conduit/internal/ratelimit"
	"github.com/relaymesh/conduit/internal/signaling"
)

// Instrumentable is the narrow capability surface the control plane needs
// from the signaling core. The admin never sees realm internals.
type Instrumentable interface {
	PeerIDs() []string
	PeerSummaries() []signaling.PeerSummary
	PeerSummary(id string) (signaling.PeerSummary, bool)
	PeerIP(id string) string
	Disconnect(id, reason string) bool
	QueueLen(dst string) int
	ClearQueue(dst string) int
	TotalQueued() int
	BroadcastFrame(msg protocol.Message) int

	SetRelayEnabled(enabled bool)
	SetRateLimitEnabled(enabled bool)
	SetBanCheck(fn signaling.BanCheck)
	Hooks() *signaling.Hooks
	Limiter() *ratelimit.Limiter
	Options() signaling.Options
}

// AdminCore bundles the control plane: credential checking, sessions,
// bans, the audit trail, the event bus and the metrics pipeline.
type AdminCore struct {
	Auth      *AuthManager
	Sessions  *SessionManager
	Bans      *BanList
	Audit     *AuditLogger
	Events    *EventBus
	Registry  *metrics.Registry
	Collector *metrics.Collector

	mu                sync.Mutex
	srv               Instrumentable
	uninstall         []func()
	onDiscoveryToggle func(bool)
	destroyed         bool
}

// New builds an unattached control plane from configuration.
func New(cfg config.AdminConfig) *AdminCore {
	sessions := NewSessionManager(cfg.Auth.SessionTimeout)
	registry := metrics.NewRegistry()
	collector := metrics.NewCollector(registry, metrics.CollectorConfig{
		SnapshotInterval: cfg.Metrics.SnapshotInterval,
		Retention:        cfg.Metrics.Retention,
		MaxSnapshots:     cfg.Metrics.MaxSnapshots,
	})
	return &AdminCore{
		Auth:      NewAuthManager(cfg.Auth, sessions),
		Sessions:  sessions,
		Bans:      NewBanList(),
		Audit:     NewAuditLogger(cfg.Audit.MaxEntries, cfg.Audit.Enabled),
		Events:    NewEventBus(),
		Registry:  registry,
		Collector: collector,
	}
}

// Server returns the attached signaling core, or nil before attachment.
func (a *AdminCore) Server() Instrumentable {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.srv
}

// SetDiscoveryToggle wires the runtime discovery flag mutator, typically
// provided by the HTTP adapter.
func (a *AdminCore) SetDiscoveryToggle(fn func(enabled bool)) {
	a.mu.Lock()
	a.onDiscoveryToggle = fn
	a.mu.Unlock()
}

// AttachToServer binds the control plane to a signaling core: metrics
// instrumentation, event mirroring, the admission ban check and the
// snapshot timer. Attaching twice detaches the previous binding first.
func (a *AdminCore) AttachToServer(srv Instrumentable) {
	a.Detach()

	uninstrument := metrics.Instrument(srv.Hooks(), a.Registry)
	unmirror := srv.Hooks().Install(a.mirrorSet())
	srv.SetBanCheck(a.Bans.IsBanned)

	a.Collector.OnSnapshot(func(snap metrics.Snapshot) {
		a.Events.Publish(EventMetricsUpdate, snap)
	})
	a.Collector.Start()

	a.mu.Lock()
	a.srv = srv
	a.uninstall = []func(){
		uninstrument,
		unmirror,
		func() { srv.SetBanCheck(nil) },
		func() { a.Collector.OnSnapshot(nil) },
	}
	a.mu.Unlock()
	log.Info().Msg("Admin control plane attached")
}

// mirrorSet republishes core lifecycle hooks as admin events.
func (a *AdminCore) mirrorSet() *signaling.HookSet {
	return &signaling.HookSet{
		ConnectionOpened: func(id string) {
			a.Events.Publish(EventClientConnected, map[string]any{"id": id})
		},
		ConnectionClosed: func(id string) {
			a.Events.Publish(EventClientDisconnected, map[string]any{"id": id})
		},
		ErrorOccurred: func(kind, detail string) {
			a.Events.Publish(EventErrorOccurred, map[string]any{"kind": kind, "detail": detail})
		},
	}
}

// Detach unbinds from the server and rolls back every installation.
func (a *AdminCore) Detach() {
	a.mu.Lock()
	uninstall := a.uninstall
	a.uninstall = nil
	a.srv = nil
	a.mu.Unlock()
	for _, fn := range uninstall {
		fn()
	}
}

// Destroy detaches and stops every background worker. Idempotent.
func (a *AdminCore) Destroy() {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return
	}
	a.destroyed = true
	a.mu.Unlock()

	a.Detach()
	a.Collector.Close()
	a.Sessions.Close()
	a.Events.Close()
	log.Info().Msg("Admin control plane destroyed")
}
