package metrics

import (
	"time"

	"github.com/relaymesh/conduit/internal/signaling"
)

// Instrument installs metric callbacks on the core's hook registry and
// returns the uninstrument action that restores the previous state. The
// core's well-known paths (connection, message, disconnect) stay untouched;
// observation is purely additive.
func Instrument(hooks *signaling.Hooks, reg *Registry) (uninstrument func()) {
	set := &signaling.HookSet{
		ConnectionOpened: func(string) {
			reg.ConnectionsOpened.Inc()
			reg.ActiveConnections.Inc()
		},
		ConnectionClosed: func(string) {
			reg.ConnectionsClosed.Inc()
			reg.ActiveConnections.Dec()
		},
		MessageRelayed: func(string, string, string) {
			reg.MessagesRelayed.Inc()
		},
		MessageQueued: func(string, string) {
			reg.MessagesQueued.Inc()
			reg.QueuedMessages.Inc()
		},
		MessageExpired: func(string, string) {
			reg.QueuedMessages.Dec()
		},
		QueueDrained: func(_ string, count int) {
			reg.QueuedMessages.Add(-float64(count))
		},
		RateLimited: func(_ string, rejected bool) {
			reg.RateLimitHits.Inc()
			if rejected {
				reg.RateLimitRejections.Inc()
			}
		},
		ErrorOccurred: func(kind string, _ string) {
			reg.Errors.Inc(kind)
		},
		MessageHandled: func(elapsed time.Duration) {
			reg.Latency.Record(float64(elapsed.Microseconds()) / 1000.0)
		},
	}
	return hooks.Install(set)
}
