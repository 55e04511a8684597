package metrics

const (
	throughputSamples = 360
	latencySamples    = 360
)

// Registry bundles every realm-level metric. All members are individually
// synchronized; the registry itself adds no locking.
type Registry struct {
	ConnectionsOpened   Counter
	ConnectionsClosed   Counter
	MessagesRelayed     Counter
	MessagesQueued      Counter
	RateLimitHits       Counter
	RateLimitRejections Counter

	Errors *ErrorCounter

	ActiveConnections Gauge
	QueuedMessages    Gauge

	Throughput *CircularTimeSeries // messages per second
	Latency    *CircularTimeSeries // per-message handle time, ms
}

// NewRegistry creates a registry with empty series.
func NewRegistry() *Registry {
	return &Registry{
		Errors:     NewErrorCounter(),
		Throughput: NewCircularTimeSeries(throughputSamples),
		Latency:    NewCircularTimeSeries(latencySamples),
	}
}

// Reset restores every metric to its initial state. Two consecutive resets
// yield the same post-state.
func (r *Registry) Reset() {
	r.ConnectionsOpened.Reset()
	r.ConnectionsClosed.Reset()
	r.MessagesRelayed.Reset()
	r.MessagesQueued.Reset()
	r.RateLimitHits.Reset()
	r.RateLimitRejections.Reset()
	r.Errors.Reset()
	r.ActiveConnections.Reset()
	r.QueuedMessages.Reset()
	r.Throughput.Reset()
	r.Latency.Reset()
}
