package metrics

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/relaymesh/conduit/internal/buffer"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/process"
)

// Snapshot is a dense immutable record of realm state at one instant.
type Snapshot struct {
	Timestamp int64            `json:"timestamp"`
	Clients   ClientsSection   `json:"clients"`
	Messages  MessagesSection  `json:"messages"`
	RateLimit RateLimitSection `json:"rateLimit"`
	Errors    ErrorsSection    `json:"errors"`
	Memory    MemorySection    `json:"memory"`
}

type ClientsSection struct {
	Total     int64 `json:"total"`
	Connected int64 `json:"connected"`
	Peak      int64 `json:"peak"`
}

type MessagesSection struct {
	Relayed             int64   `json:"relayed"`
	Queued              int64   `json:"queued"`
	ThroughputPerSecond float64 `json:"throughputPerSecond"`
}

type RateLimitSection struct {
	Hits       int64 `json:"hits"`
	Rejections int64 `json:"rejections"`
}

type ErrorsSection struct {
	Total  int64            `json:"total"`
	ByType map[string]int64 `json:"byType"`
}

type MemorySection struct {
	HeapUsed  uint64 `json:"heapUsed"`
	HeapTotal uint64 `json:"heapTotal"`
	External  uint64 `json:"external"`
	RSS       uint64 `json:"rss"`
}

// CollectorConfig controls snapshot cadence and history bounds.
type CollectorConfig struct {
	SnapshotInterval time.Duration
	Retention        time.Duration
	MaxSnapshots     int
}

// Collector captures periodic snapshots into a bounded history. History is
// trimmed by age first, then by count.
type Collector struct {
	registry *Registry
	config   CollectorConfig
	history  *buffer.Ring[Snapshot]

	mu          sync.Mutex
	lastRelayed int64
	lastAt      time.Time
	onSnapshot  func(Snapshot)

	proc *process.Process

	started  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewCollector creates a collector over the registry. Call Start to begin
// the snapshot timer.
func NewCollector(registry *Registry, config CollectorConfig) *Collector {
	if config.SnapshotInterval <= 0 {
		config.SnapshotInterval = 10 * time.Second
	}
	if config.MaxSnapshots <= 0 {
		config.MaxSnapshots = 360
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn().Err(err).Msg("Process handle unavailable, RSS will read zero")
		proc = nil
	}
	return &Collector{
		registry: registry,
		config:   config,
		history:  buffer.NewRing[Snapshot](config.MaxSnapshots),
		lastAt:   time.Now(),
		proc:     proc,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// OnSnapshot registers a callback invoked with every periodic snapshot.
// Used by the admin event bus to publish metrics:update.
func (c *Collector) OnSnapshot(fn func(Snapshot)) {
	c.mu.Lock()
	c.onSnapshot = fn
	c.mu.Unlock()
}

// Start launches the snapshot timer goroutine.
func (c *Collector) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()
	go c.run()
}

func (c *Collector) run() {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.config.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			snap := c.capture()
			c.mu.Lock()
			fn := c.onSnapshot
			c.mu.Unlock()
			if fn != nil {
				fn(snap)
			}
		case <-c.stopCh:
			return
		}
	}
}

// capture records throughput since the previous snapshot and appends the
// snapshot to the trimmed history.
func (c *Collector) capture() Snapshot {
	now := time.Now()

	c.mu.Lock()
	relayed := c.registry.MessagesRelayed.Value()
	elapsed := now.Sub(c.lastAt).Seconds()
	var perSecond float64
	if elapsed > 0 {
		perSecond = float64(relayed-c.lastRelayed) / elapsed
	}
	c.lastRelayed = relayed
	c.lastAt = now
	c.mu.Unlock()

	c.registry.Throughput.RecordAt(now, perSecond)

	snap := c.Current()
	snap.Messages.ThroughputPerSecond = perSecond

	if c.config.Retention > 0 {
		cutoff := now.Add(-c.config.Retention).UnixMilli()
		c.history.TrimFunc(func(s Snapshot) bool { return s.Timestamp >= cutoff })
	}
	c.history.Push(snap)
	return snap
}

// Current builds a snapshot of the registry without touching the history or
// the throughput series. Serves GET /metrics.
func (c *Collector) Current() Snapshot {
	reg := c.registry
	return Snapshot{
		Timestamp: time.Now().UnixMilli(),
		Clients: ClientsSection{
			Total:     reg.ConnectionsOpened.Value(),
			Connected: int64(reg.ActiveConnections.Value()),
			Peak:      int64(reg.ActiveConnections.Max()),
		},
		Messages: MessagesSection{
			Relayed: reg.MessagesRelayed.Value(),
			Queued:  reg.MessagesQueued.Value(),
		},
		RateLimit: RateLimitSection{
			Hits:       reg.RateLimitHits.Value(),
			Rejections: reg.RateLimitRejections.Value(),
		},
		Errors: ErrorsSection{
			Total:  reg.Errors.Total(),
			ByType: reg.Errors.ByKind(),
		},
		Memory: c.memory(),
	}
}

func (c *Collector) memory() MemorySection {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	section := MemorySection{
		HeapUsed:  ms.HeapAlloc,
		HeapTotal: ms.HeapSys,
		External:  ms.Sys - ms.HeapSys,
	}
	if c.proc != nil {
		if mi, err := c.proc.MemoryInfo(); err == nil {
			section.RSS = mi.RSS
		}
	}
	return section
}

// History returns the snapshot history, oldest first, filtered to the
// inclusive [start, end] range in ms since epoch (zeroes mean unbounded).
func (c *Collector) History(start, end int64) []Snapshot {
	all := c.history.Items()
	out := make([]Snapshot, 0, len(all))
	for _, s := range all {
		if start > 0 && s.Timestamp < start {
			continue
		}
		if end > 0 && s.Timestamp > end {
			continue
		}
		out = append(out, s)
	}
	return out
}

// ResetHistory clears the snapshot history.
func (c *Collector) ResetHistory() {
	c.history.Clear()
	c.mu.Lock()
	c.lastRelayed = 0
	c.lastAt = time.Now()
	c.mu.Unlock()
}

// Close stops the snapshot timer. Idempotent and synchronous.
func (c *Collector) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.mu.Lock()
		started := c.started
		c.mu.Unlock()
		if started {
			<-c.doneCh
		}
	})
}
