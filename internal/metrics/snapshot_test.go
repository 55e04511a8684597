package metrics

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentSnapshotShape(t *testing.T) {
	reg := NewRegistry()
	reg.ConnectionsOpened.Add(4)
	reg.ActiveConnections.Set(3)
	reg.ActiveConnections.Set(2)
	reg.MessagesRelayed.Add(7)
	reg.MessagesQueued.Add(2)
	reg.RateLimitHits.Add(9)
	reg.RateLimitRejections.Add(1)
	reg.Errors.Inc("validation")

	c := NewCollector(reg, CollectorConfig{})
	defer c.Close()

	snap := c.Current()
	assert.Equal(t, int64(4), snap.Clients.Total)
	assert.Equal(t, int64(2), snap.Clients.Connected)
	assert.Equal(t, int64(3), snap.Clients.Peak)
	assert.Equal(t, int64(7), snap.Messages.Relayed)
	assert.Equal(t, int64(9), snap.RateLimit.Hits)
	assert.Equal(t, int64(1), snap.RateLimit.Rejections)
	assert.Equal(t, int64(1), snap.Errors.ByType["validation"])
	assert.NotZero(t, snap.Memory.HeapUsed)
	assert.NotZero(t, snap.Memory.HeapTotal)
}

func TestSnapshotJSONRoundTrip(t *testing.T) {
	reg := NewRegistry()
	reg.MessagesRelayed.Add(3)
	reg.Errors.Inc("send_failed")

	c := NewCollector(reg, CollectorConfig{})
	defer c.Close()

	snap := c.Current()
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, snap, decoded)
}

func TestCollectorPeriodicSnapshots(t *testing.T) {
	reg := NewRegistry()
	c := NewCollector(reg, CollectorConfig{
		SnapshotInterval: 20 * time.Millisecond,
		MaxSnapshots:     100,
	})

	var mu sync.Mutex
	published := 0
	c.OnSnapshot(func(Snapshot) {
		mu.Lock()
		published++
		mu.Unlock()
	})

	reg.MessagesRelayed.Add(50)
	c.Start()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return published >= 2
	}, time.Second, 5*time.Millisecond)

	c.Close()
	c.Close() // idempotent

	history := c.History(0, 0)
	require.NotEmpty(t, history)
	assert.Positive(t, history[0].Messages.ThroughputPerSecond, "first interval saw 50 relayed messages")
	assert.GreaterOrEqual(t, c.registry.Throughput.Size(), 1)
}

func TestHistoryRangeFilter(t *testing.T) {
	reg := NewRegistry()
	c := NewCollector(reg, CollectorConfig{MaxSnapshots: 10})
	defer c.Close()

	c.history.Push(Snapshot{Timestamp: 100})
	c.history.Push(Snapshot{Timestamp: 200})
	c.history.Push(Snapshot{Timestamp: 300})

	assert.Len(t, c.History(0, 0), 3)
	assert.Len(t, c.History(150, 0), 2)
	assert.Len(t, c.History(150, 250), 1)
	assert.Empty(t, c.History(400, 0))
}

func TestHistoryCountBound(t *testing.T) {
	reg := NewRegistry()
	c := NewCollector(reg, CollectorConfig{MaxSnapshots: 3})
	defer c.Close()

	for i := int64(1); i <= 5; i++ {
		c.history.Push(Snapshot{Timestamp: i})
	}
	history := c.History(0, 0)
	require.Len(t, history, 3)
	assert.Equal(t, int64(3), history[0].Timestamp, "oldest snapshots trimmed first")
}

func TestResetHistory(t *testing.T) {
	reg := NewRegistry()
	c := NewCollector(reg, CollectorConfig{MaxSnapshots: 5})
	defer c.Close()

	c.history.Push(Snapshot{Timestamp: 1})
	c.ResetHistory()
	assert.Empty(t, c.History(0, 0))
}
