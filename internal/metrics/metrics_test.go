package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCounter(t *testing.T) {
	var c Counter
	c.Inc()
	c.Add(4)
	assert.Equal(t, int64(5), c.Value())

	c.Add(-3)
	assert.Equal(t, int64(5), c.Value(), "negative deltas are ignored")

	c.Reset()
	assert.Equal(t, int64(0), c.Value())
}

func TestGaugeMinMax(t *testing.T) {
	var g Gauge
	g.Set(5)
	g.Set(2)
	g.Set(9)

	assert.Equal(t, float64(9), g.Value())
	assert.Equal(t, float64(2), g.Min())
	assert.Equal(t, float64(9), g.Max())

	g.Inc()
	assert.Equal(t, float64(10), g.Value())
	assert.Equal(t, float64(10), g.Max())
	g.Dec()
	assert.Equal(t, float64(9), g.Value())

	g.Reset()
	assert.Zero(t, g.Value())
	assert.Zero(t, g.Min())
	assert.Zero(t, g.Max())
}

func TestGaugeConcurrentIncDec(t *testing.T) {
	var g Gauge
	const workers = 8
	const perWorker = 20000

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				g.Inc()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(workers*perWorker), g.Value(), "no increments lost under contention")
	assert.Equal(t, float64(workers*perWorker), g.Max())

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				g.Dec()
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, g.Value())
}

func TestCircularTimeSeriesWraps(t *testing.T) {
	s := NewCircularTimeSeries(3)
	base := time.Now()

	for i := 0; i < 5; i++ {
		s.RecordAt(base.Add(time.Duration(i)*time.Second), float64(i))
	}

	assert.Equal(t, 3, s.Size(), "size = min(writes, capacity)")
	points := s.GetAll()
	assert.Len(t, points, 3)
	for i, p := range points {
		assert.Equal(t, float64(i+2), p.Value, "chronological order after wrap")
	}
	assert.True(t, points[0].Timestamp.Before(points[1].Timestamp))
}

func TestCircularTimeSeriesPartialFill(t *testing.T) {
	s := NewCircularTimeSeries(5)
	s.Record(1)
	s.Record(2)
	assert.Equal(t, 2, s.Size())
	points := s.GetAll()
	assert.Equal(t, float64(1), points[0].Value)
	assert.Equal(t, float64(2), points[1].Value)

	s.Reset()
	assert.Equal(t, 0, s.Size())
	assert.Empty(t, s.GetAll())
}

func TestErrorCounter(t *testing.T) {
	e := NewErrorCounter()
	e.Inc("validation")
	e.Inc("validation")
	e.Inc("send_failed")

	assert.Equal(t, int64(3), e.Total())
	assert.Equal(t, int64(2), e.ByKind()["validation"])

	// ByKind returns a copy.
	e.ByKind()["validation"] = 99
	assert.Equal(t, int64(2), e.ByKind()["validation"])

	e.Reset()
	assert.Equal(t, int64(0), e.Total())
}

func TestRegistryDoubleResetIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.MessagesRelayed.Add(10)
	r.ActiveConnections.Set(3)
	r.Errors.Inc("x")
	r.Throughput.Record(1)

	r.Reset()
	first := snapshotOf(r)
	r.Reset()
	assert.Equal(t, first, snapshotOf(r))
}

func snapshotOf(r *Registry) [6]int64 {
	return [6]int64{
		r.MessagesRelayed.Value(),
		r.ConnectionsOpened.Value(),
		int64(r.ActiveConnections.Value()),
		r.Errors.Total(),
		int64(r.Throughput.Size()),
		int64(r.Latency.Size()),
	}
}
