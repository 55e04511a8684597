// Package ratelimit implements per-peer admission control for inbound
// signaling frames. One token bucket per peer id; strictly process-local.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter holds one bucket per peer id. A bucket is created full on first
// sight and refills continuously at refillRate tokens per second up to
// maxTokens.
type Limiter struct {
	mu         sync.Mutex
	buckets    map[string]*rate.Limiter
	maxTokens  int
	refillRate float64
}

// New creates a Limiter with the given burst and refill rate.
func New(maxTokens int, refillRate float64) *Limiter {
	if maxTokens < 1 {
		maxTokens = 1
	}
	return &Limiter{
		buckets:    make(map[string]*rate.Limiter),
		maxTokens:  maxTokens,
		refillRate: refillRate,
	}
}

// TryConsume takes one token from the peer's bucket, reporting whether the
// message is admitted.
func (l *Limiter) TryConsume(id string) bool {
	l.mu.Lock()
	b, ok := l.buckets[id]
	if !ok {
		b = rate.NewLimiter(rate.Limit(l.refillRate), l.maxTokens)
		l.buckets[id] = b
	}
	l.mu.Unlock()
	return b.Allow()
}

// RemoveClient drops the peer's bucket. Called on final disconnect, not on
// a transient detach, so a reconnecting peer cannot reset its budget.
func (l *Limiter) RemoveClient(id string) {
	l.mu.Lock()
	delete(l.buckets, id)
	l.mu.Unlock()
}

// Clear drops every bucket.
func (l *Limiter) Clear() {
	l.mu.Lock()
	l.buckets = make(map[string]*rate.Limiter)
	l.mu.Unlock()
}

// SetLimits applies new parameters to existing buckets and to buckets
// created afterwards. Supports live admin reconfiguration.
func (l *Limiter) SetLimits(maxTokens int, refillRate float64) {
	if maxTokens < 1 {
		maxTokens = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxTokens = maxTokens
	l.refillRate = refillRate
	for _, b := range l.buckets {
		b.SetLimit(rate.Limit(refillRate))
		b.SetBurst(maxTokens)
	}
}

// Limits returns the current bucket parameters.
func (l *Limiter) Limits() (maxTokens int, refillRate float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxTokens, l.refillRate
}

// Size returns the number of tracked buckets.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
