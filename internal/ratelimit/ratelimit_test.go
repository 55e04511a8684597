package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBurstExhaustion(t *testing.T) {
	// Refill rate near zero so the burst is all we get inside the test.
	l := New(5, 0.0001)

	for i := 0; i < 5; i++ {
		assert.True(t, l.TryConsume("alice"), "admit %d within burst", i+1)
	}
	assert.False(t, l.TryConsume("alice"), "6th message inside the window is rejected")
}

func TestBucketsAreIndependent(t *testing.T) {
	l := New(1, 0.0001)

	assert.True(t, l.TryConsume("alice"))
	assert.False(t, l.TryConsume("alice"))
	assert.True(t, l.TryConsume("bob"), "bob has his own bucket")
}

func TestRemoveClientResetsBudget(t *testing.T) {
	l := New(1, 0.0001)

	assert.True(t, l.TryConsume("alice"))
	assert.False(t, l.TryConsume("alice"))

	l.RemoveClient("alice")
	assert.True(t, l.TryConsume("alice"), "fresh bucket after removal")
}

func TestClear(t *testing.T) {
	l := New(2, 1)
	l.TryConsume("a")
	l.TryConsume("b")
	assert.Equal(t, 2, l.Size())
	l.Clear()
	assert.Equal(t, 0, l.Size())
}

func TestSetLimitsAppliesToExistingBuckets(t *testing.T) {
	l := New(1, 0.0001)
	assert.True(t, l.TryConsume("alice"))
	assert.False(t, l.TryConsume("alice"))

	// Raising the burst does not mint tokens retroactively, but new
	// buckets observe the new parameters.
	l.SetLimits(3, 0.0001)
	maxTokens, refill := l.Limits()
	assert.Equal(t, 3, maxTokens)
	assert.InDelta(t, 0.0001, refill, 1e-9)

	for i := 0; i < 3; i++ {
		assert.True(t, l.TryConsume("bob"))
	}
	assert.False(t, l.TryConsume("bob"))
}
