package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingDropOldest(t *testing.T) {
	r := NewRing[int](3)

	for i := 1; i <= 3; i++ {
		_, dropped := r.Push(i)
		assert.False(t, dropped)
	}
	assert.Equal(t, []int{1, 2, 3}, r.Items())

	oldest, dropped := r.Push(4)
	assert.True(t, dropped)
	assert.Equal(t, 1, oldest)
	assert.Equal(t, []int{2, 3, 4}, r.Items())
	assert.Equal(t, 3, r.Len())
}

func TestRingTrimFunc(t *testing.T) {
	r := NewRing[int](10)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	r.TrimFunc(func(v int) bool { return v >= 3 })
	assert.Equal(t, []int{3, 4, 5}, r.Items())

	// TrimFunc only removes a leading run.
	r.Push(1)
	r.TrimFunc(func(v int) bool { return v >= 3 })
	assert.Equal(t, []int{3, 4, 5, 1}, r.Items())
}

func TestRingClear(t *testing.T) {
	r := NewRing[string](2)
	r.Push("a")
	r.Push("b")
	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Items())
}

func TestRingMinimumCapacity(t *testing.T) {
	r := NewRing[int](0)
	r.Push(1)
	oldest, dropped := r.Push(2)
	assert.True(t, dropped)
	assert.Equal(t, 1, oldest)
	assert.Equal(t, []int{2}, r.Items())
}
