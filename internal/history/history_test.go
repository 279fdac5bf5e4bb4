package history

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snap(count int) Snapshot {
	return Snapshot{Pixels: image.NewRGBA(image.Rect(0, 0, 1, 1)), Count: count}
}

func TestDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Capacity())
	assert.Equal(t, 3, New(3).Capacity())
}

func TestPushEvictsOldest(t *testing.T) {
	r := New(3)
	for i := 1; i <= 3; i++ {
		assert.False(t, r.Push(snap(i)))
	}
	assert.True(t, r.Push(snap(4)))
	assert.Equal(t, 3, r.Len())

	var counts []int
	for {
		s, ok := r.Pop()
		if !ok {
			break
		}
		counts = append(counts, s.Count)
	}
	assert.Equal(t, []int{4, 3, 2}, counts)
}

func TestNeverExceedsCapacity(t *testing.T) {
	r := New(DefaultCapacity)
	for i := 1; i <= 25; i++ {
		r.Push(snap(i))
		require.LessOrEqual(t, r.Len(), DefaultCapacity)
	}
	top, ok := r.Peek()
	require.True(t, ok)
	assert.Equal(t, 25, top.Count)
}

func TestDiscardAboveAndLookup(t *testing.T) {
	r := New(5)
	for i := 1; i <= 5; i++ {
		r.Push(snap(i))
	}
	assert.Equal(t, 2, r.DiscardAbove(3))
	px, ok := r.Lookup(3)
	assert.True(t, ok)
	assert.NotNil(t, px)

	_, ok = r.Lookup(2)
	assert.False(t, ok, "top snapshot describes 3 annotations")

	assert.Equal(t, 3, r.DiscardAbove(0))
	_, ok = r.Peek()
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	r := New(2)
	r.Push(snap(1))
	r.Push(snap(2))
	r.Push(snap(3))
	r.Clear()
	assert.Zero(t, r.Len())
	_, ok := r.Pop()
	assert.False(t, ok)

	r.Push(snap(7))
	s, ok := r.Peek()
	require.True(t, ok)
	assert.Equal(t, 7, s.Count)
}
