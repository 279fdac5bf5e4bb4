// Package history keeps a bounded stack of rendered canvas snapshots used to
// make undo cheap.
package history

import (
	"image"
	"sync"
)

// DefaultCapacity is the number of snapshots kept when none is configured.
const DefaultCapacity = 20

// Snapshot is the rendered image after Count annotations were committed.
type Snapshot struct {
	Pixels *image.RGBA
	Count  int
}

// Ring is a fixed-capacity stack. Pushing onto a full ring evicts the oldest
// snapshot.
type Ring struct {
	mu    sync.Mutex
	buf   []Snapshot
	start int // index of the oldest snapshot
	n     int
}

// New creates a ring holding at most capacity snapshots. Non-positive values
// use DefaultCapacity.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]Snapshot, capacity)}
}

// Capacity returns the maximum number of snapshots.
func (r *Ring) Capacity() int { return len(r.buf) }

// Len returns the number of snapshots held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Push stores s as the newest snapshot and reports whether an older one was
// evicted to make room.
func (r *Ring) Push(s Snapshot) (evicted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.n == len(r.buf) {
		r.buf[r.start] = Snapshot{}
		r.start = (r.start + 1) % len(r.buf)
		r.n--
		evicted = true
	}
	r.buf[(r.start+r.n)%len(r.buf)] = s
	r.n++
	return evicted
}

// Peek returns the newest snapshot without removing it.
func (r *Ring) Peek() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n == 0 {
		return Snapshot{}, false
	}
	return r.buf[r.top()], true
}

// Pop removes and returns the newest snapshot.
func (r *Ring) Pop() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n == 0 {
		return Snapshot{}, false
	}
	i := r.top()
	s := r.buf[i]
	r.buf[i] = Snapshot{}
	r.n--
	return s, true
}

// DiscardAbove drops every snapshot describing more than count annotations.
// Counts only grow towards the top, so it stops at the first one that fits.
func (r *Ring) DiscardAbove(count int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	for r.n > 0 {
		i := r.top()
		if r.buf[i].Count <= count {
			break
		}
		r.buf[i] = Snapshot{}
		r.n--
		dropped++
	}
	return dropped
}

// Lookup returns the newest snapshot if it describes exactly count annotations.
func (r *Ring) Lookup(count int) (*image.RGBA, bool) {
	s, ok := r.Peek()
	if !ok || s.Count != count {
		return nil, false
	}
	return s.Pixels, true
}

// Clear drops all snapshots.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.buf)
	r.start, r.n = 0, 0
}

func (r *Ring) top() int {
	return (r.start + r.n - 1) % len(r.buf)
}
