package state

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type OpType string

const (
	OpAppend  OpType = "append"
	OpUndo    OpType = "undo"
	OpReplace OpType = "replace"
)

// Op is one committed change to a document, stamped for ordering across sites.
type Op struct {
	Type        OpType     `json:"type"`
	ScreenID    string     `json:"screen_id,omitempty"`
	Annotation  Annotation `json:"-"`
	Annotations List       `json:"annotations,omitempty"`
	Lamport     uint64     `json:"lamport"`
	Site        string     `json:"site"`
	At          time.Time  `json:"at"`
}

// Clock is a Lamport clock.
type Clock struct {
	counter atomic.Uint64
}

// Tick advances the clock and returns the new value.
func (c *Clock) Tick() uint64 {
	return c.counter.Add(1)
}

// Observe moves the clock past a timestamp received from another site.
func (c *Clock) Observe(ts uint64) {
	for {
		cur := c.counter.Load()
		if ts <= cur || c.counter.CompareAndSwap(cur, ts) {
			return
		}
	}
}

// Now returns the current value without advancing.
func (c *Clock) Now() uint64 {
	return c.counter.Load()
}

// Emitter stamps local ops with this site's id and the next Lamport value and
// hands them to the subscribed listeners.
type Emitter struct {
	site  string
	clock Clock

	mu        sync.RWMutex
	listeners []func(Op)
}

// NewEmitter creates an emitter with a random site id.
func NewEmitter() *Emitter {
	return &Emitter{site: uuid.NewString()}
}

// Site returns the site id stamped on every op.
func (e *Emitter) Site() string { return e.site }

// Subscribe registers fn for every future op.
func (e *Emitter) Subscribe(fn func(Op)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Emit stamps op and delivers it. A nil emitter drops the op.
func (e *Emitter) Emit(op Op) Op {
	if e == nil {
		return op
	}
	op.Lamport = e.clock.Tick()
	op.Site = e.site
	if op.At.IsZero() {
		op.At = time.Now()
	}
	e.mu.RLock()
	listeners := append([]func(Op){}, e.listeners...)
	e.mu.RUnlock()
	for _, fn := range listeners {
		fn(op)
	}
	return op
}
