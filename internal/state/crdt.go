package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

type opJSON struct {
	Type        OpType          `json:"type"`
	ScreenID    string          `json:"screen_id,omitempty"`
	Annotation  json.RawMessage `json:"annotation,omitempty"`
	Annotations List            `json:"annotations,omitempty"`
	Lamport     uint64          `json:"lamport"`
	Site        string          `json:"site"`
	At          json.RawMessage `json:"at"`
}

// MarshalJSON encodes the single annotation of an append op inline.
func (o Op) MarshalJSON() ([]byte, error) {
	w := opJSON{
		Type:        o.Type,
		ScreenID:    o.ScreenID,
		Annotations: o.Annotations,
		Lamport:     o.Lamport,
		Site:        o.Site,
	}
	at, err := o.At.MarshalJSON()
	if err != nil {
		return nil, err
	}
	w.At = at
	if o.Annotation != nil {
		if w.Annotation, err = EncodeAnnotation(o.Annotation); err != nil {
			return nil, err
		}
	}
	return json.Marshal(w)
}

func (o *Op) UnmarshalJSON(data []byte) error {
	var w opJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*o = Op{
		Type:        w.Type,
		ScreenID:    w.ScreenID,
		Annotations: w.Annotations,
		Lamport:     w.Lamport,
		Site:        w.Site,
	}
	if len(w.At) > 0 {
		if err := o.At.UnmarshalJSON(w.At); err != nil {
			return fmt.Errorf("decode op time: %w", err)
		}
	}
	if len(w.Annotation) > 0 {
		a, err := DecodeAnnotation(w.Annotation)
		if err != nil {
			return err
		}
		o.Annotation = a
	}
	return nil
}

// Replica mirrors a document edited elsewhere by applying its ops in the order
// they arrive. Ops already seen from a site are ignored.
type Replica struct {
	store  *Store
	clock  Clock
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]uint64 // site -> highest lamport applied
}

// NewReplica creates an empty replica.
func NewReplica(logger *slog.Logger) *Replica {
	if logger == nil {
		logger = slog.Default()
	}
	return &Replica{
		store:  NewStore(),
		logger: logger,
		seen:   make(map[string]uint64),
	}
}

// Apply merges op and reports whether it changed the replica.
func (r *Replica) Apply(op Op) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if op.Site != "" {
		if last, ok := r.seen[op.Site]; ok && op.Lamport <= last {
			r.logger.Debug("replica: duplicate op ignored", "site", op.Site, "lamport", op.Lamport)
			return false
		}
		r.seen[op.Site] = op.Lamport
	}
	r.clock.Observe(op.Lamport)

	switch op.Type {
	case OpAppend:
		if err := r.store.Append(op.Annotation); err != nil {
			r.logger.Warn("replica: append rejected", "site", op.Site, "error", err)
			return false
		}
	case OpUndo:
		if _, ok := r.store.RemoveLast(); !ok {
			return false
		}
	case OpReplace:
		r.store.ReplaceAll(op.Annotations)
	default:
		r.logger.Warn("replica: unknown op", "type", op.Type)
		return false
	}
	return true
}

// Annotations returns the mirrored sequence.
func (r *Replica) Annotations() []Annotation {
	return r.store.ToArray()
}

// Clock returns the highest Lamport value observed.
func (r *Replica) Clock() uint64 {
	return r.clock.Now()
}
