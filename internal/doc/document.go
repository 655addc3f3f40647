// Package doc implements the CRDT document engine: a tree of typed nodes
// addressed by parsed paths, mutated through typed accessors, and kept
// convergent across replicas by replaying causally-ordered change records.
//
// A Document provides no internal locking. The caller must guarantee that
// mutating operations (including ApplyChange) on the same Document never
// interleave; distinct Documents share no state and need no coordination.
package doc

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mergedoc/mergedoc/api"
	"github.com/mergedoc/mergedoc/internal/codec"
)

// rawChange is one applied history entry. The original bytes are kept so that
// snapshots re-emit every record bit-for-bit.
type rawChange struct {
	actor uuid.UUID
	seq   uint64
	raw   []byte
}

type pendKey struct {
	actor uuid.UUID
	seq   uint64
}

// Document owns one CRDT tree plus its causal history. The local actor
// identity tags every locally-originated edit for deterministic tie-breaking.
type Document struct {
	actor   uuid.UUID
	counter uint64                // highest lamport counter seen
	clock   map[uuid.UUID]uint64  // applied seq per actor, contiguous
	objects map[codec.OpID]*object

	history []rawChange
	pending map[pendKey]pendEntry // decoded but not yet applicable
	outbox  [][]byte              // every applied record, drained by TakeChanges
	last    []byte                // most recent locally-produced record
}

type pendEntry struct {
	change *codec.Change
	raw    []byte
}

// New creates an empty document with a fresh actor identity.
func New() *Document {
	return NewWithActor(uuid.New())
}

// NewWithActor creates an empty document with the given actor identity.
// Used by Load; replicas must not share actor ids.
func NewWithActor(actor uuid.UUID) *Document {
	d := &Document{
		actor:   actor,
		clock:   make(map[uuid.UUID]uint64),
		objects: make(map[codec.OpID]*object),
		pending: make(map[pendKey]pendEntry),
	}
	d.objects[codec.RootID] = newObject(codec.RootID, api.KindMap)
	return d
}

// Actor returns the local actor identity.
func (d *Document) Actor() uuid.UUID {
	return d.actor
}

func (d *Document) root() *object {
	return d.objects[codec.RootID]
}

// LastChange returns the encoded change record produced by the most recent
// local mutating call, or nil if there has been none.
func (d *Document) LastChange() []byte {
	return d.last
}

// TakeChanges drains and returns every change record applied since the last
// drain — local mutations and merged remote records alike, in application
// order. This is the replay feed for append-only persistence.
func (d *Document) TakeChanges() [][]byte {
	out := d.outbox
	d.outbox = nil
	return out
}

// commit turns locally-built ops into a change, applies it, and records it.
// The ops were validated against the current tree during building, so the
// apply cannot fail.
func (d *Document) commit(ops []codec.Op) {
	deps := make(map[uuid.UUID]uint64, len(d.clock))
	for a, s := range d.clock {
		deps[a] = s
	}
	c := &codec.Change{
		Actor:   d.actor,
		Seq:     d.clock[d.actor] + 1,
		StartOp: d.counter + 1,
		Time:    time.Now().Unix(),
		Deps:    deps,
		Ops:     ops,
	}
	raw := codec.EncodeChange(c)
	d.applyOps(c)
	d.finishApply(c, raw)
	d.last = raw
}

// finishApply records an applied change in the clock, history and outbox.
func (d *Document) finishApply(c *codec.Change, raw []byte) {
	d.clock[c.Actor] = c.Seq
	if m := c.MaxOp(); m > d.counter {
		d.counter = m
	}
	d.history = append(d.history, rawChange{actor: c.Actor, seq: c.Seq, raw: raw})
	d.outbox = append(d.outbox, raw)
}

// Save produces the full snapshot encoding: actor identity, lamport counter,
// and the complete history (plus any buffered records) in canonical order.
// Deterministic for a given document state.
func (d *Document) Save() []byte {
	changes := make([]rawChange, len(d.history))
	copy(changes, d.history)
	sort.Slice(changes, func(i, j int) bool {
		if c := bytes.Compare(changes[i].actor[:], changes[j].actor[:]); c != 0 {
			return c < 0
		}
		return changes[i].seq < changes[j].seq
	})

	pending := make([]pendEntry, 0, len(d.pending))
	for _, p := range d.pending {
		pending = append(pending, p)
	}
	sort.Slice(pending, func(i, j int) bool {
		if c := bytes.Compare(pending[i].change.Actor[:], pending[j].change.Actor[:]); c != 0 {
			return c < 0
		}
		return pending[i].change.Seq < pending[j].change.Seq
	})

	s := &codec.Snapshot{Actor: d.actor, Counter: d.counter}
	for _, c := range changes {
		s.Changes = append(s.Changes, c.raw)
	}
	for _, p := range pending {
		s.Pending = append(s.Pending, p.raw)
	}
	return codec.EncodeSnapshot(s)
}

// Load reconstructs a document from snapshot bytes by replaying its history
// through the normal merge path. It fails with api.ErrDecode on malformed
// input or a causally-incomplete history, and never returns a partially
// constructed document.
func Load(b []byte) (*Document, error) {
	s, err := codec.DecodeSnapshot(b)
	if err != nil {
		return nil, err
	}
	d := NewWithActor(s.Actor)
	for _, raw := range s.Changes {
		if err := d.ApplyChange(raw); err != nil {
			return nil, err
		}
	}
	if len(d.pending) > 0 {
		return nil, fmt.Errorf("snapshot history has causal gaps (%d unapplied records): %w",
			len(d.pending), api.ErrDecode)
	}
	for _, raw := range s.Pending {
		if err := d.ApplyChange(raw); err != nil {
			return nil, err
		}
	}
	if s.Counter > d.counter {
		d.counter = s.Counter
	}
	// Replay is not new activity: nothing to re-emit.
	d.outbox = nil
	d.last = nil
	return d, nil
}

// Materialize renders the current tree as plain Go values: map[string]any,
// []any, string, int64, float64, bool.
func (d *Document) Materialize() map[string]any {
	return d.materializeMap(d.root())
}

func (d *Document) materializeMap(o *object) map[string]any {
	out := make(map[string]any, len(o.entries))
	for key := range o.entries {
		reg, ok := o.entryWinner(key)
		if !ok {
			continue
		}
		out[key] = d.materializeValue(reg)
	}
	return out
}

func (d *Document) materializeValue(reg register) any {
	switch reg.val.Kind {
	case api.KindMap:
		return d.materializeMap(d.objects[reg.id])
	case api.KindList:
		o := d.objects[reg.id]
		vis := o.visible()
		out := make([]any, 0, len(vis))
		for _, e := range vis {
			if r, ok := winner(e.regs); ok {
				out = append(out, d.materializeValue(r))
			}
		}
		return out
	case api.KindText:
		return d.materializeText(d.objects[reg.id])
	case api.KindInt:
		return reg.val.Int
	case api.KindDouble:
		return reg.val.Double
	case api.KindBool:
		return reg.val.Bool
	default:
		return nil
	}
}

func (d *Document) materializeText(o *object) string {
	vis := o.visible()
	runes := make([]rune, 0, len(vis))
	for _, e := range vis {
		if r, ok := winner(e.regs); ok {
			runes = append(runes, rune(r.val.Int))
		}
	}
	return string(runes)
}
