package doc

import (
	"github.com/mergedoc/mergedoc/api"
	"github.com/mergedoc/mergedoc/internal/codec"
)

// register is one written value for a map key or list element. Concurrent
// writers each leave a register; the materialized winner is the one with the
// highest op id (lamport counter, then actor). Superseded registers are kept —
// dropping them would make apply order observable.
type register struct {
	id  codec.OpID
	val codec.Value
}

// winner returns the register with the highest id. Register ids double as
// object ids: when the winning value is a container kind, the child object
// lives at objects[reg.id].
func winner(regs []register) (register, bool) {
	if len(regs) == 0 {
		return register{}, false
	}
	best := regs[0]
	for _, r := range regs[1:] {
		if best.id.Less(r.id) {
			best = r
		}
	}
	return best, true
}

// elem is one element of a list or text object. Elements form a tree: each
// names the element it was inserted after (origin), and siblings under one
// origin sort by descending id. The flattened depth-first walk of that tree is
// the document order, a pure function of the element set — which is what makes
// concurrent inserts converge.
type elem struct {
	id      codec.OpID
	origin  codec.OpID
	deleted bool
	regs    []register
}

// object is a container node: a map, list, or text. Scalars live inside
// registers and are never objects themselves.
type object struct {
	id   codec.OpID
	kind api.Kind

	// maps
	entries map[string][]register

	// lists and text
	elems    map[codec.OpID]*elem
	children map[codec.OpID][]codec.OpID // origin -> child ids, descending
	order    []codec.OpID                // cached flattened order, incl tombstones
	dirty    bool
}

func newObject(id codec.OpID, kind api.Kind) *object {
	o := &object{id: id, kind: kind}
	switch kind {
	case api.KindMap:
		o.entries = make(map[string][]register)
	case api.KindList, api.KindText:
		o.elems = make(map[codec.OpID]*elem)
		o.children = make(map[codec.OpID][]codec.OpID)
	}
	return o
}

// entryWinner returns the current value register for a map key.
func (o *object) entryWinner(key string) (register, bool) {
	return winner(o.entries[key])
}

// putEntry records a write to a map key.
func (o *object) putEntry(key string, reg register) {
	o.entries[key] = append(o.entries[key], reg)
}

// integrate adds a new element under its origin, keeping siblings in
// descending id order.
func (o *object) integrate(e *elem) {
	o.elems[e.id] = e
	sibs := o.children[e.origin]
	i := 0
	for i < len(sibs) && e.id.Less(sibs[i]) {
		i++
	}
	sibs = append(sibs, codec.OpID{})
	copy(sibs[i+1:], sibs[i:])
	sibs[i] = e.id
	o.children[e.origin] = sibs
	o.dirty = true
}

// flatten rebuilds the cached document order: depth-first from the head,
// siblings high-id first. Iterative, since insert chains (every character of a
// text typed in sequence) nest one level per element.
func (o *object) flatten() {
	o.order = o.order[:0]
	stack := make([]codec.OpID, 0, len(o.elems))
	push := func(ids []codec.OpID) {
		for i := len(ids) - 1; i >= 0; i-- {
			stack = append(stack, ids[i])
		}
	}
	push(o.children[codec.OpID{}])
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		o.order = append(o.order, id)
		push(o.children[id])
	}
	o.dirty = false
}

// visible returns the live elements in document order.
func (o *object) visible() []*elem {
	if o.dirty {
		o.flatten()
	}
	out := make([]*elem, 0, len(o.order))
	for _, id := range o.order {
		if e := o.elems[id]; !e.deleted {
			out = append(out, e)
		}
	}
	return out
}

// lastElem returns the final element in document order (tombstones included),
// the origin for an append. Zero id means the sequence is empty.
func (o *object) lastElem() codec.OpID {
	if o.dirty {
		o.flatten()
	}
	if len(o.order) == 0 {
		return codec.OpID{}
	}
	return o.order[len(o.order)-1]
}
