package doc

import (
	"fmt"

	"github.com/mergedoc/mergedoc/api"
	"github.com/mergedoc/mergedoc/internal/codec"
)

// Merging remote change records. A record is applicable once its seq is the
// next for its actor and every dependency in its vector clock has been
// applied. Records arriving early are buffered, not rejected: the replication
// model is fire-and-forget, so ordering is this layer's problem. Duplicates
// are skipped. Applying a causally-complete set therefore converges to the
// same tree regardless of arrival order.

// ApplyChanges merges each encoded record into the document, in the given
// order. Malformed or semantically invalid records fail with api.ErrDecode;
// records already merged before the failure remain applied.
func (d *Document) ApplyChanges(changes [][]byte) error {
	for _, raw := range changes {
		if err := d.ApplyChange(raw); err != nil {
			return err
		}
	}
	return nil
}

// ApplyChange merges a single encoded record.
func (d *Document) ApplyChange(raw []byte) error {
	c, err := codec.DecodeChange(raw)
	if err != nil {
		return err
	}
	return d.merge(c, raw)
}

func (d *Document) merge(c *codec.Change, raw []byte) error {
	if c.Seq <= d.clock[c.Actor] {
		return nil // already applied
	}
	if !d.applicable(c) {
		key := pendKey{actor: c.Actor, seq: c.Seq}
		if _, ok := d.pending[key]; !ok {
			cp := make([]byte, len(raw))
			copy(cp, raw)
			d.pending[key] = pendEntry{change: c, raw: cp}
		}
		return nil
	}
	if err := d.validateOps(c); err != nil {
		return err
	}
	d.applyOps(c)
	d.finishApply(c, raw)
	return d.drainPending()
}

// PendingCount reports how many records are buffered awaiting dependencies.
func (d *Document) PendingCount() int {
	return len(d.pending)
}

func (d *Document) applicable(c *codec.Change) bool {
	if c.Seq != d.clock[c.Actor]+1 {
		return false
	}
	for actor, seq := range c.Deps {
		if d.clock[actor] < seq {
			return false
		}
	}
	return true
}

// drainPending applies buffered records until no more become applicable.
func (d *Document) drainPending() error {
	for {
		progressed := false
		for key, p := range d.pending {
			if p.change.Seq <= d.clock[p.change.Actor] {
				delete(d.pending, key)
				progressed = true
				continue
			}
			if !d.applicable(p.change) {
				continue
			}
			delete(d.pending, key)
			if err := d.validateOps(p.change); err != nil {
				return err
			}
			d.applyOps(p.change)
			d.finishApply(p.change, p.raw)
			progressed = true
		}
		if !progressed {
			return nil
		}
	}
}

// validateOps checks every op in a change against the current tree (plus
// whatever the change itself creates) before anything is mutated, so an
// invalid record can never leave the tree half-updated.
func (d *Document) validateOps(c *codec.Change) error {
	created := make(map[codec.OpID]api.Kind)       // objects this change creates
	createdElems := make(map[codec.OpID]codec.OpID) // elem id -> owning object

	objKind := func(id codec.OpID) (api.Kind, bool) {
		if o, ok := d.objects[id]; ok {
			return o.kind, true
		}
		k, ok := created[id]
		return k, ok
	}
	elemKnown := func(obj, el codec.OpID) bool {
		if o, ok := d.objects[obj]; ok {
			if _, ok := o.elems[el]; ok {
				return true
			}
		}
		return createdElems[el] == obj
	}

	for i, op := range c.Ops {
		opErr := func(msg string) error {
			return fmt.Errorf("change %s/%d op %d: %s: %w", c.Actor, c.Seq, i, msg, api.ErrDecode)
		}
		kind, ok := objKind(op.Obj)
		if !ok {
			return opErr("unknown object")
		}
		switch op.Type {
		case codec.OpPut:
			if kind != api.KindMap {
				return opErr("put on non-map")
			}
		case codec.OpInsert:
			if kind != api.KindList && kind != api.KindText {
				return opErr("insert on non-sequence")
			}
			if !op.Elem.IsZero() && !elemKnown(op.Obj, op.Elem) {
				return opErr("unknown insert origin")
			}
			createdElems[c.OpAt(i)] = op.Obj
		case codec.OpSet, codec.OpDelete:
			if kind != api.KindList && kind != api.KindText {
				return opErr("edit on non-sequence")
			}
			if !elemKnown(op.Obj, op.Elem) {
				return opErr("unknown element")
			}
		default:
			return opErr("unknown op type")
		}
		if op.Type != codec.OpDelete {
			switch op.Value.Kind {
			case api.KindMap, api.KindList, api.KindText:
				created[c.OpAt(i)] = op.Value.Kind
			case api.KindInt, api.KindDouble, api.KindBool:
				// scalar payloads carry no structure
			default:
				return opErr("invalid value kind")
			}
		}
	}
	return nil
}

// applyOps mutates the tree. Callers must have validated the change; apply
// itself cannot fail.
func (d *Document) applyOps(c *codec.Change) {
	for i, op := range c.Ops {
		id := c.OpAt(i)
		switch op.Value.Kind {
		case api.KindMap, api.KindList, api.KindText:
			if op.Type != codec.OpDelete {
				d.objects[id] = newObject(id, op.Value.Kind)
			}
		}
		o := d.objects[op.Obj]
		switch op.Type {
		case codec.OpPut:
			o.putEntry(op.Key, register{id: id, val: op.Value})
		case codec.OpInsert:
			o.integrate(&elem{
				id:     id,
				origin: op.Elem,
				regs:   []register{{id: id, val: op.Value}},
			})
		case codec.OpSet:
			e := o.elems[op.Elem]
			e.regs = append(e.regs, register{id: id, val: op.Value})
		case codec.OpDelete:
			o.elems[op.Elem].deleted = true
		}
	}
}
