package doc

import (
	"fmt"

	"github.com/mergedoc/mergedoc/api"
	"github.com/mergedoc/mergedoc/internal/codec"
	"github.com/mergedoc/mergedoc/internal/pathexpr"
)

// Navigation walks a document tree along parsed segments. Read-only walks
// fail the instant a segment is absent or meets the wrong node variant.
// Create-mode walks additionally plan ops for missing intermediate maps; the
// planned ops only take effect when the whole operation commits, so a failed
// walk leaves the tree untouched.

func notFoundErr(segs []pathexpr.Segment, i int) error {
	return fmt.Errorf("path %q: no value at %q: %w",
		pathexpr.Format(segs), pathexpr.Format(segs[:i+1]), api.ErrNotFound)
}

func typeErr(segs []pathexpr.Segment, i int, got api.Kind, want string) error {
	return fmt.Errorf("path %q: %q is %s, segment %q needs %s: %w",
		pathexpr.Format(segs), pathexpr.Format(segs[:i]), got, segs[i], want, api.ErrTypeMismatch)
}

func rangeErr(segs []pathexpr.Segment, i, length int) error {
	return fmt.Errorf("path %q: index %d beyond length %d: %w",
		pathexpr.Format(segs), segs[i].Index, length, api.ErrRange)
}

// stepRead descends one segment from cur, read-only.
func (d *Document) stepRead(cur *object, segs []pathexpr.Segment, i int) (*object, error) {
	seg := segs[i]
	var reg register
	switch seg.Kind {
	case pathexpr.SegKey:
		if cur.kind != api.KindMap {
			return nil, typeErr(segs, i, cur.kind, "a map")
		}
		r, ok := cur.entryWinner(seg.Key)
		if !ok {
			return nil, notFoundErr(segs, i)
		}
		reg = r
	case pathexpr.SegIndex:
		if cur.kind != api.KindList {
			return nil, typeErr(segs, i, cur.kind, "a list")
		}
		vis := cur.visible()
		if seg.Index >= len(vis) {
			return nil, notFoundErr(segs, i)
		}
		r, ok := winner(vis[seg.Index].regs)
		if !ok {
			return nil, notFoundErr(segs, i)
		}
		reg = r
	}
	switch reg.val.Kind {
	case api.KindMap, api.KindList, api.KindText:
		return d.objects[reg.id], nil
	default:
		return nil, typeErr(segs, i+1, reg.val.Kind, "a container")
	}
}

// resolveObject follows the full path to a container object, read-only.
func (d *Document) resolveObject(segs []pathexpr.Segment) (*object, error) {
	cur := d.root()
	for i := range segs {
		next, err := d.stepRead(cur, segs, i)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// valueAt resolves the full path to its terminal value register, read-only.
func (d *Document) valueAt(segs []pathexpr.Segment) (register, error) {
	cur := d.root()
	for i := 0; i < len(segs)-1; i++ {
		next, err := d.stepRead(cur, segs, i)
		if err != nil {
			return register{}, err
		}
		cur = next
	}
	i := len(segs) - 1
	seg := segs[i]
	switch seg.Kind {
	case pathexpr.SegKey:
		if cur.kind != api.KindMap {
			return register{}, typeErr(segs, i, cur.kind, "a map")
		}
		reg, ok := cur.entryWinner(seg.Key)
		if !ok {
			return register{}, notFoundErr(segs, i)
		}
		return reg, nil
	default:
		if cur.kind != api.KindList {
			return register{}, typeErr(segs, i, cur.kind, "a list")
		}
		vis := cur.visible()
		if seg.Index >= len(vis) {
			return register{}, notFoundErr(segs, i)
		}
		reg, ok := winner(vis[seg.Index].regs)
		if !ok {
			return register{}, notFoundErr(segs, i)
		}
		return reg, nil
	}
}

// opBuilder accumulates the ops of one pending change. Op ids are assigned
// eagerly from the document's counter so ops inside the change can reference
// objects the same change creates.
type opBuilder struct {
	d   *Document
	ops []codec.Op
}

func (d *Document) builder() *opBuilder {
	return &opBuilder{d: d}
}

// add appends an op and returns its id.
func (b *opBuilder) add(op codec.Op) codec.OpID {
	b.ops = append(b.ops, op)
	return codec.OpID{Counter: b.d.counter + uint64(len(b.ops)), Actor: b.d.actor}
}

// target is where a create-mode walk currently stands: either an existing
// object or a map this change is about to create.
type target struct {
	id      codec.OpID
	kind    api.Kind
	obj     *object // nil when planned
	planned bool
}

// resolveParentCreate walks all parent segments, planning empty containers for
// missing map keys: a map when the following segment is a key, a list when it
// is an index. An index into any empty or planned list is a range error —
// lists are never sparsely extended — and existing incompatible nodes are
// never overwritten.
func (b *opBuilder) resolveParentCreate(segs []pathexpr.Segment) (target, error) {
	d := b.d
	cur := target{id: codec.RootID, kind: api.KindMap, obj: d.root()}
	for i := 0; i < len(segs)-1; i++ {
		seg := segs[i]
		switch seg.Kind {
		case pathexpr.SegKey:
			if cur.kind != api.KindMap {
				return target{}, typeErr(segs, i, cur.kind, "a map")
			}
			var reg register
			ok := false
			if !cur.planned {
				reg, ok = cur.obj.entryWinner(seg.Key)
			}
			if !ok {
				kind := api.KindMap
				if segs[i+1].Kind == pathexpr.SegIndex {
					kind = api.KindList
				}
				id := b.add(codec.Op{Type: codec.OpPut, Obj: cur.id, Key: seg.Key,
					Value: codec.Value{Kind: kind}})
				cur = target{id: id, kind: kind, planned: true}
				continue
			}
			switch reg.val.Kind {
			case api.KindMap, api.KindList, api.KindText:
				o := d.objects[reg.id]
				cur = target{id: o.id, kind: o.kind, obj: o}
			default:
				return target{}, typeErr(segs, i+1, reg.val.Kind, "a container")
			}
		case pathexpr.SegIndex:
			if cur.kind != api.KindList {
				return target{}, typeErr(segs, i, cur.kind, "a list")
			}
			if cur.planned {
				return target{}, rangeErr(segs, i, 0)
			}
			vis := cur.obj.visible()
			if seg.Index >= len(vis) {
				return target{}, rangeErr(segs, i, len(vis))
			}
			reg, ok := winner(vis[seg.Index].regs)
			if !ok {
				return target{}, notFoundErr(segs, i)
			}
			switch reg.val.Kind {
			case api.KindMap, api.KindList, api.KindText:
				o := d.objects[reg.id]
				cur = target{id: o.id, kind: o.kind, obj: o}
			default:
				return target{}, typeErr(segs, i+1, reg.val.Kind, "a container")
			}
		}
	}
	return cur, nil
}
