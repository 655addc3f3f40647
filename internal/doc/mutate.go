package doc

import (
	"fmt"

	"github.com/mergedoc/mergedoc/api"
	"github.com/mergedoc/mergedoc/internal/codec"
	"github.com/mergedoc/mergedoc/internal/pathexpr"
)

// Every mutating operation either fully succeeds — committing exactly one
// change record — or fails with the tree untouched. Ops are planned first and
// only applied once the whole operation has type-checked.

// PutText sets the node at path to a text value, creating intermediate maps
// as needed and unconditionally replacing whatever was there.
func (d *Document) PutText(path, value string) error {
	return d.put(path, codec.Value{Kind: api.KindText}, value)
}

// PutInt sets the node at path to an integer value.
func (d *Document) PutInt(path string, value int64) error {
	return d.put(path, codec.Value{Kind: api.KindInt, Int: value}, "")
}

// PutDouble sets the node at path to a double value.
func (d *Document) PutDouble(path string, value float64) error {
	return d.put(path, codec.Value{Kind: api.KindDouble, Double: value}, "")
}

// PutBool sets the node at path to a boolean value.
func (d *Document) PutBool(path string, value bool) error {
	return d.put(path, codec.Value{Kind: api.KindBool, Bool: value}, "")
}

func (d *Document) put(path string, val codec.Value, text string) error {
	segs, err := pathexpr.Parse(path)
	if err != nil {
		return err
	}
	b := d.builder()
	parent, err := b.resolveParentCreate(segs)
	if err != nil {
		return err
	}
	objID, err := b.setTerminal(parent, segs, val)
	if err != nil {
		return err
	}
	if val.Kind == api.KindText {
		b.insertChars(objID, codec.OpID{}, text)
	}
	d.commit(b.ops)
	return nil
}

// setTerminal plans the write of val at the final segment under parent and
// returns the new op's id (the object id when val is a container kind).
func (b *opBuilder) setTerminal(parent target, segs []pathexpr.Segment, val codec.Value) (codec.OpID, error) {
	i := len(segs) - 1
	seg := segs[i]
	switch seg.Kind {
	case pathexpr.SegKey:
		if parent.kind != api.KindMap {
			return codec.OpID{}, typeErr(segs, i, parent.kind, "a map")
		}
		return b.add(codec.Op{Type: codec.OpPut, Obj: parent.id, Key: seg.Key, Value: val}), nil
	default:
		if parent.kind != api.KindList {
			return codec.OpID{}, typeErr(segs, i, parent.kind, "a list")
		}
		if parent.planned {
			return codec.OpID{}, rangeErr(segs, i, 0)
		}
		vis := parent.obj.visible()
		if seg.Index >= len(vis) {
			return codec.OpID{}, rangeErr(segs, i, len(vis))
		}
		return b.add(codec.Op{Type: codec.OpSet, Obj: parent.id, Elem: vis[seg.Index].id, Value: val}), nil
	}
}

// insertChars plans one insert op per rune, chained after the given origin.
func (b *opBuilder) insertChars(obj, origin codec.OpID, text string) {
	prev := origin
	for _, r := range text {
		prev = b.add(codec.Op{Type: codec.OpInsert, Obj: obj, Elem: prev,
			Value: codec.Value{Kind: api.KindInt, Int: int64(r)}})
	}
}

// CreateList sets the node at path to an empty list, creating intermediate
// maps as needed. The final segment must be a map key. If a node already
// exists there it must be an empty list (recreation is allowed); anything
// else fails with api.ErrTypeMismatch rather than silently discarding data.
func (d *Document) CreateList(path string) error {
	segs, err := pathexpr.Parse(path)
	if err != nil {
		return err
	}
	b := d.builder()
	parent, err := b.resolveParentCreate(segs)
	if err != nil {
		return err
	}
	i := len(segs) - 1
	seg := segs[i]
	if seg.Kind != pathexpr.SegKey {
		return fmt.Errorf("path %q: cannot create a list at an index: %w",
			pathexpr.Format(segs), api.ErrTypeMismatch)
	}
	if parent.kind != api.KindMap {
		return typeErr(segs, i, parent.kind, "a map")
	}
	if !parent.planned {
		if reg, ok := parent.obj.entryWinner(seg.Key); ok {
			if reg.val.Kind != api.KindList {
				return typeErr(segs, i+1, reg.val.Kind, "an empty list")
			}
			if len(d.objects[reg.id].visible()) != 0 {
				return fmt.Errorf("path %q: list is not empty: %w",
					pathexpr.Format(segs), api.ErrTypeMismatch)
			}
		}
	}
	b.add(codec.Op{Type: codec.OpPut, Obj: parent.id, Key: seg.Key,
		Value: codec.Value{Kind: api.KindList}})
	d.commit(b.ops)
	return nil
}

// AppendText appends a text value to the list at path.
func (d *Document) AppendText(path, value string) error {
	return d.appendValue(path, codec.Value{Kind: api.KindText}, value)
}

// AppendInt appends an integer value to the list at path.
func (d *Document) AppendInt(path string, value int64) error {
	return d.appendValue(path, codec.Value{Kind: api.KindInt, Int: value}, "")
}

// AppendDouble appends a double value to the list at path.
func (d *Document) AppendDouble(path string, value float64) error {
	return d.appendValue(path, codec.Value{Kind: api.KindDouble, Double: value}, "")
}

// AppendBool appends a boolean value to the list at path.
func (d *Document) AppendBool(path string, value bool) error {
	return d.appendValue(path, codec.Value{Kind: api.KindBool, Bool: value}, "")
}

func (d *Document) appendValue(path string, val codec.Value, text string) error {
	segs, err := pathexpr.Parse(path)
	if err != nil {
		return err
	}
	o, err := d.resolveObject(segs)
	if err != nil {
		return err
	}
	if o.kind != api.KindList {
		return fmt.Errorf("path %q: %s is not a list: %w",
			pathexpr.Format(segs), o.kind, api.ErrTypeMismatch)
	}
	b := d.builder()
	id := b.add(codec.Op{Type: codec.OpInsert, Obj: o.id, Elem: o.lastElem(), Value: val})
	if val.Kind == api.KindText {
		b.insertChars(id, codec.OpID{}, text)
	}
	d.commit(b.ops)
	return nil
}

// SpliceText atomically removes deleteCount characters starting at start from
// the text node at path and inserts insert in their place, committing one
// change record for the whole edit.
func (d *Document) SpliceText(path string, start, deleteCount int, insert string) error {
	segs, err := pathexpr.Parse(path)
	if err != nil {
		return err
	}
	o, err := d.resolveObject(segs)
	if err != nil {
		return err
	}
	if o.kind != api.KindText {
		return fmt.Errorf("path %q: %s is not text: %w",
			pathexpr.Format(segs), o.kind, api.ErrTypeMismatch)
	}
	vis := o.visible()
	if start < 0 || deleteCount < 0 || start > len(vis) || start+deleteCount > len(vis) {
		return fmt.Errorf("path %q: splice [%d:%d] of text length %d: %w",
			pathexpr.Format(segs), start, start+deleteCount, len(vis), api.ErrRange)
	}
	b := d.builder()
	b.planSplice(o, vis, start, deleteCount, insert)
	d.commit(b.ops)
	return nil
}

// planSplice plans tombstones for deleteCount visible elements at start and a
// chained insert after the preceding element. Bounds are the caller's problem.
func (b *opBuilder) planSplice(o *object, vis []*elem, start, deleteCount int, insert string) {
	for _, e := range vis[start : start+deleteCount] {
		b.add(codec.Op{Type: codec.OpDelete, Obj: o.id, Elem: e.id})
	}
	origin := codec.OpID{}
	if start > 0 {
		origin = vis[start-1].id
	}
	b.insertChars(o.id, origin, insert)
}
