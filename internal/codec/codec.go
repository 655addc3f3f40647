// Package codec defines the wire model of the engine: change records and full
// document snapshots, with deterministic binary encodings. The document layer
// produces and consumes these types; nothing here touches a live tree.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/mergedoc/mergedoc/api"
)

const (
	ChangeMagic   = 0x4D444348 // "MDCH"
	SnapshotMagic = 0x4D444F43 // "MDOC"
	Version       = 1
)

// OpID identifies a single operation: a lamport counter paired with the actor
// that issued it. OpIDs double as object and element identifiers — an object
// is addressed by the id of the op that created it.
type OpID struct {
	Counter uint64
	Actor   uuid.UUID
}

// RootID addresses the implicit root map of every document.
var RootID = OpID{}

func (id OpID) IsZero() bool {
	return id == OpID{}
}

// Less orders op ids by counter, then actor bytes. This is the tie-break rule
// for every concurrent-edit conflict in the engine.
func (id OpID) Less(other OpID) bool {
	if id.Counter != other.Counter {
		return id.Counter < other.Counter
	}
	return bytes.Compare(id.Actor[:], other.Actor[:]) < 0
}

type OpType uint8

const (
	// OpPut sets a map key to a value, unconditionally.
	OpPut OpType = iota + 1
	// OpInsert inserts a new element into a list or text object after the
	// element named by Elem (zero for the head).
	OpInsert
	// OpSet overwrites the value of an existing list element.
	OpSet
	// OpDelete tombstones a list or text element.
	OpDelete
)

// Value is the payload of a put/insert/set op. Container kinds (map, list,
// text) carry no payload: the new object's id is the op's own id, and a text
// object's initial characters travel as separate OpInsert ops targeting it.
// Characters inside text objects ride in Int.
type Value struct {
	Kind   api.Kind
	Int    int64
	Double float64
	Bool   bool
}

// Op is one primitive mutation inside a change.
type Op struct {
	Type  OpType
	Obj   OpID   // target object
	Key   string // OpPut only
	Elem  OpID   // OpSet/OpDelete target; OpInsert origin
	Value Value  // absent for OpDelete
}

// Change is one causally-ordered delta: everything a single mutating call did.
type Change struct {
	Actor   uuid.UUID
	Seq     uint64 // per-actor, 1-based, contiguous
	StartOp uint64 // lamport counter of the first op
	Time    int64  // unix seconds at commit, informational only
	Deps    map[uuid.UUID]uint64
	Ops     []Op
}

// OpAt returns the id of the i-th op in the change.
func (c *Change) OpAt(i int) OpID {
	return OpID{Counter: c.StartOp + uint64(i), Actor: c.Actor}
}

// MaxOp returns the highest lamport counter this change consumes.
func (c *Change) MaxOp() uint64 {
	if len(c.Ops) == 0 {
		return c.StartOp
	}
	return c.StartOp + uint64(len(c.Ops)) - 1
}

// Snapshot is the decoded form of a full document encoding: identity plus the
// complete causal history (and any still-buffered records), each entry being
// an encoded change.
type Snapshot struct {
	Actor   uuid.UUID
	Counter uint64
	Changes [][]byte
	Pending [][]byte
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *writer) raw(b []byte) { w.buf = append(w.buf, b...) }

func (w *writer) str(s string) {
	w.u32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) opID(id OpID) {
	w.u64(id.Counter)
	w.raw(id.Actor[:])
}

func (w *writer) value(v Value) {
	w.u8(uint8(v.Kind))
	switch v.Kind {
	case api.KindInt:
		w.u64(uint64(v.Int))
	case api.KindDouble:
		w.u64(math.Float64bits(v.Double))
	case api.KindBool:
		if v.Bool {
			w.u8(1)
		} else {
			w.u8(0)
		}
	}
}

// EncodeChange serializes a change. The encoding is canonical: dependency
// entries are sorted by actor, so encode(decode(b)) == b for any valid b.
func EncodeChange(c *Change) []byte {
	w := &writer{buf: make([]byte, 0, 64+len(c.Ops)*48)}
	w.u32(ChangeMagic)
	w.u8(Version)
	w.raw(c.Actor[:])
	w.u64(c.Seq)
	w.u64(c.StartOp)
	w.u64(uint64(c.Time))

	actors := make([]uuid.UUID, 0, len(c.Deps))
	for a := range c.Deps {
		actors = append(actors, a)
	}
	sort.Slice(actors, func(i, j int) bool {
		return bytes.Compare(actors[i][:], actors[j][:]) < 0
	})
	w.u32(uint32(len(actors)))
	for _, a := range actors {
		w.raw(a[:])
		w.u64(c.Deps[a])
	}

	w.u32(uint32(len(c.Ops)))
	for _, op := range c.Ops {
		w.u8(uint8(op.Type))
		w.opID(op.Obj)
		switch op.Type {
		case OpPut:
			w.str(op.Key)
			w.value(op.Value)
		case OpInsert:
			w.opID(op.Elem)
			w.value(op.Value)
		case OpSet:
			w.opID(op.Elem)
			w.value(op.Value)
		case OpDelete:
			w.opID(op.Elem)
		}
	}
	return w.buf
}

// EncodeSnapshot serializes a snapshot. Callers are expected to pass change
// lists in canonical order (the document layer sorts by actor then seq), which
// makes the full encoding deterministic for a given document state.
func EncodeSnapshot(s *Snapshot) []byte {
	w := &writer{buf: make([]byte, 0, 64)}
	w.u32(SnapshotMagic)
	w.u8(Version)
	w.raw(s.Actor[:])
	w.u64(s.Counter)
	w.u32(uint32(len(s.Changes)))
	for _, c := range s.Changes {
		w.u32(uint32(len(c)))
		w.raw(c)
	}
	w.u32(uint32(len(s.Pending)))
	for _, c := range s.Pending {
		w.u32(uint32(len(c)))
		w.raw(c)
	}
	return w.buf
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

type reader struct {
	buf []byte
	off int
}

func (r *reader) remain() int { return len(r.buf) - r.off }

func (r *reader) u8() (uint8, error) {
	if r.remain() < 1 {
		return 0, fmt.Errorf("truncated at byte %d: %w", r.off, api.ErrDecode)
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if r.remain() < 4 {
		return 0, fmt.Errorf("truncated at byte %d: %w", r.off, api.ErrDecode)
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if r.remain() < 8 {
		return 0, fmt.Errorf("truncated at byte %d: %w", r.off, api.ErrDecode)
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

// count reads a u32 element count and rejects any value that could not
// possibly fit in the remaining input, given the minimum encoded size of one
// entry. Without this check a corrupt count field would drive a huge
// preallocation instead of a decode error.
func (r *reader) count(minEntry int) (uint32, error) {
	n, err := r.u32()
	if err != nil {
		return 0, err
	}
	if int64(n)*int64(minEntry) > int64(r.remain()) {
		return 0, fmt.Errorf("count %d at byte %d exceeds input size: %w", n, r.off, api.ErrDecode)
	}
	return n, nil
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.remain() < n {
		return nil, fmt.Errorf("truncated at byte %d (want %d more): %w", r.off, n, api.ErrDecode)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) actor() (uuid.UUID, error) {
	var a uuid.UUID
	b, err := r.take(16)
	if err != nil {
		return a, err
	}
	copy(a[:], b)
	return a, nil
}

func (r *reader) opID() (OpID, error) {
	counter, err := r.u64()
	if err != nil {
		return OpID{}, err
	}
	actor, err := r.actor()
	if err != nil {
		return OpID{}, err
	}
	return OpID{Counter: counter, Actor: actor}, nil
}

func (r *reader) value() (Value, error) {
	kind, err := r.u8()
	if err != nil {
		return Value{}, err
	}
	v := Value{Kind: api.Kind(kind)}
	switch v.Kind {
	case api.KindMap, api.KindList, api.KindText:
		// no payload
	case api.KindInt:
		u, err := r.u64()
		if err != nil {
			return Value{}, err
		}
		v.Int = int64(u)
	case api.KindDouble:
		u, err := r.u64()
		if err != nil {
			return Value{}, err
		}
		v.Double = math.Float64frombits(u)
	case api.KindBool:
		b, err := r.u8()
		if err != nil {
			return Value{}, err
		}
		if b > 1 {
			return Value{}, fmt.Errorf("bool payload %d: %w", b, api.ErrDecode)
		}
		v.Bool = b == 1
	default:
		return Value{}, fmt.Errorf("value kind %d: %w", kind, api.ErrDecode)
	}
	return v, nil
}

// DecodeChange parses an encoded change record. It never returns a partially
// valid change: any structural problem fails the whole decode.
func DecodeChange(b []byte) (*Change, error) {
	r := &reader{buf: b}
	magic, err := r.u32()
	if err != nil {
		return nil, err
	}
	if magic != ChangeMagic {
		return nil, fmt.Errorf("change magic %#x: %w", magic, api.ErrDecode)
	}
	ver, err := r.u8()
	if err != nil {
		return nil, err
	}
	if ver != Version {
		return nil, fmt.Errorf("change version %d: %w", ver, api.ErrDecode)
	}

	c := &Change{}
	if c.Actor, err = r.actor(); err != nil {
		return nil, err
	}
	if c.Seq, err = r.u64(); err != nil {
		return nil, err
	}
	if c.Seq == 0 {
		return nil, fmt.Errorf("change seq 0: %w", api.ErrDecode)
	}
	if c.StartOp, err = r.u64(); err != nil {
		return nil, err
	}
	t, err := r.u64()
	if err != nil {
		return nil, err
	}
	c.Time = int64(t)

	// actor (16) + seq (8) per dependency entry
	depCount, err := r.count(24)
	if err != nil {
		return nil, err
	}
	c.Deps = make(map[uuid.UUID]uint64, depCount)
	for i := uint32(0); i < depCount; i++ {
		actor, err := r.actor()
		if err != nil {
			return nil, err
		}
		seq, err := r.u64()
		if err != nil {
			return nil, err
		}
		c.Deps[actor] = seq
	}

	// type (1) + object id (24) per op, before any payload
	opCount, err := r.count(25)
	if err != nil {
		return nil, err
	}
	c.Ops = make([]Op, 0, opCount)
	for i := uint32(0); i < opCount; i++ {
		typ, err := r.u8()
		if err != nil {
			return nil, err
		}
		op := Op{Type: OpType(typ)}
		if op.Obj, err = r.opID(); err != nil {
			return nil, err
		}
		switch op.Type {
		case OpPut:
			n, err := r.u32()
			if err != nil {
				return nil, err
			}
			key, err := r.take(int(n))
			if err != nil {
				return nil, err
			}
			op.Key = string(key)
			if op.Value, err = r.value(); err != nil {
				return nil, err
			}
		case OpInsert, OpSet:
			if op.Elem, err = r.opID(); err != nil {
				return nil, err
			}
			if op.Value, err = r.value(); err != nil {
				return nil, err
			}
		case OpDelete:
			if op.Elem, err = r.opID(); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("op type %d: %w", typ, api.ErrDecode)
		}
		c.Ops = append(c.Ops, op)
	}

	if r.remain() != 0 {
		return nil, fmt.Errorf("%d trailing bytes: %w", r.remain(), api.ErrDecode)
	}
	return c, nil
}

// DecodeSnapshot parses an encoded snapshot. Embedded changes are returned as
// raw bytes; the document layer replays them through its normal apply path.
func DecodeSnapshot(b []byte) (*Snapshot, error) {
	r := &reader{buf: b}
	magic, err := r.u32()
	if err != nil {
		return nil, err
	}
	if magic != SnapshotMagic {
		return nil, fmt.Errorf("snapshot magic %#x: %w", magic, api.ErrDecode)
	}
	ver, err := r.u8()
	if err != nil {
		return nil, err
	}
	if ver != Version {
		return nil, fmt.Errorf("snapshot version %d: %w", ver, api.ErrDecode)
	}

	s := &Snapshot{}
	if s.Actor, err = r.actor(); err != nil {
		return nil, err
	}
	if s.Counter, err = r.u64(); err != nil {
		return nil, err
	}
	if s.Changes, err = r.changeList(); err != nil {
		return nil, err
	}
	if s.Pending, err = r.changeList(); err != nil {
		return nil, err
	}
	if r.remain() != 0 {
		return nil, fmt.Errorf("%d trailing bytes: %w", r.remain(), api.ErrDecode)
	}
	return s, nil
}

func (r *reader) changeList() ([][]byte, error) {
	// length prefix (4) per entry
	count, err := r.count(4)
	if err != nil {
		return nil, err
	}
	list := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		n, err := r.u32()
		if err != nil {
			return nil, err
		}
		raw, err := r.take(int(n))
		if err != nil {
			return nil, err
		}
		cp := make([]byte, n)
		copy(cp, raw)
		list = append(list, cp)
	}
	return list, nil
}
