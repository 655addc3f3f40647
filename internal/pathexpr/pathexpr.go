// Package pathexpr parses the path strings accepted by every document
// operation into typed segments. The grammar is the RedisJSON-compatible
// subset of JSONPath: an optional leading `$`/`$.` root marker, dotted map
// keys, and bracketed non-negative integer indices, freely mixed
// (`$.users[0].profile.name`).
package pathexpr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ohler55/ojg/jp"

	"github.com/mergedoc/mergedoc/api"
)

type SegmentKind uint8

const (
	// SegKey addresses a map entry by string key.
	SegKey SegmentKind = iota + 1
	// SegIndex addresses a list element by non-negative position.
	SegIndex
)

// Segment is one resolved step of a path.
type Segment struct {
	Kind  SegmentKind
	Key   string
	Index int
}

func (s Segment) String() string {
	if s.Kind == SegIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// Format renders a segment sequence back into canonical path syntax, used in
// error messages.
func Format(segs []Segment) string {
	var b strings.Builder
	for i, s := range segs {
		if i > 0 && s.Kind == SegKey {
			b.WriteByte('.')
		}
		b.WriteString(s.String())
	}
	return b.String()
}

// Parse resolves a raw path string into its segment sequence. The leading
// root marker is stripped and has no semantic effect. Empty paths, stray or
// doubled dots, unterminated brackets, and non-numeric or negative bracket
// content all fail with api.ErrParse.
func Parse(raw string) ([]Segment, error) {
	body := strings.TrimPrefix(raw, "$")
	if body != raw {
		// "$" alone or "$." with nothing after it is an empty path;
		// "$x" (no dot, no bracket) is malformed.
		if body != "" && body[0] != '.' && body[0] != '[' {
			return nil, parseErr(raw, "expected '.' or '[' after root marker")
		}
		body = strings.TrimPrefix(body, ".")
	}
	if body == "" {
		return nil, parseErr(raw, "empty path")
	}
	if strings.HasPrefix(body, ".") {
		return nil, parseErr(raw, "leading '.'")
	}
	if strings.HasSuffix(body, ".") {
		return nil, parseErr(raw, "trailing '.'")
	}
	if strings.Contains(body, "..") {
		return nil, parseErr(raw, "doubled '.'")
	}
	if strings.ContainsAny(body, `'"`) {
		return nil, parseErr(raw, "quoted keys not supported")
	}

	x, err := jp.Parse([]byte(body))
	if err != nil {
		return nil, parseErr(raw, err.Error())
	}

	segs := make([]Segment, 0, len(x))
	for _, frag := range x {
		switch f := frag.(type) {
		case jp.Bracket:
			// formatting marker emitted by jp for bracket notation
		case jp.Root, jp.At:
			// jp tolerates these mid-expression; we already stripped the
			// only legal root marker ourselves.
			return nil, parseErr(raw, "root marker inside path")
		case jp.Child:
			if f == "" {
				return nil, parseErr(raw, "empty key")
			}
			segs = append(segs, Segment{Kind: SegKey, Key: string(f)})
		case jp.Nth:
			if f < 0 {
				return nil, parseErr(raw, "negative index")
			}
			segs = append(segs, Segment{Kind: SegIndex, Index: int(f)})
		default:
			// Descent, wildcard, union, slice, filter: valid JSONPath,
			// outside this grammar.
			return nil, parseErr(raw, fmt.Sprintf("unsupported expression %v", frag))
		}
	}
	if len(segs) == 0 {
		return nil, parseErr(raw, "empty path")
	}
	return segs, nil
}

func parseErr(raw, reason string) error {
	return fmt.Errorf("path %q: %s: %w", raw, reason, api.ErrParse)
}
