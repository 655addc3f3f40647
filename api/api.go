// Package api holds the public vocabulary of the document engine: the node
// kinds a document tree can contain and the error taxonomy every operation
// reports through. It has no dependencies so both the engine and its
// collaborators (archiver, snapshot store, CLI) can share it.
package api

import "errors"

// Kind identifies the variant of a document node.
type Kind uint8

const (
	KindMap Kind = iota + 1
	KindList
	KindText
	KindInt
	KindDouble
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindMap:
		return "map"
	case KindList:
		return "list"
	case KindText:
		return "text"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindBool:
		return "bool"
	default:
		return "invalid"
	}
}

// Error taxonomy. Operations wrap these with path/value context via %w, so
// callers dispatch with errors.Is and humans still see what went wrong.
var (
	// ErrParse reports a malformed path string.
	ErrParse = errors.New("malformed path")
	// ErrNotFound reports an absent path on read, or a missing document key.
	ErrNotFound = errors.New("not found")
	// ErrTypeMismatch reports a node whose variant disagrees with the
	// operation, including container-vs-scalar conflicts during navigation.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrRange reports a list index or splice bound outside the valid range.
	ErrRange = errors.New("out of range")
	// ErrDecode reports corrupt or truncated snapshot/change bytes.
	ErrDecode = errors.New("decode failed")
)
