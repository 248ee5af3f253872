// Package cursor defines the pagination cursor shared by every source adapter.
//
// A Cursor is a tagged variant over the resume markers the supported backends
// use natively: a numeric offset, an opaque continuation token, a last-seen
// range key, or nothing at all for single-shot sources. Every cursor also
// carries an exhaustion flag. Exhaustion is only ever set explicitly by an
// adapter; an empty page says nothing about whether more pages exist.
//
// Cursors are immutable values. Adapters hand a new one back with every page.
package cursor

import (
	"strconv"

	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

// Kind identifies which resume marker a cursor carries.
type Kind int

const (
	// KindNone carries no marker; used by single-shot sources
	KindNone Kind = iota
	// KindOffset carries a numeric row offset
	KindOffset
	// KindToken carries a backend-issued continuation token
	KindToken
	// KindRangeKey carries the last key seen by a range scan
	KindRangeKey
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindOffset:
		return "offset"
	case KindToken:
		return "token"
	case KindRangeKey:
		return "range_key"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Cursor is where to resume in a source-specific pagination scheme.
type Cursor struct {
	kind      Kind
	offset    int64
	marker    string
	exhausted bool
}

// None returns an empty, non-exhausted cursor.
func None() Cursor {
	return Cursor{kind: KindNone}
}

// Done returns the exhausted cursor with no marker.
func Done() Cursor {
	return Cursor{kind: KindNone, exhausted: true}
}

// Offset returns a cursor at the given row offset.
func Offset(n int64) Cursor {
	return Cursor{kind: KindOffset, offset: n}
}

// Token returns a cursor carrying a continuation token. An empty token is
// the start of the sequence.
func Token(t string) Cursor {
	return Cursor{kind: KindToken, marker: t}
}

// RangeKey returns a cursor positioned after the given key. An empty key is
// the start of the range.
func RangeKey(k string) Cursor {
	return Cursor{kind: KindRangeKey, marker: k}
}

// Kind returns the variant of the cursor.
func (c Cursor) Kind() Kind { return c.kind }

// Exhausted reports whether the source has signalled that no pages remain.
func (c Cursor) Exhausted() bool { return c.exhausted }

// Exhaust returns a copy of c with the exhaustion flag set.
func (c Cursor) Exhaust() Cursor {
	c.exhausted = true
	return c
}

// Offset returns the offset of a KindOffset cursor.
func (c Cursor) Offset() (int64, bool) {
	return c.offset, c.kind == KindOffset
}

// Token returns the token of a KindToken cursor.
func (c Cursor) Token() (string, bool) {
	return c.marker, c.kind == KindToken
}

// Key returns the key of a KindRangeKey cursor.
func (c Cursor) Key() (string, bool) {
	return c.marker, c.kind == KindRangeKey
}

// Equal reports whether two cursors denote the same position.
func (c Cursor) Equal(other Cursor) bool {
	return c == other
}

// String returns a representation suitable for logs.
func (c Cursor) String() string {
	var s string
	switch c.kind {
	case KindOffset:
		s = "offset:" + strconv.FormatInt(c.offset, 10)
	case KindToken:
		s = "token:" + abbreviate(c.marker)
	case KindRangeKey:
		s = "key:" + abbreviate(c.marker)
	default:
		s = "none"
	}
	if c.exhausted {
		s += " (exhausted)"
	}
	return s
}

// Expect validates a cursor handed back to an adapter. It fails with a
// pagination error when the cursor is exhausted or of the wrong kind; both are
// caller errors and never retryable.
func Expect(c Cursor, kind Kind) error {
	if c.exhausted {
		return nebulaerrors.New(nebulaerrors.ErrorTypePagination, "fetch requested with an exhausted cursor").
			WithDetail("cursor", c.String())
	}
	if c.kind != kind {
		return nebulaerrors.Newf(nebulaerrors.ErrorTypePagination, "expected %s cursor, got %s", kind, c.kind).
			WithDetail("cursor", c.String())
	}
	return nil
}

func abbreviate(s string) string {
	const maxLen = 32
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
