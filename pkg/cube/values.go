// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cube

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// KeyValue is one (column, value) pair of a key.
type KeyValue struct {
	Col Column
	Val int
}

// Values is the key of one aggregation bucket: an ordered list of
// (column, value) pairs with columns unique within the key.
//
// Keys are copied, compared and hashed on every sample that misses the
// fast-path cache, which makes them the dominant cost of the engine. The
// backing slice is therefore reused across samples (Clear keeps capacity)
// and the fingerprint is cached until the key is mutated.
//
// Iteration order is the provider's canonical order and is significant
// for display-path derivation. Fingerprint follows iteration order;
// providers must produce a canonical order for a given column set so that
// booking and filling agree. Equal compares order-independently.
type Values struct {
	pairs []KeyValue
	fp    string // cached fingerprint, "" when dirty
}

// Len returns the number of columns in the key.
func (v *Values) Len() int { return len(v.pairs) }

// Pairs returns the key's pairs in canonical order. The returned slice
// aliases internal storage and must not be modified.
func (v *Values) Pairs() []KeyValue { return v.pairs }

// Clear empties the key, keeping the backing storage for reuse.
func (v *Values) Clear() {
	v.pairs = v.pairs[:0]
	v.fp = ""
}

// Put appends or replaces the value for a column.
func (v *Values) Put(col Column, val int) {
	for i := range v.pairs {
		if v.pairs[i].Col == col {
			v.pairs[i].Val = val
			v.fp = ""
			return
		}
	}
	v.pairs = append(v.pairs, KeyValue{Col: col, Val: val})
	v.fp = ""
}

// Get returns the value for a column and whether it is present.
func (v *Values) Get(col Column) (int, bool) {
	for i := range v.pairs {
		if v.pairs[i].Col == col {
			return v.pairs[i].Val, true
		}
	}
	return 0, false
}

// Erase removes a column from the key. Removing an absent column is a
// no-op. Order of the remaining columns is preserved.
func (v *Values) Erase(col Column) {
	for i := range v.pairs {
		if v.pairs[i].Col == col {
			v.pairs = append(v.pairs[:i], v.pairs[i+1:]...)
			v.fp = ""
			return
		}
	}
}

// CopyFrom replaces this key's content with a copy of other.
func (v *Values) CopyFrom(other *Values) {
	v.pairs = append(v.pairs[:0], other.pairs...)
	v.fp = other.fp
}

// Clone returns an independent copy of the key.
func (v *Values) Clone() *Values {
	out := &Values{pairs: make([]KeyValue, len(v.pairs)), fp: v.fp}
	copy(out.pairs, v.pairs)
	return out
}

// Project replaces this key with the projection of src onto cols, in the
// order given by cols. Columns absent from src are skipped.
func (v *Values) Project(src *Values, cols []Column) {
	v.Clear()
	for _, c := range cols {
		if val, ok := src.Get(c); ok {
			v.Put(c, val)
		}
	}
}

// Equal reports whether two keys hold the same column->value mapping,
// independent of pair order.
func (v *Values) Equal(other *Values) bool {
	if len(v.pairs) != len(other.pairs) {
		return false
	}
	for _, p := range v.pairs {
		val, ok := other.Get(p.Col)
		if !ok || val != p.Val {
			return false
		}
	}
	return true
}

// HasUndefined reports whether any column of the key holds the Undefined
// sentinel.
func (v *Values) HasUndefined() bool {
	for i := range v.pairs {
		if v.pairs[i].Val == Undefined {
			return true
		}
	}
	return false
}

// Fingerprint returns a canonical byte encoding of the key, used as the
// table map key and as the deterministic iteration sort order.
//
// Encoding: per pair, the column name, a NUL separator, and the value
// mapped monotonically to 8 big-endian bytes, so lexicographic order of
// fingerprints matches (column, value) order of the keys.
func (v *Values) Fingerprint() string {
	if v.fp != "" || len(v.pairs) == 0 {
		return v.fp
	}
	var b strings.Builder
	b.Grow(len(v.pairs) * 16)
	var buf [8]byte
	for _, p := range v.pairs {
		b.WriteString(string(p.Col))
		b.WriteByte(0)
		binary.BigEndian.PutUint64(buf[:], uint64(int64(p.Val))^(1<<63))
		b.Write(buf[:])
	}
	v.fp = b.String()
	return v.fp
}

// String renders the key for log messages, e.g. "Layer=2/Ladder=7".
func (v *Values) String() string {
	var b strings.Builder
	for i, p := range v.pairs {
		if i > 0 {
			b.WriteByte('/')
		}
		if p.Val == Undefined {
			fmt.Fprintf(&b, "%s=UNDEFINED", p.Col)
		} else {
			fmt.Fprintf(&b, "%s=%d", p.Col, p.Val)
		}
	}
	return b.String()
}
