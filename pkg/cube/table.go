// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cube

import "sort"

// TableEntry pairs a key with its cell.
type TableEntry struct {
	Key  *Values
	Cell *Cell
}

// Table maps keys to cells for one specification. Entries are created
// lazily on first access; the offline pipeline replaces whole tables via
// Swap.
//
// Not safe for concurrent use.
type Table struct {
	entries map[string]*TableEntry
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[string]*TableEntry)}
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.entries) }

// Lookup returns the cell for a key without creating it.
func (t *Table) Lookup(key *Values) (*Cell, bool) {
	e, ok := t.entries[key.Fingerprint()]
	if !ok {
		return nil, false
	}
	return e.Cell, true
}

// GetOrCreate returns the cell for a key, creating an empty cell (and
// copying the key) on first access.
func (t *Table) GetOrCreate(key *Values) *Cell {
	fp := key.Fingerprint()
	if e, ok := t.entries[fp]; ok {
		return e.Cell
	}
	e := &TableEntry{Key: key.Clone(), Cell: &Cell{}}
	t.entries[fp] = e
	return e.Cell
}

// Entries returns all entries sorted by key fingerprint. The order is
// deterministic and groups entries by (column, value) order, which the
// offline EXTEND step relies on for its concatenation order.
func (t *Table) Entries() []*TableEntry {
	fps := make([]string, 0, len(t.entries))
	for fp := range t.entries {
		fps = append(fps, fp)
	}
	sort.Strings(fps)
	out := make([]*TableEntry, len(fps))
	for i, fp := range fps {
		out[i] = t.entries[fp]
	}
	return out
}

// Swap atomically replaces this table's contents with other's.
func (t *Table) Swap(other *Table) {
	t.entries, other.entries = other.entries, t.entries
}
