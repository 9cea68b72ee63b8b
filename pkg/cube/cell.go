// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cube

import "fmt"

// CellKind tags which variant of a Cell is meaningful.
type CellKind uint8

const (
	// CellEmpty is a cell with no accumulated state. An empty cell after
	// booking completes is a booking bug.
	CellEmpty CellKind = iota

	// CellCounter holds a running integer count (per-sample-harvesting).
	CellCounter

	// CellHistogram holds an in-memory histogram not (yet) materialized
	// in the persistent store.
	CellHistogram

	// CellStored holds a handle to a store-materialized histogram. The
	// live backing histogram is still reachable through Hist.
	CellStored
)

// String returns the kind name for diagnostics.
func (k CellKind) String() string {
	switch k {
	case CellEmpty:
		return "empty"
	case CellCounter:
		return "counter"
	case CellHistogram:
		return "histogram"
	case CellStored:
		return "stored"
	default:
		return fmt.Sprintf("CellKind(%d)", uint8(k))
	}
}

// Cell is one aggregation bucket: a tagged union over an empty state, a
// running counter, an in-memory histogram, and a store-materialized
// histogram handle. Exactly one variant is meaningful at a time; the only
// crossover is that a counter's value is read once to seed a histogram
// fill during online GROUPBY.
type Cell struct {
	Kind   CellKind
	Count  int64
	Hist   *Histogram
	Handle Handle
}

// Fillable reports whether the cell can accept histogram fills.
func (c *Cell) Fillable() bool {
	return c.Hist != nil
}

// AttachHandle turns the cell into a stored cell backed by h.
func (c *Cell) AttachHandle(h Handle) {
	c.Kind = CellStored
	c.Handle = h
	c.Hist = h.Histogram()
}

// fill dispatches a fill with the given dimensionality to the backing
// histogram. The caller has verified Fillable.
func (c *Cell) fill(dim int, x, y float64) {
	switch dim {
	case 0:
		c.Hist.FillCount()
	case 1:
		c.Hist.Fill(x)
	default:
		c.Hist.Fill2(x, y)
	}
}
