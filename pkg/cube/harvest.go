// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cube

import (
	"fmt"
	"strings"
)

// Harvest reconstructs each specification's table from the store and
// applies the offline steps in order, producing the final persisted
// artifacts. It runs once, after all online samples have been processed.
func (m *Manager) Harvest(store Store, env any) error {
	if !m.cfg.Enabled {
		return nil
	}
	if err := EnsureLoaded(m.provider, env); err != nil {
		return fmt.Errorf("load attribute provider: %w", err)
	}
	for _, st := range m.specs {
		m.log.Info("harvesting specification",
			"manager", m.cfg.Name,
			"spec", st.spec.String(),
		)
		m.loadFromStore(st, store)
		for i := range st.spec.Steps {
			step := &st.spec.Steps[i]
			if step.Stage != StageOffline {
				continue
			}
			switch step.Type {
			case StepSave:
				m.executeSave(st.table, store)
			case StepGroupBy:
				m.executeGroupBy(step, st.table)
			case StepReduce:
				m.executeReduce(step, st.table)
			case StepExtendX:
				m.executeExtend(step, st.table, true)
			case StepExtendY:
				m.executeExtend(step, st.table, false)
			case StepCustom:
				if m.custom != nil {
					if err := m.custom(*step, st.table); err != nil {
						return fmt.Errorf("custom step: %w", err)
					}
				}
			default:
				panic(fmt.Sprintf("cube: operation %s not supported in harvesting", step.Type))
			}
		}
	}
	return nil
}

// loadFromStore rebuilds a specification's table from persisted
// histograms by recomputing, for every domain source, the key and name
// booking would have produced, then retrieving the matching artifact.
//
// This is the reload twin of the booking walk: it must derive names
// bit-for-bit identically, since relocation happens purely by path.
func (m *Manager) loadFromStore(st *specState, store Store) {
	// Harvesting reconstructs the table purely from the store; whatever
	// the online phase left in it (counters at fine keys in particular)
	// is discarded first.
	st.table.Swap(NewTable())
	for _, src := range m.provider.AllSources() {
		name := m.cfg.Name
		var vals Values
		m.provider.ExtractColumns(st.spec.ExtractionColumns(), src, &vals)
		for i := range st.spec.Steps {
			step := &st.spec.Steps[i]
			if step.Stage != StageOnline && step.Stage != StageOnlineHarvest {
				continue
			}
			switch step.Type {
			case StepSave:
				// Nothing to reconstruct.
			case StepCount:
				name = "num_" + name
			case StepExtendX, StepExtendY:
				col := step.Columns[0]
				name += "_per_" + m.provider.Pretty(col)
				vals.Erase(col)
			case StepGroupBy:
				if i == 0 {
					continue // extraction set, already applied
				}
				m.scratch.Project(&vals, step.Columns)
				vals.CopyFrom(&m.scratch)
			default:
				panic(fmt.Sprintf("cube: illegal step %s; booking should have caught this", step.Type))
			}
		}
		path := MakePath(m.cfg.TopFolder, m.provider, &vals) + name
		h, ok := store.Get(path)
		if !ok {
			// Expected sparsity: the combination had no sample this run.
			if m.cfg.BookUndefined {
				m.log.Error("histogram not found in store", "path", path)
			}
			continue
		}
		// Only touch the table when a histogram was found; empty cells
		// are illegal.
		cell := st.table.GetOrCreate(&vals)
		cell.AttachHandle(h)
	}
}

// executeSave materializes every in-memory-only histogram into a store
// handle, copying axis shape and labels and the accumulated contents.
// Already-persisted cells are left alone, making SAVE idempotent.
func (m *Manager) executeSave(t *Table, store Store) {
	for _, e := range t.Entries() {
		if e.Cell.Handle != nil {
			continue
		}
		if e.Cell.Hist == nil {
			if m.cfg.BookUndefined {
				panic(fmt.Sprintf("cube: cell %q has no histogram at SAVE; something is broken", e.Key.String()))
			}
			continue
		}
		h := e.Cell.Hist
		store.SetCurrentFolder(MakePath(m.cfg.TopFolder, m.provider, e.Key))
		var (
			handle Handle
			err    error
		)
		if h.Dim == 1 {
			handle, err = store.Book1D(h.Name, composeTitle(h), h.X.NBins, h.X.Min, h.X.Max)
		} else {
			handle, err = store.Book2D(h.Name, composeTitle(h),
				h.X.NBins, h.X.Min, h.X.Max, h.Y.NBins, h.Y.Min, h.Y.Max)
		}
		if err != nil {
			panic(fmt.Sprintf("cube: SAVE failed for %q: %v", h.Name, err))
		}
		live := handle.Histogram()
		copy(live.Bins, h.Bins)
		live.NumEntries = h.NumEntries
		e.Cell.AttachHandle(handle)
	}
}

// executeGroupBy builds a new table keyed by the projection onto the
// step's columns; histograms sharing a projected key are merged by
// additive bin-wise accumulation (first occurrence cloned, the rest
// added).
func (m *Manager) executeGroupBy(step *Step, t *Table) {
	out := NewTable()
	for _, e := range t.Entries() {
		if e.Cell.Hist == nil {
			continue
		}
		var nv Values
		nv.Project(e.Key, step.Columns)
		cell := out.GetOrCreate(&nv)
		if cell.Hist == nil {
			cell.Kind = CellHistogram
			cell.Hist = e.Cell.Hist.Clone()
		} else {
			cell.Hist.Add(e.Cell.Hist)
		}
	}
	t.Swap(out)
}

// executeReduce collapses each histogram to a single-bin scalar using
// the reduction named by the step argument. An unrecognized argument is
// reported and the entry dropped from the output table; downstream steps
// never see a stale shape.
func (m *Manager) executeReduce(step *Step, t *Table) {
	out := NewTable()
	for _, e := range t.Entries() {
		h := e.Cell.Hist
		if h == nil {
			continue
		}
		var (
			reduced float64
			label   string
			name    string
		)
		switch strings.ToUpper(step.Arg) {
		case "MEAN":
			reduced = h.Mean()
			label = "mean of " + h.X.Label
			name = "mean_" + h.Name
		case "COUNT":
			reduced = float64(h.Entries())
			label = "# of " + h.X.Label + " entries"
			name = "num_" + h.Name
		default:
			m.log.Error("unsupported reduction", "arg", step.Arg, "histogram", h.Name)
			continue
		}
		nh := NewHistogram1D(name, h.Title, Axis{Label: "", NBins: 1, Min: 0, Max: 1})
		nh.Y.Label = label
		nh.Bins[0] = reduced
		nh.NumEntries = h.NumEntries
		cell := out.GetOrCreate(e.Key)
		cell.Kind = CellHistogram
		cell.Hist = nh
	}
	t.Swap(out)
}

// executeExtend flattens one categorical column into concatenated bins
// along the chosen axis. A first pass sums, per projected group, the
// bins contributed by each member; a second pass allocates one output
// histogram per group and copies each member's bins into a contiguous
// range, in table iteration order.
func (m *Manager) executeExtend(step *Step, t *Table, isX bool) {
	col := step.Columns[0]
	colname := m.provider.Pretty(col)

	// Pass 1: total extended-axis bins per projected group.
	nbins := make(map[string]int)
	for _, e := range t.Entries() {
		h := e.Cell.Hist
		if h == nil {
			panic(fmt.Sprintf("cube: cell %q has no histogram at EXTEND", e.Key.String()))
		}
		var nv Values
		nv.CopyFrom(e.Key)
		nv.Erase(col)
		if isX {
			nbins[nv.Fingerprint()] += h.X.NBins
		} else {
			nbins[nv.Fingerprint()] += h.Y.NBins
		}
	}

	// Pass 2: allocate per-group outputs and copy members contiguously.
	out := NewTable()
	cursor := make(map[string]int)
	for _, e := range t.Entries() {
		h := e.Cell.Hist
		var nv Values
		nv.CopyFrom(e.Key)
		nv.Erase(col)
		fp := nv.Fingerprint()
		cell := out.GetOrCreate(&nv)
		if cell.Hist == nil {
			total := nbins[fp]
			cell.Kind = CellHistogram
			cell.Hist = newExtended(h, colname, total, isX)
			cursor[fp] = 0
		}
		nh := cell.Hist
		c := cursor[fp]
		switch {
		case nh.Dim == 1:
			for i := 0; i < h.X.NBins; i++ {
				nh.SetBinContent(c, 0, h.BinContent(i, 0))
				c++
			}
		case isX:
			for i := 0; i < h.X.NBins; i++ {
				for j := 0; j < h.Y.NBins; j++ {
					nh.SetBinContent(c, j, h.BinContent(i, j))
				}
				c++
			}
		default:
			for j := 0; j < h.Y.NBins; j++ {
				for i := 0; i < h.X.NBins; i++ {
					nh.SetBinContent(i, c, h.BinContent(i, j))
				}
				c++
			}
		}
		cursor[fp] = c
		nh.NumEntries += h.NumEntries
	}
	t.Swap(out)
}

// newExtended allocates the output histogram of an EXTEND group, sized
// to the group's total bin count along the extended axis.
func newExtended(h *Histogram, colname string, total int, isX bool) *Histogram {
	title := h.Title + " per " + colname
	if h.Dim == 1 && isX {
		// Output stays 1-D. Never the case for EXTEND_Y.
		nh := NewHistogram1D(h.Name, title, Axis{
			Label: colname + "/" + h.X.Label,
			NBins: total, Min: 0.5, Max: float64(total) + 0.5,
		})
		nh.Y.Label = h.Y.Label
		return nh
	}
	if h.Dim == 1 && !isX {
		panic("cube: EXTEND_Y requires 2-D inputs")
	}
	if isX {
		return NewHistogram2D(h.Name, title,
			Axis{Label: colname + "/" + h.X.Label, NBins: total, Min: 0.5, Max: float64(total) + 0.5},
			Axis{Label: h.Y.Label, NBins: h.Y.NBins, Min: 0.5, Max: float64(h.Y.NBins) + 0.5},
		)
	}
	return NewHistogram2D(h.Name, title,
		Axis{Label: h.X.Label, NBins: h.X.NBins, Min: 0.5, Max: float64(h.X.NBins) + 0.5},
		Axis{Label: colname + "/" + h.Y.Label, NBins: total, Min: 0.5, Max: float64(total) + 0.5},
	)
}

// composeTitle rebuilds the "title;xlabel;ylabel" form used by store
// booking interfaces from a histogram's fields.
func composeTitle(h *Histogram) string {
	return h.Title + ";" + h.X.Label + ";" + h.Y.Label
}
