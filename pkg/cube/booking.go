// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cube

import "fmt"

// bookDesc accumulates display name, title, axis labels and axis ranges
// while the booking walk replays the online steps in describe mode.
type bookDesc struct {
	name   string
	title  string
	xlabel string
	ylabel string
	dim    int
	rx, ry AxisRange
}

// Book pre-registers a histogram for every reachable key of every
// specification, before any sample is processed.
//
// For each domain source the online step sequence is replayed in a
// describe mode that derives names, titles, labels and ranges instead of
// filling values, and a 1-D or 2-D histogram is registered with the
// store for the resulting key if the cell has none yet. Booking is
// idempotent.
//
// Combinations containing Undefined are skipped unless BookUndefined is
// set, in which case they are booked under an _UNDEFINED path suffix.
func (m *Manager) Book(store Store, env any) error {
	if err := EnsureLoaded(m.provider, env); err != nil {
		return fmt.Errorf("load attribute provider: %w", err)
	}
	if !m.cfg.Enabled {
		return nil
	}
	for _, st := range m.specs {
		for _, src := range m.provider.AllSources() {
			var vals Values
			m.provider.ExtractColumns(st.spec.ExtractionColumns(), src, &vals)
			if !m.cfg.BookUndefined && vals.HasUndefined() {
				continue
			}
			d := bookDesc{
				name:   m.cfg.Name,
				title:  m.cfg.Title,
				xlabel: m.cfg.XLabel,
				ylabel: m.cfg.YLabel,
				dim:    m.cfg.Dimensions,
				rx:     m.cfg.RangeX,
				ry:     m.cfg.RangeY,
			}
			m.describeWalk(st, &d, &vals)

			cell := st.table.GetOrCreate(&vals)
			if cell.Handle != nil {
				continue // already booked for an earlier source
			}
			store.SetCurrentFolder(MakePath(m.cfg.TopFolder, m.provider, &vals))
			var (
				h   Handle
				err error
			)
			if d.dim <= 1 {
				h, err = store.Book1D(d.name, d.title+";"+d.xlabel, d.rx.NBins, d.rx.Min, d.rx.Max)
			} else {
				h, err = store.Book2D(d.name, d.title+";"+d.xlabel+";"+d.ylabel,
					d.rx.NBins, d.rx.Min, d.rx.Max, d.ry.NBins, d.ry.Min, d.ry.Max)
			}
			if err != nil {
				return fmt.Errorf("book %s%s: %w", MakePath(m.cfg.TopFolder, m.provider, &vals), d.name, err)
			}
			cell.AttachHandle(h)
			m.stats.Booked++
		}
	}
	return nil
}

// describeWalk replays the online steps against a key, mutating the
// descriptor and the key the same way the fill walk mutates coordinates
// and keys. It shares the step iteration structure with executeOnline
// but stays free of any fill logic.
func (m *Manager) describeWalk(st *specState, d *bookDesc, vals *Values) {
	steps := st.spec.Steps
	for i := range steps {
		step := &steps[i]
		if step.Stage != StageOnline && step.Stage != StageOnlineHarvest {
			continue
		}
		switch step.Type {
		case StepSave:
			// Materialization happens offline.

		case StepCount:
			d.dim = 0
			d.title = "Count of " + d.title
			d.name = "num_" + d.name
			d.ylabel = "#" + d.xlabel
			d.xlabel = ""
			d.rx = AxisRange{NBins: 1, Min: 0, Max: 1}
			d.ry = d.rx
			// The counter lives at the fine key, before any projection.
			ctr := st.table.GetOrCreate(vals)
			ctr.Kind = CellCounter
			ctr.Count = 0

		case StepExtendX:
			col := step.Columns[0]
			colname := m.provider.Pretty(col)
			if d.dim == 1 {
				panic("cube: 1-D to 1-D EXTEND is not supported online")
			}
			if d.dim == 0 {
				d.dim = 1
			} else {
				d.dim = 2
			}
			d.title += " per " + colname
			d.name += "_per_" + colname
			d.xlabel = colname
			d.rx.Min = float64(m.provider.MinValue(col)) - 0.5
			d.rx.Max = float64(m.provider.MaxValue(col)) + 0.5
			d.rx.NBins = int(d.rx.Max - d.rx.Min)
			vals.Erase(col)

		case StepExtendY:
			col := step.Columns[0]
			colname := m.provider.Pretty(col)
			if d.dim == 2 {
				panic("cube: 2-D to 2-D EXTEND is not supported online")
			}
			d.dim = 2
			d.title += " per " + colname
			d.name += "_per_" + colname
			d.ylabel = colname
			d.ry.Min = float64(m.provider.MinValue(col)) - 0.5
			d.ry.Max = float64(m.provider.MaxValue(col)) + 0.5
			d.ry.NBins = int(d.ry.Max - d.ry.Min)
			vals.Erase(col)

		case StepGroupBy:
			if i == 0 {
				continue // extraction set, already applied
			}
			if d.dim != 0 {
				panic("cube: online GROUPBY is only legal after COUNT (per-sample harvesting)")
			}
			d.dim = 1
			d.rx = m.cfg.RangeX
			d.xlabel = d.ylabel + " per Frame"
			if cols := st.spec.ExtractionColumns(); len(cols) > 0 {
				d.xlabel += " and " + m.provider.Pretty(cols[len(cols)-1])
			}
			d.ylabel = "#Entries"
			m.scratch.Project(vals, step.Columns)
			vals.CopyFrom(&m.scratch)

		default:
			panic(fmt.Sprintf("cube: operation %s not supported online; use SAVE before it to switch to harvesting", step.Type))
		}
	}
}
