// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cube

import (
	"fmt"
	"log/slog"
)

// AxisRange is a default axis geometry: bin count over [Min, Max).
type AxisRange struct {
	NBins int     `yaml:"nbins" json:"nbins"`
	Min   float64 `yaml:"min" json:"min"`
	Max   float64 `yaml:"max" json:"max"`
}

// ManagerConfig configures one Manager: display defaults copied into
// every booked histogram, the default sample dimensionality, and the
// specification pipelines to drive.
type ManagerConfig struct {
	// Enabled disables the manager entirely when false; every entry
	// point becomes a no-op.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// BookUndefined enables strict booking: domain combinations holding
	// the Undefined sentinel are booked (with an _UNDEFINED path suffix)
	// instead of skipped, a missing cell during filling is fatal instead
	// of dropped, and missing store entries at harvest time are logged.
	BookUndefined bool `yaml:"book_undefined" json:"book_undefined"`

	// TopFolder is the root folder of all paths derived for this
	// manager's histograms.
	TopFolder string `yaml:"top_folder" json:"top_folder"`

	// Name, Title, XLabel, YLabel are display defaults; the booking
	// walk derives per-histogram variants from them.
	Name   string `yaml:"name" json:"name"`
	Title  string `yaml:"title" json:"title"`
	XLabel string `yaml:"xlabel" json:"xlabel"`
	YLabel string `yaml:"ylabel" json:"ylabel"`

	// Dimensions is the number of coordinates each sample carries
	// (0, 1 or 2). Fill calls must match it.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// RangeX and RangeY are the default axis geometries used when a
	// step does not derive its own (EXTEND derives from the provider's
	// declared column range).
	RangeX AxisRange `yaml:"range_x" json:"range_x"`
	RangeY AxisRange `yaml:"range_y" json:"range_y"`

	// Specs lists the specification pipelines; disabled entries are
	// skipped at construction.
	Specs []SpecConfig `yaml:"specs" json:"specs"`
}

// CustomFunc is an externally supplied offline table transform, invoked
// for CUSTOM steps. The engine prescribes no semantics.
type CustomFunc func(step Step, t *Table) error

// Stats counts manager activity since the last TakeStats call. The
// counters are plain fields updated on the hot path; the caller decides
// when to drain them into instruments.
type Stats struct {
	// FastPathHits counts fills served entirely from the previous
	// sample's extracted keys and cache slots.
	FastPathHits int64

	// FastPathMisses counts fills that re-ran attribute extraction.
	FastPathMisses int64

	// Dropped counts per-spec fills discarded because no histogram was
	// booked for the extracted combination.
	Dropped int64

	// Booked counts histograms registered with the store during Book.
	Booked int64
}

// cellCache is the single-slot fast-path cache: either empty or holding
// the cell resolved for the current key. Any operation that mutates the
// key must invalidate it first.
type cellCache struct {
	cell *Cell
}

func (c *cellCache) get() *Cell     { return c.cell }
func (c *cellCache) set(cell *Cell) { c.cell = cell }
func (c *cellCache) invalidate()    { c.cell = nil }

// specState is one (specification, table) pair with its per-spec key
// scratch and cache slot. vals holds the pristine extracted key; the
// step walk mutates walk, a copy taken at the start of every walk, so
// the extracted key survives across fills with the same tuple.
type specState struct {
	spec  *Specification
	table *Table
	vals  Values
	walk  Values
	cache cellCache
}

// Manager drives one measured quantity through its specifications: one
// table per specification, filled online per sample and transformed
// offline at harvest time.
//
// Not safe for concurrent use. Independent managers own disjoint state
// and may run on separate goroutines, sharing a loaded Provider.
type Manager struct {
	cfg      ManagerConfig
	provider Provider
	log      *slog.Logger

	specs []*specState

	// Fast-path state: the identifying tuple of the last sample. While
	// it is unchanged (and has a stable module identity), the extracted
	// keys and cache slots from the previous sample remain valid.
	src     Source
	haveSrc bool

	custom  CustomFunc
	scratch Values
	stats   Stats
}

// NewManager builds a manager from its configuration. Disabled
// specifications are dropped; invalid ones are a configuration error.
func NewManager(cfg ManagerConfig, provider Provider, log *slog.Logger) (*Manager, error) {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{cfg: cfg, provider: provider, log: log}
	for i, sc := range cfg.Specs {
		if !sc.Enabled {
			continue
		}
		spec, err := NewSpecification(sc)
		if err != nil {
			return nil, fmt.Errorf("spec %d: %w", i, err)
		}
		m.specs = append(m.specs, &specState{spec: spec, table: NewTable()})
	}
	return m, nil
}

// SetCustomHandler registers the hook invoked for offline CUSTOM steps.
func (m *Manager) SetCustomHandler(fn CustomFunc) { m.custom = fn }

// Config returns the manager's configuration.
func (m *Manager) Config() ManagerConfig { return m.cfg }

// TakeStats returns the activity counters accumulated since the last
// call and resets them.
func (m *Manager) TakeStats() Stats {
	s := m.stats
	m.stats = Stats{}
	return s
}

// Fill records a 2-dimensional sample (x, y) from src.
func (m *Manager) Fill(x, y float64, src Source) {
	if m.cfg.Dimensions != 2 {
		panic(fmt.Sprintf("cube: Fill(x, y) on manager %q with %d dimensions", m.cfg.Name, m.cfg.Dimensions))
	}
	m.fill(x, y, src)
}

// Fill1 records a 1-dimensional sample x from src.
func (m *Manager) Fill1(x float64, src Source) {
	if m.cfg.Dimensions != 1 {
		panic(fmt.Sprintf("cube: Fill1(x) on manager %q with %d dimensions", m.cfg.Name, m.cfg.Dimensions))
	}
	m.fill(x, 0, src)
}

// Fill0 records a 0-dimensional sample (pure count) from src.
func (m *Manager) Fill0(src Source) {
	if m.cfg.Dimensions != 0 {
		panic(fmt.Sprintf("cube: Fill0() on manager %q with %d dimensions", m.cfg.Name, m.cfg.Dimensions))
	}
	m.fill(0, 0, src)
}

// fill is the per-sample hot path. On the cache-hit path (identical
// identifying tuple) it performs no key extraction and no allocation.
func (m *Manager) fill(x, y float64, src Source) {
	if !m.cfg.Enabled {
		return
	}
	// Module 0 means "no stable identity": the frame counter alone may
	// look stable across frames, so always re-extract.
	cached := m.haveSrc && src == m.src && src.Module != 0
	if cached {
		m.stats.FastPathHits++
	} else {
		m.stats.FastPathMisses++
		m.src = src
		m.haveSrc = true
	}
	for _, st := range m.specs {
		// We could be smarter on col/row and only re-extract when they
		// appear in the spec, but that just asks for bugs.
		if !cached {
			st.vals.Clear()
			m.provider.ExtractColumns(st.spec.ExtractionColumns(), src, &st.vals)
			st.cache.invalidate()
		}
		m.executeOnline(x, y, st, StageOnline)
	}
}

// HarvestSample runs the per-sample-harvesting sub-stage once, typically
// at a frame boundary: every counter entry is converted into one fill of
// the coarser histogram its online-harvest GROUPBY designates.
func (m *Manager) HarvestSample() {
	if !m.cfg.Enabled {
		return
	}
	for _, st := range m.specs {
		// Only counting specs take part; a spec without a per-sample
		// harvesting stage has nothing to convert.
		if !st.spec.HasStage(StageOnlineHarvest) {
			continue
		}
		width := len(st.spec.ExtractionColumns())
		for _, e := range st.table.Entries() {
			// The table holds both counters (full extraction key) and
			// histograms (projected key); only counters take part here.
			if e.Key.Len() != width {
				continue
			}
			st.vals.CopyFrom(e.Key)
			st.cache.set(e.Cell)
			m.executeOnline(0, 0, st, StageOnlineHarvest)
		}
		st.cache.invalidate()
	}
	// The counter walk overwrote the per-spec keys; force re-extraction
	// for the next sample regardless of its identifying tuple.
	m.haveSrc = false
}

// executeOnline walks the specification's steps restricted to stage and
// updates exactly one cell of the table. The walk operates on a copy of
// the extracted key; EXTEND and GROUPBY consume columns from the copy.
func (m *Manager) executeOnline(x, y float64, st *specState, stage Stage) {
	dim := m.cfg.Dimensions
	st.walk.CopyFrom(&st.vals)
	steps := st.spec.Steps
	for i := range steps {
		step := &steps[i]
		if step.Stage != stage {
			continue
		}
		switch step.Type {
		case StepSave:
			// Materialization happens offline.

		case StepCount:
			x, y = 0, 0
			dim = 0
			if i+1 < len(steps) && steps[i+1].Stage == StageOnlineHarvest {
				// COUNT/GROUPBY per frame: bump the counter and stop;
				// the histogram fill happens in HarvestSample.
				cell := st.cache.get()
				if cell == nil {
					cell = st.table.GetOrCreate(&st.walk)
					st.cache.set(cell)
				}
				cell.Kind = CellCounter
				cell.Count++
				return
			}

		case StepExtendX:
			if x != 0 || dim == 1 {
				panic("cube: online EXTEND_X is only legal on an empty accumulator (after COUNT)")
			}
			v, _ := st.walk.Get(step.Columns[0])
			x = float64(v)
			st.walk.Erase(step.Columns[0])
			if dim == 0 {
				dim = 1
			} else {
				dim = 2
			}

		case StepExtendY:
			if y != 0 {
				panic("cube: online EXTEND_Y is only legal on an empty accumulator (after COUNT)")
			}
			v, _ := st.walk.Get(step.Columns[0])
			y = float64(v)
			st.walk.Erase(step.Columns[0])
			dim = 2

		case StepGroupBy:
			if i == 0 {
				// The leading groupby is the extraction set, already
				// applied when the key was extracted.
				continue
			}
			if stage != StageOnlineHarvest {
				panic("cube: online GROUPBY is only legal in per-sample harvesting")
			}
			dim = 1
			cell := st.cache.get()
			if cell == nil {
				cell = st.table.GetOrCreate(&st.walk)
			}
			x = float64(cell.Count)
			cell.Count = 0
			// The key changes below, so the cached cell becomes invalid.
			st.cache.invalidate()
			m.scratch.Project(&st.walk, step.Columns)
			st.walk.CopyFrom(&m.scratch)

		default:
			panic(fmt.Sprintf("cube: illegal step %s in stage %s; booking should have caught this", step.Type, stage))
		}
	}

	cell := st.cache.get()
	if cell == nil {
		c, ok := st.table.Lookup(&st.walk)
		if !ok || !c.Fillable() {
			// No histogram was booked for this combination.
			if m.cfg.BookUndefined {
				panic(fmt.Sprintf("cube: all histograms were booked but %q is missing; booking and filling disagree", st.walk.String()))
			}
			m.stats.Dropped++
			return
		}
		cell = c
		st.cache.set(cell)
	}
	cell.fill(dim, x, y)
}
