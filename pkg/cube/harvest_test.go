// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cube

import (
	"math"
	"testing"
)

// specSteps builds the plain config with the given offline tail after
// the extraction groupby.
func offlineConfig(tail ...StepConfig) ManagerConfig {
	cfg := plainConfig()
	steps := []StepConfig{step("online", "groupby", "layer", "ladder")}
	steps = append(steps, tail...)
	cfg.Specs = []SpecConfig{{Enabled: true, Steps: steps}}
	return cfg
}

func mustHarvest(t *testing.T, m *Manager, s Store) {
	t.Helper()
	if err := m.Harvest(s, nil); err != nil {
		t.Fatalf("Harvest() error = %v", err)
	}
}

func TestHarvest_GroupByMergesAndSaves(t *testing.T) {
	p := newBarrelProvider()
	st := newTestStore()
	cfg := offlineConfig(
		step("offline", "groupby", "layer"),
		step("offline", "save"),
	)
	m := mustManager(t, cfg, p)
	mustBook(t, m, st)

	m.Fill1(0.5, Source{Module: 1, Frame: 1})         // layer 1, ladder 1
	m.Fill1(0.5, Source{Module: 2, Frame: 1})         // layer 1, ladder 2
	m.Fill1(0.5, Source{Module: 2, Frame: 1, Col: 1}) // layer 1, ladder 2
	m.Fill1(1.5, Source{Module: 3, Frame: 1})         // layer 2

	mustHarvest(t, m, st)

	h, ok := st.Get("f/PXLayer_1/digis")
	if !ok {
		t.Fatalf("merged histogram not saved; have %v", st.paths("f/"))
	}
	if got := h.Histogram().BinContent(0, 0); got != 3 {
		t.Errorf("merged bin 0 = %v, want 3 (1+2 across ladders)", got)
	}
	if got := h.Histogram().Entries(); got != 3 {
		t.Errorf("merged entries = %d, want 3", got)
	}

	h2, ok := st.Get("f/PXLayer_2/digis")
	if !ok {
		t.Fatal("layer 2 merged histogram not saved")
	}
	if got := h2.Histogram().BinContent(1, 0); got != 1 {
		t.Errorf("layer 2 bin 1 = %v, want 1", got)
	}
}

func TestHarvest_FreshManagerReloadsFromStore(t *testing.T) {
	p := newBarrelProvider()
	st := newTestStore()
	cfg := offlineConfig(
		step("offline", "groupby", "layer"),
		step("offline", "save"),
	)

	// First process: book and fill only.
	online := mustManager(t, cfg, p)
	mustBook(t, online, st)
	online.Fill1(2.5, Source{Module: 1, Frame: 1})
	online.Fill1(2.5, Source{Module: 2, Frame: 1})

	// Second process: a fresh manager harvests purely from the store.
	offline := mustManager(t, cfg, p)
	mustHarvest(t, offline, st)

	h, ok := st.Get("f/PXLayer_1/digis")
	if !ok {
		t.Fatal("harvest from a fresh manager did not find online results")
	}
	if got := h.Histogram().BinContent(2, 0); got != 2 {
		t.Errorf("merged bin 2 = %v, want 2", got)
	}
}

func TestHarvest_SaveIsIdempotent(t *testing.T) {
	p := newBarrelProvider()
	st := newTestStore()
	cfg := offlineConfig(
		step("offline", "groupby", "layer"),
		step("offline", "save"),
	)
	m := mustManager(t, cfg, p)
	mustBook(t, m, st)
	m.Fill1(0.5, Source{Module: 1, Frame: 1})

	mustHarvest(t, m, st)
	mustHarvest(t, m, st)

	h, _ := st.Get("f/PXLayer_1/digis")
	if got := h.Histogram().BinContent(0, 0); got != 1 {
		t.Errorf("repeated harvest changed contents: bin 0 = %v, want 1", got)
	}
}

func TestHarvest_ReduceMean(t *testing.T) {
	p := newBarrelProvider()
	st := newTestStore()
	cfg := offlineConfig(
		StepConfig{Stage: "offline", Type: "reduce", Arg: "MEAN"},
		step("offline", "save"),
	)
	m := mustManager(t, cfg, p)
	mustBook(t, m, st)

	// RangeX is 5 bins over [0,5): centers 0.5..4.5.
	m.Fill1(0.5, Source{Module: 1, Frame: 1})
	m.Fill1(2.5, Source{Module: 1, Frame: 1, Col: 1})

	mustHarvest(t, m, st)

	h, ok := st.Get("f/PXLayer_1/PXLadder_1/mean_digis")
	if !ok {
		t.Fatalf("reduced histogram not saved; have %v", st.paths("f/"))
	}
	hist := h.Histogram()
	if hist.X.NBins != 1 {
		t.Errorf("reduced histogram has %d bins, want 1", hist.X.NBins)
	}
	if got, want := hist.Bins[0], 1.5; math.Abs(got-want) > 1e-12 {
		t.Errorf("reduced value = %v, want %v", got, want)
	}
}

func TestHarvest_ReduceCount(t *testing.T) {
	p := newBarrelProvider()
	st := newTestStore()
	cfg := offlineConfig(
		StepConfig{Stage: "offline", Type: "reduce", Arg: "COUNT"},
		step("offline", "save"),
	)
	m := mustManager(t, cfg, p)
	mustBook(t, m, st)
	m.Fill1(0.5, Source{Module: 1, Frame: 1})
	m.Fill1(1.5, Source{Module: 1, Frame: 1, Col: 1})

	mustHarvest(t, m, st)

	h, ok := st.Get("f/PXLayer_1/PXLadder_1/num_digis")
	if !ok {
		t.Fatal("count-reduced histogram not saved")
	}
	if got := h.Histogram().Bins[0]; got != 2 {
		t.Errorf("reduced count = %v, want 2", got)
	}
}

func TestHarvest_ReduceUnknownArgDropsEntry(t *testing.T) {
	p := newBarrelProvider()
	st := newTestStore()
	cfg := offlineConfig(
		StepConfig{Stage: "offline", Type: "reduce", Arg: "MAX"},
		step("offline", "save"),
	)
	m := mustManager(t, cfg, p)
	mustBook(t, m, st)
	m.Fill1(0.5, Source{Module: 1, Frame: 1})

	before := len(st.items)
	mustHarvest(t, m, st)

	if got := len(st.items); got != before {
		t.Errorf("unknown reduction must not save anything: %d new paths", got-before)
	}
}

func TestHarvest_ExtendXConcatenates(t *testing.T) {
	p := newBarrelProvider()
	st := newTestStore()
	cfg := offlineConfig(
		step("offline", "extend_x", "ladder"),
		step("offline", "save"),
	)
	m := mustManager(t, cfg, p)
	mustBook(t, m, st)

	// Distinct patterns per ladder so concatenation order is visible.
	m.Fill1(0.5, Source{Module: 1, Frame: 1}) // ladder 1: bin 0
	m.Fill1(4.5, Source{Module: 2, Frame: 1}) // ladder 2: bin 4

	mustHarvest(t, m, st)

	h, ok := st.Get("f/PXLayer_1/digis")
	if !ok {
		t.Fatalf("extended histogram not saved; have %v", st.paths("f/"))
	}
	hist := h.Histogram()
	if hist.X.NBins != 10 {
		t.Fatalf("extended histogram has %d bins, want 10 (5 per ladder)", hist.X.NBins)
	}
	// Ladder 1 occupies bins 0-4, ladder 2 bins 5-9, in key order.
	if hist.Bins[0] != 1 {
		t.Errorf("ladder 1 contribution missing: bins = %v", hist.Bins)
	}
	if hist.Bins[9] != 1 {
		t.Errorf("ladder 2 contribution at wrong offset: bins = %v", hist.Bins)
	}
	if got := hist.Entries(); got != 2 {
		t.Errorf("extended entries = %d, want 2", got)
	}
}

func TestHarvest_CustomHook(t *testing.T) {
	p := newBarrelProvider()
	st := newTestStore()
	cfg := offlineConfig(
		StepConfig{Stage: "offline", Type: "custom", Arg: "normalize"},
	)
	m := mustManager(t, cfg, p)
	mustBook(t, m, st)
	m.Fill1(0.5, Source{Module: 1, Frame: 1})

	var calls int
	m.SetCustomHandler(func(s Step, tbl *Table) error {
		calls++
		if s.Arg != "normalize" {
			t.Errorf("custom step arg = %q, want %q", s.Arg, "normalize")
		}
		if tbl.Len() == 0 {
			t.Error("custom hook received an empty table")
		}
		return nil
	})
	mustHarvest(t, m, st)

	if calls != 1 {
		t.Errorf("custom hook called %d times, want 1", calls)
	}
}
