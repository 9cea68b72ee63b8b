// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package aggregator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/histocube/pkg/cube"
	"github.com/AleutianAI/histocube/pkg/store"
)

// writeGeometry writes a 2-module, single-layer-column domain.
func writeGeometry(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "geometry.yaml")
	data := `columns:
  - name: layer
    pretty: PXLayer
    min: 1
    max: 2
modules:
  - id: 1
    values: {layer: 1}
  - id: 2
    values: {layer: 2}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))
	return path
}

func smokeConfig(t *testing.T) *Config {
	cfg := &Config{
		Store:    StoreConfig{Backend: "memory"},
		Geometry: writeGeometry(t),
		Quantities: []cube.ManagerConfig{{
			Enabled:    true,
			TopFolder:  "pixel",
			Name:       "digis",
			Title:      "Digis",
			XLabel:     "charge",
			Dimensions: 1,
			RangeX:     cube.AxisRange{NBins: 5, Min: 0, Max: 5},
			Specs: []cube.SpecConfig{{Enabled: true, Steps: []cube.StepConfig{
				{Stage: "online", Type: "groupby", Columns: []string{"layer"}},
				{Stage: "offline", Type: "save"},
			}}},
		}},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestService_RunSmoke(t *testing.T) {
	cfg := smokeConfig(t)
	st := store.NewMemoryStore()
	svc, err := New(cfg, st, nil)
	require.NoError(t, err)

	stream := strings.Join([]string{
		`{"module": 1, "frame": 1, "x": 0.5}`,
		`{"module": 1, "frame": 1, "col": 1, "x": 0.5}`,
		`{"module": 2, "frame": 1, "x": 2.5}`,
		`{"module": 1, "frame": 2, "x": 0.5}`,
	}, "\n")

	require.NoError(t, svc.Run(context.Background(), strings.NewReader(stream)))

	status := svc.Status()
	assert.Equal(t, StateDone, status.State)
	assert.NotEmpty(t, status.RunID)
	assert.EqualValues(t, 4, status.Samples)
	assert.EqualValues(t, 2, status.Frames)
	assert.EqualValues(t, 0, status.Malformed)

	h1, ok := st.Get("pixel/PXLayer_1/digis")
	require.True(t, ok, "layer 1 histogram missing")
	assert.Equal(t, 3.0, h1.Histogram().BinContent(0, 0))

	h2, ok := st.Get("pixel/PXLayer_2/digis")
	require.True(t, ok, "layer 2 histogram missing")
	assert.Equal(t, 1.0, h2.Histogram().BinContent(2, 0))
}

func TestService_RunSkipsMalformedLines(t *testing.T) {
	cfg := smokeConfig(t)
	svc, err := New(cfg, store.NewMemoryStore(), nil)
	require.NoError(t, err)

	stream := `{"module": 1, "frame": 1, "x": 0.5}
garbage
{"module": 1, "frame": 1, "x": 0.5, "quantity": "unknown"}
`
	require.NoError(t, svc.Run(context.Background(), strings.NewReader(stream)))

	status := svc.Status()
	assert.Equal(t, StateDone, status.State)
	assert.EqualValues(t, 1, status.Samples)
	assert.EqualValues(t, 2, status.Malformed)
}

func TestService_RunHonorsCancellation(t *testing.T) {
	cfg := smokeConfig(t)
	svc, err := New(cfg, store.NewMemoryStore(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = svc.Run(ctx, strings.NewReader(`{"module": 1, "frame": 1, "x": 0.5}`))
	require.Error(t, err)
	assert.Equal(t, StateFailed, svc.Status().State)
}

func TestService_QuantityRouting(t *testing.T) {
	cfg := smokeConfig(t)
	second := cfg.Quantities[0]
	second.Name = "clusters"
	second.TopFolder = "pixel_clusters"
	cfg.Quantities = append(cfg.Quantities, second)
	require.NoError(t, cfg.Validate())

	st := store.NewMemoryStore()
	svc, err := New(cfg, st, nil)
	require.NoError(t, err)

	stream := `{"module": 1, "frame": 1, "x": 0.5, "quantity": "digis"}
{"module": 1, "frame": 1, "x": 0.5}
`
	require.NoError(t, svc.Run(context.Background(), strings.NewReader(stream)))

	hd, ok := st.Get("pixel/PXLayer_1/digis")
	require.True(t, ok)
	assert.EqualValues(t, 2, hd.Histogram().Entries(), "digis gets routed and broadcast samples")

	hc, ok := st.Get("pixel_clusters/PXLayer_1/clusters")
	require.True(t, ok)
	assert.EqualValues(t, 1, hc.Histogram().Entries(), "clusters gets only the broadcast sample")
}

func TestNew_RejectsBadSpec(t *testing.T) {
	cfg := smokeConfig(t)
	cfg.Quantities[0].Specs[0].Steps[0].Type = "count" // first step must be groupby
	_, err := New(cfg, store.NewMemoryStore(), nil)
	assert.Error(t, err)
}
