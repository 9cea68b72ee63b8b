// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package aggregator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/histocube/pkg/cube"
)

func validConfig() Config {
	return Config{
		Store:    StoreConfig{Backend: "memory"},
		Geometry: "geometry.yaml",
		Quantities: []cube.ManagerConfig{{
			Enabled:    true,
			TopFolder:  "PixelPhase1/Digis",
			Name:       "digis",
			Title:      "Digis",
			Dimensions: 1,
			RangeX:     cube.AxisRange{NBins: 10, Min: 0, Max: 10},
		}},
	}
}

func TestConfig_ValidateAccepts(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestConfig_ValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "unknown backend",
			mutate: func(c *Config) { c.Store.Backend = "postgres" },
		},
		{
			name:   "badger without path",
			mutate: func(c *Config) { c.Store = StoreConfig{Backend: "badger"} },
		},
		{
			name:   "missing geometry",
			mutate: func(c *Config) { c.Geometry = "" },
		},
		{
			name:   "no quantities",
			mutate: func(c *Config) { c.Quantities = nil },
		},
		{
			name:   "bad quantity name",
			mutate: func(c *Config) { c.Quantities[0].Name = "../evil" },
		},
		{
			name: "duplicate quantity name",
			mutate: func(c *Config) {
				c.Quantities = append(c.Quantities, c.Quantities[0])
			},
		},
		{
			name:   "bad top folder",
			mutate: func(c *Config) { c.Quantities[0].TopFolder = "a//b" },
		},
		{
			name:   "dimensions out of range",
			mutate: func(c *Config) { c.Quantities[0].Dimensions = 3 },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `store:
  backend: memory
geometry: geometry.yaml
quantities:
  - enabled: true
    name: digis
    title: Digis
    top_folder: PixelPhase1/Digis
    dimensions: 1
    range_x: {nbins: 10, min: 0, max: 10}
    specs:
      - enabled: true
        steps:
          - {stage: online, type: groupby, columns: [layer]}
          - {stage: offline, type: save}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Backend)
	require.Len(t, cfg.Quantities, 1)
	assert.Equal(t, "digis", cfg.Quantities[0].Name)
	require.Len(t, cfg.Quantities[0].Specs, 1)
	assert.Len(t, cfg.Quantities[0].Specs[0].Steps, 2)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
