// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package geometry implements a configuration-driven attribute provider
// for the cube engine.
//
// The provider maps a sample's source module to categorical attribute
// values via a declarative table: the configuration lists the known
// columns (with display names and value ranges) and the known modules
// (with their per-column values). Columns a module does not declare
// resolve to the Undefined sentinel.
//
// Loading is lazy and one-time; after Load the provider is read-only and
// safe to share between managers.
package geometry

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/histocube/pkg/cube"
)

// ColumnConfig declares one categorical column.
type ColumnConfig struct {
	// Name is the column identifier referenced by specifications.
	Name string `yaml:"name"`

	// Pretty is the display name used in paths and labels. Empty marks
	// a dummy column dropped from display paths.
	Pretty string `yaml:"pretty"`

	// Min and Max declare the inclusive value range.
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// ModuleConfig declares one source module of the domain.
type ModuleConfig struct {
	// ID is the module identifier samples carry. Must not be 0, which
	// is reserved for "no stable identity".
	ID uint32 `yaml:"id"`

	// Values maps column names to this module's attribute values.
	Values map[string]int `yaml:"values"`
}

// Config is the YAML shape of the attribute domain.
type Config struct {
	Columns []ColumnConfig `yaml:"columns"`
	Modules []ModuleConfig `yaml:"modules"`
}

// Provider is a cube.Provider backed by a declarative domain table.
type Provider struct {
	mu     sync.Mutex
	loaded bool

	columns map[cube.Column]ColumnConfig
	modules map[uint32]map[cube.Column]int
	sources []cube.Source
}

// New creates an unloaded provider. Load must be called (directly or via
// cube.EnsureLoaded) before any other method; the engine's entry points
// do this.
func New() *Provider {
	return &Provider{}
}

// Loaded reports whether Load has completed.
func (p *Provider) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

// Load initializes the provider. env must be a Config, a *Config, or a
// string path to a YAML file with the Config shape.
func (p *Provider) Load(env any) error {
	var cfg Config
	switch v := env.(type) {
	case Config:
		cfg = v
	case *Config:
		cfg = *v
	case string:
		data, err := os.ReadFile(v)
		if err != nil {
			return fmt.Errorf("read geometry file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parse geometry file %s: %w", v, err)
		}
	default:
		return fmt.Errorf("unsupported geometry environment type %T", env)
	}

	columns := make(map[cube.Column]ColumnConfig, len(cfg.Columns))
	for _, c := range cfg.Columns {
		if c.Name == "" {
			return fmt.Errorf("geometry column with empty name")
		}
		if _, dup := columns[cube.Column(c.Name)]; dup {
			return fmt.Errorf("duplicate geometry column %q", c.Name)
		}
		columns[cube.Column(c.Name)] = c
	}
	modules := make(map[uint32]map[cube.Column]int, len(cfg.Modules))
	sources := make([]cube.Source, 0, len(cfg.Modules))
	for _, mod := range cfg.Modules {
		if mod.ID == 0 {
			return fmt.Errorf("geometry module id 0 is reserved")
		}
		if _, dup := modules[mod.ID]; dup {
			return fmt.Errorf("duplicate geometry module %d", mod.ID)
		}
		vals := make(map[cube.Column]int, len(mod.Values))
		for name, v := range mod.Values {
			col := cube.Column(name)
			if _, known := columns[col]; !known {
				return fmt.Errorf("module %d references unknown column %q", mod.ID, name)
			}
			vals[col] = v
		}
		modules[mod.ID] = vals
		sources = append(sources, cube.Source{Module: mod.ID})
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded {
		return nil // concurrent double-load; first one wins
	}
	p.columns = columns
	p.modules = modules
	p.sources = sources
	p.loaded = true
	return nil
}

// ExtractColumns resolves the given columns for a source in the order
// requested. Columns the source's module does not declare, and any
// column for an unknown module, yield the Undefined sentinel.
func (p *Provider) ExtractColumns(cols []cube.Column, src cube.Source, into *cube.Values) {
	into.Clear()
	vals := p.modules[src.Module]
	for _, col := range cols {
		v, ok := vals[col]
		if !ok {
			v = cube.Undefined
		}
		into.Put(col, v)
	}
}

// Pretty returns the display name of a column.
func (p *Provider) Pretty(col cube.Column) string {
	return p.columns[col].Pretty
}

// MinValue returns the declared minimum value of a column.
func (p *Provider) MinValue(col cube.Column) int {
	return p.columns[col].Min
}

// MaxValue returns the declared maximum value of a column.
func (p *Provider) MaxValue(col cube.Column) int {
	return p.columns[col].Max
}

// AllSources enumerates the configured module domain.
func (p *Provider) AllSources() []cube.Source {
	return p.sources
}

var _ cube.Provider = (*Provider)(nil)
