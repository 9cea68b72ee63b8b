// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package aggregator runs the staged histogram aggregation pipeline as a
// service: it owns one cube.Manager per configured quantity, streams
// samples into them, triggers per-frame harvesting at frame boundaries,
// and runs the offline harvest when the stream ends.
package aggregator

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/histocube/pkg/cube"
	"github.com/AleutianAI/histocube/pkg/validation"
)

// StoreConfig selects and configures the histogram store backend.
type StoreConfig struct {
	// Backend is "badger" or "memory".
	Backend string `yaml:"backend" validate:"required,oneof=badger memory"`

	// Path is the BadgerDB directory. Required for the badger backend
	// unless InMemory is set.
	Path string `yaml:"path"`

	// InMemory runs badger without disk persistence. Testing only.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `yaml:"sync_writes"`
}

// HTTPConfig configures the optional inspection API.
type HTTPConfig struct {
	// Addr is the listen address, e.g. ":8085". Empty disables the API.
	Addr string `yaml:"addr"`
}

// Config is the top-level service configuration.
type Config struct {
	// Store configures the histogram store backend.
	Store StoreConfig `yaml:"store" validate:"required"`

	// Geometry is the path to the attribute domain YAML consumed by
	// pkg/geometry.
	Geometry string `yaml:"geometry" validate:"required"`

	// Quantities lists the managed quantities, one cube.Manager each.
	Quantities []cube.ManagerConfig `yaml:"quantities" validate:"required,min=1"`

	// HTTP configures the optional inspection API.
	HTTP HTTPConfig `yaml:"http"`
}

// LoadConfig reads, parses, and validates a service configuration file.
//
// Inputs:
//
//	path - YAML file with the Config shape.
//
// Outputs:
//
//	*Config - The validated configuration.
//	error - Non-nil on read, parse, or validation failure.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks structural constraints and the identifier rules the
// store path derivation depends on.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}
	if c.Store.Backend == "badger" && !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("store: path is required for the badger backend")
	}
	seen := make(map[string]struct{}, len(c.Quantities))
	for i := range c.Quantities {
		q := &c.Quantities[i]
		if err := validation.ValidateName(q.Name); err != nil {
			return fmt.Errorf("quantity %d: %w", i, err)
		}
		if _, dup := seen[q.Name]; dup {
			return fmt.Errorf("duplicate quantity name %q", q.Name)
		}
		seen[q.Name] = struct{}{}
		if err := validation.ValidateFolder(q.TopFolder); err != nil {
			return fmt.Errorf("quantity %q: %w", q.Name, err)
		}
		if q.Dimensions < 0 || q.Dimensions > 2 {
			return fmt.Errorf("quantity %q: dimensions must be 0, 1, or 2", q.Name)
		}
	}
	return nil
}
