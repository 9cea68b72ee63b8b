// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store provides histogram store implementations for the cube
// engine: an in-process registry for tests and single-run use, and an
// embedded persistent store on BadgerDB.
//
// Both implement cube.Store. Histograms are addressed by a folder path
// (derived deterministically from aggregation keys) plus a name; booking
// the same path twice returns the existing handle.
package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/histocube/pkg/cube"
)

// handle is the common cube.Handle implementation: a live in-memory
// histogram plus its storage location.
type handle struct {
	name string
	path string
	hist *cube.Histogram
}

func (h *handle) Name() string               { return h.name }
func (h *handle) Path() string               { return h.path }
func (h *handle) Histogram() *cube.Histogram { return h.hist }

// splitTitle splits the "title;xlabel;ylabel" booking convention into
// its parts. Missing parts are empty.
func splitTitle(title string) (t, x, y string) {
	parts := strings.SplitN(title, ";", 3)
	t = parts[0]
	if len(parts) > 1 {
		x = parts[1]
	}
	if len(parts) > 2 {
		y = parts[2]
	}
	return t, x, y
}

// MemoryStore is an in-process cube.Store. Contents live for the
// process lifetime; Get only finds what was booked in the same process.
//
// Not safe for concurrent use, matching the engine's single-threaded
// execution model.
type MemoryStore struct {
	folder string
	items  map[string]*handle
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*handle)}
}

// SetCurrentFolder selects the folder subsequent bookings go to.
func (s *MemoryStore) SetCurrentFolder(path string) {
	if path != "" && !strings.HasSuffix(path, "/") {
		path += "/"
	}
	s.folder = path
}

// Book1D registers a 1-D histogram in the current folder, returning the
// existing handle if the path was booked before.
func (s *MemoryStore) Book1D(name, title string, nbins int, min, max float64) (cube.Handle, error) {
	return s.book(name, title, nbins, min, max, 0, 0, 0, 1)
}

// Book2D registers a 2-D histogram in the current folder, returning the
// existing handle if the path was booked before.
func (s *MemoryStore) Book2D(name, title string, nbinsX int, minX, maxX float64, nbinsY int, minY, maxY float64) (cube.Handle, error) {
	return s.book(name, title, nbinsX, minX, maxX, nbinsY, minY, maxY, 2)
}

func (s *MemoryStore) book(name, title string, nx int, minX, maxX float64, ny int, minY, maxY float64, dim int) (cube.Handle, error) {
	if name == "" {
		return nil, fmt.Errorf("histogram name must not be empty")
	}
	full := s.folder + name
	if h, ok := s.items[full]; ok {
		return h, nil
	}
	t, xl, yl := splitTitle(title)
	var hist *cube.Histogram
	if dim == 1 {
		hist = cube.NewHistogram1D(name, t, cube.Axis{Label: xl, NBins: nx, Min: minX, Max: maxX})
		hist.Y.Label = yl
	} else {
		hist = cube.NewHistogram2D(name, t,
			cube.Axis{Label: xl, NBins: nx, Min: minX, Max: maxX},
			cube.Axis{Label: yl, NBins: ny, Min: minY, Max: maxY})
	}
	h := &handle{name: name, path: s.folder, hist: hist}
	s.items[full] = h
	return h, nil
}

// Get retrieves the handle for a full path.
func (s *MemoryStore) Get(path string) (cube.Handle, bool) {
	h, ok := s.items[path]
	if !ok {
		return nil, false
	}
	return h, true
}

// List returns all stored full paths with the given prefix, sorted.
func (s *MemoryStore) List(prefix string) ([]string, error) {
	var out []string
	for p := range s.items {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Len returns the number of stored histograms.
func (s *MemoryStore) Len() int { return len(s.items) }
