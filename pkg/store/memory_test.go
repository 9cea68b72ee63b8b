// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_BookAndGet(t *testing.T) {
	s := NewMemoryStore()
	s.SetCurrentFolder("a/b")

	h, err := s.Book1D("digis", "Digis;charge;#", 10, 0, 10)
	require.NoError(t, err)
	require.NotNil(t, h)

	assert.Equal(t, "digis", h.Name())
	assert.Equal(t, "a/b/", h.Path())

	hist := h.Histogram()
	assert.Equal(t, "Digis", hist.Title)
	assert.Equal(t, "charge", hist.X.Label)
	assert.Equal(t, "#", hist.Y.Label)
	assert.Equal(t, 10, hist.X.NBins)

	got, ok := s.Get("a/b/digis")
	require.True(t, ok)
	assert.Same(t, h.Histogram(), got.Histogram())
}

func TestMemoryStore_BookIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	s.SetCurrentFolder("a/")

	h1, err := s.Book1D("digis", "Digis", 10, 0, 10)
	require.NoError(t, err)
	h1.Histogram().Fill(5)

	h2, err := s.Book1D("digis", "Digis", 10, 0, 10)
	require.NoError(t, err)
	assert.Same(t, h1.Histogram(), h2.Histogram())
	assert.EqualValues(t, 1, h2.Histogram().Entries())
}

func TestMemoryStore_Book2D(t *testing.T) {
	s := NewMemoryStore()
	s.SetCurrentFolder("a/")

	h, err := s.Book2D("occ", "Occupancy;col;row", 4, 0, 4, 2, 0, 2)
	require.NoError(t, err)
	hist := h.Histogram()
	assert.Equal(t, 2, hist.Dim)
	assert.Equal(t, "col", hist.X.Label)
	assert.Equal(t, "row", hist.Y.Label)
	assert.Len(t, hist.Bins, 8)
}

func TestMemoryStore_EmptyNameRejected(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Book1D("", "t", 1, 0, 1)
	assert.Error(t, err)
}

func TestMemoryStore_List(t *testing.T) {
	s := NewMemoryStore()
	s.SetCurrentFolder("f/x")
	_, err := s.Book1D("b", "t", 1, 0, 1)
	require.NoError(t, err)
	_, err = s.Book1D("a", "t", 1, 0, 1)
	require.NoError(t, err)
	s.SetCurrentFolder("g")
	_, err = s.Book1D("c", "t", 1, 0, 1)
	require.NoError(t, err)

	all, err := s.List("")
	require.NoError(t, err)
	assert.Equal(t, []string{"f/x/a", "f/x/b", "g/c"}, all)

	sub, err := s.List("f/")
	require.NoError(t, err)
	assert.Equal(t, []string{"f/x/a", "f/x/b"}, sub)
}
