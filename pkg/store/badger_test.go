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

func openTestBadger(t *testing.T, path string) *BadgerStore {
	t.Helper()
	cfg := BadgerConfig{Path: path}
	if path == "" {
		cfg = InMemoryBadgerConfig()
	}
	s, err := OpenBadger(cfg)
	require.NoError(t, err)
	return s
}

func TestOpenBadger_RequiresPath(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{})
	assert.Error(t, err)
}

func TestBadgerStore_BookFillGet(t *testing.T) {
	s := openTestBadger(t, "")
	defer s.Close()

	s.SetCurrentFolder("f/PXLayer_1")
	h, err := s.Book1D("digis", "Digis;charge", 5, 0, 5)
	require.NoError(t, err)
	h.Histogram().Fill(2.5)

	got, ok := s.Get("f/PXLayer_1/digis")
	require.True(t, ok)
	assert.Equal(t, 1.0, got.Histogram().BinContent(2, 0))
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s := openTestBadger(t, dir)
	s.SetCurrentFolder("f/PXLayer_1")
	h, err := s.Book1D("digis", "Digis;charge;#", 5, 0, 5)
	require.NoError(t, err)
	h.Histogram().Fill(2.5)
	h.Histogram().Fill(2.5)
	require.NoError(t, s.Close())

	// A second process reads the persisted record.
	s2 := openTestBadger(t, dir)
	defer s2.Close()

	got, ok := s2.Get("f/PXLayer_1/digis")
	require.True(t, ok, "persisted histogram must be readable after reopen")
	hist := got.Histogram()
	assert.Equal(t, 2.0, hist.BinContent(2, 0))
	assert.EqualValues(t, 2, hist.Entries())
	assert.Equal(t, "digis", got.Name())
	assert.Equal(t, "f/PXLayer_1/", got.Path())
	assert.Equal(t, "charge", hist.X.Label)
}

func TestBadgerStore_BookReloadsPersisted(t *testing.T) {
	dir := t.TempDir()

	s := openTestBadger(t, dir)
	s.SetCurrentFolder("f")
	h, err := s.Book1D("digis", "Digis", 5, 0, 5)
	require.NoError(t, err)
	h.Histogram().Fill(1.5)
	require.NoError(t, s.Close())

	// Re-booking the same path in a later run must reload contents
	// instead of resetting them.
	s2 := openTestBadger(t, dir)
	defer s2.Close()
	s2.SetCurrentFolder("f")
	h2, err := s2.Book1D("digis", "Digis", 5, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, 1.0, h2.Histogram().BinContent(1, 0))
}

func TestBadgerStore_List(t *testing.T) {
	dir := t.TempDir()

	s := openTestBadger(t, dir)
	s.SetCurrentFolder("f/a")
	_, err := s.Book1D("one", "t", 1, 0, 1)
	require.NoError(t, err)
	require.NoError(t, s.Flush())
	require.NoError(t, s.Close())

	s2 := openTestBadger(t, dir)
	defer s2.Close()
	s2.SetCurrentFolder("f/b")
	_, err = s2.Book1D("two", "t", 1, 0, 1)
	require.NoError(t, err)

	// List merges live (two) and persisted (one) entries.
	paths, err := s2.List("f/")
	require.NoError(t, err)
	assert.Equal(t, []string{"f/a/one", "f/b/two"}, paths)
}

func TestBadgerStore_GetMiss(t *testing.T) {
	s := openTestBadger(t, "")
	defer s.Close()
	_, ok := s.Get("nope")
	assert.False(t, ok)
}
