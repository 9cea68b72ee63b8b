// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/histocube/pkg/cube"
)

// keyPrefix namespaces histogram records within the BadgerDB keyspace.
const keyPrefix = "hist/"

// BadgerConfig holds configuration for a persistent histogram store.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files. Required unless
	// InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Useful for
	// testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger is the logger for store operations. If nil, BadgerDB's
	// internal logging is disabled and store logging goes to the
	// default slog logger.
	Logger *slog.Logger
}

// DefaultBadgerConfig returns sensible defaults for production use.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{SyncWrites: true}
}

// InMemoryBadgerConfig returns configuration optimized for testing.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore is a persistent cube.Store backed by an embedded BadgerDB.
//
// Booked histograms live in memory and are written to BadgerDB on Flush
// (and Close). Get falls back to a BadgerDB read, so a harvesting
// process can reload histograms an earlier ingest process persisted —
// the save/reload semantics the engine's offline phase depends on.
//
// Description:
//
//	The current-folder state and the live histogram map are not
//	synchronized; like the engine itself, a BadgerStore instance must
//	be driven from one goroutine.
type BadgerStore struct {
	db     *badger.DB
	folder string
	live   map[string]*handle
	log    *slog.Logger
}

// OpenBadger creates and opens a persistent histogram store.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*BadgerStore - The opened store. Caller must call Close() when done.
//	error - Non-nil if the path is invalid or the database cannot open.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)

	log := cfg.Logger
	if log != nil {
		opts = opts.WithLogger(&badgerLogger{logger: log})
	} else {
		opts = opts.WithLogger(nil)
		log = slog.Default()
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	return &BadgerStore{db: db, live: make(map[string]*handle), log: log}, nil
}

// SetCurrentFolder selects the folder subsequent bookings go to.
func (s *BadgerStore) SetCurrentFolder(path string) {
	if path != "" && !strings.HasSuffix(path, "/") {
		path += "/"
	}
	s.folder = path
}

// Book1D registers a 1-D histogram in the current folder. If the path
// holds a histogram from an earlier run, its contents are reloaded into
// the returned handle instead of being reset.
func (s *BadgerStore) Book1D(name, title string, nbins int, min, max float64) (cube.Handle, error) {
	return s.book(name, title, nbins, min, max, 0, 0, 0, 1)
}

// Book2D registers a 2-D histogram in the current folder, with the same
// reload semantics as Book1D.
func (s *BadgerStore) Book2D(name, title string, nbinsX int, minX, maxX float64, nbinsY int, minY, maxY float64) (cube.Handle, error) {
	return s.book(name, title, nbinsX, minX, maxX, nbinsY, minY, maxY, 2)
}

func (s *BadgerStore) book(name, title string, nx int, minX, maxX float64, ny int, minY, maxY float64, dim int) (cube.Handle, error) {
	if name == "" {
		return nil, fmt.Errorf("histogram name must not be empty")
	}
	full := s.folder + name
	if h, ok := s.live[full]; ok {
		return h, nil
	}
	if h, ok := s.read(full); ok {
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
	s.live[full] = h
	return h, nil
}

// Get retrieves the handle for a full path, reading from BadgerDB when
// it is not live in memory.
func (s *BadgerStore) Get(path string) (cube.Handle, bool) {
	if h, ok := s.live[path]; ok {
		return h, true
	}
	return s.read(path)
}

// read loads a persisted histogram record and caches it as live.
func (s *BadgerStore) read(path string) (*handle, bool) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + path))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			s.log.Error("read histogram record", "path", path, "error", err.Error())
		}
		return nil, false
	}
	var hist cube.Histogram
	if err := json.Unmarshal(data, &hist); err != nil {
		s.log.Error("decode histogram record", "path", path, "error", err.Error())
		return nil, false
	}
	folder := path[:strings.LastIndex(path, "/")+1]
	h := &handle{name: hist.Name, path: folder, hist: &hist}
	s.live[path] = h
	return h, true
}

// Flush persists every live histogram to BadgerDB.
func (s *BadgerStore) Flush() error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for full, h := range s.live {
		data, err := json.Marshal(h.hist)
		if err != nil {
			return fmt.Errorf("encode histogram %s: %w", full, err)
		}
		if err := wb.Set([]byte(keyPrefix+full), data); err != nil {
			return fmt.Errorf("write histogram %s: %w", full, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush histogram records: %w", err)
	}
	return nil
}

// List returns all stored full paths with the given prefix, sorted,
// merging live and persisted entries.
func (s *BadgerStore) List(prefix string) ([]string, error) {
	seen := make(map[string]struct{})
	for full := range s.live {
		if strings.HasPrefix(full, prefix) {
			seen[full] = struct{}{}
		}
	}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix + prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			seen[strings.TrimPrefix(string(it.Item().Key()), keyPrefix)] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list histogram records: %w", err)
	}
	out := make([]string, 0, len(seen))
	for full := range seen {
		out = append(out, full)
	}
	sort.Strings(out)
	return out, nil
}

// Close flushes pending histograms and closes the database.
func (s *BadgerStore) Close() error {
	if err := s.Flush(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}
