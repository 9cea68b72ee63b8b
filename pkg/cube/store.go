// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cube

// Handle references one histogram materialized in a persistent store.
//
// The handle keeps a live in-memory backing histogram; fills and bin
// updates go through it, and the store decides when and how to persist
// the contents.
type Handle interface {
	// Name returns the histogram name within its folder.
	Name() string

	// Path returns the folder path the histogram was booked under.
	Path() string

	// Histogram returns the live backing histogram.
	Histogram() *Histogram
}

// Store is the narrow persistence interface the engine books into and
// reloads from. The engine never interprets the storage medium; it only
// relies on Get returning, for a path booked earlier (possibly in a
// previous process), a handle with the accumulated contents.
//
// Booking the same name in the same folder twice returns the existing
// handle (idempotent).
type Store interface {
	// SetCurrentFolder selects the folder subsequent bookings go to.
	SetCurrentFolder(path string)

	// Book1D registers a 1-D histogram in the current folder.
	Book1D(name, title string, nbins int, min, max float64) (Handle, error)

	// Book2D registers a 2-D histogram in the current folder.
	Book2D(name, title string, nbinsX int, minX, maxX float64, nbinsY int, minY, maxY float64) (Handle, error)

	// Get retrieves the handle for a full path (folder plus name), or
	// reports that nothing is stored there.
	Get(path string) (Handle, bool)
}
