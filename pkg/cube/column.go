// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cube implements a staged histogram aggregation engine.
//
// The engine turns a stream of per-sample scalar measurements, each tagged
// with a set of categorical attributes, into multi-dimensional histograms
// and scalar reductions, driven by a declarative pipeline of composable
// steps (GROUPBY, COUNT, EXTEND, REDUCE, SAVE, CUSTOM).
//
// Execution is split into two phases:
//
//   - Online: per-sample, hot-path execution. Each sample updates exactly
//     one cell of an attribute-keyed table. A single-slot cache avoids
//     redundant key extraction when consecutive samples share their
//     identifying tuple.
//   - Offline (harvesting): batch post-processing that reloads the online
//     results from a persistent store and transforms whole tables at a
//     time (merge, reduce, flatten, materialize).
//
// A Manager owns one table per specification and drives both phases. The
// categorical attribute domain is supplied by an external Provider; result
// persistence is delegated to an external Store. Managers are not safe for
// concurrent use; independent managers may run on separate goroutines.
package cube

// Column identifies one categorical dimension of the aggregation cube,
// e.g. a geometric or contextual attribute of a sample source.
type Column string

// Undefined is the reserved sentinel marking "attribute not applicable to
// this sample". It never appears inside a key handed to the online
// executor; booking either skips combinations containing it or labels
// them with an explicit suffix, depending on configuration.
//
// The exact bit pattern carries no meaning beyond "no value".
const Undefined int = -(1 << 30)

// Source is the identifying tuple of one sample: which module produced
// it, which frame (readout unit) it belongs to, and the local column/row
// coordinates within the module.
//
// Module 0 is reserved: it signals that the sample has no stable module
// identity (frame-level accumulators), and forces the fast-path cache to
// re-extract the key even when the rest of the tuple is unchanged, since
// the frame counter alone may falsely appear stable.
type Source struct {
	Module uint32
	Frame  uint64
	Col    int
	Row    int
}

// Provider supplies the categorical attribute domain for samples.
//
// Implementations must be deterministic: the same Source and column set
// always yield the same key, with columns in a canonical order. Any
// requested column that cannot be resolved from the source yields
// Undefined.
//
// Providers are shared, lazily-initialized resources. Load is invoked at
// most once per provider before any other method; after loading, a
// provider must be read-only (or externally synchronized) so that
// independent managers can share it.
type Provider interface {
	// ExtractColumns resolves the given columns for a source, appending
	// the (column, value) pairs to into in canonical order. into is
	// cleared first; its backing storage is reused across calls.
	ExtractColumns(cols []Column, src Source, into *Values)

	// Pretty returns the human-readable name of a column. An empty name
	// marks a dummy column that is dropped from display paths.
	Pretty(col Column) string

	// MinValue and MaxValue return the declared inclusive value range of
	// a column, used to derive default axis ranges for EXTEND steps.
	MinValue(col Column) int
	MaxValue(col Column) int

	// AllSources enumerates the finite domain of sample sources. It is
	// only called at booking and harvesting time, never per sample.
	AllSources() []Source

	// Loaded reports whether Load has completed.
	Loaded() bool

	// Load performs one-time initialization from an opaque environment.
	Load(env any) error
}

// EnsureLoaded loads the provider if it has not been loaded yet.
//
// Every entry point that needs the attribute domain calls this before
// touching the provider, making the lazy initialization explicit.
func EnsureLoaded(p Provider, env any) error {
	if p.Loaded() {
		return nil
	}
	return p.Load(env)
}
