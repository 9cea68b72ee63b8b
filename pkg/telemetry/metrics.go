// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics contains pre-defined metrics for the histocube aggregator.
//
// Description:
//
//	Provides standard counters and histograms for sample ingestion,
//	booking, and harvesting. All metrics use the "histocube_" prefix
//	for consistent naming.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// --- Ingest Metrics ---

	// SamplesTotal counts processed samples by quantity and status.
	SamplesTotal metric.Int64Counter

	// SamplesDropped counts samples dropped for undefined attributes or
	// out-of-range coordinates.
	SamplesDropped metric.Int64Counter

	// FramesTotal counts processed frames (per-sample harvest rounds).
	FramesTotal metric.Int64Counter

	// FastPathHits counts fills answered by the single-slot cell cache.
	FastPathHits metric.Int64Counter

	// FastPathMisses counts fills that re-ran attribute extraction.
	FastPathMisses metric.Int64Counter

	// --- Booking Metrics ---

	// CellsBooked counts histograms registered during booking by quantity.
	CellsBooked metric.Int64Counter

	// --- Harvest Metrics ---

	// HarvestsTotal counts offline harvest runs by quantity and status.
	HarvestsTotal metric.Int64Counter

	// HarvestDuration records offline harvest duration in seconds.
	HarvestDuration metric.Float64Histogram

	// --- Error Metrics ---

	// ErrorsTotal counts total errors by type and component.
	ErrorsTotal metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
//
// Inputs:
//
//	meter - The OTel meter to use for metric registration.
//
// Outputs:
//
//	*Metrics - The metrics instance with all instruments initialized.
//	error - Non-nil if metric registration fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.SamplesTotal, err = meter.Int64Counter(
		"histocube_samples_total",
		metric.WithDescription("Processed samples by quantity and status"),
	); err != nil {
		return nil, fmt.Errorf("create samples counter: %w", err)
	}

	if m.SamplesDropped, err = meter.Int64Counter(
		"histocube_samples_dropped_total",
		metric.WithDescription("Samples dropped for undefined attributes or range"),
	); err != nil {
		return nil, fmt.Errorf("create dropped counter: %w", err)
	}

	if m.FramesTotal, err = meter.Int64Counter(
		"histocube_frames_total",
		metric.WithDescription("Processed frames"),
	); err != nil {
		return nil, fmt.Errorf("create frames counter: %w", err)
	}

	if m.FastPathHits, err = meter.Int64Counter(
		"histocube_fastpath_hits_total",
		metric.WithDescription("Fills served by the cached cell"),
	); err != nil {
		return nil, fmt.Errorf("create fastpath hit counter: %w", err)
	}

	if m.FastPathMisses, err = meter.Int64Counter(
		"histocube_fastpath_misses_total",
		metric.WithDescription("Fills that re-ran attribute extraction"),
	); err != nil {
		return nil, fmt.Errorf("create fastpath miss counter: %w", err)
	}

	if m.CellsBooked, err = meter.Int64Counter(
		"histocube_cells_booked_total",
		metric.WithDescription("Histograms registered during booking"),
	); err != nil {
		return nil, fmt.Errorf("create booked counter: %w", err)
	}

	if m.HarvestsTotal, err = meter.Int64Counter(
		"histocube_harvests_total",
		metric.WithDescription("Offline harvest runs by quantity and status"),
	); err != nil {
		return nil, fmt.Errorf("create harvest counter: %w", err)
	}

	if m.HarvestDuration, err = meter.Float64Histogram(
		"histocube_harvest_duration_seconds",
		metric.WithDescription("Offline harvest duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("create harvest duration histogram: %w", err)
	}

	if m.ErrorsTotal, err = meter.Int64Counter(
		"histocube_errors_total",
		metric.WithDescription("Total errors by type and component"),
	); err != nil {
		return nil, fmt.Errorf("create error counter: %w", err)
	}

	return m, nil
}
