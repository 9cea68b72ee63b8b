// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cube

import "fmt"

// Axis describes one histogram axis: display label, bin count and the
// covered value range [Min, Max).
type Axis struct {
	Label string  `json:"label"`
	NBins int     `json:"nbins"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// binIndex maps a coordinate to a bin index, or -1 when out of range.
func (a Axis) binIndex(x float64) int {
	if x < a.Min || x >= a.Max || a.NBins <= 0 {
		return -1
	}
	i := int(float64(a.NBins) * (x - a.Min) / (a.Max - a.Min))
	if i >= a.NBins {
		i = a.NBins - 1
	}
	return i
}

// center returns the center coordinate of bin i.
func (a Axis) center(i int) float64 {
	w := (a.Max - a.Min) / float64(a.NBins)
	return a.Min + (float64(i)+0.5)*w
}

// Histogram is an in-memory 1- or 2-dimensional histogram with uniform
// binning. Bins are stored in a flat row-major array (x fastest).
//
// Out-of-range fills are dropped silently; booked axis ranges are derived
// from the declared column domains, so in-range is the expected case.
type Histogram struct {
	Name       string    `json:"name"`
	Title      string    `json:"title"`
	Dim        int       `json:"dim"` // 1 or 2
	X          Axis      `json:"x"`
	Y          Axis      `json:"y"` // zero value when Dim == 1
	Bins       []float64 `json:"bins"`
	NumEntries int64     `json:"entries"`
}

// NewHistogram1D allocates a 1-D histogram.
func NewHistogram1D(name, title string, x Axis) *Histogram {
	return &Histogram{Name: name, Title: title, Dim: 1, X: x, Bins: make([]float64, x.NBins)}
}

// NewHistogram2D allocates a 2-D histogram.
func NewHistogram2D(name, title string, x, y Axis) *Histogram {
	return &Histogram{Name: name, Title: title, Dim: 2, X: x, Y: y, Bins: make([]float64, x.NBins*y.NBins)}
}

// Fill adds one entry at coordinate x (1-D histograms).
func (h *Histogram) Fill(x float64) {
	i := h.X.binIndex(x)
	if i < 0 {
		return
	}
	h.Bins[i]++
	h.NumEntries++
}

// Fill2 adds one entry at coordinate (x, y) (2-D histograms).
func (h *Histogram) Fill2(x, y float64) {
	ix := h.X.binIndex(x)
	iy := h.Y.binIndex(y)
	if ix < 0 || iy < 0 {
		return
	}
	h.Bins[iy*h.X.NBins+ix]++
	h.NumEntries++
}

// FillCount adds one entry to a 0-dimensional (single bin) histogram.
// Such histograms are booked as 1-D with one bin over [0, 1).
func (h *Histogram) FillCount() {
	h.Fill(0)
}

// Entries returns the number of fill entries accumulated, including
// those contributed through Add.
func (h *Histogram) Entries() int64 { return h.NumEntries }

// BinContent returns the content of bin (ix, iy); iy is ignored for 1-D.
// Indices are zero-based.
func (h *Histogram) BinContent(ix, iy int) float64 {
	if h.Dim == 1 {
		return h.Bins[ix]
	}
	return h.Bins[iy*h.X.NBins+ix]
}

// SetBinContent overwrites the content of bin (ix, iy).
func (h *Histogram) SetBinContent(ix, iy int, c float64) {
	if h.Dim == 1 {
		h.Bins[ix] = c
		return
	}
	h.Bins[iy*h.X.NBins+ix] = c
}

// Add accumulates other into h bin-wise. The histograms must share their
// shape; mismatched shapes indicate a grouping bug and are fatal.
func (h *Histogram) Add(other *Histogram) {
	if len(h.Bins) != len(other.Bins) {
		panic(fmt.Sprintf("cube: histogram shape mismatch in Add: %q has %d bins, %q has %d",
			h.Name, len(h.Bins), other.Name, len(other.Bins)))
	}
	for i := range h.Bins {
		h.Bins[i] += other.Bins[i]
	}
	h.NumEntries += other.NumEntries
}

// Clone returns an independent deep copy of the histogram.
func (h *Histogram) Clone() *Histogram {
	out := *h
	out.Bins = make([]float64, len(h.Bins))
	copy(out.Bins, h.Bins)
	return &out
}

// Mean returns the bin-weighted mean along the X axis: the sum of bin
// center times bin content, divided by the total content. For 2-D
// histograms the Y dimension is projected out first.
func (h *Histogram) Mean() float64 {
	var sumW, sumWX float64
	for ix := 0; ix < h.X.NBins; ix++ {
		var w float64
		if h.Dim == 1 {
			w = h.Bins[ix]
		} else {
			for iy := 0; iy < h.Y.NBins; iy++ {
				w += h.Bins[iy*h.X.NBins+ix]
			}
		}
		sumW += w
		sumWX += w * h.X.center(ix)
	}
	if sumW == 0 {
		return 0
	}
	return sumWX / sumW
}

// Integral returns the sum of all bin contents.
func (h *Histogram) Integral() float64 {
	var sum float64
	for _, b := range h.Bins {
		sum += b
	}
	return sum
}
