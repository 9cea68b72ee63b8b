// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package aggregator

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Sample is one measurement record on the ingest stream, in JSON-lines
// form. Records must be grouped by frame; a change of frame number marks
// a frame boundary and triggers per-frame harvesting.
type Sample struct {
	// Module, Frame, Col, Row form the identifying tuple.
	Module uint32 `json:"module"`
	Frame  uint64 `json:"frame"`
	Col    int    `json:"col"`
	Row    int    `json:"row"`

	// X and Y are the measured coordinates; Y is ignored for 1-D
	// quantities and both for 0-D.
	X float64 `json:"x"`
	Y float64 `json:"y"`

	// Quantity routes the sample to one named quantity. Empty delivers
	// it to every manager.
	Quantity string `json:"quantity,omitempty"`
}

// SampleReader streams Sample records from a JSON-lines source. Blank
// lines and lines starting with # are skipped.
type SampleReader struct {
	scanner *bufio.Scanner
	line    int
}

// NewSampleReader wraps a stream of JSON-lines sample records.
func NewSampleReader(r io.Reader) *SampleReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &SampleReader{scanner: sc}
}

// Read returns the next sample. io.EOF signals a clean end of stream; a
// *ParseError reports a malformed line the caller may skip.
func (r *SampleReader) Read() (Sample, error) {
	for r.scanner.Scan() {
		r.line++
		text := strings.TrimSpace(r.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var s Sample
		if err := json.Unmarshal([]byte(text), &s); err != nil {
			return Sample{}, &ParseError{Line: r.line, Err: err}
		}
		return s, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Sample{}, fmt.Errorf("read sample stream: %w", err)
	}
	return Sample{}, io.EOF
}

// ParseError reports a malformed sample line. Callers may log it and
// continue reading; the reader stays usable.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("sample line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
