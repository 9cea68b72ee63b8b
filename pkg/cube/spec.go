// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cube

import (
	"fmt"
	"strings"
)

// Stage identifies when a step runs.
type Stage uint8

const (
	// StageNone is the zero value; it never appears in a valid step.
	StageNone Stage = iota

	// StageOnline runs per sample, in the hot path.
	StageOnline

	// StageOnlineHarvest runs once per frame over the accumulated
	// counters ("per-sample harvesting"): counting entries per frame
	// rather than filling a value histogram.
	StageOnlineHarvest

	// StageOffline runs once at end of run, transforming whole tables.
	StageOffline
)

// String returns the stage name used in configuration files.
func (s Stage) String() string {
	switch s {
	case StageOnline:
		return "online"
	case StageOnlineHarvest:
		return "online_harvest"
	case StageOffline:
		return "offline"
	default:
		return "none"
	}
}

// StepType identifies the operation a step performs.
type StepType uint8

const (
	StepNone StepType = iota
	StepSave
	StepCount
	StepExtendX
	StepExtendY
	StepGroupBy
	StepReduce
	StepCustom
)

// String returns the type name used in configuration files.
func (t StepType) String() string {
	switch t {
	case StepSave:
		return "save"
	case StepCount:
		return "count"
	case StepExtendX:
		return "extend_x"
	case StepExtendY:
		return "extend_y"
	case StepGroupBy:
		return "groupby"
	case StepReduce:
		return "reduce"
	case StepCustom:
		return "custom"
	default:
		return "none"
	}
}

// Step is one operation of a specification pipeline.
type Step struct {
	Stage   Stage
	Type    StepType
	Columns []Column
	Arg     string
}

// Specification is an ordered, immutable pipeline of steps defining one
// derived view of the sample stream. Steps[0] is always an online GROUPBY
// whose columns form the extraction set the manager asks the provider
// for.
type Specification struct {
	Steps []Step
}

// StepConfig is the YAML shape of one step.
type StepConfig struct {
	Stage   string   `yaml:"stage" json:"stage"`
	Type    string   `yaml:"type" json:"type"`
	Columns []string `yaml:"columns,omitempty" json:"columns,omitempty"`
	Arg     string   `yaml:"arg,omitempty" json:"arg,omitempty"`
}

// SpecConfig is the YAML shape of one specification.
type SpecConfig struct {
	Enabled bool         `yaml:"enabled" json:"enabled"`
	Steps   []StepConfig `yaml:"steps" json:"steps"`
}

func parseStage(s string) (Stage, error) {
	switch strings.ToLower(s) {
	case "online":
		return StageOnline, nil
	case "online_harvest":
		return StageOnlineHarvest, nil
	case "offline":
		return StageOffline, nil
	default:
		return StageNone, fmt.Errorf("unknown stage %q", s)
	}
}

func parseStepType(s string) (StepType, error) {
	switch strings.ToLower(s) {
	case "save":
		return StepSave, nil
	case "count":
		return StepCount, nil
	case "extend_x":
		return StepExtendX, nil
	case "extend_y":
		return StepExtendY, nil
	case "groupby":
		return StepGroupBy, nil
	case "reduce":
		return StepReduce, nil
	case "custom":
		return StepCustom, nil
	default:
		return StepNone, fmt.Errorf("unknown step type %q", s)
	}
}

// NewSpecification builds and validates a specification from its config.
//
// Validation enforces the construction-time invariants of the pipeline:
// the first step must be an online GROUPBY carrying the extraction
// columns; REDUCE and CUSTOM are offline-only; COUNT is online-only;
// stages must be non-decreasing (online, then online_harvest, then
// offline). Violations are configuration bugs and yield an error.
func NewSpecification(cfg SpecConfig) (*Specification, error) {
	if len(cfg.Steps) == 0 {
		return nil, fmt.Errorf("specification has no steps")
	}
	spec := &Specification{Steps: make([]Step, 0, len(cfg.Steps))}
	for i, sc := range cfg.Steps {
		stage, err := parseStage(sc.Stage)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		typ, err := parseStepType(sc.Type)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		cols := make([]Column, len(sc.Columns))
		for j, c := range sc.Columns {
			cols[j] = Column(c)
		}
		spec.Steps = append(spec.Steps, Step{Stage: stage, Type: typ, Columns: cols, Arg: sc.Arg})
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

func (s *Specification) validate() error {
	first := s.Steps[0]
	if first.Stage != StageOnline || first.Type != StepGroupBy {
		return fmt.Errorf("first step must be an online groupby carrying the extraction columns, got %s/%s",
			first.Stage, first.Type)
	}
	prev := StageOnline
	for i, st := range s.Steps {
		if st.Stage < prev {
			return fmt.Errorf("step %d: stage %s after %s; stages must not go backwards", i, st.Stage, prev)
		}
		prev = st.Stage
		switch st.Type {
		case StepReduce, StepCustom:
			if st.Stage != StageOffline {
				return fmt.Errorf("step %d: %s is only legal offline", i, st.Type)
			}
		case StepCount:
			if st.Stage == StageOffline {
				return fmt.Errorf("step %d: count is not legal offline", i)
			}
		case StepExtendX, StepExtendY:
			if len(st.Columns) != 1 {
				return fmt.Errorf("step %d: %s needs exactly one column", i, st.Type)
			}
		case StepNone:
			return fmt.Errorf("step %d: missing type", i)
		}
	}
	return nil
}

// ExtractionColumns returns the column set the provider resolves per
// sample, i.e. the columns of the leading online GROUPBY.
func (s *Specification) ExtractionColumns() []Column {
	return s.Steps[0].Columns
}

// HasStage reports whether any step runs in the given stage.
func (s *Specification) HasStage(stage Stage) bool {
	for _, st := range s.Steps {
		if st.Stage == stage {
			return true
		}
	}
	return false
}

// String renders the pipeline for debug logs.
func (s *Specification) String() string {
	var b strings.Builder
	for i, st := range s.Steps {
		if i > 0 {
			b.WriteString(" | ")
		}
		fmt.Fprintf(&b, "%s:%s", st.Stage, st.Type)
		if len(st.Columns) > 0 {
			fmt.Fprintf(&b, "(%v)", st.Columns)
		}
		if st.Arg != "" {
			fmt.Fprintf(&b, "[%s]", st.Arg)
		}
	}
	return b.String()
}
