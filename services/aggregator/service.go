// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package aggregator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/histocube/pkg/cube"
	"github.com/AleutianAI/histocube/pkg/geometry"
	"github.com/AleutianAI/histocube/pkg/logging"
	"github.com/AleutianAI/histocube/pkg/telemetry"
)

// State names the phase a run is in.
type State string

const (
	StateIdle       State = "idle"
	StateBooking    State = "booking"
	StateIngesting  State = "ingesting"
	StateHarvesting State = "harvesting"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Status is a point-in-time snapshot of the current or last run.
type Status struct {
	RunID      string    `json:"run_id"`
	State      State     `json:"state"`
	Samples    int64     `json:"samples"`
	Frames     int64     `json:"frames"`
	Malformed  int64     `json:"malformed"`
	Quantities int       `json:"quantities"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Flusher is implemented by stores that buffer writes.
type Flusher interface {
	Flush() error
}

// Service owns one cube.Manager per configured quantity and drives them
// through a complete run: book, ingest, per-frame harvest, offline
// harvest, flush.
//
// One run at a time; Run is not reentrant. Status is safe to read
// concurrently with a run.
type Service struct {
	cfg      *Config
	store    cube.Store
	provider *geometry.Provider
	managers []*cube.Manager
	byName   map[string]*cube.Manager
	log      *logging.Logger
	metrics  *telemetry.Metrics

	mu     sync.RWMutex
	status Status
}

// New builds a service from a validated configuration and an opened
// store. The attribute domain is loaded lazily on first use, from the
// configured geometry file.
func New(cfg *Config, st cube.Store, log *logging.Logger) (*Service, error) {
	if log == nil {
		log = logging.Default()
	}
	provider := geometry.New()
	svc := &Service{
		cfg:      cfg,
		store:    st,
		provider: provider,
		byName:   make(map[string]*cube.Manager, len(cfg.Quantities)),
		log:      log,
		status:   Status{State: StateIdle},
	}
	for i := range cfg.Quantities {
		qc := cfg.Quantities[i]
		mgr, err := cube.NewManager(qc, provider, log.With("quantity", qc.Name).Slog())
		if err != nil {
			return nil, fmt.Errorf("quantity %q: %w", qc.Name, err)
		}
		svc.managers = append(svc.managers, mgr)
		svc.byName[qc.Name] = mgr
	}
	m, err := telemetry.NewMetrics(otel.Meter("aggregator"))
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}
	svc.metrics = m
	return svc, nil
}

// Status returns a snapshot of the current or last run.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Service) setStatus(update func(*Status)) {
	s.mu.Lock()
	update(&s.status)
	s.mu.Unlock()
}

// Run executes one complete aggregation run over the sample stream.
//
// Description:
//
//	Books every reachable histogram, streams samples into the managers
//	(triggering per-frame harvesting at frame boundaries), runs the
//	offline harvest once the stream ends, and flushes the store if it
//	buffers writes. Managers are harvested in parallel; they own
//	disjoint tables and disjoint store folders.
//
// Inputs:
//
//	ctx - Cancels the run between frames and between harvest phases.
//	samples - JSON-lines sample stream.
//
// Outputs:
//
//	error - Non-nil if any phase fails or ctx is canceled.
func (s *Service) Run(ctx context.Context, samples io.Reader) error {
	runID := uuid.NewString()
	s.setStatus(func(st *Status) {
		*st = Status{
			RunID:      runID,
			State:      StateBooking,
			Quantities: len(s.managers),
			StartedAt:  time.Now(),
		}
	})
	log := s.log.With("run_id", runID)
	log.Info("run starting", "quantities", len(s.managers))

	err := s.run(ctx, log, samples)
	s.setStatus(func(st *Status) {
		st.FinishedAt = time.Now()
		if err != nil {
			st.State = StateFailed
			st.Error = err.Error()
		} else {
			st.State = StateDone
		}
	})
	if err != nil {
		s.metrics.ErrorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("component", "run"),
		))
		log.Error("run failed", "error", err)
		return err
	}
	log.Info("run complete")
	return nil
}

func (s *Service) run(ctx context.Context, log *logging.Logger, samples io.Reader) error {
	for _, mgr := range s.managers {
		if err := mgr.Book(s.store, s.cfg.Geometry); err != nil {
			return fmt.Errorf("book %q: %w", mgr.Config().Name, err)
		}
		s.metrics.CellsBooked.Add(ctx, mgr.TakeStats().Booked, metric.WithAttributes(
			attribute.String("quantity", mgr.Config().Name),
		))
	}

	s.setStatus(func(st *Status) { st.State = StateIngesting })
	if err := s.ingest(ctx, log, samples); err != nil {
		return err
	}

	s.setStatus(func(st *Status) { st.State = StateHarvesting })
	start := time.Now()
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, mgr := range s.managers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			view := &storeView{mu: &mu, inner: s.store}
			if err := mgr.Harvest(view, s.cfg.Geometry); err != nil {
				s.metrics.HarvestsTotal.Add(gctx, 1, metric.WithAttributes(
					attribute.String("quantity", mgr.Config().Name),
					attribute.String("status", "error"),
				))
				return fmt.Errorf("harvest %q: %w", mgr.Config().Name, err)
			}
			s.metrics.HarvestsTotal.Add(gctx, 1, metric.WithAttributes(
				attribute.String("quantity", mgr.Config().Name),
				attribute.String("status", "ok"),
			))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.metrics.HarvestDuration.Record(ctx, time.Since(start).Seconds())

	if f, ok := s.store.(Flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flush store: %w", err)
		}
	}
	return nil
}

// ingest streams samples into the managers, harvesting per sample at
// every frame boundary. Metrics are accumulated locally and recorded at
// frame boundaries to keep the per-sample loop free of instrument calls.
func (s *Service) ingest(ctx context.Context, log *logging.Logger, samples io.Reader) error {
	reader := NewSampleReader(samples)
	var (
		curFrame  uint64
		haveFrame bool
		nSamples  int64
		nFrames   int64
		malformed int64
		perQty    = make(map[string]int64)
	)

	flushFrame := func() {
		nFrames++
		for _, mgr := range s.managers {
			mgr.HarvestSample()
			ms := mgr.TakeStats()
			attrs := metric.WithAttributes(attribute.String("quantity", mgr.Config().Name))
			if ms.FastPathHits > 0 {
				s.metrics.FastPathHits.Add(ctx, ms.FastPathHits, attrs)
			}
			if ms.FastPathMisses > 0 {
				s.metrics.FastPathMisses.Add(ctx, ms.FastPathMisses, attrs)
			}
			if ms.Dropped > 0 {
				s.metrics.SamplesDropped.Add(ctx, ms.Dropped, attrs)
			}
		}
		s.metrics.FramesTotal.Add(ctx, 1)
		for q, n := range perQty {
			s.metrics.SamplesTotal.Add(ctx, n, metric.WithAttributes(
				attribute.String("quantity", q),
			))
			delete(perQty, q)
		}
		s.setStatus(func(st *Status) {
			st.Samples = nSamples
			st.Frames = nFrames
			st.Malformed = malformed
		})
	}

	for {
		sample, err := reader.Read()
		if err != nil {
			var perr *ParseError
			if errors.As(err, &perr) {
				malformed++
				s.metrics.ErrorsTotal.Add(ctx, 1, metric.WithAttributes(
					attribute.String("component", "ingest"),
					attribute.String("type", "parse"),
				))
				log.Warn("skipping malformed sample", "error", perr)
				continue
			}
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		if haveFrame && sample.Frame != curFrame {
			flushFrame()
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		curFrame = sample.Frame
		haveFrame = true

		src := cube.Source{
			Module: sample.Module,
			Frame:  sample.Frame,
			Col:    sample.Col,
			Row:    sample.Row,
		}
		if sample.Quantity != "" {
			mgr, ok := s.byName[sample.Quantity]
			if !ok {
				malformed++
				log.Warn("sample for unknown quantity", "quantity", sample.Quantity)
				continue
			}
			s.fill(mgr, sample, src)
			perQty[sample.Quantity]++
		} else {
			for _, mgr := range s.managers {
				s.fill(mgr, sample, src)
				perQty[mgr.Config().Name]++
			}
		}
		nSamples++
	}
	if haveFrame {
		flushFrame()
	}
	return ctx.Err()
}

// fill dispatches one sample to a manager by its configured
// dimensionality.
func (s *Service) fill(mgr *cube.Manager, sample Sample, src cube.Source) {
	switch mgr.Config().Dimensions {
	case 2:
		mgr.Fill(sample.X, sample.Y, src)
	case 1:
		mgr.Fill1(sample.X, src)
	default:
		mgr.Fill0(src)
	}
}

// storeView gives each harvest goroutine a private current-folder cursor
// over the shared store. Booking re-asserts the folder and books under
// one lock, so concurrent harvests cannot interleave folder state.
type storeView struct {
	mu     *sync.Mutex
	inner  cube.Store
	folder string
}

func (v *storeView) SetCurrentFolder(path string) { v.folder = path }

func (v *storeView) Book1D(name, title string, nbins int, min, max float64) (cube.Handle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.inner.SetCurrentFolder(v.folder)
	return v.inner.Book1D(name, title, nbins, min, max)
}

func (v *storeView) Book2D(name, title string, nbinsX int, minX, maxX float64, nbinsY int, minY, maxY float64) (cube.Handle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.inner.SetCurrentFolder(v.folder)
	return v.inner.Book2D(name, title, nbinsX, minX, maxX, nbinsY, minY, maxY)
}

func (v *storeView) Get(path string) (cube.Handle, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.inner.Get(path)
}

var _ cube.Store = (*storeView)(nil)
