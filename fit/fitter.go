// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fit binds named variables, covariances and constraint functions to
// a constrained least-squares Solver and assembles its flat output into named results.
//
// A Fitter owns three registries. Variables are registered in order and laid
// out contiguously into the flat vector 𝐗, their covariance into the packed
// symmetric matrix 𝐕 (see package symmat) and the residuals of every
// constraint, in registration order, into 𝐅:
//
//	𝐗 = [ A | B | C₀ C₁ C₂ ]      𝐅 = [ 𝒇₀ | 𝒇₁ 𝒇₂ ]
//
// DoFit builds that layout on first use or after any registration, refreshes
// it from the current values otherwise, and drives the Solver until it reports
// a terminal status.
package fit

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/curioloop/confit/metrics"
	"github.com/google/uuid"
)

// Option configures a Fitter.
type Option func(*Fitter)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fitter) {
		if l != nil {
			f.log = l
		}
	}
}

// WithMetrics records fit outcomes into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fitter) {
		f.metrics = m
	}
}

// WithSettings replaces DefaultSettings.
func WithSettings(s Settings) Option {
	return func(f *Fitter) {
		f.settings = s
	}
}

// Fitter is one fitting session: a problem description bound to a Backend.
// Several fitters may share a Backend and alternate their fits.
//
// A Fitter is not safe for concurrent use.
type Fitter struct {
	name     string
	id       uuid.UUID
	backend  *Backend
	log      *slog.Logger
	metrics  *metrics.Metrics
	settings Settings

	vars   []*variable
	varIdx map[string]int
	covs   []*covariance
	covIdx map[pairKey]int
	cons   []*constraint
	conIdx map[string]int

	lay layout
}

// New creates a fitter named name on backend. A nil backend selects DefaultBackend.
func New(name string, backend *Backend, opts ...Option) *Fitter {
	if backend == nil {
		backend = DefaultBackend()
	}
	f := &Fitter{
		name:     name,
		id:       uuid.New(),
		backend:  backend,
		log:      slog.New(slog.DiscardHandler),
		settings: DefaultSettings(),
		varIdx:   make(map[string]int),
		covIdx:   make(map[pairKey]int),
		conIdx:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = f.log.With("fitter", name)
	return f
}

// Name returns the fitter name carried into every Result.
func (f *Fitter) Name() string { return f.name }

// ID returns the session id the Backend tracks.
func (f *Fitter) ID() uuid.UUID { return f.id }

// Settings returns the current settings.
func (f *Fitter) Settings() Settings { return f.settings }

// SetSettings replaces the settings. They are pushed to the solver on the next fit.
func (f *Fitter) SetSettings(s Settings) {
	f.settings = s
	f.lay.configured = false
}

// DoFit runs one fit.
//
// Configuration problems that only show at layout time, such as a residual
// function that panics or changes its residual count, are returned as
// *ConfigurationError. A solver status outside the documented range is
// returned as *SolverContractError. Every other outcome, including the
// non-success statuses, is reported through Result.Status with a nil error.
func (f *Fitter) DoFit() (*Result, error) {
	start := time.Now()

	cold := !f.lay.valid
	if cold {
		if err := f.build(); err != nil {
			return nil, err
		}
		f.log.Debug("layout built", "variables", len(f.lay.x), "residuals", len(f.lay.f))
	} else if err := f.refresh(); err != nil {
		return nil, err
	}
	f.lay.snapshot()

	s := f.backend.solver
	s.Initialize(len(f.lay.x), len(f.lay.f))
	changed, previous := f.backend.activate(f.id)
	if changed && previous != uuid.Nil {
		f.log.Debug("solver session switch", "previous", previous, "session", f.id)
		f.metrics.IncSessionSwitch()
	}
	if changed || !f.lay.configured {
		f.configure(s)
	}

	status := -1
	for status < 0 {
		if err := f.evaluate(f.lay.f); err != nil {
			return nil, err
		}
		status = s.Iterate(f.lay.x, f.lay.v, f.lay.f)
	}

	st, err := decodeStatus(status)
	if err != nil {
		f.log.Error("fit aborted", "error", err)
		return nil, err
	}

	res := &Result{Name: f.name, Status: st}
	for _, c := range f.cons {
		res.Constraints = append(res.Constraints, Constraint{Name: c.name, Number: c.number})
	}
	if st == Success {
		f.assemble(res)
	}

	f.log.Debug("fit finished", "status", st, "chi2", res.ChiSquare, "iterations", res.NIterations)
	f.metrics.ObserveFit(f.name, st.String(), st == Success, res.NIterations, res.NFunctionCalls, res.ChiSquare, time.Since(start))
	return res, nil
}

// configure pushes the tuning and every element setting. All elements are
// pushed, Gaussian and open limits included, since the solver keeps settings
// left behind by another session of the same size.
func (f *Fitter) configure(s Solver) {
	s.Configure(f.settings.tuning())
	for _, v := range f.vars {
		for k, set := range v.settings {
			i := v.offset + k
			s.SetDistribution(i, set.Distribution)
			s.SetLimits(i, set.Limit.Low, set.Limit.High)
			s.SetStepSize(i, set.StepSize)
		}
	}
	f.lay.configured = true
}

// evaluate fills dst with the residuals of every constraint at the current 𝐗.
func (f *Fitter) evaluate(dst []float64) error {
	off := 0
	for k, c := range f.cons {
		r, err := c.call(f.lay.load(k, c))
		if err != nil {
			return err
		}
		if len(r) != c.number {
			return &ConfigurationError{
				Kind:   KindConstraint,
				Name:   c.name,
				Reason: fmt.Sprintf("returned %d residuals, expected %d", len(r), c.number),
			}
		}
		copy(dst[off:off+c.number], r)
		off += c.number
	}
	return nil
}
