// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fit

import (
	"sync"

	"github.com/curioloop/confit/solver"
	"github.com/google/uuid"
)

//go:generate mockgen -source=backend.go -destination=mocks/solver_mock.go -package=mocks Solver

// Solver is a stateful constrained least-squares engine driven by reverse
// communication. Iterate returns a negative code while it needs the
// constraints evaluated at the current 𝐱, and one of the Status codes once done.
type Solver interface {
	Initialize(nVariables, nConstraints int)
	Configure(t Tuning)
	SetDistribution(i int, d Distribution)
	SetLimits(i int, low, high float64)
	SetStepSize(i int, step float64)
	Iterate(x, v, f []float64) int
	ChiSquareAndDoF() (chi2 float64, ndof int, pvalue float64)
	FitStatistics() (chi2 float64, nFunctionCalls, nIterations int)
	Pulls(dst []float64)
}

// Backend shares one Solver between fitters. Only one fitter's configuration
// is loaded at a time and the backend remembers whose it is, so a fitter that
// runs twice in a row skips reconfiguration.
//
// A Backend is not safe for concurrent use.
type Backend struct {
	solver   Solver
	active   uuid.UUID
	switches int
}

// NewBackend wraps s.
func NewBackend(s Solver) *Backend {
	return &Backend{solver: s}
}

var (
	defaultOnce    sync.Once
	defaultBackend *Backend
)

// DefaultBackend returns the process wide backend used by fitters created
// without one. It runs the in-process solver.Engine.
func DefaultBackend() *Backend {
	defaultOnce.Do(func() {
		defaultBackend = NewBackend(solver.New())
	})
	return defaultBackend
}

// Solver returns the wrapped solver.
func (b *Backend) Solver() Solver {
	return b.solver
}

// Active returns the session whose configuration is loaded, or uuid.Nil.
func (b *Backend) Active() uuid.UUID {
	return b.active
}

// Switches counts how often a session replaced another one's configuration.
func (b *Backend) Switches() int {
	return b.switches
}

// activate marks id as loaded and reports whether it was not loaded before
// and which session it displaced.
func (b *Backend) activate(id uuid.UUID) (changed bool, previous uuid.UUID) {
	previous = b.active
	if previous == id {
		return false, previous
	}
	b.active = id
	if previous != uuid.Nil {
		b.switches++
	}
	return true, previous
}
