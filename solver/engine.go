// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package solver implements a constrained least-squares fitter driven by reverse communication.
package solver

import (
	"log/slog"
	"math"

	"github.com/curioloop/confit/symmat"
	"gonum.org/v1/gonum/stat/distuv"
)

// rankTol is the relative pseudo-rank tolerance handed to hfti.
const rankTol = 1e-12

// DefaultWorkspaceLimit bounds the number of float64 values a single fit may allocate.
const DefaultWorkspaceLimit = 1 << 24

type phase int

const (
	phaseStart phase = iota
	phaseDiff
	phaseBase
	phaseDone
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for iteration traces.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithWorkspaceLimit sets the workspace bound beyond which Iterate reports OutOfMemory.
func WithWorkspaceLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.limit = n
		}
	}
}

// Engine fits n variables 𝐱 with packed covariance 𝐕 to m constraints 𝒇(𝐱) = 0
//
//	minimize χ² = (𝐮 - 𝐮₀)ᵀ𝐖(𝐮 - 𝐮₀) subject to 𝒇(𝐱(𝐮)) = 0
//
// where 𝐮 = g(𝐱) are the fit coordinates after the distribution transform and
// 𝐖 is the inverse covariance of the measured variables in those coordinates.
// Unmeasured variables carry no weight and fixed variables (step size 0) do not move.
//
// # Iteration
//
// Each step linearises the constraints 𝒇(𝐮) ≈ 𝒇ₖ + 𝐀(𝐮 - 𝐮ₖ) with a finite
// difference Jacobian 𝐀 and solves the Lagrange system
//
//	⎡ 𝐖  𝐀ᵀ ⎤⎡ 𝐮 ⎤   ⎡ 𝐖𝐮₀          ⎤
//	⎣ 𝐀  ೦  ⎦⎣ 𝛌 ⎦ = ⎣ 𝐀𝐮ₖ - 𝒇ₖ      ⎦
//
// with hfti. The upper left block 𝐂₁₁ of the inverse is the covariance of the
// fitted 𝐮, since 𝐂₁₁𝐖𝐂₁₁ = 𝐂₁₁ follows from 𝐀𝐂₁₁ = ೦ and 𝐖𝐂₁₁ + 𝐀ᵀ𝐂₂₁ = 𝐈.
//
// The fit has converged when ∑|𝒇ⱼ| and the χ² change fall below their accuracies.
//
// # Reverse Communication
//
// Iterate never calls the constraints itself. On entry 𝐟 must hold 𝒇 at the
// current 𝐱 and a negative return asks for 𝐟 at the 𝐱 Iterate has just written.
// A return ≥ 0 is final. Initialize starts a new fit, keeping the per variable
// settings when the number of variables is unchanged.
type Engine struct {
	log    *slog.Logger
	limit  int
	tuning Tuning

	n, m int
	dist []Distribution
	low  []float64
	high []float64
	step []float64

	phase    phase
	status   int
	calls    int
	iter     int
	ndof     int
	chi2     float64
	chi2prev float64

	free     []int          // positions of the free variables in 𝐱
	measured []bool         // per free variable
	tdist    []Distribution // transform per free variable
	y0, y    []float64      // fit coordinates before and now
	ylo, yhi []float64      // limits in fit coordinates
	slope    []float64      // dx/du
	vu       []float64      // nf × nf measured covariance in fit coordinates
	w        []float64      // nf × nf weight matrix
	cov      []float64      // nf × nf covariance of the last step
	jac      []float64      // m × nf constraint Jacobian
	f0       []float64      // 𝒇 at the current point
	f1, f2   []float64      // 𝒇 at the difference points
	dy       []float64
	steps    []diffStep
	col, sub int
	kkt, rhs []float64
	pulls    []float64
	lsq      lsqWork
}

// New creates an Engine with the default tuning.
func New(opts ...Option) *Engine {
	e := &Engine{
		log:    slog.New(slog.DiscardHandler),
		limit:  DefaultWorkspaceLimit,
		tuning: DefaultTuning(),
		phase:  phaseDone,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize prepares a fit of n variables to m constraints.
func (e *Engine) Initialize(n, m int) {
	if n != len(e.dist) {
		e.dist = make([]Distribution, n)
		e.low = make([]float64, n)
		e.high = make([]float64, n)
		e.step = make([]float64, n)
		for i := 0; i < n; i++ {
			e.low[i], e.high[i], e.step[i] = math.NaN(), math.NaN(), math.NaN()
		}
	}
	e.n, e.m = n, m
	e.phase = phaseStart
	e.status = EvalRequest
	e.calls, e.iter, e.ndof = 0, 0, 0
	e.chi2, e.chi2prev = 0, 0
	e.pulls = grow(e.pulls, n)
	dzero(e.pulls)
}

// Configure replaces the tuning. Unset fields fall back to DefaultTuning.
func (e *Engine) Configure(t Tuning) {
	e.tuning = t.resolve()
}

// Tuning returns the effective tuning.
func (e *Engine) Tuning() Tuning {
	return e.tuning
}

// SetDistribution selects the transform of variable i.
func (e *Engine) SetDistribution(i int, d Distribution) {
	e.dist[i] = d
}

// SetLimits bounds variable i. NaN leaves a side open.
func (e *Engine) SetLimits(i int, low, high float64) {
	e.low[i], e.high[i] = low, high
}

// SetStepSize sets the derivative step of variable i. 0 fixes the variable, NaN selects the default.
func (e *Engine) SetStepSize(i int, step float64) {
	e.step[i] = step
}

// Iterate advances the fit. 𝐱 and 𝐯 are updated in place, 𝐟 must hold the constraints at 𝐱.
func (e *Engine) Iterate(x, v, f []float64) int {
	if len(x) != e.n || len(v) != symmat.Size(e.n) || len(f) != e.m {
		panic("bound check error")
	}
	if e.phase == phaseDone {
		return e.status
	}
	e.calls++
	if !dfinite(f) {
		return e.finish(UnphysicalValues)
	}
	switch e.phase {
	case phaseStart:
		return e.start(x, v, f)
	case phaseDiff:
		return e.diff(x, f)
	default:
		return e.base(x, v, f)
	}
}

// ChiSquareAndDoF returns χ², the degrees of freedom and the χ² probability of the last fit.
func (e *Engine) ChiSquareAndDoF() (chi2 float64, ndof int, pvalue float64) {
	chi2, ndof, pvalue = e.chi2, e.ndof, one
	if ndof > 0 {
		pvalue = distuv.ChiSquared{K: float64(ndof)}.Survival(chi2)
	}
	return
}

// FitStatistics returns χ², the number of constraint evaluations and the number of steps.
func (e *Engine) FitStatistics() (chi2 float64, nFunctionCalls, nIterations int) {
	return e.chi2, e.calls, e.iter
}

// Pulls copies the pull of every variable into dst. Unmeasured and fixed variables get 0.
func (e *Engine) Pulls(dst []float64) {
	copy(dst, e.pulls)
}

func (e *Engine) start(x, v, f []float64) int {
	e.free = e.free[:0]
	unmeasured := 0
	for i := 0; i < e.n; i++ {
		if e.step[i] == zero {
			continue
		}
		e.free = append(e.free, i)
		if !(v[symmat.Diag(i)] > zero) {
			unmeasured++
		}
	}

	if e.ndof = e.m - unmeasured; e.ndof < 0 {
		return e.finish(NegativeDoF)
	}

	nf, s := len(e.free), len(e.free)+e.m
	if s*(s+nf+1)+4*nf*nf+e.m*nf > e.limit {
		return e.finish(OutOfMemory)
	}
	e.alloc(nf)

	for k, i := range e.free {
		measured := v[symmat.Diag(i)] > zero
		d := Gaussian
		if measured {
			d = e.dist[i]
		}
		u, slope, ok := d.forward(x[i])
		if !ok || math.IsNaN(u) || math.IsInf(u, 0) {
			return e.finish(UnphysicalValues)
		}
		e.measured[k], e.tdist[k] = measured, d
		e.y0[k], e.y[k], e.dy[k] = u, u, slope
		e.ylo[k], e.yhi[k] = d.bound(e.low[i]), d.bound(e.high[i])
	}

	// du/dx is parked in dy until the first step
	dzero(e.vu)
	for b, j := range e.free {
		for a, i := range e.free {
			if e.measured[a] && e.measured[b] {
				e.vu[a+nf*b] = e.dy[a] * v[symmat.Index(i, j)] * e.dy[b]
			}
		}
	}
	if !dfinite(e.vu) {
		return e.finish(UnphysicalValues)
	}
	if !e.weight() {
		return e.finish(NoConvergence)
	}

	copy(e.f0, f)
	if e.m == 0 {
		copy(e.cov, e.vu)
		return e.succeed(x, v)
	}
	return e.beginDiff(x)
}

func (e *Engine) alloc(nf int) {
	s := nf + e.m
	e.measured = grow(e.measured, nf)
	e.tdist = grow(e.tdist, nf)
	e.steps = grow(e.steps, nf)
	e.y0 = grow(e.y0, nf)
	e.y = grow(e.y, nf)
	e.ylo = grow(e.ylo, nf)
	e.yhi = grow(e.yhi, nf)
	e.slope = grow(e.slope, nf)
	e.dy = grow(e.dy, nf)
	e.vu = grow(e.vu, nf*nf)
	e.w = grow(e.w, nf*nf)
	e.cov = grow(e.cov, nf*nf)
	e.jac = grow(e.jac, e.m*nf)
	e.f0 = grow(e.f0, e.m)
	e.f1 = grow(e.f1, e.m)
	e.f2 = grow(e.f2, e.m)
	e.kkt = grow(e.kkt, s*s)
	e.rhs = grow(e.rhs, s*(nf+1))
}

// weight inverts the measured block of vu into w.
func (e *Engine) weight() bool {
	nf := len(e.free)
	idx := make([]int, 0, nf)
	for k, ok := range e.measured {
		if ok {
			idx = append(idx, k)
		}
	}
	nm := len(idx)
	dzero(e.w)
	if nm == 0 {
		return true
	}

	a, b := e.kkt[:nm*nm], e.rhs[:nm*nm]
	dzero(b)
	for q, kb := range idx {
		for p, ka := range idx {
			a[p+nm*q] = e.vu[ka+nf*kb]
		}
		b[q+nm*q] = one
	}
	if e.lsq.solve(a, nm, nm, nm, b, nm, nm, rankTol) < nm {
		return false
	}
	for q, kb := range idx {
		for p, ka := range idx {
			e.w[ka+nf*kb] = b[p+nm*q]
		}
	}
	return true
}

// setX writes the free variable k at fit coordinate u into 𝐱.
func (e *Engine) setX(x []float64, k int, u float64) {
	x[e.free[k]], e.slope[k] = e.tdist[k].inverse(u)
}

func (e *Engine) beginDiff(x []float64) int {
	for k, i := range e.free {
		sigma := zero
		if e.measured[k] {
			sigma = math.Sqrt(e.vu[k+len(e.free)*k])
		}
		_, slope, _ := e.tdist[k].forward(x[i])
		h := absoluteStep(e.y[k], sigma, e.step[i], slope, e.tuning)
		e.steps[k] = adjustToBounds(e.y[k], h, e.ylo[k], e.yhi[k])
	}
	e.col, e.sub = 0, 0
	return e.perturb(x)
}

// perturb moves 𝐱 to the first difference point of the current column.
func (e *Engine) perturb(x []float64) int {
	for e.col < len(e.free) && e.steps[e.col].h == zero {
		dzero(e.jac[e.m*e.col : e.m*(e.col+1)])
		e.col++
	}
	if e.col == len(e.free) {
		return e.solveStep(x)
	}
	y1, _ := e.steps[e.col].points(e.y[e.col])
	e.setX(x, e.col, y1)
	e.phase = phaseDiff
	return EvalRequest
}

func (e *Engine) diff(x, f []float64) int {
	k := e.col
	if e.sub == 0 {
		copy(e.f1, f)
		_, y2 := e.steps[k].points(e.y[k])
		e.setX(x, k, y2)
		e.sub = 1
		return EvalRequest
	}

	copy(e.f2, f)
	e.steps[k].derive(e.f0, e.f1, e.f2, e.jac[e.m*k:e.m*(k+1)])
	e.setX(x, k, e.y[k])
	if e.tuning.DebugLevel > 1 {
		e.log.Debug("derivative", "variable", e.free[k], "step", e.steps[k].h, "column", e.jac[e.m*k:e.m*(k+1)])
	}
	e.col, e.sub = k+1, 0
	return e.perturb(x)
}

// solveStep solves the Lagrange system at the current linearisation point.
func (e *Engine) solveStep(x []float64) int {
	if e.iter >= e.tuning.MaxIterations {
		return e.finish(TooManyIterations)
	}
	e.iter++

	nf, m := len(e.free), e.m
	s := nf + m
	K, B := e.kkt[:s*s], e.rhs[:s*(nf+1)]
	dzero(K)
	dzero(B)
	for b := 0; b < nf; b++ {
		copy(K[s*b:s*b+nf], e.w[nf*b:nf*(b+1)])
	}
	for k := 0; k < nf; k++ {
		for c := 0; c < m; c++ {
			d := e.jac[c+m*k]
			K[nf+c+s*k] = d
			K[k+s*(nf+c)] = d
		}
	}

	for b := 0; b < nf; b++ {
		daxpy(nf, e.y0[b], e.w[nf*b:], B)
	}
	for c := 0; c < m; c++ {
		B[nf+c] = ddot(nf, e.jac[c:], m, e.y) - e.f0[c]
	}
	for k := 0; k < nf; k++ {
		B[s*(k+1)+k] = one
	}

	if rank := e.lsq.solve(K, s, s, s, B, s, nf+1, rankTol); rank < s {
		e.log.Debug("rank deficient system", "rank", rank, "size", s, "iteration", e.iter)
		return e.finish(NoConvergence)
	}

	for k := 0; k < nf; k++ {
		u := B[k]
		if u < e.ylo[k] {
			u = e.ylo[k]
		}
		if u > e.yhi[k] {
			u = e.yhi[k]
		}
		e.y[k] = u
		e.dy[k] = u - e.y0[k]
		copy(e.cov[nf*k:nf*(k+1)], B[s*(k+1):s*(k+1)+nf])
	}

	chi2 := zero
	for k := 0; k < nf; k++ {
		chi2 += e.dy[k] * ddot(nf, e.w[nf*k:], 1, e.dy)
	}
	e.chi2prev, e.chi2 = e.chi2, chi2

	for k := 0; k < nf; k++ {
		e.setX(x, k, e.y[k])
	}
	if e.tuning.DebugLevel > 0 {
		e.log.Debug("iteration", "iteration", e.iter, "chi2", chi2, "violation", dasum(e.f0))
	}
	e.phase = phaseBase
	return EvalRequest
}

func (e *Engine) base(x, v, f []float64) int {
	copy(e.f0, f)
	if dasum(f) < e.tuning.ConstraintAccuracy && math.Abs(e.chi2-e.chi2prev) < e.tuning.Chi2Accuracy {
		return e.succeed(x, v)
	}
	return e.beginDiff(x)
}

// succeed writes the fitted values, the covariance of the free block and the pulls.
func (e *Engine) succeed(x, v []float64) int {
	nf := len(e.free)
	for k := range e.free {
		e.setX(x, k, e.y[k])
	}
	for b, j := range e.free {
		for a := 0; a <= b; a++ {
			v[symmat.Index(e.free[a], j)] = e.slope[a] * e.cov[a+nf*b] * e.slope[b]
		}
	}

	dzero(e.pulls)
	for k, i := range e.free {
		if !e.measured[k] {
			continue
		}
		if d := e.vu[k+nf*k] - e.cov[k+nf*k]; d > zero {
			e.pulls[i] = (e.y[k] - e.y0[k]) / math.Sqrt(d)
		}
	}
	return e.finish(Success)
}

func (e *Engine) finish(status int) int {
	e.phase, e.status = phaseDone, status
	if e.tuning.DebugLevel > 0 {
		e.log.Debug("fit finished", "status", status, "iterations", e.iter, "calls", e.calls, "chi2", e.chi2)
	}
	return status
}

func grow[T any](buf []T, n int) []T {
	if cap(buf) < n {
		return make([]T, n)
	}
	return buf[:n]
}
