// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fit

import (
	"math"

	"github.com/curioloop/confit/symmat"
	"gonum.org/v1/gonum/mat"
)

// BeforeAfter pairs a quantity before and after a fit.
type BeforeAfter[T any] struct {
	Before T
	After  T
}

// Variable is the fit outcome of one element.
type Variable struct {
	Name         string // flat name, "x[1]" for element 1 of x
	PristineName string // registered name, "x"
	Dimension    int
	Index        int // element index within the registered variable
	Value        BeforeAfter[float64]
	Sigma        BeforeAfter[float64]
	Pull         float64
	Settings     VariableSettings
	// Covariances maps flat names to covariances with this element, the
	// element itself included. Empty when Settings.SkipCovariancesInResult is set.
	Covariances BeforeAfter[map[string]float64]
}

// Constraint lists a constraint and the number of residuals it contributes.
type Constraint struct {
	Name   string
	Number int
}

// Result is the outcome of DoFit. Statistics and variables are only filled
// for Status Success.
type Result struct {
	Name           string
	Status         Status
	ChiSquare      float64
	NDoF           int
	Probability    float64
	NIterations    int
	NFunctionCalls int
	Variables      []Variable
	Constraints    []Constraint

	index   map[string]int
	vBefore symmat.Packed
	vAfter  symmat.Packed
}

// Variable returns the element with flat name name.
func (r *Result) Variable(name string) (Variable, bool) {
	i, ok := r.index[name]
	if !ok {
		return Variable{}, false
	}
	return r.Variables[i], true
}

// Correlations returns the fitted correlation of every element pair, keyed
// by flat names. Pairs involving an element without uncertainty are NaN.
func (r *Result) Correlations() map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(r.Variables))
	for i, vi := range r.Variables {
		row := make(map[string]float64, len(r.Variables))
		for j, vj := range r.Variables {
			row[vj.Name] = correlation(r.vAfter[symmat.Index(i, j)], r.vAfter[symmat.Diag(i)], r.vAfter[symmat.Diag(j)])
		}
		out[vi.Name] = row
	}
	return out
}

// Correlations computes the fitted correlations between vars from their
// covariance maps. Pairs without a recorded covariance are NaN.
func Correlations(vars []Variable) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(vars))
	for _, vi := range vars {
		row := make(map[string]float64, len(vars))
		for _, vj := range vars {
			cov, ok := vi.Covariances.After[vj.Name]
			if !ok {
				row[vj.Name] = math.NaN()
				continue
			}
			si, sj := vi.Sigma.After, vj.Sigma.After
			row[vj.Name] = correlation(cov, si*si, sj*sj)
		}
		out[vi.Name] = row
	}
	return out
}

func correlation(cov, vi, vj float64) float64 {
	d := math.Sqrt(vi * vj)
	if d == 0 {
		return math.NaN()
	}
	return cov / d
}

// CovarianceMatrix returns the fitted covariance in flat element order, or
// nil when the fit did not succeed.
func (r *Result) CovarianceMatrix() *mat.SymDense {
	return dense(r.vAfter)
}

// CorrelationMatrix is CovarianceMatrix scaled to unit diagonal. Rows of
// elements without uncertainty are NaN.
func (r *Result) CorrelationMatrix() *mat.SymDense {
	c := dense(r.vAfter)
	if c == nil {
		return nil
	}
	n := c.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			c.SetSym(i, j, correlation(r.vAfter[symmat.Index(i, j)], r.vAfter[symmat.Diag(i)], r.vAfter[symmat.Diag(j)]))
		}
	}
	return c
}

func dense(p symmat.Packed) *mat.SymDense {
	if p == nil {
		return nil
	}
	n := p.Dim()
	if n == 0 {
		return nil
	}
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			m.SetSym(i, j, p[symmat.Index(i, j)])
		}
	}
	return m
}

// assemble reads the solver outputs into res and writes fitted values,
// sigmas and pulls back to linked storage.
func (f *Fitter) assemble(res *Result) {
	s := f.backend.solver
	l := &f.lay
	n := len(l.x)

	res.ChiSquare, res.NDoF, res.Probability = s.ChiSquareAndDoF()
	_, res.NFunctionCalls, res.NIterations = s.FitStatistics()
	pulls := make([]float64, n)
	s.Pulls(pulls)

	res.vBefore = l.vBefore.Clone()
	res.vAfter = l.v.Clone()
	res.Variables = make([]Variable, 0, n)
	res.index = make(map[string]int, n)

	for _, v := range f.vars {
		for k := range v.values {
			i := v.offset + k
			rv := Variable{
				Name:         v.elementName(k),
				PristineName: v.name,
				Dimension:    v.dim(),
				Index:        k,
				Value:        BeforeAfter[float64]{Before: l.xBefore[i], After: l.x[i]},
				Sigma: BeforeAfter[float64]{
					Before: math.Sqrt(l.vBefore[symmat.Diag(i)]),
					After:  math.Sqrt(l.v[symmat.Diag(i)]),
				},
				Pull:     pulls[i],
				Settings: v.settings[k],
			}
			if v.linkedValues {
				*v.values[k] = rv.Value.After
			}
			if v.linkedSigmas {
				*v.sigmas[k] = rv.Sigma.After
			}
			if v.pulls != nil {
				*v.pulls[k] = rv.Pull
			}
			res.index[rv.Name] = len(res.Variables)
			res.Variables = append(res.Variables, rv)
		}
	}

	if f.settings.SkipCovariancesInResult {
		return
	}
	for i := range res.Variables {
		res.Variables[i].Covariances = BeforeAfter[map[string]float64]{
			Before: make(map[string]float64, n),
			After:  make(map[string]float64, n),
		}
	}
	for i := 0; i < n; i++ {
		vi := &res.Variables[i]
		for j := i; j < n; j++ {
			vj := &res.Variables[j]
			p := symmat.Index(i, j)
			vi.Covariances.Before[vj.Name] = l.vBefore[p]
			vi.Covariances.After[vj.Name] = l.v[p]
			vj.Covariances.Before[vi.Name] = l.vBefore[p]
			vj.Covariances.After[vi.Name] = l.v[p]
		}
	}
}
