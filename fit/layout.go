// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fit

import (
	"fmt"

	"github.com/curioloop/confit/symmat"
)

// layout is the flat problem handed to the solver.
type layout struct {
	valid      bool // registries unchanged since the last build
	configured bool // settings pushed since the last build

	x     []float64
	v     symmat.Packed
	vCold symmat.Packed // 𝐕 as built, restored on every warm refresh
	f     []float64

	xBefore []float64
	vBefore symmat.Packed

	args [][][]float64 // per constraint, a copy of x per referenced variable
}

func (l *layout) invalidate() {
	l.valid = false
}

// snapshot records the state before a fit for the result.
func (l *layout) snapshot() {
	l.xBefore = append(l.xBefore[:0], l.x...)
	l.vBefore = append(l.vBefore[:0], l.v...)
}

// build lays out every registry from scratch.
func (f *Fitter) build() error {
	if len(f.vars) == 0 {
		return configErr(KindVariable, "", "no variables registered")
	}
	l := &f.lay
	l.valid = false

	n := 0
	for _, v := range f.vars {
		v.offset = n
		n += v.dim()
	}
	l.x = make([]float64, n)
	l.v = symmat.New(n)
	if err := f.loadVariables(); err != nil {
		return err
	}

	for _, c := range f.covs {
		if err := c.checkSigmas(); err != nil {
			return err
		}
		c.cells = make([]cell, len(c.values))
		for k := range c.values {
			a, b := c.element(k)
			c.cells[k] = cell{c.v1.offset + a, c.v2.offset + b}
		}
		if err := c.apply(l.v); err != nil {
			return err
		}
	}

	l.args = make([][][]float64, len(f.cons))
	m := 0
	for k, c := range f.cons {
		args := make([][]float64, len(c.vars))
		for i, v := range c.vars {
			args[i] = make([]float64, v.dim())
		}
		l.args[k] = args
		r, err := c.call(l.load(k, c))
		if err != nil {
			return err
		}
		c.number = len(r)
		m += c.number
	}
	l.f = make([]float64, m)

	l.vCold = l.v.Clone()
	l.valid = true
	l.configured = false
	return nil
}

// refresh reloads current values and sigmas into an existing layout.
func (f *Fitter) refresh() error {
	l := &f.lay
	copy(l.v, l.vCold)
	if err := f.loadVariables(); err != nil {
		return err
	}
	for _, c := range f.covs {
		if err := c.checkSigmas(); err != nil {
			return err
		}
		if !c.linked {
			continue
		}
		if err := c.apply(l.v); err != nil {
			return err
		}
	}
	return nil
}

// loadVariables copies values into 𝐗 and squared sigmas onto the diagonal of 𝐕.
func (f *Fitter) loadVariables() error {
	l := &f.lay
	for _, v := range f.vars {
		for k := range v.values {
			i := v.offset + k
			s := *v.sigmas[k]
			l.x[i] = *v.values[k]
			if err := l.v.Set(i, i, s*s); err != nil {
				return fmt.Errorf("variable %q: %w", v.name, err)
			}
		}
	}
	return nil
}

// load copies the current 𝐗 into the arguments of the k-th constraint c.
// Residual functions never see 𝐗 itself.
func (l *layout) load(k int, c *constraint) [][]float64 {
	args := l.args[k]
	for i, v := range c.vars {
		copy(args[i], l.x[v.offset:v.offset+v.dim()])
	}
	return args
}

// apply writes every set entry into 𝐕.
func (c *covariance) apply(v symmat.Packed) error {
	for k, p := range c.values {
		if !isSet(p) {
			continue
		}
		if err := v.Set(c.cells[k].i, c.cells[k].j, *p); err != nil {
			return fmt.Errorf("covariance %s: %w", c.name(), err)
		}
	}
	return nil
}
