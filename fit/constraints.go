// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fit

import (
	"fmt"

	"github.com/curioloop/confit/residual"
)

type constraint struct {
	name     string
	varnames []string
	vars     []*variable
	binding  residual.Binding
	number   int // residual count, learned at layout
}

// call evaluates the residual function. A panic is turned into a
// configuration error naming the constraint.
func (c *constraint) call(args [][]float64) (r []float64, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &ConfigurationError{
				Kind:   KindConstraint,
				Name:   c.name,
				Reason: "residual function panicked",
				Err:    fmt.Errorf("%v", p),
			}
		}
	}()
	return c.binding.Eval(args), nil
}

// AddConstraint registers fn as a constraint on the named variables. fn is
// any function accepted by residual.Bind. The k-th argument receives the
// current values of varnames[k]; a matrix shaped function receives all of
// them at once. A function of scalars referencing multi-element variables of
// one common dimension is applied element-wise.
func (f *Fitter) AddConstraint(name string, varnames []string, fn any) error {
	if name == "" {
		return configErr(KindConstraint, name, "empty name")
	}
	if _, dup := f.conIdx[name]; dup {
		return configErr(KindConstraint, name, "duplicate name")
	}
	if len(varnames) == 0 {
		return configErr(KindConstraint, name, "no variables")
	}
	vars := make([]*variable, len(varnames))
	for k, vn := range varnames {
		v, ok := f.lookup(vn)
		if !ok {
			return configErr(KindConstraint, name, fmt.Sprintf("unknown variable %q", vn))
		}
		vars[k] = v
	}

	b, err := residual.Bind(fn)
	if err != nil {
		return &ConfigurationError{Kind: KindConstraint, Name: name, Reason: "unsupported residual function", Err: err}
	}
	sh := b.Shape
	if sh.Args != residual.Matrix && sh.Arity != len(varnames) {
		return configErr(KindConstraint, name, fmt.Sprintf("function takes %d arguments, %d variables given", sh.Arity, len(varnames)))
	}
	if sh.Args == residual.Scalar {
		d := vars[0].dim()
		for _, v := range vars[1:] {
			if v.dim() != d {
				return configErr(KindConstraint, name, fmt.Sprintf("scalar function over variables of unequal dimension (%s has %d, %s has %d)", vars[0].name, d, v.name, v.dim()))
			}
		}
	}

	f.conIdx[name] = len(f.cons)
	f.cons = append(f.cons, &constraint{
		name:     name,
		varnames: append([]string(nil), varnames...),
		vars:     vars,
		binding:  b,
	})
	f.lay.invalidate()
	return nil
}

// ConstraintNames returns the constraint names in registration order.
func (f *Fitter) ConstraintNames() []string {
	names := make([]string, len(f.cons))
	for k, c := range f.cons {
		names[k] = c.name
	}
	return names
}
