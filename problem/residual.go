// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package problem

import (
	"errors"
	"fmt"
	"math"

	"github.com/curioloop/confit/residual"
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// exprResidual evaluates a residual expression. It receives every referenced
// variable at once.
//
// The residual contract has no error return, so evaluation failures panic
// with an error. The fitter reports them as configuration errors. A NaN or an
// infinity met on the way is not a failure once the residual count is known:
// Evaluate then returns that many NaN residuals and the solver reports
// unphysical values.
type exprResidual struct {
	name   string
	vars   []string
	vector []bool
	expr   hcl.Expression
	ctx    *hcl.EvalContext
	guard  nonFinite
	number int // residual count of the last successful evaluation
}

func newResidual(c Constraint, lookup func(string) *Variable) *exprResidual {
	r := &exprResidual{
		name:   c.Name,
		vars:   c.Variables,
		vector: make([]bool, len(c.Variables)),
		expr:   c.Residual,
	}
	r.ctx = &hcl.EvalContext{
		Variables: make(map[string]cty.Value, len(c.Variables)),
		Functions: functions(&r.guard),
	}
	for k, name := range c.Variables {
		if v := lookup(name); v != nil {
			r.vector[k] = v.Vector
		}
	}
	return r
}

func (r *exprResidual) Shape() residual.Shape {
	return residual.Shape{Arity: 1, Args: residual.Matrix, VectorReturn: true}
}

func (r *exprResidual) Evaluate(args [][]float64) []float64 {
	out, err := r.evaluate(args)
	switch {
	case err == nil:
	case errors.Is(err, errNotANumber) && r.number > 0:
		out = make([]float64, r.number)
		for k := range out {
			out[k] = math.NaN()
		}
	default:
		panic(err)
	}
	return out
}

func (r *exprResidual) evaluate(args [][]float64) ([]float64, error) {
	r.guard.seen = false
	for k, name := range r.vars {
		x := args[k]
		if !finite(x) {
			return nil, fmt.Errorf("constraint %q: variable %q: %w", r.name, name, errNotANumber)
		}
		if !r.vector[k] && len(x) == 1 {
			r.ctx.Variables[name] = cty.NumberFloatVal(x[0])
			continue
		}
		elems := make([]cty.Value, len(x))
		for i, xi := range x {
			elems[i] = cty.NumberFloatVal(xi)
		}
		r.ctx.Variables[name] = cty.ListVal(elems)
	}

	val, diags := r.expr.Value(r.ctx)
	if diags.HasErrors() {
		if r.guard.seen {
			return nil, fmt.Errorf("constraint %q: %w: %w", r.name, errNotANumber, diags)
		}
		return nil, fmt.Errorf("constraint %q: %w", r.name, diags)
	}
	if val.IsNull() || !val.IsKnown() {
		return nil, fmt.Errorf("constraint %q: residual is null or unknown", r.name)
	}

	if val.Type() == cty.Number {
		r.number = 1
		return []float64{toFloat(val)}, nil
	}
	if !val.CanIterateElements() {
		return nil, fmt.Errorf("constraint %q: residual must be a number or a list of numbers, got %s", r.name, val.Type().FriendlyName())
	}
	out := make([]float64, 0, val.LengthInt())
	for it := val.ElementIterator(); it.Next(); {
		_, e := it.Element()
		n, err := convert.Convert(e, cty.Number)
		if err != nil {
			return nil, fmt.Errorf("constraint %q: residual element: %w", r.name, err)
		}
		if n.IsNull() || !n.IsKnown() {
			return nil, fmt.Errorf("constraint %q: residual element is null or unknown", r.name)
		}
		out = append(out, toFloat(n))
	}
	r.number = len(out)
	return out, nil
}
