// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package problem

import (
	"errors"
	"math"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

var errNotANumber = errors.New("result is not a number")

// nonFinite records whether a function produced a NaN or an infinity during
// one evaluation.
type nonFinite struct {
	seen bool
}

func (g *nonFinite) value(f float64) (cty.Value, error) {
	if math.IsNaN(f) {
		g.seen = true
		return cty.NilVal, errNotANumber
	}
	if math.IsInf(f, 0) {
		g.seen = true
	}
	return cty.NumberFloatVal(f), nil
}

// functions returns the functions available to residual expressions.
func functions(g *nonFinite) map[string]function.Function {
	return map[string]function.Function{
		"abs":    stdlib.AbsoluteFunc,
		"ceil":   stdlib.CeilFunc,
		"floor":  stdlib.FloorFunc,
		"log":    stdlib.LogFunc,
		"max":    stdlib.MaxFunc,
		"min":    stdlib.MinFunc,
		"pow":    stdlib.PowFunc,
		"signum": stdlib.SignumFunc,
		"length": stdlib.LengthFunc,

		"sqrt":  unary(g, math.Sqrt),
		"exp":   unary(g, math.Exp),
		"ln":    unary(g, math.Log),
		"sin":   unary(g, math.Sin),
		"cos":   unary(g, math.Cos),
		"tan":   unary(g, math.Tan),
		"atan":  unary(g, math.Atan),
		"atan2": binary(g, math.Atan2),
		"hypot": binary(g, math.Hypot),
		"sum":   sum(g),
	}
}

func toFloat(v cty.Value) float64 {
	f, _ := v.AsBigFloat().Float64()
	return f
}

func unary(g *nonFinite, fn func(float64) float64) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{{Name: "num", Type: cty.Number}},
		Type:   function.StaticReturnType(cty.Number),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			return g.value(fn(toFloat(args[0])))
		},
	})
}

func binary(g *nonFinite, fn func(float64, float64) float64) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "a", Type: cty.Number},
			{Name: "b", Type: cty.Number},
		},
		Type: function.StaticReturnType(cty.Number),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			return g.value(fn(toFloat(args[0]), toFloat(args[1])))
		},
	})
}

func sum(g *nonFinite) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{{Name: "list", Type: cty.List(cty.Number)}},
		Type:   function.StaticReturnType(cty.Number),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			s := 0.0
			for it := args[0].ElementIterator(); it.Next(); {
				_, v := it.Element()
				s += toFloat(v)
			}
			return g.value(s)
		},
	})
}
