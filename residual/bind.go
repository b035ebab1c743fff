// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package residual normalises constraint functions of different shapes into
// one evaluation contract
//
//	𝒆𝒗𝒂𝒍(args) : [][]float64 → []float64
//
// where args[k] holds the current values of the k-th referenced variable.
//
// A residual function declares its shape through its Go signature:
//   - scalar: func(a, b, ... float64) float64 or []float64
//   - vector: func(a, b, ... []float64) float64 or []float64
//   - matrix: func(args [][]float64) float64 or []float64
//
// Scalar functions are applied element-wise when the referenced variables hold
// more than one element, so func(a float64) float64 bound to a variable of
// dimension d yields d residuals. Mixing scalar and vector parameters is an
// error, as is any signature that fits none of the shapes above.
package residual

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrShape reports a residual function whose shape cannot be bound.
var ErrShape = errors.New("residual: invalid function shape")

// ArgKind classifies the parameters of a residual function.
type ArgKind int

const (
	// Scalar parameters are float64, one per referenced variable.
	Scalar ArgKind = iota
	// Vector parameters are []float64, one per referenced variable.
	Vector
	// Matrix is a single [][]float64 parameter receiving every referenced variable.
	Matrix
)

func (k ArgKind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Vector:
		return "vector"
	case Matrix:
		return "matrix"
	default:
		return fmt.Sprintf("ArgKind(%d)", int(k))
	}
}

// Shape describes a residual function signature.
type Shape struct {
	Arity        int     // number of formal parameters
	Args         ArgKind // kind shared by all parameters
	VectorReturn bool    // returns []float64 instead of float64
}

// Validate checks that the shape is one of the supported combinations.
func (s Shape) Validate() (err error) {
	switch {
	case s.Arity <= 0:
		err = fmt.Errorf("%w: arity must be positive, got %d", ErrShape, s.Arity)
	case s.Args != Scalar && s.Args != Vector && s.Args != Matrix:
		err = fmt.Errorf("%w: unknown argument kind %v", ErrShape, s.Args)
	case s.Args == Matrix && s.Arity != 1:
		err = fmt.Errorf("%w: matrix shape takes exactly one argument, got %d", ErrShape, s.Arity)
	}
	return
}

// Evaluator is the normalised residual contract. Implementations must not
// retain args, which are refilled before every call.
type Evaluator func(args [][]float64) []float64

// Residual is a residual function that declares its own shape.
type Residual interface {
	Shape() Shape
	Evaluate(args [][]float64) []float64
}

// Binding is a residual function reduced to its shape and normalised evaluator.
type Binding struct {
	Shape Shape
	Eval  Evaluator
}

// Explicit binds an evaluator that already follows the normalised contract.
// No element-wise expansion is applied, whatever the declared shape.
func Explicit(shape Shape, eval Evaluator) (Binding, error) {
	if err := shape.Validate(); err != nil {
		return Binding{}, err
	}
	if eval == nil {
		return Binding{}, fmt.Errorf("%w: nil evaluator", ErrShape)
	}
	return Binding{Shape: shape, Eval: eval}, nil
}

// Bind inspects fn and returns its normalised binding.
func Bind(fn any) (Binding, error) {
	if v := reflect.ValueOf(fn); v.Kind() == reflect.Func && v.IsNil() {
		return Binding{}, fmt.Errorf("%w: nil function", ErrShape)
	}
	switch f := fn.(type) {
	case nil:
		return Binding{}, fmt.Errorf("%w: nil function", ErrShape)
	case Residual:
		return Explicit(f.Shape(), f.Evaluate)
	case Evaluator:
		return Explicit(Shape{Arity: 1, Args: Matrix, VectorReturn: true}, f)
	case func([][]float64) []float64:
		return Explicit(Shape{Arity: 1, Args: Matrix, VectorReturn: true}, f)
	case func([][]float64) float64:
		return Binding{
			Shape: Shape{Arity: 1, Args: Matrix},
			Eval:  func(args [][]float64) []float64 { return []float64{f(args)} },
		}, nil
	case func(float64) float64:
		return scalarBinding(1, false, func(x, out []float64) []float64 {
			return append(out, f(x[0]))
		}), nil
	case func(float64, float64) float64:
		return scalarBinding(2, false, func(x, out []float64) []float64 {
			return append(out, f(x[0], x[1]))
		}), nil
	case func(float64, float64, float64) float64:
		return scalarBinding(3, false, func(x, out []float64) []float64 {
			return append(out, f(x[0], x[1], x[2]))
		}), nil
	case func([]float64) []float64:
		return Binding{
			Shape: Shape{Arity: 1, Args: Vector, VectorReturn: true},
			Eval:  func(args [][]float64) []float64 { return f(args[0]) },
		}, nil
	case func([]float64, []float64) []float64:
		return Binding{
			Shape: Shape{Arity: 2, Args: Vector, VectorReturn: true},
			Eval:  func(args [][]float64) []float64 { return f(args[0], args[1]) },
		}, nil
	}
	return bindReflect(fn)
}

// scalarBinding applies call element-wise over the referenced variables.
// call receives one element of every argument and appends its residuals to out.
func scalarBinding(arity int, vectorReturn bool, call func(x, out []float64) []float64) Binding {
	eval := func(args [][]float64) []float64 {
		d := 0
		if len(args) > 0 {
			d = len(args[0])
		}
		x := make([]float64, arity)
		out := make([]float64, 0, d)
		for k := 0; k < d; k++ {
			for i := range x {
				x[i] = args[i][k]
			}
			out = call(x, out)
		}
		return out
	}
	return Binding{
		Shape: Shape{Arity: arity, Args: Scalar, VectorReturn: vectorReturn},
		Eval:  eval,
	}
}

var errVariadic = fmt.Errorf("%w: variadic functions are ambiguous", ErrShape)

func kindOf(t reflect.Type) (ArgKind, bool) {
	switch {
	case t.Kind() == reflect.Float64:
		return Scalar, true
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Float64:
		return Vector, true
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Slice && t.Elem().Elem().Kind() == reflect.Float64:
		return Matrix, true
	}
	return 0, false
}

// bindReflect handles arbitrary arity through reflection.
func bindReflect(fn any) (Binding, error) {
	v := reflect.ValueOf(fn)
	t := v.Type()

	switch {
	case t.Kind() != reflect.Func:
		return Binding{}, fmt.Errorf("%w: %s is not a function", ErrShape, t)
	case v.IsNil():
		return Binding{}, fmt.Errorf("%w: nil function", ErrShape)
	case t.IsVariadic():
		return Binding{}, errVariadic
	case t.NumIn() == 0:
		return Binding{}, fmt.Errorf("%w: %s takes no arguments", ErrShape, t)
	case t.NumOut() != 1:
		return Binding{}, fmt.Errorf("%w: %s must return exactly one value", ErrShape, t)
	}

	shape := Shape{Arity: t.NumIn()}
	for i := 0; i < t.NumIn(); i++ {
		k, ok := kindOf(t.In(i))
		if !ok {
			return Binding{}, fmt.Errorf("%w: parameter %d of %s is %s", ErrShape, i, t, t.In(i))
		}
		if i > 0 && k != shape.Args {
			return Binding{}, fmt.Errorf("%w: %s mixes %v and %v parameters", ErrShape, t, shape.Args, k)
		}
		shape.Args = k
	}

	out, ok := kindOf(t.Out(0))
	switch {
	case !ok || out == Matrix:
		return Binding{}, fmt.Errorf("%w: %s returns %s", ErrShape, t, t.Out(0))
	case out == Vector:
		shape.VectorReturn = true
	}
	if err := shape.Validate(); err != nil {
		return Binding{}, err
	}

	in := make([]reflect.Type, t.NumIn())
	for i := range in {
		in[i] = t.In(i)
	}

	collect := func(r reflect.Value, out []float64) []float64 {
		if shape.VectorReturn {
			for i := 0; i < r.Len(); i++ {
				out = append(out, r.Index(i).Float())
			}
			return out
		}
		return append(out, r.Float())
	}

	if shape.Args == Scalar {
		return scalarBinding(shape.Arity, shape.VectorReturn, func(x, out []float64) []float64 {
			vals := make([]reflect.Value, len(x))
			for i, xi := range x {
				vals[i] = reflect.ValueOf(xi).Convert(in[i])
			}
			return collect(v.Call(vals)[0], out)
		}), nil
	}

	eval := func(args [][]float64) []float64 {
		var vals []reflect.Value
		if shape.Args == Matrix {
			vals = []reflect.Value{convertMatrix(args, in[0])}
		} else {
			vals = make([]reflect.Value, len(args))
			for i, a := range args {
				vals[i] = convertSlice(a, in[i])
			}
		}
		return collect(v.Call(vals)[0], nil)
	}
	return Binding{Shape: shape, Eval: eval}, nil
}

func convertSlice(a []float64, t reflect.Type) reflect.Value {
	if t == reflect.TypeOf(a) {
		return reflect.ValueOf(a)
	}
	s := reflect.MakeSlice(t, len(a), len(a))
	for i, x := range a {
		s.Index(i).Set(reflect.ValueOf(x).Convert(t.Elem()))
	}
	return s
}

func convertMatrix(args [][]float64, t reflect.Type) reflect.Value {
	if t == reflect.TypeOf(args) {
		return reflect.ValueOf(args)
	}
	m := reflect.MakeSlice(t, len(args), len(args))
	for i, a := range args {
		m.Index(i).Set(convertSlice(a, t.Elem()))
	}
	return m
}
