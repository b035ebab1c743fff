// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package problem loads fit problems from HCL files.
//
// A problem file holds an optional fit block with settings, one variable
// block per variable, optional covariance blocks and one constraint block per
// residual. Residuals are HCL expressions over the variables:
//
//	fit "sum" {
//	  max_iterations = 50
//	}
//
//	variable "A" {
//	  value = 10
//	  sigma = 0.3
//	}
//
//	variable "C" {
//	  kind  = "unmeasured"
//	  value = 0
//	}
//
//	covariance "A" "B" {
//	  values = [0.01]
//	}
//
//	constraint "sum" {
//	  residual = C - A - B
//	}
//
// Single valued variables appear as numbers in expressions, variables with
// values = [...] as lists. A residual evaluates to a number or to a list of
// numbers.
package problem

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/curioloop/confit/fit"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// ErrInvalid is matched by every semantic error in a problem file.
var ErrInvalid = errors.New("problem: invalid definition")

// fileRoot decodes all top-level blocks of a problem file.
type fileRoot struct {
	Fit         []*fitBlock        `hcl:"fit,block"`
	Variables   []*variableBlock   `hcl:"variable,block"`
	Covariances []*covarianceBlock `hcl:"covariance,block"`
	Constraints []*constraintBlock `hcl:"constraint,block"`
}

type fitBlock struct {
	Name                     string   `hcl:"name,label"`
	DebugLevel               *int     `hcl:"debug_level,optional"`
	MaxIterations            *int     `hcl:"max_iterations,optional"`
	ConstraintAccuracy       *float64 `hcl:"constraint_accuracy,optional"`
	Chi2Accuracy             *float64 `hcl:"chi2_accuracy,optional"`
	MeasuredStepSizeFactor   *float64 `hcl:"measured_step_size_factor,optional"`
	UnmeasuredStepSizeFactor *float64 `hcl:"unmeasured_step_size_factor,optional"`
	MinimalStepSizeFactor    *float64 `hcl:"minimal_step_size_factor,optional"`
	SkipCovariances          *bool    `hcl:"skip_covariances,optional"`
}

type variableBlock struct {
	Name         string    `hcl:"name,label"`
	Kind         *string   `hcl:"kind,optional"`
	Value        *float64  `hcl:"value,optional"`
	Values       []float64 `hcl:"values,optional"`
	Sigma        *float64  `hcl:"sigma,optional"`
	Sigmas       []float64 `hcl:"sigmas,optional"`
	Distribution *string   `hcl:"distribution,optional"`
	Low          *float64  `hcl:"low,optional"`
	High         *float64  `hcl:"high,optional"`
	StepSize     *float64  `hcl:"step_size,optional"`
}

type covarianceBlock struct {
	First  string    `hcl:"first,label"`
	Second string    `hcl:"second,label"`
	Values []float64 `hcl:"values"`
}

type constraintBlock struct {
	Name      string         `hcl:"name,label"`
	Variables []string       `hcl:"variables,optional"`
	Residual  *hcl.Attribute `hcl:"residual,optional"`
}

// Kind classifies a variable.
type Kind string

const (
	Measured   Kind = "measured"
	Unmeasured Kind = "unmeasured"
	Fixed      Kind = "fixed"
)

// Variable is a decoded variable block. Values and Sigmas hold one entry per
// element. Scalar variables have Vector unset.
type Variable struct {
	Name     string
	Kind     Kind
	Vector   bool
	Values   []float64
	Sigmas   []float64
	Settings fit.VariableSettings
}

// Covariance is a decoded covariance block.
type Covariance struct {
	First, Second string
	Values        []float64
}

// Constraint is a decoded constraint block.
type Constraint struct {
	Name      string
	Variables []string
	Residual  hcl.Expression
}

// Problem is a parsed problem file.
type Problem struct {
	Name        string
	Settings    fit.Settings
	Variables   []*Variable
	Covariances []Covariance
	Constraints []Constraint
}

// Load parses the problem file at path. A problem without a fit block is
// named after the file.
func Load(path string) (*Problem, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("problem: %w", err)
	}
	return Parse(src, path)
}

// Parse parses src. filename is used in diagnostics.
func Parse(src []byte, filename string) (*Problem, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	p := &Problem{
		Name:     strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)),
		Settings: fit.DefaultSettings(),
	}
	switch len(root.Fit) {
	case 0:
	case 1:
		root.Fit[0].apply(p)
	default:
		return nil, fmt.Errorf("%w: %s: more than one fit block", ErrInvalid, filename)
	}

	for _, b := range root.Variables {
		v, err := b.translate()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		p.Variables = append(p.Variables, v)
	}
	for _, b := range root.Covariances {
		p.Covariances = append(p.Covariances, Covariance{First: b.First, Second: b.Second, Values: b.Values})
	}
	for _, b := range root.Constraints {
		if b.Residual == nil {
			return nil, fmt.Errorf("%w: %s: constraint %q has no residual", ErrInvalid, filename, b.Name)
		}
		c := Constraint{Name: b.Name, Variables: b.Variables, Residual: b.Residual.Expr}
		if len(c.Variables) == 0 {
			c.Variables = references(c.Residual)
		}
		p.Constraints = append(p.Constraints, c)
	}
	return p, nil
}

func (b *fitBlock) apply(p *Problem) {
	p.Name = b.Name
	s := &p.Settings
	if b.DebugLevel != nil {
		s.DebugLevel = *b.DebugLevel
	}
	if b.MaxIterations != nil {
		s.MaxIterations = *b.MaxIterations
	}
	for _, f := range []struct {
		src *float64
		dst *float64
	}{
		{b.ConstraintAccuracy, &s.ConstraintAccuracy},
		{b.Chi2Accuracy, &s.Chi2Accuracy},
		{b.MeasuredStepSizeFactor, &s.MeasuredStepSizeFactor},
		{b.UnmeasuredStepSizeFactor, &s.UnmeasuredStepSizeFactor},
		{b.MinimalStepSizeFactor, &s.MinimalStepSizeFactor},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	if b.SkipCovariances != nil {
		s.SkipCovariancesInResult = *b.SkipCovariances
	}
}

func (b *variableBlock) translate() (v *Variable, err error) {
	v = &Variable{Name: b.Name, Settings: fit.DefaultVariableSettings()}
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: variable %q: %s", ErrInvalid, b.Name, fmt.Sprintf(format, args...))
	}

	switch {
	case b.Value != nil && b.Values != nil:
		return nil, invalid("value and values are exclusive")
	case b.Value != nil:
		v.Values = []float64{*b.Value}
	case len(b.Values) > 0:
		v.Values = b.Values
		v.Vector = true
	default:
		return nil, invalid("value or values required")
	}

	n := len(v.Values)
	switch {
	case b.Sigma != nil && b.Sigmas != nil:
		return nil, invalid("sigma and sigmas are exclusive")
	case b.Sigma != nil:
		v.Sigmas = make([]float64, n)
		for k := range v.Sigmas {
			v.Sigmas[k] = *b.Sigma
		}
	case b.Sigmas != nil:
		if len(b.Sigmas) != n {
			return nil, invalid("expected %d sigmas, got %d", n, len(b.Sigmas))
		}
		v.Sigmas = b.Sigmas
	default:
		v.Sigmas = make([]float64, n)
	}

	v.Kind = Unmeasured
	if b.Sigma != nil || b.Sigmas != nil {
		v.Kind = Measured
	}
	if b.Kind != nil {
		v.Kind = Kind(*b.Kind)
	}
	switch v.Kind {
	case Measured, Fixed:
		for k, s := range v.Sigmas {
			if s == 0 {
				return nil, invalid("%s element %d requires nonzero sigma", v.Kind, k)
			}
		}
	case Unmeasured:
		for k := range v.Sigmas {
			v.Sigmas[k] = 0
		}
	default:
		return nil, invalid("unknown kind %q", v.Kind)
	}

	if b.Distribution != nil {
		if v.Settings.Distribution, err = ParseDistribution(*b.Distribution); err != nil {
			return nil, invalid("%v", err)
		}
	}
	if b.Low != nil {
		v.Settings.Limit.Low = *b.Low
	}
	if b.High != nil {
		v.Settings.Limit.High = *b.High
	}
	if b.StepSize != nil {
		v.Settings.StepSize = *b.StepSize
	}
	if v.Kind == Fixed {
		v.Settings.StepSize = 0
		v.Settings.Limit = fit.NoLimit
	}
	return v, nil
}

// ParseDistribution maps a distribution name onto fit.Distribution.
func ParseDistribution(s string) (fit.Distribution, error) {
	switch strings.ToLower(s) {
	case "gaussian", "normal":
		return fit.Gaussian, nil
	case "poissonian", "poisson":
		return fit.Poissonian, nil
	case "lognormal":
		return fit.LogNormal, nil
	case "squareroot", "sqrt":
		return fit.SquareRoot, nil
	}
	return 0, fmt.Errorf("unknown distribution %q", s)
}

// references lists the root names referenced by expr in order of first appearance.
func references(expr hcl.Expression) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, t := range expr.Variables() {
		name := t.RootName()
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// Fitter registers the problem with a new fitter on backend.
func (p *Problem) Fitter(backend *fit.Backend, opts ...fit.Option) (*fit.Fitter, error) {
	opts = append([]fit.Option{fit.WithSettings(p.Settings)}, opts...)
	f := fit.New(p.Name, backend, opts...)

	for _, v := range p.Variables {
		if err := v.register(f); err != nil {
			return nil, err
		}
	}
	for _, c := range p.Covariances {
		if err := f.SetCovariance(c.First, c.Second, c.Values...); err != nil {
			return nil, err
		}
	}
	for _, c := range p.Constraints {
		if err := f.AddConstraint(c.Name, c.Variables, newResidual(c, p.lookup)); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (p *Problem) lookup(name string) *Variable {
	for _, v := range p.Variables {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// register adds v to f. Vector variables are linked to v.Values, so a
// successful fit leaves the fitted values there.
func (v *Variable) register(f *fit.Fitter) error {
	if !v.Vector {
		x, s := v.Values[0], v.Sigmas[0]
		switch v.Kind {
		case Measured:
			return f.AddMeasured(v.Name, x, s, v.Settings)
		case Fixed:
			return f.AddFixed(v.Name, x, s, v.Settings.Distribution)
		default:
			return f.AddUnmeasured(v.Name, x, v.Settings)
		}
	}
	if v.Kind == Measured && v.Settings.StepSize == 0 {
		return fmt.Errorf("%w: variable %q: measured variables require nonzero step size", ErrInvalid, v.Name)
	}
	if v.Kind == Unmeasured && v.Settings.StepSize == 0 {
		return fmt.Errorf("%w: variable %q: unmeasured variables require nonzero step size", ErrInvalid, v.Name)
	}
	ptrs := make([]*float64, len(v.Values))
	for k := range v.Values {
		ptrs[k] = &v.Values[k]
	}
	return f.LinkVariable(v.Name, ptrs, v.Sigmas, v.Settings)
}

func finite(values []float64) bool {
	for _, x := range values {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
