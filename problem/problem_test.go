// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package problem

import (
	"math"
	"strings"
	"testing"

	"github.com/curioloop/confit/fit"
	"github.com/curioloop/confit/solver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSum(t *testing.T) {
	p, err := Load("testdata/sum.hcl")
	require.NoError(t, err)
	assert.Equal(t, "sum", p.Name)
	assert.Equal(t, 50, p.Settings.MaxIterations)
	assert.True(t, math.IsNaN(p.Settings.Chi2Accuracy))
	require.Len(t, p.Variables, 3)
	assert.Equal(t, Measured, p.Variables[0].Kind)
	assert.Equal(t, Unmeasured, p.Variables[2].Kind)
	require.Len(t, p.Constraints, 1)
	assert.Equal(t, []string{"C", "A", "B"}, p.Constraints[0].Variables)

	f, err := p.Fitter(fit.NewBackend(solver.New()))
	require.NoError(t, err)
	res, err := f.DoFit()
	require.NoError(t, err)
	require.Equal(t, fit.Success, res.Status)

	c, ok := res.Variable("C")
	require.True(t, ok)
	assert.InDelta(t, 30, c.Value.After, 1e-6)
	assert.InDelta(t, 0.5, c.Sigma.After, 1e-6)
}

func TestLoadLine(t *testing.T) {
	p, err := Load("testdata/line.hcl")
	require.NoError(t, err)
	assert.Equal(t, "line", p.Name)
	x := p.Variables[0]
	assert.True(t, x.Vector)
	assert.Equal(t, []float64{0.1, 0.1, 0.1, 0.1, 0.1}, x.Sigmas)

	f, err := p.Fitter(fit.NewBackend(solver.New()))
	require.NoError(t, err)
	res, err := f.DoFit()
	require.NoError(t, err)
	require.Equal(t, fit.Success, res.Status)
	assert.Equal(t, 3, res.NDoF)
	assert.Equal(t, []fit.Constraint{{Name: "line", Number: 5}}, res.Constraints)

	a, _ := res.Variable("a")
	b, _ := res.Variable("b")
	assert.InDelta(t, 1, a.Value.After, 0.3)
	assert.InDelta(t, 2, b.Value.After, 0.1)
	assert.Greater(t, res.ChiSquare, 0.0)

	// fitted points satisfy the fitted line and are written back
	y := p.Variables[1].Values
	for i, xi := range x.Values {
		assert.InDelta(t, a.Value.After+b.Value.After*xi, y[i], 1e-5)
	}
}

func TestParseSettingsAndKinds(t *testing.T) {
	src := `
fit "tuned" {
  debug_level                 = 1
  constraint_accuracy         = 1e-8
  chi2_accuracy               = 1e-6
  measured_step_size_factor   = 1e-4
  unmeasured_step_size_factor = 1e-6
  minimal_step_size_factor    = 1e-12
  skip_covariances            = true
}

variable "p" {
  kind         = "fixed"
  value        = 4
  sigma        = 2
  distribution = "poisson"
  low          = 1
  step_size    = 0.1
}

variable "q" {
  values       = [1, 2]
  sigmas       = [0.1, 0.2]
  distribution = "lognormal"
  low          = 0
  high         = 10
}

covariance "q" "q" {
  values = [0.001]
}

constraint "c" {
  residual = [q[0] - p / 4, sqrt(q[1]) - sqrt(2)]
}
`
	p, err := Parse([]byte(src), "tuned.hcl")
	require.NoError(t, err)
	s := p.Settings
	assert.Equal(t, 1, s.DebugLevel)
	assert.Equal(t, 0, s.MaxIterations)
	assert.Equal(t, 1e-8, s.ConstraintAccuracy)
	assert.Equal(t, 1e-6, s.Chi2Accuracy)
	assert.Equal(t, 1e-4, s.MeasuredStepSizeFactor)
	assert.Equal(t, 1e-6, s.UnmeasuredStepSizeFactor)
	assert.Equal(t, 1e-12, s.MinimalStepSizeFactor)
	assert.True(t, s.SkipCovariancesInResult)

	fixed := p.Variables[0]
	assert.Equal(t, Fixed, fixed.Kind)
	assert.Equal(t, fit.Poissonian, fixed.Settings.Distribution)
	assert.Equal(t, 0.0, fixed.Settings.StepSize)
	assert.True(t, math.IsNaN(fixed.Settings.Limit.Low))

	q := p.Variables[1]
	assert.Equal(t, Measured, q.Kind)
	assert.Equal(t, fit.LogNormal, q.Settings.Distribution)
	assert.Equal(t, fit.Limit{Low: 0, High: 10}, q.Settings.Limit)
	assert.True(t, math.IsNaN(q.Settings.StepSize))
	assert.Equal(t, []Covariance{{First: "q", Second: "q", Values: []float64{0.001}}}, p.Covariances)
	assert.Equal(t, []string{"q", "p"}, p.Constraints[0].Variables)

	f, err := p.Fitter(fit.NewBackend(solver.New()))
	require.NoError(t, err)
	assert.Equal(t, []string{"p", "q[0]", "q[1]"}, f.VariableNames())
	res, err := f.DoFit()
	require.NoError(t, err)
	require.Equal(t, fit.Success, res.Status)
	q0, _ := res.Variable("q[0]")
	assert.InDelta(t, 1, q0.Value.After, 1e-6)
}

func TestParseErrors(t *testing.T) {
	block := func(attrs ...string) string {
		return "variable \"a\" {\n" + strings.Join(attrs, "\n") + "\n}\n"
	}
	for name, src := range map[string]string{
		"syntax":            `variable "a" {`,
		"unknown block":     `thing "a" {}`,
		"missing residual":  `constraint "c" {}`,
		"no value":          block(),
		"value and values":  block("value = 1", "values = [1]"),
		"sigma and sigmas":  block("value = 1", "sigma = 1", "sigmas = [1]"),
		"sigma count":       block("values = [1, 2]", "sigmas = [1]"),
		"unknown kind":      block("value = 1", `kind = "floating"`),
		"measured no sigma": block("value = 1", `kind = "measured"`),
		"distribution":      block("value = 1", "sigma = 1", `distribution = "cauchy"`),
		"two fit blocks":    "fit \"a\" {}\nfit \"b\" {}\n",
	} {
		_, err := Parse([]byte(src), "bad.hcl")
		assert.Error(t, err, name)
	}

	_, err := Load("testdata/missing.hcl")
	assert.Error(t, err)

	_, err = Parse([]byte("variable \"a\" {\n  value = 1\n}\n\nconstraint \"c\" {\n  variables = [\"a\"]\n}\n"), "bad.hcl")
	assert.ErrorIs(t, err, ErrInvalid)
	assert.ErrorContains(t, err, `constraint "c" has no residual`)
}

func TestUnphysicalResidual(t *testing.T) {
	src := `
variable "a" {
  value = 1
  sigma = 0.1
}

constraint "c" {
  residual = sqrt(a) + 1
}
`
	p, err := Parse([]byte(src), "unphysical.hcl")
	require.NoError(t, err)

	r := newResidual(p.Constraints[0], p.lookup)
	out, err := r.evaluate([][]float64{{4}})
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, out)
	_, err = r.evaluate([][]float64{{-1}})
	assert.ErrorIs(t, err, errNotANumber)
	out = r.Evaluate([][]float64{{-1}})
	require.Len(t, out, 1)
	assert.True(t, math.IsNaN(out[0]))

	// the first step lands at a = -3
	f, err := p.Fitter(fit.NewBackend(solver.New()))
	require.NoError(t, err)
	res, err := f.DoFit()
	require.NoError(t, err)
	assert.Equal(t, fit.UnphysicalValues, res.Status)
}

func TestResidualEvaluationErrors(t *testing.T) {
	src := `
variable "a" {
  value = 1
  sigma = 1
}

variable "b" {
  kind  = "unmeasured"
  value = 0
}

constraint "c" {
  variables = ["b"]
  residual  = b - a
}
`
	p, err := Parse([]byte(src), "undeclared.hcl")
	require.NoError(t, err)
	f, err := p.Fitter(fit.NewBackend(solver.New()))
	require.NoError(t, err)
	_, err = f.DoFit()
	assert.ErrorIs(t, err, fit.ErrConfiguration)

	src = `
variable "a" {
  value = 1
  sigma = 1
}

constraint "c" {
  residual = "text"
}
`
	p, err = Parse([]byte(src), "text.hcl")
	require.NoError(t, err)
	assert.Empty(t, p.Constraints[0].Variables)
	_, err = p.Fitter(fit.NewBackend(solver.New()))
	assert.ErrorIs(t, err, fit.ErrConfiguration)
}

func TestFunctions(t *testing.T) {
	src := `
variable "x" {
  kind  = "unmeasured"
  value = 0.5
}

constraint "c" {
  residual = [
    sqrt(4) - 2,
    exp(ln(3)) - 3,
    sum([1, 2, 3]) - 6,
    hypot(3, 4) - 5,
    abs(-x) - x,
    atan2(0, 1) + sin(0) + tan(0) + atan(0) + cos(0) - 1,
    pow(2, 3) - 8,
    max(1, 2) - min(2, 3),
    x - 1,
  ]
}
`
	p, err := Parse([]byte(src), "functions.hcl")
	require.NoError(t, err)
	r := newResidual(p.Constraints[0], p.lookup)
	out, err := r.evaluate([][]float64{{0.5}})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0, 0, 0, 0, 0, 0, 0, -0.5}, out, 1e-12)

	_, err = r.evaluate([][]float64{{math.NaN()}})
	assert.ErrorIs(t, err, errNotANumber)
	nan := r.Evaluate([][]float64{{math.Inf(1)}})
	require.Len(t, nan, 9)
	for _, v := range nan {
		assert.True(t, math.IsNaN(v))
	}

	// without a known residual count there is nothing to report
	fresh := newResidual(p.Constraints[0], p.lookup)
	assert.Panics(t, func() { fresh.Evaluate([][]float64{{math.Inf(1)}}) })

	d, err := ParseDistribution("SquareRoot")
	require.NoError(t, err)
	assert.Equal(t, fit.SquareRoot, d)
}
