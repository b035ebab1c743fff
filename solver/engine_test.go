// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"math"
	"testing"

	"github.com/curioloop/confit/symmat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drive answers every evaluation request of e with fn until a final status.
func drive(t *testing.T, e *Engine, x, v []float64, m int, fn func(x, f []float64)) int {
	t.Helper()
	f := make([]float64, m)
	status := EvalRequest
	for n := 0; status < 0; n++ {
		require.Less(t, n, 100000, "no final status")
		fn(x, f)
		status = e.Iterate(x, v, f)
	}
	return status
}

func packed(sigmas ...float64) []float64 {
	v := symmat.New(len(sigmas))
	for i, s := range sigmas {
		v[symmat.Diag(i)] = s * s
	}
	return v
}

func TestEngineErrorPropagation(t *testing.T) {
	e := New()
	x := []float64{10, 20, 0}
	v := packed(0.3, 0.4, 0)

	e.Initialize(3, 1)
	status := drive(t, e, x, v, 1, func(x, f []float64) {
		f[0] = x[2] - x[0] - x[1]
	})
	require.Equal(t, Success, status)

	assert.InDelta(t, 10, x[0], 1e-6)
	assert.InDelta(t, 20, x[1], 1e-6)
	assert.InDelta(t, 30, x[2], 1e-6)

	assert.InDelta(t, 0.09, v[symmat.Index(0, 0)], 1e-9)
	assert.InDelta(t, 0.16, v[symmat.Index(1, 1)], 1e-9)
	assert.InDelta(t, 0.25, v[symmat.Index(2, 2)], 1e-9)
	assert.InDelta(t, 0.09, v[symmat.Index(2, 0)], 1e-9)
	assert.InDelta(t, 0.16, v[symmat.Index(2, 1)], 1e-9)
	assert.InDelta(t, 0, v[symmat.Index(1, 0)], 1e-9)

	chi2, ndof, p := e.ChiSquareAndDoF()
	assert.InDelta(t, 0, chi2, 1e-12)
	assert.Equal(t, 0, ndof)
	assert.Equal(t, 1.0, p)

	pulls := make([]float64, 3)
	e.Pulls(pulls)
	assert.Equal(t, []float64{0, 0, 0}, pulls)
}

func TestEngineAverage(t *testing.T) {
	e := New()
	x := []float64{1, 2}
	v := packed(1, 1)

	e.Initialize(2, 1)
	status := drive(t, e, x, v, 1, func(x, f []float64) {
		f[0] = x[0] - x[1]
	})
	require.Equal(t, Success, status)

	assert.InDelta(t, 1.5, x[0], 1e-9)
	assert.InDelta(t, 1.5, x[1], 1e-9)
	assert.InDelta(t, 0.5, v[symmat.Index(0, 0)], 1e-9)
	assert.InDelta(t, 0.5, v[symmat.Index(1, 0)], 1e-9)

	chi2, ndof, p := e.ChiSquareAndDoF()
	assert.InDelta(t, 0.5, chi2, 1e-9)
	assert.Equal(t, 1, ndof)
	assert.InDelta(t, 0.4795, p, 1e-4)

	pulls := make([]float64, 2)
	e.Pulls(pulls)
	assert.InDelta(t, math.Sqrt2/2, pulls[0], 1e-6)
	assert.InDelta(t, -math.Sqrt2/2, pulls[1], 1e-6)

	_, calls, iters := e.FitStatistics()
	assert.Equal(t, 2, iters)
	assert.Equal(t, 11, calls)

	// a finished fit keeps reporting its status
	assert.Equal(t, Success, e.Iterate(x, v, []float64{0}))
}

func TestEngineNonLinear(t *testing.T) {
	e := New()
	x := []float64{2, 3}
	v := packed(0.1, 0.1)

	e.Initialize(2, 1)
	status := drive(t, e, x, v, 1, func(x, f []float64) {
		f[0] = x[0]*x[1] - 6.5
	})
	require.Equal(t, Success, status)
	assert.InDelta(t, 6.5, x[0]*x[1], 1e-6)
	// the relative change is shared according to the values
	assert.Greater(t, x[0], 2.0)
	assert.Greater(t, x[1], 3.0)
	_, _, iters := e.FitStatistics()
	assert.Greater(t, iters, 1)
}

func TestEngineFixed(t *testing.T) {
	e := New()
	x := []float64{1, 3}
	v := packed(1, 1)

	e.Initialize(2, 1)
	e.SetStepSize(1, 0)
	status := drive(t, e, x, v, 1, func(x, f []float64) {
		f[0] = x[0] - x[1]
	})
	require.Equal(t, Success, status)
	assert.InDelta(t, 3, x[0], 1e-9)
	assert.Equal(t, 3.0, x[1])
	assert.InDelta(t, 0, v[symmat.Index(0, 0)], 1e-9)
	assert.Equal(t, 1.0, v[symmat.Index(1, 1)])

	pulls := make([]float64, 2)
	e.Pulls(pulls)
	assert.InDelta(t, 2, pulls[0], 1e-6)
	assert.Equal(t, 0.0, pulls[1])

	// settings survive a new fit of the same size
	x = []float64{1, 3}
	v = packed(1, 1)
	e.Initialize(2, 1)
	require.Equal(t, Success, drive(t, e, x, v, 1, func(x, f []float64) { f[0] = x[0] - x[1] }))
	assert.Equal(t, 3.0, x[1])
}

func TestEngineLimits(t *testing.T) {
	e := New()
	x := []float64{0, 2}
	v := packed(0, 1)

	e.Initialize(2, 1)
	e.SetLimits(0, 0, math.NaN())
	status := drive(t, e, x, v, 1, func(x, f []float64) {
		require.GreaterOrEqual(t, x[0], 0.0)
		f[0] = x[0] - x[1]
	})
	require.Equal(t, Success, status)
	assert.InDelta(t, 2, x[0], 1e-9)
}

func TestEngineLogNormal(t *testing.T) {
	e := New()
	x := []float64{10, 20, 0}
	v := packed(1, 2, 0)

	e.Initialize(3, 1)
	e.SetDistribution(0, LogNormal)
	status := drive(t, e, x, v, 1, func(x, f []float64) {
		f[0] = x[2] - x[0] - x[1]
	})
	require.Equal(t, Success, status)
	assert.InDelta(t, 30, x[2], 1e-6)
	assert.InDelta(t, 1, v[symmat.Index(0, 0)], 1e-6)
	assert.InDelta(t, 5, v[symmat.Index(2, 2)], 1e-4)
}

func TestEngineFailures(t *testing.T) {
	sum := func(x, f []float64) { f[0] = x[2] - x[0] - x[1] }

	t.Run("negative dof", func(t *testing.T) {
		e := New()
		e.Initialize(2, 0)
		assert.Equal(t, NegativeDoF, drive(t, e, []float64{1, 2}, packed(0, 1), 0, func(x, f []float64) {}))
	})

	t.Run("invalid transform", func(t *testing.T) {
		e := New()
		e.Initialize(3, 1)
		e.SetDistribution(0, LogNormal)
		assert.Equal(t, UnphysicalValues, drive(t, e, []float64{-1, 2, 0}, packed(1, 1, 0), 1, sum))
	})

	t.Run("non-finite residual", func(t *testing.T) {
		e := New()
		e.Initialize(3, 1)
		assert.Equal(t, UnphysicalValues, drive(t, e, []float64{1, 2, 0}, packed(1, 1, 0), 1, func(x, f []float64) {
			f[0] = math.Log(x[2] - 1)
		}))
	})

	t.Run("iteration limit", func(t *testing.T) {
		e := New()
		e.Initialize(2, 1)
		e.Configure(Tuning{MaxIterations: 1})
		assert.Equal(t, TooManyIterations, drive(t, e, []float64{2, 3}, packed(0.1, 0.1), 1, func(x, f []float64) {
			f[0] = x[0]*x[1] - 6.5
		}))
	})

	t.Run("rank deficient", func(t *testing.T) {
		e := New()
		e.Initialize(2, 2)
		assert.Equal(t, NoConvergence, drive(t, e, []float64{1, 2}, packed(1, 1), 2, func(x, f []float64) {
			f[0] = x[0] - x[1]
			f[1] = x[0] - x[1]
		}))
	})

	t.Run("workspace", func(t *testing.T) {
		e := New(WithWorkspaceLimit(10))
		e.Initialize(3, 1)
		assert.Equal(t, OutOfMemory, drive(t, e, []float64{1, 2, 0}, packed(1, 1, 0), 1, sum))
	})
}

func TestEngineNoConstraints(t *testing.T) {
	e := New()
	x := []float64{4, 5}
	v := packed(2, 3)

	e.Initialize(2, 0)
	require.Equal(t, Success, drive(t, e, x, v, 0, func(x, f []float64) {}))
	assert.Equal(t, []float64{4, 5}, x)
	assert.InDelta(t, 4, v[symmat.Index(0, 0)], 1e-12)
	assert.InDelta(t, 9, v[symmat.Index(1, 1)], 1e-12)
}
