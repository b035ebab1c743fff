// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAbsoluteStep(t *testing.T) {
	tun := DefaultTuning()
	nan := math.NaN()

	assert.InDelta(t, 1e-3*0.5, absoluteStep(10, 0.5, nan, 1, tun), 1e-18)
	assert.InDelta(t, 1e-5, absoluteStep(0.2, 0, nan, 1, tun), 1e-18)
	assert.InDelta(t, 1e-5*300, absoluteStep(-300, 0, nan, 1, tun), 1e-15)
	// user steps are given in 𝐱 and scaled into the fit coordinate
	assert.InDelta(t, 0.02, absoluteStep(1, 0.5, -0.04, 0.5, tun), 1e-18)

	tun.MinimalStepFactor = 1e-2
	assert.InDelta(t, 1e-2*20, absoluteStep(20, 1e-6, nan, 1, tun), 1e-15)
}

func TestAdjustToBounds(t *testing.T) {
	inf := math.Inf(1)
	nan := math.NaN()

	assert.Equal(t, diffStep{h: 0.1}, adjustToBounds(1, 0.1, nan, nan))
	assert.Equal(t, diffStep{h: 0.1}, adjustToBounds(1, 0.1, 0, 2))

	// at the lower limit: forward one-sided step
	assert.Equal(t, diffStep{h: 0.1, oneSide: true}, adjustToBounds(0, 0.1, 0, inf))
	// at the upper limit: backward one-sided step
	assert.Equal(t, diffStep{h: -0.1, oneSide: true}, adjustToBounds(5, 0.1, -inf, 5))
	// halved to stay inside a narrow interval
	assert.Equal(t, diffStep{h: 0.25, oneSide: true}, adjustToBounds(0, 1, 0, 0.5))
	// a central step of the smaller distance is preferred
	assert.Equal(t, diffStep{h: 0.4}, adjustToBounds(0.4, 1, 0, 1))
	s := adjustToBounds(0.4, 1, 0, 1.6)
	assert.True(t, s.oneSide)
	assert.InDelta(t, 0.6, s.h, 1e-12)
}

func TestDiffStepDerive(t *testing.T) {
	f := func(y float64) []float64 { return []float64{y * y, 3 * y} }
	df := make([]float64, 2)

	for _, s := range []diffStep{{h: 1e-3}, {h: 1e-3, oneSide: true}, {h: -1e-3, oneSide: true}} {
		y1, y2 := s.points(2)
		s.derive(f(2), f(y1), f(y2), df)
		assert.InDeltaSlice(t, []float64{4, 3}, df, 1e-8, "%+v", s)
	}
}

func TestTransforms(t *testing.T) {
	for _, d := range []Distribution{Gaussian, Poissonian, LogNormal, SquareRoot} {
		for _, x := range []float64{0.3, 1, 42} {
			u, du, ok := d.forward(x)
			assert.True(t, ok)
			back, dx := d.inverse(u)
			assert.InDelta(t, x, back, 1e-12, "%v", d)
			assert.InDelta(t, 1, du*dx, 1e-12, "%v", d)
		}
	}

	for _, d := range []Distribution{Poissonian, LogNormal, SquareRoot} {
		_, _, ok := d.forward(-1)
		assert.False(t, ok, "%v", d)
		assert.True(t, math.IsInf(d.bound(-1), -1), "%v", d)
	}
	assert.Equal(t, -1.0, Gaussian.bound(-1))
	assert.True(t, math.IsNaN(LogNormal.bound(math.NaN())))
	assert.Equal(t, "Distribution(7)", Distribution(7).String())
}

func TestTuningResolve(t *testing.T) {
	got := Tuning{DebugLevel: -3, MaxIterations: -1, Chi2Accuracy: math.NaN(), ConstraintAccuracy: 1e-9}.resolve()
	want := DefaultTuning()
	want.ConstraintAccuracy = 1e-9
	assert.Equal(t, want, got)
}
