// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import "math"

// diffStep is the finite difference scheme chosen for one variable.
//
// A central step evaluates 𝒇(y-h) and 𝒇(y+h):
//
//	𝒇'(y) ≈ (𝒇(y+h) - 𝒇(y-h)) / 2h
//
// A one-sided step is taken when y±h leaves the limits. It evaluates 𝒇(y+h)
// and 𝒇(y+2h) with h of either sign and keeps second order accuracy:
//
//	𝒇'(y) ≈ (4𝒇(y+h) - 3𝒇(y) - 𝒇(y+2h)) / 2h
type diffStep struct {
	h       float64
	oneSide bool
}

// points returns the two abscissae at which 𝒇 is evaluated.
func (s diffStep) points(y float64) (y1, y2 float64) {
	if s.oneSide {
		return y + s.h, y + 2*s.h
	}
	return y - s.h, y + s.h
}

// derive combines 𝒇(y), 𝒇(y1) and 𝒇(y2) into the derivative column.
func (s diffStep) derive(f0, f1, f2, df []float64) {
	d := one / (two * s.h)
	if s.oneSide {
		for j := range df {
			df[j] = (4*f1[j] - 3*f0[j] - f2[j]) * d
		}
		return
	}
	for j := range df {
		df[j] = (f2[j] - f1[j]) * d
	}
}

// absoluteStep picks the raw step size of a free variable.
//   - a user step (finite, nonzero) wins and is scaled by the transform slope
//   - measured variables use factor·σ
//   - unmeasured variables use factor·𝚖𝚊𝚡(1,|y|)
//
// The result never drops below minimal·𝚖𝚊𝚡(1,|y|) and never vanishes in y+h.
func absoluteStep(y, sigma, user, slope float64, t Tuning) float64 {
	scale := math.Max(one, math.Abs(y))

	var h float64
	switch {
	case !math.IsNaN(user) && user != zero:
		h = math.Abs(user * slope)
	case sigma > zero:
		h = t.MeasuredStepFactor * sigma
	default:
		h = t.UnmeasuredStepFactor * scale
	}

	if floor := t.MinimalStepFactor * scale; !(h >= floor) {
		h = floor
	}
	if (y+h)-y == zero {
		h = math.Cbrt(eps) * scale
	}
	return h
}

// adjustToBounds turns a central step h > 0 into one that keeps both
// evaluation points inside [lb, ub], falling back to a one-sided step.
func adjustToBounds(y, h, lb, ub float64) diffStep {
	if math.IsNaN(lb) {
		lb = math.Inf(-1)
	}
	if math.IsNaN(ub) {
		ub = math.Inf(1)
	}

	ld, ud := y-lb, ub-y
	if ld >= h && ud >= h {
		return diffStep{h: h}
	}

	s := diffStep{h: h, oneSide: true}
	if ud >= ld {
		s.h = math.Min(h, 0.5*ud)
	} else {
		s.h = -math.Min(h, 0.5*ld)
	}

	// A central step of the smaller distance beats a one-sided one that is no larger.
	if minDist := math.Min(ud, ld); math.Abs(s.h) <= minDist {
		return diffStep{h: minDist}
	}
	return s
}
