// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import "math"

// forward maps x onto the fit coordinate u = g(x) and returns g'(x).
// ok is false when x is outside the domain of the transform.
func (d Distribution) forward(x float64) (u, slope float64, ok bool) {
	switch d {
	case LogNormal:
		if !(x > zero) {
			return math.NaN(), math.NaN(), false
		}
		return math.Log(x), one / x, true
	case SquareRoot:
		if !(x > zero) {
			return math.NaN(), math.NaN(), false
		}
		r := math.Sqrt(x)
		return r, one / (two * r), true
	case Poissonian:
		if !(x > zero) {
			return math.NaN(), math.NaN(), false
		}
		r := math.Sqrt(x)
		return two * r, one / r, true
	default:
		return x, one, true
	}
}

// inverse maps u back to x = g⁻¹(u) and returns dx/du.
func (d Distribution) inverse(u float64) (x, slope float64) {
	switch d {
	case LogNormal:
		x = math.Exp(u)
		return x, x
	case SquareRoot:
		return u * u, two * u
	case Poissonian:
		return u * u / 4, u / 2
	default:
		return u, one
	}
}

// bound maps a limit onto the fit coordinate. Limits outside the domain
// of the transform become -∞, NaN stays NaN.
func (d Distribution) bound(x float64) float64 {
	if math.IsNaN(x) {
		return x
	}
	if u, _, ok := d.forward(x); ok {
		return u
	}
	return math.Inf(-1)
}
