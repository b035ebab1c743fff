// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import "math"

// daxpy computes 𝐲 += α𝐱 over n elements with unit strides.
func daxpy(n int, da float64, dx, dy []float64) {
	if n <= 0 || da == zero {
		return
	}
	m := uint(n % 4)
	if uint(n) > uint(len(dx)) || uint(n) > uint(len(dy)) {
		panic("bound check error")
	}
	for i := uint(0); i < m; i++ {
		dy[i] += da * dx[i]
	}
	for i := m; i < uint(n); i += 4 {
		x := dx[i : i+4 : i+4]
		y := dy[i : i+4 : i+4]
		y[0] += da * x[0]
		y[1] += da * x[1]
		y[2] += da * x[2]
		y[3] += da * x[3]
	}
}

// ddot computes the dot product 𝐱ᵀ𝐲 where 𝐱 is strided by incx.
func ddot(n int, dx []float64, incx int, dy []float64) (dot float64) {
	if n <= 0 {
		return zero
	}
	if incx == 1 {
		m := uint(n % 5)
		if uint(n) > uint(len(dx)) || uint(n) > uint(len(dy)) {
			panic("bound check error")
		}
		for i := uint(0); i < m; i++ {
			dot += dx[i] * dy[i]
		}
		for i := m; i < uint(n); i += 5 {
			x := dx[i : i+5 : i+5]
			y := dy[i : i+5 : i+5]
			dot += x[0]*y[0] + x[1]*y[1] + x[2]*y[2] + x[3]*y[3] + x[4]*y[4]
		}
		return dot
	}
	lx := uint(incx * (n - 1))
	if lx >= uint(len(dx)) || uint(n) > uint(len(dy)) {
		panic("bound check error")
	}
	for i, ix := 0, uint(0); i < n; i++ {
		dot += dx[ix] * dy[i]
		ix += uint(incx)
	}
	return dot
}

// dasum computes ∑|xᵢ|.
func dasum(dx []float64) (sum float64) {
	for _, x := range dx {
		sum += math.Abs(x)
	}
	return
}

// dfinite reports whether every element is finite.
func dfinite(dx []float64) bool {
	for _, x := range dx {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// dzero fills vector x with zero.
func dzero(dx []float64) {
	n := uint(len(dx))
	m := n % 5
	for i := uint(0); i < m; i++ {
		dx[i] = zero
	}
	for i := m; i < n; i += 5 {
		d := dx[i : i+5 : i+5]
		d[0] = zero
		d[1] = zero
		d[2] = zero
		d[3] = zero
		d[4] = zero
	}
}
