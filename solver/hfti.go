// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import "math"

// lsqWork is the working space of hfti, sized for the largest system seen so far.
type lsqWork struct {
	h, g, norm []float64
	ip         []int
}

func (w *lsqWork) ensure(n, nb int) {
	if len(w.h) < n {
		w.h = make([]float64, n)
		w.g = make([]float64, n)
		w.ip = make([]int, n)
	}
	if len(w.norm) < nb {
		w.norm = make([]float64, nb)
	}
}

// solve runs hfti with the pseudo-rank tolerance 𝛕 = rtol·𝚖𝚊𝚡|aᵢⱼ|.
func (w *lsqWork) solve(a []float64, mda, m, n int, b []float64, mdb, nb int, rtol float64) int {
	w.ensure(max(m, n), nb)
	amax := zero
	for j := 0; j < n; j++ {
		for _, t := range a[mda*j : mda*j+m] {
			amax = math.Max(amax, math.Abs(t))
		}
	}
	return hfti(a, mda, m, n, b, mdb, nb, rtol*amax, w.norm, w.h, w.g, w.ip)
}

// hfti (Householder Forward Triangulation with column Interchanges) solves the
// linear least squares problem 𝐀𝐗 ≅ 𝐁 in column-major storage.
//   - 𝐀 is m × n with 𝚙𝚜𝚎𝚞𝚍𝚘-𝚛𝚊𝚗𝚔(𝐀) = k
//   - 𝐁 is m × nb, overwritten by the n × nb minimum length solution 𝐗
//
// The factorisation 𝐐𝐀𝐏 = [𝐑₁₁ 𝐑₁₂; ೦ 𝐑₂₂] picks at each step the remaining
// column with the largest norm. Diagonal elements |𝐑ⱼⱼ| ≤ 𝛕 end the pseudo-rank,
// 𝐑₂₂ is dropped and [𝐑₁₁:𝐑₁₂]𝐊 = [𝐖:೦] is triangulated from the right, so that
//
//	𝐱 = 𝐏𝐊[𝐖⁻¹𝐜₁ ೦]ᵀ   with   𝐜 = 𝐐𝐛 = [𝐜₁ 𝐜₂]ᵀ   and   ‖𝐫‖ = ‖𝐜₂‖
//
// On return norm[j] holds the residual norm of the j-th column of 𝐁 and the
// pseudo-rank k is returned. A full rank square system gives k = n.
//
// C.L. Lawson, R.J. Hanson, 'Solving least squares problems' Prentice Hall, 1974. (revised 1995 edition)
// Chapters 14, Algorithm 14.9.
func hfti(a []float64, mda, m, n int, b []float64, mdb, nb int, tau float64, norm, h, g []float64, ip []int) int {

	const factor = 0.001

	diag := min(m, n)
	if diag <= 0 {
		return 0
	}

	if n > len(h) || diag > len(g) || diag > len(ip) {
		panic("bound check error")
	}

	hmax := zero
	for j := 0; j < diag; j++ {
		// Downdate the squared column lengths and pick the longest one.
		lmax := j
		if j > 0 {
			v := math.NaN()
			for l := j; l < n; l++ {
				t := a[(j-1)+mda*l]
				if h[l] -= t * t; !(h[l] <= v) {
					lmax, v = l, h[l]
				}
			}
		}
		// Recompute them from scratch when cancellation got too large.
		if j == 0 || factor*h[lmax] < hmax*eps {
			v := math.NaN()
			for l := j; l < n; l++ {
				sm := zero
				for _, t := range a[j+mda*l : m+mda*l] {
					sm += t * t
				}
				if h[l] = sm; !(h[l] <= v) {
					lmax, v = l, h[l]
				}
			}
			hmax = h[lmax]
		}

		// Column interchange 𝐏ⱼ.
		ip[j] = lmax
		if lmax != j {
			c1, c2 := a[mda*j:mda*j+m], a[mda*lmax:mda*lmax+m]
			for i := range c1 {
				c1[i], c2[i] = c2[i], c1[i]
			}
			h[lmax] = h[j]
		}

		// 𝐐ⱼ applied to the remaining columns of 𝐀 and to 𝐁.
		i := min(j+1, n-1)
		h[j] = h1(j, j+1, m, a[mda*j:], 1)
		h2(j, j+1, m, a[mda*j:], 1, h[j], a[mda*i:], 1, mda, n-j-1)
		h2(j, j+1, m, a[mda*j:], 1, h[j], b, 1, mdb, nb)
	}

	k := diag
	for j := 0; j < diag; j++ {
		if math.Abs(a[j+mda*j]) <= tau {
			k = j
			break
		}
	}

	if nb > len(norm) {
		panic("bound check error")
	}

	// ‖𝐜₂‖ for every right hand side
	for jb := 0; jb < nb; jb++ {
		sm := zero
		if k < m {
			for _, t := range b[mdb*jb+k : mdb*jb+m] {
				sm += t * t
			}
		}
		norm[jb] = math.Sqrt(sm)
	}

	if k == 0 {
		for jb := 0; jb < nb; jb++ {
			dzero(b[mdb*jb : mdb*jb+n])
		}
		return 0
	}

	if k < n {
		for i := k - 1; i >= 0; i-- {
			g[i] = h1(i, k, n, a[i:], mda)
			h2(i, k, n, a[i:], mda, g[i], a, mda, 1, i)
		}
	}

	for jb := 0; jb < nb; jb++ {
		cb := b[mdb*jb:]
		if n > len(cb) {
			panic("bound check error")
		}

		// 𝐖𝐲₁ = 𝐜₁
		for i := k - 1; i >= 0; i-- {
			sm := zero
			for j := i + 1; j < k; j++ {
				sm += a[i+mda*j] * cb[j]
			}
			cb[i] = (cb[i] - sm) / a[i+mda*i]
		}

		// 𝐊[𝐲₁ ೦]ᵀ
		if k < n {
			dzero(cb[k:n])
			for i := 0; i < k; i++ {
				h2(i, k, n, a[i:], mda, g[i], cb, 1, mdb, 1)
			}
		}

		// undo 𝐏
		for j := diag - 1; j >= 0; j-- {
			if l := ip[j]; l != j {
				cb[l], cb[j] = cb[j], cb[l]
			}
		}
	}
	return k
}

// h1 constructs the Householder transformation 𝐐 = 𝐈ₘ - b⁻¹𝐮𝐮ᵀ with b = s·uₚ
// that zeroes the elements l ··· m-1 of 𝐯 against the pivot p.
// On return 𝐯 holds 𝐮 except uₚ, which is returned separately.
//
// C.L. Lawson, R.J. Hanson, 'Solving least squares problems' Prentice Hall, 1974. (revised 1995 edition)
// Chapters 10.
func h1(p, l, m int, v []float64, ive int) (up float64) {
	if p < 0 || p >= l || l >= m {
		return
	}

	lp := uint(p * ive)
	l1 := uint(l * ive)
	lm := uint((m - 1) * ive)
	if ive <= 0 || lp >= uint(len(v)) || l1 >= uint(len(v)) || lm >= uint(len(v)) {
		panic("bound check error")
	}

	vmax := math.Abs(v[lp])
	for j := l1; j <= lm; j += uint(ive) {
		vmax = math.Max(math.Abs(v[j]), vmax)
	}
	if vmax <= zero {
		return
	}

	inv := one / vmax
	sum := math.Pow(v[lp]*inv, 2)
	for j := l1; j <= lm; j += uint(ive) {
		sum += math.Pow(v[j]*inv, 2)
	}

	s := vmax * math.Sqrt(sum)
	if v[lp] > zero {
		s = -s
	}
	up = v[lp] - s
	v[lp] = s
	return
}

// h2 applies the transformation built by h1 to ncv vectors of c,
// whose elements are ice apart and whose starts are icv apart.
func h2(p, l, m int, u []float64, iue int, up float64, c []float64, ice, icv, ncv int) {
	if p < 0 || p >= l || l >= m || ncv <= 0 {
		return
	}

	b := u[p*iue] * up
	if b >= zero {
		return
	}
	b = one / b

	base := uint(ice * p)
	incr := uint(ice * (l - p))
	l1 := uint(l * iue)
	lm := uint((m - 1) * iue)
	lu, lc := uint(len(u)), uint(len(c))
	ln := base + uint(icv)*(uint(ncv)-1)
	if iue <= 0 || l1 >= lu || lm >= lu || base >= lc || ln >= lc {
		panic("bound check error")
	}

	for j := base; j <= ln; j += uint(icv) {
		c1, cm := j+incr, (j+incr)+uint(m-l-1)*uint(ice)
		if c1 >= lc || cm >= lc {
			panic("bound check error")
		}
		sm := c[j] * up
		for iu, ic := l1, c1; iu <= lm && ic <= cm; {
			sm += c[ic] * u[iu]
			ic += uint(ice)
			iu += uint(iue)
		}
		if sm != zero {
			sm *= b
			c[j] += sm * up
			for iu, ic := l1, c1; iu <= lm && ic <= cm; {
				c[ic] += sm * u[iu]
				ic += uint(ice)
				iu += uint(iue)
			}
		}
	}
}
