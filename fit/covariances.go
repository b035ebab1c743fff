// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fit

import (
	"fmt"
	"math"
)

// pairKey identifies an unordered pair of variable names.
type pairKey struct{ a, b string }

func newPairKey(a, b string) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{a, b}
}

// covariance holds the off-diagonal entries between two variables, or the
// strict lower triangle of one variable when both names are equal.
type covariance struct {
	v1, v2 *variable
	values []*float64 // nil or NaN entries are unset
	linked bool

	cells []cell // 𝐕 coordinates of every value, valid after layout
}

type cell struct{ i, j int }

func (c *covariance) name() string {
	return c.v1.name + "," + c.v2.name
}

// element returns the element pair the k-th value couples.
func (c *covariance) element(k int) (a, b int) {
	if c.v1 == c.v2 {
		// (1,0),(2,0),(2,1),(3,0),...
		a = 1
		for a*(a+1)/2 <= k {
			a++
		}
		return a, k - a*(a-1)/2
	}
	n2 := c.v2.dim()
	return k / n2, k % n2
}

func (c *covariance) count() int {
	if c.v1 == c.v2 {
		n := c.v1.dim()
		return n * (n - 1) / 2
	}
	return c.v1.dim() * c.v2.dim()
}

func isSet(p *float64) bool {
	return p != nil && !math.IsNaN(*p)
}

// checkSigmas rejects a nonzero entry touching an element whose sigma is 0.
func (c *covariance) checkSigmas() error {
	for k, p := range c.values {
		if !isSet(p) || *p == 0 {
			continue
		}
		a, b := c.element(k)
		for _, e := range [...]struct {
			v *variable
			i int
		}{{c.v1, a}, {c.v2, b}} {
			if *e.v.sigmas[e.i] == 0 {
				return &ConfigurationError{
					Kind:    KindCovariance,
					Name:    c.name(),
					Element: e.v.elementName(e.i),
					Reason:  "covariance on an element without uncertainty",
				}
			}
		}
	}
	return nil
}

// SetCovariance stores covariances between var1 and var2. For var1 == var2
// values holds the n(n-1)/2 entries below the diagonal ordered
// (1,0),(2,0),(2,1),... Otherwise it holds n1·n2 entries, var1 indexing rows.
func (f *Fitter) SetCovariance(var1, var2 string, values ...float64) error {
	store := append([]float64(nil), values...)
	ptrs := make([]*float64, len(store))
	for k := range store {
		ptrs[k] = &store[k]
	}
	return f.addCovariance(var1, var2, ptrs, false)
}

// LinkCovariance is SetCovariance with entries read from caller memory on
// every fit. Nil or NaN entries are skipped.
func (f *Fitter) LinkCovariance(var1, var2 string, values []*float64) error {
	return f.addCovariance(var1, var2, append([]*float64(nil), values...), true)
}

func (f *Fitter) addCovariance(var1, var2 string, values []*float64, linked bool) error {
	name := var1 + "," + var2
	if var1 == "" || var2 == "" {
		return configErr(KindCovariance, name, "empty variable name")
	}
	v1, ok1 := f.lookup(var1)
	v2, ok2 := f.lookup(var2)
	switch {
	case !ok1:
		return configErr(KindCovariance, name, fmt.Sprintf("unknown variable %q", var1))
	case !ok2:
		return configErr(KindCovariance, name, fmt.Sprintf("unknown variable %q", var2))
	}
	key := newPairKey(var1, var2)
	if _, dup := f.covIdx[key]; dup {
		return configErr(KindCovariance, name, "duplicate covariance")
	}

	c := &covariance{v1: v1, v2: v2, values: values, linked: linked}
	if n := c.count(); len(values) != n {
		return configErr(KindCovariance, name, fmt.Sprintf("expected %d values, got %d", n, len(values)))
	}
	if err := c.checkSigmas(); err != nil {
		return err
	}

	f.covIdx[key] = len(f.covs)
	f.covs = append(f.covs, c)
	f.lay.invalidate()
	return nil
}
