// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symmat stores symmetric matrices in packed lower-triangular form.
//
// The element (i, j) of an n × n symmetric matrix 𝐕 lives at
//
//	𝚒𝚗𝚍𝚎𝚡(i, j) = 𝚖𝚊𝚡(i,j)·(𝚖𝚊𝚡(i,j)+1)/2 + 𝚖𝚒𝚗(i,j)
//
// so row k occupies the k+1 slots starting at k·(k+1)/2:
//
//	⎡ v₀                ⎤    [ v₀ | v₁ v₂ | v₃ v₄ v₅ | ··· ]
//	⎥ v₁  v₂            ⎥
//	⎣ v₃  v₄  v₅        ⎦
//
// This is the layout the fitter exchanges with the solver.
package symmat

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is returned when a row or column lies outside the matrix.
var ErrOutOfRange = errors.New("symmat: index out of range")

// Index returns the packed offset of element (i, j). Index(i, j) == Index(j, i).
func Index(i, j int) int {
	if i < j {
		i, j = j, i
	}
	return i*(i+1)/2 + j
}

// Diag returns the packed offset of the diagonal element (i, i).
func Diag(i int) int {
	return (i+1)*(i+2)/2 - 1
}

// Size returns the packed storage size n·(n+1)/2 of an n × n matrix.
func Size(n int) int {
	return n * (n + 1) / 2
}

// Dim recovers n from a packed storage size, or -1 if size is not triangular.
func Dim(size int) int {
	n := 0
	for Size(n) < size {
		n++
	}
	if Size(n) != size {
		return -1
	}
	return n
}

// Packed is a symmetric matrix in packed storage.
type Packed []float64

// New allocates a zero n × n packed matrix.
func New(n int) Packed {
	if n < 0 {
		n = 0
	}
	return make(Packed, Size(n))
}

// Dim returns the matrix order n.
func (p Packed) Dim() int {
	return Dim(len(p))
}

func (p Packed) check(i, j int) error {
	n := p.Dim()
	if i < 0 || j < 0 || i >= n || j >= n {
		return fmt.Errorf("%w: (%d, %d) in %d × %d", ErrOutOfRange, i, j, n, n)
	}
	return nil
}

// At returns element (i, j).
func (p Packed) At(i, j int) (float64, error) {
	if err := p.check(i, j); err != nil {
		return 0, err
	}
	return p[Index(i, j)], nil
}

// Set assigns element (i, j), and therefore (j, i).
func (p Packed) Set(i, j int, v float64) error {
	if err := p.check(i, j); err != nil {
		return err
	}
	p[Index(i, j)] = v
	return nil
}

// Clone returns an independent copy.
func (p Packed) Clone() Packed {
	c := make(Packed, len(p))
	copy(c, p)
	return c
}
