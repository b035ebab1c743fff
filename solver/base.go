// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"fmt"
	"math"
)

const (
	zero = 0.0
	one  = 1.0
	two  = 2.0
	eps  = float64(7)/3 - float64(4)/3 - 1.
)

// Iterate return codes. Negative values request another evaluation.
const (
	// EvalRequest asks the caller to evaluate the constraints at the current 𝐱.
	EvalRequest = -1
	// Success the constraints are satisfied and χ² is stable.
	Success = 0
	// NoConvergence the linearised system is rank deficient.
	NoConvergence = 1
	// TooManyIterations the iteration limit was reached.
	TooManyIterations = 2
	// UnphysicalValues a residual or a transformed value is not finite.
	UnphysicalValues = 3
	// NegativeDoF fewer constraints than unmeasured variables.
	NegativeDoF = 4
	// OutOfMemory the problem exceeds the workspace limit.
	OutOfMemory = 5
)

// Distribution selects the transform applied to a measured variable before fitting.
type Distribution int

const (
	// Gaussian fits the variable as it is.
	Gaussian Distribution = iota
	// Poissonian fits u = 2√x.
	Poissonian
	// LogNormal fits u = ln x.
	LogNormal
	// SquareRoot fits u = √x.
	SquareRoot
)

func (d Distribution) String() string {
	switch d {
	case Gaussian:
		return "Gaussian"
	case Poissonian:
		return "Poissonian"
	case LogNormal:
		return "LogNormal"
	case SquareRoot:
		return "SquareRoot"
	default:
		return fmt.Sprintf("Distribution(%d)", int(d))
	}
}

// Tuning controls the iteration. Zero, negative or NaN fields select the default.
type Tuning struct {
	// DebugLevel > 0 logs every iteration at debug level, > 1 also logs derivatives.
	DebugLevel int
	// MaxIterations bounds the number of linearisation steps.
	MaxIterations int
	// ConstraintAccuracy is the bound on ∑|𝒇ⱼ| for convergence.
	ConstraintAccuracy float64
	// Chi2Accuracy is the bound on the χ² change between two steps.
	Chi2Accuracy float64
	// MeasuredStepFactor scales σ into the derivative step of measured variables.
	MeasuredStepFactor float64
	// UnmeasuredStepFactor scales 𝚖𝚊𝚡(1,|x|) into the derivative step of unmeasured variables.
	UnmeasuredStepFactor float64
	// MinimalStepFactor scales 𝚖𝚊𝚡(1,|x|) into the smallest allowed derivative step.
	MinimalStepFactor float64
}

// DefaultTuning returns the tuning used when nothing is configured.
func DefaultTuning() Tuning {
	return Tuning{
		MaxIterations:        100,
		ConstraintAccuracy:   1e-6,
		Chi2Accuracy:         1e-5,
		MeasuredStepFactor:   1e-3,
		UnmeasuredStepFactor: 1e-5,
		MinimalStepFactor:    1e-10,
	}
}

// resolve replaces unset fields by their defaults.
func (t Tuning) resolve() Tuning {
	def := DefaultTuning()
	if t.DebugLevel < 0 {
		t.DebugLevel = 0
	}
	if t.MaxIterations <= 0 {
		t.MaxIterations = def.MaxIterations
	}
	pick := func(v *float64, d float64) {
		if math.IsNaN(*v) || *v <= 0 {
			*v = d
		}
	}
	pick(&t.ConstraintAccuracy, def.ConstraintAccuracy)
	pick(&t.Chi2Accuracy, def.Chi2Accuracy)
	pick(&t.MeasuredStepFactor, def.MeasuredStepFactor)
	pick(&t.UnmeasuredStepFactor, def.UnmeasuredStepFactor)
	pick(&t.MinimalStepFactor, def.MinimalStepFactor)
	return t
}
