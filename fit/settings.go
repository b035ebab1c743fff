// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fit

import (
	"math"

	"github.com/curioloop/confit/solver"
)

// Distribution selects the transform the solver applies to a measured element.
type Distribution = solver.Distribution

const (
	Gaussian   = solver.Gaussian
	Poissonian = solver.Poissonian
	LogNormal  = solver.LogNormal
	SquareRoot = solver.SquareRoot
)

// Limit bounds an element. NaN leaves a side open.
type Limit struct {
	Low, High float64
}

// NoLimit leaves both sides open.
var NoLimit = Limit{Low: math.NaN(), High: math.NaN()}

// VariableSettings are the per element solver settings.
type VariableSettings struct {
	Distribution Distribution
	Limit        Limit
	// StepSize of the numerical derivative: 0 fixes the element, NaN selects the solver default.
	StepSize float64
}

// DefaultVariableSettings returns a Gaussian, unbounded element with default step size.
func DefaultVariableSettings() VariableSettings {
	return VariableSettings{
		Distribution: Gaussian,
		Limit:        NoLimit,
		StepSize:     math.NaN(),
	}
}

// Settings tune a fitter. Zero integers and NaN floats select the solver default.
type Settings struct {
	DebugLevel               int
	MaxIterations            int
	ConstraintAccuracy       float64
	Chi2Accuracy             float64
	MeasuredStepSizeFactor   float64
	UnmeasuredStepSizeFactor float64
	MinimalStepSizeFactor    float64
	// SkipCovariancesInResult leaves Variable.Covariances empty, which saves
	// O(n²) maps for large problems. Result.CovarianceMatrix still works.
	SkipCovariancesInResult bool
}

// DefaultSettings defers every tuning decision to the solver.
func DefaultSettings() Settings {
	nan := math.NaN()
	return Settings{
		ConstraintAccuracy:       nan,
		Chi2Accuracy:             nan,
		MeasuredStepSizeFactor:   nan,
		UnmeasuredStepSizeFactor: nan,
		MinimalStepSizeFactor:    nan,
	}
}

// Tuning is the solver wide configuration pushed by Configure.
type Tuning = solver.Tuning

func (s Settings) tuning() Tuning {
	return Tuning{
		DebugLevel:           s.DebugLevel,
		MaxIterations:        s.MaxIterations,
		ConstraintAccuracy:   s.ConstraintAccuracy,
		Chi2Accuracy:         s.Chi2Accuracy,
		MeasuredStepFactor:   s.MeasuredStepSizeFactor,
		UnmeasuredStepFactor: s.UnmeasuredStepSizeFactor,
		MinimalStepFactor:    s.MinimalStepSizeFactor,
	}
}
