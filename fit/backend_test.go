// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fit_test

import (
	"math"
	"testing"

	"github.com/curioloop/confit/fit"
	"github.com/curioloop/confit/fit/mocks"
	"github.com/curioloop/confit/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// allowSettings accepts any per element setting.
func allowSettings(s *mocks.MockSolver) {
	s.EXPECT().SetDistribution(gomock.Any(), gomock.Any()).AnyTimes()
	s.EXPECT().SetLimits(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	s.EXPECT().SetStepSize(gomock.Any(), gomock.Any()).AnyTimes()
}

func TestArityRejectedBeforeSolver(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockSolver(ctrl) // any call fails the test

	f := fit.New("arity", fit.NewBackend(s))
	require.NoError(t, f.AddMeasured("a", 1, 1))
	require.NoError(t, f.AddMeasured("b", 2, 1))

	err := f.AddConstraint("c", []string{"a"}, func(a, b float64) float64 { return a - b })
	var ce *fit.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, fit.KindConstraint, ce.Kind)
	assert.Equal(t, "c", ce.Name)
	assert.Empty(t, f.ConstraintNames())
}

func TestUnknownSolverStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockSolver(ctrl)
	s.EXPECT().Initialize(1, 1)
	s.EXPECT().Configure(gomock.Any())
	allowSettings(s)
	gomock.InOrder(
		s.EXPECT().Iterate(gomock.Any(), gomock.Any(), gomock.Any()).Return(-1),
		s.EXPECT().Iterate(gomock.Any(), gomock.Any(), gomock.Any()).Return(42),
	)

	evaluations := 0
	f := fit.New("contract", fit.NewBackend(s))
	require.NoError(t, f.AddUnmeasured("x", 0))
	require.NoError(t, f.AddConstraint("c", []string{"x"}, func(x float64) float64 {
		evaluations++
		return x
	}))

	res, err := f.DoFit()
	assert.Nil(t, res)
	require.ErrorIs(t, err, fit.ErrSolverContract)
	var se *fit.SolverContractError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 42, se.Status)
	// once at layout, then before every Iterate
	assert.Equal(t, 3, evaluations)
}

func TestStatusDecoding(t *testing.T) {
	for code, want := range map[int]fit.Status{
		0: fit.Success,
		1: fit.NoConvergence,
		2: fit.TooManyIterations,
		3: fit.UnphysicalValues,
		4: fit.NegativeDoF,
		5: fit.OutOfMemory,
	} {
		ctrl := gomock.NewController(t)
		s := mocks.NewMockSolver(ctrl)
		s.EXPECT().Initialize(gomock.Any(), gomock.Any())
		s.EXPECT().Configure(gomock.Any())
		allowSettings(s)
		s.EXPECT().Iterate(gomock.Any(), gomock.Any(), gomock.Any()).Return(code)
		if want == fit.Success {
			s.EXPECT().ChiSquareAndDoF().Return(0.0, 0, 1.0)
			s.EXPECT().FitStatistics().Return(0.0, 1, 0)
			s.EXPECT().Pulls(gomock.Any())
		}

		f := fit.New("status", fit.NewBackend(s))
		require.NoError(t, f.AddUnmeasured("x", 0))
		require.NoError(t, f.AddConstraint("c", []string{"x"}, func(x float64) float64 { return x }))

		res, err := f.DoFit()
		require.NoError(t, err, code)
		assert.Equal(t, want, res.Status, code)
		assert.Equal(t, want == fit.Success, len(res.Variables) == 1, code)
	}
}

func TestSessionSwitchReconfigures(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockSolver(ctrl)
	s.EXPECT().Initialize(gomock.Any(), gomock.Any()).AnyTimes()
	s.EXPECT().Iterate(gomock.Any(), gomock.Any(), gomock.Any()).Return(1).AnyTimes()
	allowSettings(s)
	// first, second after the switch, first again after switching back
	s.EXPECT().Configure(gomock.Any()).Times(3)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	backend := fit.NewBackend(s)

	newProblem := func(name string) *fit.Fitter {
		f := fit.New(name, backend, fit.WithMetrics(m))
		require.NoError(t, f.AddUnmeasured("x", 0))
		require.NoError(t, f.AddConstraint("c", []string{"x"}, func(x float64) float64 { return x }))
		return f
	}
	first, second := newProblem("first"), newProblem("second")
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, uuid.Nil, backend.Active())

	for _, f := range []*fit.Fitter{first, first, second, first} {
		res, err := f.DoFit()
		require.NoError(t, err)
		assert.Equal(t, fit.NoConvergence, res.Status)
		assert.Equal(t, f.ID(), backend.Active())
	}
	assert.Equal(t, 2, backend.Switches())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionSwitches))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Fits.WithLabelValues("first", "NoConvergence")))
}

func TestSettingsPushed(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockSolver(ctrl)

	settings := fit.DefaultSettings()
	settings.MaxIterations = 7
	limit := fit.Limit{Low: 0, High: 10}

	s.EXPECT().Initialize(2, 1)
	var tuning fit.Tuning
	s.EXPECT().Configure(gomock.Any()).Do(func(tu fit.Tuning) { tuning = tu })
	s.EXPECT().SetDistribution(0, fit.LogNormal)
	s.EXPECT().SetLimits(0, 0.0, 10.0)
	s.EXPECT().SetStepSize(0, 0.5)
	s.EXPECT().SetDistribution(1, fit.Gaussian)
	s.EXPECT().SetLimits(1, gomock.Any(), gomock.Any())
	s.EXPECT().SetStepSize(1, 0.0)
	s.EXPECT().Iterate(gomock.Any(), gomock.Any(), gomock.Any()).Return(3)

	f := fit.New("settings", fit.NewBackend(s), fit.WithSettings(settings))
	require.NoError(t, f.AddMeasured("a", 1, 0.1, fit.VariableSettings{Distribution: fit.LogNormal, Limit: limit, StepSize: 0.5}))
	require.NoError(t, f.AddFixed("b", 2, 0.1, fit.Gaussian))
	require.NoError(t, f.AddConstraint("c", []string{"a", "b"}, func(a, b float64) float64 { return a - b }))

	res, err := f.DoFit()
	require.NoError(t, err)
	assert.Equal(t, fit.UnphysicalValues, res.Status)
	assert.Equal(t, "settings", f.Name())
	assert.Equal(t, 7, f.Settings().MaxIterations)
	assert.Equal(t, 7, tuning.MaxIterations)
	assert.True(t, math.IsNaN(tuning.Chi2Accuracy))
}
