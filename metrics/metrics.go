// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics exposes prometheus collectors for constrained fits.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for fitters. A nil *Metrics records nothing.
type Metrics struct {
	// Fit outcomes by fitter and status
	Fits *prometheus.CounterVec

	// Linearisation steps per fit
	Iterations *prometheus.HistogramVec

	// Constraint evaluations per fit
	Evaluations *prometheus.HistogramVec

	// χ² of the last successful fit
	Chi2 *prometheus.GaugeVec

	// Wall time of DoFit including layout
	FitLatency *prometheus.HistogramVec

	// Solver reconfigurations caused by another fitter having used it
	SessionSwitches prometheus.Counter
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Fits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "confit_fits_total",
			Help: "Total fits by fitter and status",
		}, []string{"fitter", "status"}),

		Iterations: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "confit_fit_iterations",
			Help:    "Linearisation steps needed by a fit",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55, 100},
		}, []string{"fitter"}),

		Evaluations: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "confit_fit_evaluations",
			Help:    "Constraint evaluations requested by the solver during a fit",
			Buckets: prometheus.ExponentialBuckets(4, 2, 12),
		}, []string{"fitter"}),

		Chi2: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "confit_fit_chi2",
			Help: "Chi-square of the last successful fit",
		}, []string{"fitter"}),

		FitLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "confit_fit_duration_seconds",
			Help:    "Duration of a fit including layout and result assembly",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"fitter"}),

		SessionSwitches: f.NewCounter(prometheus.CounterOpts{
			Name: "confit_session_switches_total",
			Help: "Solver reconfigurations caused by switching between fitters",
		}),
	}
}

// ObserveFit records the outcome of one fit. Iteration statistics are only
// meaningful for successful fits and are skipped otherwise.
func (m *Metrics) ObserveFit(fitter, status string, success bool, iterations, evaluations int, chi2 float64, d time.Duration) {
	if m == nil {
		return
	}
	m.Fits.WithLabelValues(fitter, status).Inc()
	m.FitLatency.WithLabelValues(fitter).Observe(d.Seconds())
	if success {
		m.Iterations.WithLabelValues(fitter).Observe(float64(iterations))
		m.Evaluations.WithLabelValues(fitter).Observe(float64(evaluations))
		m.Chi2.WithLabelValues(fitter).Set(chi2)
	}
}

// IncSessionSwitch records a solver reconfiguration.
func (m *Metrics) IncSessionSwitch() {
	if m != nil {
		m.SessionSwitches.Inc()
	}
}
