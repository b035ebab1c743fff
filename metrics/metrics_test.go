// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveFit(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveFit("sum", "Success", true, 2, 11, 0.5, time.Millisecond)
	m.ObserveFit("sum", "NoConvergence", false, 1, 6, 99, time.Millisecond)
	m.ObserveFit("sum", "Success", true, 3, 15, 0.25, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Fits.WithLabelValues("sum", "Success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fits.WithLabelValues("sum", "NoConvergence")))
	assert.Equal(t, 0.25, testutil.ToFloat64(m.Chi2.WithLabelValues("sum")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Iterations))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "confit_fits_total")
	assert.Contains(t, names, "confit_fit_duration_seconds")
}

func TestSessionSwitches(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.IncSessionSwitch()
	m.IncSessionSwitch()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionSwitches))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveFit("x", "Success", true, 1, 1, 0, time.Second)
		m.IncSessionSwitch()
	})
}

func TestUnregistered(t *testing.T) {
	// collectors without a registry can be created repeatedly
	a, b := New(nil), New(nil)
	a.IncSessionSwitch()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.SessionSwitches))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SessionSwitches))
}
