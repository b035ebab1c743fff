// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fit

import (
	"fmt"
	"math"
	"strconv"
)

// variable is a named block of scalar elements. Values and sigmas are always
// reached through pointers, which point either into owned storage or into
// caller memory when linked.
type variable struct {
	name     string
	values   []*float64
	sigmas   []*float64
	pulls    []*float64 // nil unless a pull sink is linked
	settings []VariableSettings

	linkedValues bool
	linkedSigmas bool

	offset int // first slot in 𝐗, valid after layout
}

func (v *variable) dim() int { return len(v.values) }

// elementName returns the flat name of element k.
func (v *variable) elementName(k int) string {
	return elementName(v.name, k, v.dim())
}

func elementName(name string, k, dim int) string {
	if dim == 1 {
		return name
	}
	return name + "[" + strconv.Itoa(k) + "]"
}

func (f *Fitter) lookup(name string) (*variable, bool) {
	i, ok := f.varIdx[name]
	if !ok {
		return nil, false
	}
	return f.vars[i], true
}

func (f *Fitter) register(v *variable) {
	f.varIdx[v.name] = len(f.vars)
	f.vars = append(f.vars, v)
	f.lay.invalidate()
}

func (f *Fitter) checkName(name string) error {
	if name == "" {
		return configErr(KindVariable, name, "empty name")
	}
	if _, dup := f.varIdx[name]; dup {
		return configErr(KindVariable, name, "duplicate name")
	}
	return nil
}

func single(value, sigma float64, set VariableSettings, name string) *variable {
	store := []float64{value, sigma}
	return &variable{
		name:     name,
		values:   []*float64{&store[0]},
		sigmas:   []*float64{&store[1]},
		settings: []VariableSettings{set},
	}
}

func optionalSettings(name string, settings []VariableSettings) (VariableSettings, error) {
	switch len(settings) {
	case 0:
		return DefaultVariableSettings(), nil
	case 1:
		return settings[0], nil
	default:
		return VariableSettings{}, configErr(KindVariable, name, fmt.Sprintf("expected at most one settings value, got %d", len(settings)))
	}
}

// AddMeasured registers a scalar element with value ± sigma.
func (f *Fitter) AddMeasured(name string, value, sigma float64, settings ...VariableSettings) error {
	set, err := optionalSettings(name, settings)
	switch {
	case err != nil:
	case sigma == 0:
		err = configErr(KindVariable, name, "measured variables require nonzero sigma")
	case set.StepSize == 0:
		err = configErr(KindVariable, name, "measured variables require nonzero step size")
	case math.IsNaN(sigma) || math.IsInf(sigma, 0):
		err = configErr(KindVariable, name, "sigma must be finite")
	default:
		err = f.checkName(name)
	}
	if err != nil {
		return err
	}
	f.register(single(value, sigma, set, name))
	return nil
}

// AddUnmeasured registers a scalar element without uncertainty (sigma 0).
func (f *Fitter) AddUnmeasured(name string, value float64, settings ...VariableSettings) error {
	set, err := optionalSettings(name, settings)
	switch {
	case err != nil:
	case set.StepSize == 0:
		err = configErr(KindVariable, name, "unmeasured variables require nonzero step size")
	default:
		err = f.checkName(name)
	}
	if err != nil {
		return err
	}
	f.register(single(value, 0, set, name))
	return nil
}

// AddFixed registers a scalar element that the fit does not move. Its value,
// sigma and covariances come back unchanged. Step size and limits are forced.
func (f *Fitter) AddFixed(name string, value, sigma float64, distribution Distribution) error {
	var err error
	switch {
	case sigma == 0:
		err = configErr(KindVariable, name, "fixed variables require nonzero sigma")
	case math.IsNaN(sigma) || math.IsInf(sigma, 0):
		err = configErr(KindVariable, name, "sigma must be finite")
	default:
		err = f.checkName(name)
	}
	if err != nil {
		return err
	}
	set := VariableSettings{Distribution: distribution, Limit: NoLimit, StepSize: 0}
	f.register(single(value, sigma, set, name))
	return nil
}

// LinkVariable binds a variable to caller memory. After a successful fit the
// fitted values are written through values. sigmas holds one constant per
// element or a single constant for all of them. settings holds nothing
// (defaults), one value for all elements or one per element.
func (f *Fitter) LinkVariable(name string, values []*float64, sigmas []float64, settings ...VariableSettings) error {
	v, err := f.linked(name, values, settings)
	if err != nil {
		return err
	}
	switch len(sigmas) {
	case len(values):
	case 1:
		c := sigmas[0]
		sigmas = make([]float64, len(values))
		for k := range sigmas {
			sigmas[k] = c
		}
	default:
		return configErr(KindVariable, name, fmt.Sprintf("expected 1 or %d sigmas, got %d", len(values), len(sigmas)))
	}
	for k, s := range sigmas {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return &ConfigurationError{Kind: KindVariable, Name: name, Element: elementName(name, k, len(values)), Reason: "sigma must be finite"}
		}
	}
	store := make([]float64, len(sigmas))
	copy(store, sigmas)
	v.sigmas = make([]*float64, len(store))
	for k := range store {
		v.sigmas[k] = &store[k]
	}
	f.register(v)
	return nil
}

// LinkVariableSigmas is LinkVariable with linked sigmas, which receive the
// fitted uncertainties after a successful fit.
func (f *Fitter) LinkVariableSigmas(name string, values, sigmas []*float64, settings ...VariableSettings) error {
	v, err := f.linked(name, values, settings)
	if err != nil {
		return err
	}
	if len(sigmas) != len(values) {
		return configErr(KindVariable, name, fmt.Sprintf("expected %d sigmas, got %d", len(values), len(sigmas)))
	}
	for k, p := range sigmas {
		if p == nil {
			return &ConfigurationError{Kind: KindVariable, Name: name, Element: elementName(name, k, len(values)), Reason: "nil sigma reference"}
		}
	}
	v.sigmas = append([]*float64(nil), sigmas...)
	v.linkedSigmas = true
	f.register(v)
	return nil
}

func (f *Fitter) linked(name string, values []*float64, settings []VariableSettings) (*variable, error) {
	if err := f.checkName(name); err != nil {
		return nil, err
	}
	n := len(values)
	if n == 0 {
		return nil, configErr(KindVariable, name, "no values")
	}
	for k, p := range values {
		if p == nil {
			return nil, &ConfigurationError{Kind: KindVariable, Name: name, Element: elementName(name, k, n), Reason: "nil value reference"}
		}
	}

	v := &variable{
		name:         name,
		values:       append([]*float64(nil), values...),
		settings:     make([]VariableSettings, n),
		linkedValues: true,
	}
	switch len(settings) {
	case 0:
		for k := range v.settings {
			v.settings[k] = DefaultVariableSettings()
		}
	case 1:
		for k := range v.settings {
			v.settings[k] = settings[0]
		}
	case n:
		copy(v.settings, settings)
	default:
		return nil, configErr(KindVariable, name, fmt.Sprintf("expected 0, 1 or %d settings, got %d", n, len(settings)))
	}
	return v, nil
}

// LinkPulls binds a sink that receives the pull of every element of name
// after a successful fit.
func (f *Fitter) LinkPulls(name string, pulls []*float64) error {
	v, ok := f.lookup(name)
	switch {
	case !ok:
		return configErr(KindVariable, name, "unknown variable")
	case len(pulls) != v.dim():
		return configErr(KindVariable, name, fmt.Sprintf("expected %d pull references, got %d", v.dim(), len(pulls)))
	}
	for k, p := range pulls {
		if p == nil {
			return &ConfigurationError{Kind: KindVariable, Name: name, Element: v.elementName(k), Reason: "nil pull reference"}
		}
	}
	v.pulls = append([]*float64(nil), pulls...)
	return nil
}

// VariableNames returns the flat element names in layout order. Elements of
// multi-element variables are suffixed with "[k]".
func (f *Fitter) VariableNames() []string {
	var names []string
	for _, v := range f.vars {
		for k := range v.values {
			names = append(names, v.elementName(k))
		}
	}
	return names
}
