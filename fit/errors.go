// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fit

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration is matched by every *ConfigurationError.
	ErrConfiguration = errors.New("fit: configuration error")
	// ErrSolverContract is matched by every *SolverContractError.
	ErrSolverContract = errors.New("fit: solver broke its contract")
)

// ErrorKind names the registry a configuration error stems from.
type ErrorKind string

const (
	KindVariable   ErrorKind = "variable"
	KindCovariance ErrorKind = "covariance"
	KindConstraint ErrorKind = "constraint"
)

// ConfigurationError reports an invalid registration or a layout that cannot
// be built. A registration call that fails leaves the registries untouched.
type ConfigurationError struct {
	Kind    ErrorKind
	Name    string // variable, constraint or "var1,var2" for covariances
	Element string // flat element name when a single element is at fault
	Reason  string
	Err     error // underlying cause, if any
}

// Error implements the error interface
func (e *ConfigurationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "fit: %s %q", e.Kind, e.Name)
	if e.Element != "" {
		fmt.Fprintf(&sb, " element %q", e.Element)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Reason)
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

// Is reports ErrConfiguration as a match.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// Unwrap supports error unwrapping
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configErr(kind ErrorKind, name, reason string) *ConfigurationError {
	return &ConfigurationError{Kind: kind, Name: name, Reason: reason}
}

// SolverContractError reports a solver status outside the documented range.
type SolverContractError struct {
	Status int
}

// Error implements the error interface
func (e *SolverContractError) Error() string {
	return fmt.Sprintf("fit: solver returned unknown status %d", e.Status)
}

// Is reports ErrSolverContract as a match.
func (e *SolverContractError) Is(target error) bool {
	return target == ErrSolverContract
}
