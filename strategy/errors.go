// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package strategy

import (
	"fmt"
	"strings"

	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/types/shapes"
)

// UnsupportedOperatorError is returned when no strategy is registered for an operator, neither for any of
// the target keys nor generic.
type UnsupportedOperatorError struct {
	Operator op.Name
	Target   string
}

// Error implements the error interface.
func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("operator %q has no strategy registered for target %q or generic", e.Operator, e.Target)
}

// UnsupportedLayoutError is returned by a strategy that has no implementation for the combination of
// data and kernel layouts.
type UnsupportedLayoutError struct {
	Operator     op.Name
	DataLayout   string
	KernelLayout string
}

// Error implements the error interface.
func (e *UnsupportedLayoutError) Error() string {
	return fmt.Sprintf("operator %q: unsupported data layout %q with kernel layout %q", e.Operator, e.DataLayout, e.KernelLayout)
}

// InvalidAttributeError is returned when an attribute has an invalid value, e.g. a dilation < 1.
type InvalidAttributeError struct {
	Operator  op.Name
	Attribute string
	Reason    string
}

// Error implements the error interface.
func (e *InvalidAttributeError) Error() string {
	return fmt.Sprintf("operator %q: invalid attribute %q: %s", e.Operator, e.Attribute, e.Reason)
}

// UnsupportedConfigurationError is returned for a combination of attributes no implementation supports,
// e.g. general group convolutions.
type UnsupportedConfigurationError struct {
	Operator op.Name
	Reason   string
}

// Error implements the error interface.
func (e *UnsupportedConfigurationError) Error() string {
	return fmt.Sprintf("operator %q: %s", e.Operator, e.Reason)
}

// Rejection explains why a candidate implementation was not eligible.
type Rejection struct {
	Implementation string
	Reason         string
}

// NoCandidateMatchedError is returned when none of the implementations of a strategy produced outputs
// matching the requested output type.
type NoCandidateMatchedError struct {
	Operator   op.Name
	Target     string
	OutputType shapes.Shape
	Rejections []Rejection
}

// Error implements the error interface.
func (e *NoCandidateMatchedError) Error() string {
	if len(e.Rejections) == 0 {
		return fmt.Sprintf("operator %q: strategy for target %q has no implementations", e.Operator, e.Target)
	}
	parts := make([]string, len(e.Rejections))
	for ii, r := range e.Rejections {
		parts[ii] = fmt.Sprintf("%q: %s", r.Implementation, r.Reason)
	}
	return fmt.Sprintf("operator %q: no implementation for target %q produces output %s (%s)",
		e.Operator, e.Target, e.OutputType, strings.Join(parts, "; "))
}
