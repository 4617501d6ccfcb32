// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package op

import (
	"github.com/gomlx/opdispatch/registry"
)

// Pattern tags an operator with how it can be fused with its neighbours by a fusion pass.
type Pattern int

//go:generate go tool enumer -type=Pattern -trimprefix=Pattern -output=gen_pattern_enumer.go pattern.go

const (
	// PatternElemwise is a one-to-one elementwise operator: output[i] depends only on input[i].
	PatternElemwise Pattern = iota

	// PatternBroadcast is elementwise after broadcasting the inputs to the output shape.
	PatternBroadcast

	// PatternInjective maps each output element to a function of one input element,
	// e.g. reshape or transpose.
	PatternInjective

	// PatternCommReduce is a commutative reduction, e.g. sum.
	PatternCommReduce

	// PatternOutElemwiseFusable is a complex operator, e.g. conv2d, whose output can be fused with
	// following elementwise operators.
	PatternOutElemwiseFusable

	// PatternTuple produces or consumes tuples.
	PatternTuple

	// PatternOpaque cannot be fused.
	PatternOpaque
)

// PatternRegistry holds the pattern tag of each operator. Patterns are not target specific, they are
// always registered with the generic tag.
type PatternRegistry struct {
	table *registry.Table[Name, Pattern]
}

// NewPatternRegistry creates an empty PatternRegistry.
func NewPatternRegistry() *PatternRegistry {
	return &PatternRegistry{table: registry.New[Name, Pattern]("pattern")}
}

// Register the pattern of operator. Registering again replaces the previous pattern.
func (r *PatternRegistry) Register(operator Name, pattern Pattern) {
	r.table.Register(operator, registry.GenericTag, pattern)
}

// RegisterLate is like Register, but can be used after the registry is frozen.
func (r *PatternRegistry) RegisterLate(operator Name, pattern Pattern) {
	r.table.RegisterLate(operator, registry.GenericTag, pattern)
}

// Get returns the pattern registered for operator, or PatternOpaque if none was registered.
func (r *PatternRegistry) Get(operator Name) Pattern {
	pattern, found := r.table.Get(operator, registry.GenericTag)
	if !found {
		return PatternOpaque
	}
	return pattern
}

// Lookup returns the pattern registered for operator and whether it was found.
func (r *PatternRegistry) Lookup(operator Name) (Pattern, bool) {
	return r.table.Get(operator, registry.GenericTag)
}

// Operators returns the sorted names of the operators with a registered pattern.
func (r *PatternRegistry) Operators() []Name { return r.table.Names() }

// Freeze the registry.
func (r *PatternRegistry) Freeze() { r.table.Freeze() }
