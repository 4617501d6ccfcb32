// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package strategy implements operator strategies: the candidate implementations (compute and schedule
// procedures) of an operator for a target, their ranking by priority, and the registry of the functions
// that build strategies for each (operator, target tag).
//
// A BuildFn inspects the operator attributes and the target, and adds the legal candidates to a Builder.
// Selection then invokes each candidate's compute procedure, keeps the ones whose outputs match the
// requested output type, and picks the highest priority one. Ties go to the first added.
package strategy

import (
	"slices"

	"github.com/gomlx/opdispatch/attrs"
	"github.com/gomlx/opdispatch/graph"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/schedule"
	"github.com/gomlx/opdispatch/target"
	"github.com/gomlx/opdispatch/types/shapes"
	"github.com/pkg/errors"
)

// PriorityDefault is the priority of implementations that don't specify one.
const PriorityDefault = 10

// ComputeFn creates the outputs of an operator for the given inputs.
type ComputeFn func(attributes *attrs.Attributes, inputs []*graph.Node, outputType shapes.Shape, tgt *target.Target) ([]*graph.Node, error)

// ScheduleFn creates the schedule for the outputs created by the matching ComputeFn.
type ScheduleFn func(attributes *attrs.Attributes, outputs []*graph.Node, tgt *target.Target) (*schedule.Schedule, error)

// BuildFn builds the strategy for an operator node. It returns an error for illegal attributes or
// combinations no implementation supports.
type BuildFn func(attributes *attrs.Attributes, inputs []*graph.Node, outputType shapes.Shape, tgt *target.Target) (*Strategy, error)

// Implementation is one candidate way of lowering an operator.
type Implementation struct {
	Name     string
	Compute  ComputeFn
	Schedule ScheduleFn
	Priority int
}

// Builder collects the implementations of a strategy. It is local to one strategy resolution.
//
// Errors (e.g. duplicate names) are kept and returned by Build, so calls can be chained.
type Builder struct {
	operator op.Name
	impls    []Implementation
	err      error
}

// NewBuilder creates a Builder for the operator.
func NewBuilder(operator op.Name) *Builder {
	return &Builder{operator: operator}
}

// AddImplementation adds a candidate implementation. Names must be unique within the strategy.
func (b *Builder) AddImplementation(compute ComputeFn, sched ScheduleFn, name string, priority int) *Builder {
	if b.err != nil {
		return b
	}
	switch {
	case name == "":
		b.err = errors.Errorf("operator %q: implementation name cannot be empty", b.operator)
	case compute == nil || sched == nil:
		b.err = errors.Errorf("operator %q: implementation %q requires both compute and schedule", b.operator, name)
	case slices.ContainsFunc(b.impls, func(impl Implementation) bool { return impl.Name == name }):
		b.err = errors.Errorf("operator %q: implementation %q added more than once", b.operator, name)
	default:
		b.impls = append(b.impls, Implementation{Name: name, Compute: compute, Schedule: sched, Priority: priority})
	}
	return b
}

// Len returns the number of implementations added so far.
func (b *Builder) Len() int { return len(b.impls) }

// Build returns the immutable Strategy, or the first error found while adding implementations.
func (b *Builder) Build() (*Strategy, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &Strategy{operator: b.operator, impls: slices.Clone(b.impls)}, nil
}

// Strategy is the ordered set of candidate implementations of an operator for a target. It is immutable.
type Strategy struct {
	operator op.Name
	impls    []Implementation
}

// Operator of the strategy.
func (s *Strategy) Operator() op.Name { return s.operator }

// Len returns the number of implementations.
func (s *Strategy) Len() int { return len(s.impls) }

// Implementations returns a copy of the implementations, in insertion order.
func (s *Strategy) Implementations() []Implementation { return slices.Clone(s.impls) }

// Implementation returns the implementation with the given name.
func (s *Strategy) Implementation(name string) (Implementation, bool) {
	idx := slices.IndexFunc(s.impls, func(impl Implementation) bool { return impl.Name == name })
	if idx < 0 {
		return Implementation{}, false
	}
	return s.impls[idx], true
}
