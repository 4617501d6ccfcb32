// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package strategy

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/opdispatch/attrs"
	"github.com/gomlx/opdispatch/graph"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/registry"
	"github.com/gomlx/opdispatch/target"
	"github.com/gomlx/opdispatch/types/shapes"
	"github.com/pkg/errors"
)

// GenericTag is the target tag of generic entries, used when no target specific entry matches.
const GenericTag = registry.GenericTag

// Registry holds, per (operator, target tag), the functions that build strategies.
//
// Operators can alternatively register a single target independent compute procedure with RegisterCompute
// and per target schedules with RegisterSchedule. For those, Resolve synthesizes a strategy with a single
// implementation.
type Registry struct {
	builds    *registry.Table[op.Name, BuildFn]
	computes  *registry.Table[op.Name, ComputeFn]
	schedules *registry.Table[op.Name, ScheduleFn]
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		builds:    registry.New[op.Name, BuildFn]("strategy"),
		computes:  registry.New[op.Name, ComputeFn]("compute"),
		schedules: registry.New[op.Name, ScheduleFn]("schedule"),
	}
}

// Register the build function of operator for the target tag, or GenericTag for all targets.
// It panics if the registry is frozen or build is nil.
func (r *Registry) Register(operator op.Name, tag string, build BuildFn) {
	if build == nil {
		exceptions.Panicf("strategy.Register(%q, %q): nil build function", operator, tag)
	}
	r.builds.Register(operator, tag, build)
}

// RegisterLate is like Register, but can be used after the registry is frozen, e.g. by plugins.
func (r *Registry) RegisterLate(operator op.Name, tag string, build BuildFn) {
	if build == nil {
		exceptions.Panicf("strategy.RegisterLate(%q, %q): nil build function", operator, tag)
	}
	r.builds.RegisterLate(operator, tag, build)
}

// RegisterCompute registers the target independent compute procedure of operator.
func (r *Registry) RegisterCompute(operator op.Name, compute ComputeFn) {
	if compute == nil {
		exceptions.Panicf("strategy.RegisterCompute(%q): nil compute function", operator)
	}
	r.computes.Register(operator, GenericTag, compute)
}

// RegisterSchedule registers the schedule of operator for the target tag, or GenericTag for all targets.
func (r *Registry) RegisterSchedule(operator op.Name, tag string, sched ScheduleFn) {
	if sched == nil {
		exceptions.Panicf("strategy.RegisterSchedule(%q, %q): nil schedule function", operator, tag)
	}
	r.schedules.Register(operator, tag, sched)
}

// Freeze the registry: further registrations, except with RegisterLate, panic.
func (r *Registry) Freeze() {
	r.builds.Freeze()
	r.computes.Freeze()
	r.schedules.Freeze()
}

// Resolve returns the build function for operator on the target, and the target tag it was registered
// with.
//
// The target keys are walked from the most specific to the least specific, and then the generic entry.
// At each tag a registered strategy is used, or else a registered schedule combined with the operator's
// compute procedure. It fails with *UnsupportedOperatorError if nothing matches.
func (r *Registry) Resolve(operator op.Name, tgt *target.Target) (build BuildFn, tag string, err error) {
	compute, hasCompute := r.computes.Get(operator, GenericTag)
	tags := append(tgt.Keys(), GenericTag)
	for _, tag = range tags {
		if build, found := r.builds.Get(operator, tag); found {
			return build, tag, nil
		}
		if !hasCompute {
			continue
		}
		if sched, found := r.schedules.Get(operator, tag); found {
			return singleImplementation(operator, tag, compute, sched), tag, nil
		}
	}
	return nil, "", errors.WithStack(&UnsupportedOperatorError{Operator: operator, Target: tgt.String()})
}

// singleImplementation returns a BuildFn of a strategy with only the given compute and schedule.
func singleImplementation(operator op.Name, tag string, compute ComputeFn, sched ScheduleFn) BuildFn {
	name := fmt.Sprintf("%s.%s", operator, registry.Key[op.Name]{Name: operator, Tag: tag}.TagName())
	return func(*attrs.Attributes, []*graph.Node, shapes.Shape, *target.Target) (*Strategy, error) {
		return NewBuilder(operator).AddImplementation(compute, sched, name, PriorityDefault).Build()
	}
}

// Operators returns the sorted names of the operators with any registered strategy or schedule.
func (r *Registry) Operators() []op.Name {
	names := append(r.builds.Names(), r.schedules.Names()...)
	slices.Sort(names)
	return slices.Compact(names)
}

// Entry describes one registration, for listing.
type Entry struct {
	Operator op.Name
	Tag      string

	// Kind is "strategy" or "schedule".
	Kind string
}

// Entries lists all registered strategies and schedules, sorted by operator and tag.
func (r *Registry) Entries() []Entry {
	var entries []Entry
	for _, key := range r.builds.Keys() {
		entries = append(entries, Entry{Operator: key.Name, Tag: key.Tag, Kind: r.builds.Kind()})
	}
	for _, key := range r.schedules.Keys() {
		entries = append(entries, Entry{Operator: key.Name, Tag: key.Tag, Kind: r.schedules.Kind()})
	}
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmp.Or(cmp.Compare(a.Operator, b.Operator), cmp.Compare(a.Tag, b.Tag))
	})
	return entries
}

// HasCompute returns whether operator has a registered compute procedure.
func (r *Registry) HasCompute(operator op.Name) bool {
	_, found := r.computes.Get(operator, GenericTag)
	return found
}
