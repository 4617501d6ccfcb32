// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"github.com/gomlx/opdispatch/attrs"
	"github.com/gomlx/opdispatch/gradients"
	"github.com/gomlx/opdispatch/graph"
	"github.com/gomlx/opdispatch/kernels"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/strategy"
	"github.com/gomlx/opdispatch/target"
	"github.com/gomlx/opdispatch/types/shapes"
)

var global = New(NewRegistries())

// Global returns the Dispatcher over the process-wide registries.
func Global() *Dispatcher { return global }

// RegisterStrategy registers in the process-wide registry the build function of the operator's strategy
// for the target tag (strategy.GenericTag for all targets). It panics after Freeze.
func RegisterStrategy(operator op.Name, tag string, build strategy.BuildFn) {
	global.registries.Strategies.Register(operator, tag, build)
}

// RegisterStrategyLate is like RegisterStrategy, but works after Freeze.
func RegisterStrategyLate(operator op.Name, tag string, build strategy.BuildFn) {
	global.registries.Strategies.RegisterLate(operator, tag, build)
}

// RegisterCompute registers in the process-wide registry the target independent compute procedure of the
// operator. It's used along with RegisterSchedule by operators with a single implementation.
func RegisterCompute(operator op.Name, compute strategy.ComputeFn) {
	global.registries.Strategies.RegisterCompute(operator, compute)
}

// RegisterSchedule registers in the process-wide registry the operator's schedule for the target tag.
func RegisterSchedule(operator op.Name, tag string, sched strategy.ScheduleFn) {
	global.registries.Strategies.RegisterSchedule(operator, tag, sched)
}

// RegisterGradient registers in the process-wide registry the gradient rule of the operator.
func RegisterGradient(operator op.Name, rule gradients.Rule) {
	global.registries.Gradients.Register(operator, rule)
}

// RegisterPattern registers in the process-wide registry the fusion pattern of the operator.
func RegisterPattern(operator op.Name, pattern op.Pattern) {
	global.registries.Patterns.Register(operator, pattern)
}

// RegisterKernel registers a kernel in the process-wide kernel library.
func RegisterKernel(k kernels.Kernel) {
	global.registries.Kernels.Register(k)
}

// Freeze the process-wide registries. Registrations afterwards panic, except the "Late" ones.
func Freeze() { global.registries.Freeze() }

// ResolveStrategy selects the implementation of the operator for the target using the process-wide
// registries. See Dispatcher.ResolveStrategy.
func ResolveStrategy(operator op.Name, attributes *attrs.Attributes, inputs []*graph.Node,
	outputType shapes.Shape, tgt *target.Target) (strategy.Implementation, error) {
	return global.ResolveStrategy(operator, attributes, inputs, outputType, tgt)
}

// GetGradientRule returns the gradient rule of the operator from the process-wide registry, or a
// *gradients.NoGradientRuleError.
func GetGradientRule(operator op.Name) (gradients.Rule, error) {
	return global.GradientRule(operator)
}

// GetPatternTag returns the fusion pattern of the operator from the process-wide registry, or
// op.PatternOpaque if it has none.
func GetPatternTag(operator op.Name) op.Pattern {
	return global.PatternTag(operator)
}
