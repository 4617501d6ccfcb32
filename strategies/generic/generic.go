// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package generic registers the generic strategies, schedules and fusion patterns: the fallback entries
// used for every target that has no more specific registration.
//
// Elementwise operators register a single compute procedure, with an injective schedule for all targets
// and one bound to GPU threads for targets with the "gpu" key.
package generic

import (
	"github.com/gomlx/opdispatch/dispatch"
	"github.com/gomlx/opdispatch/kernels"
	"github.com/gomlx/opdispatch/kernels/reference"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/strategy"
)

// GPU is the target key shared by all GPU targets.
const GPU = "gpu"

// scheduleKinds maps the elementwise operators to the kind of schedule they use.
var scheduleKinds = map[op.Name]string{
	op.Log:        reference.Broadcast,
	op.Exp:        reference.Broadcast,
	op.Sqrt:       reference.Broadcast,
	op.Sigmoid:    reference.Broadcast,
	op.Floor:      reference.Broadcast,
	op.Ceil:       reference.Broadcast,
	op.Trunc:      reference.Broadcast,
	op.Round:      reference.Broadcast,
	op.Abs:        reference.Broadcast,
	op.Tanh:       reference.Broadcast,
	op.Negative:   reference.Broadcast,
	op.Copy:       reference.Broadcast,
	op.Add:        reference.Broadcast,
	op.Subtract:   reference.Broadcast,
	op.Multiply:   reference.Broadcast,
	op.Divide:     reference.Broadcast,
	op.Power:      reference.Injective,
	op.Mod:        reference.Broadcast,
	op.Equal:      reference.Broadcast,
	op.NotEqual:   reference.Broadcast,
	op.Less:       reference.Broadcast,
	op.LessEqual:  reference.Broadcast,
	op.Greater:    reference.Broadcast,
	op.GreaterEq:  reference.Broadcast,
	op.Maximum:    reference.Injective,
	op.Minimum:    reference.Injective,
	op.RightShift: reference.Injective,
	op.LeftShift:  reference.Injective,
	op.ZerosLike:  reference.Broadcast,
	op.OnesLike:   reference.Broadcast,
	op.Clip:       reference.Elemwise,

	op.CollapseSum: reference.Injective,
	op.BroadcastTo: reference.Injective,
}

// patterns are the fusion patterns of the built-in operators.
var patterns = map[op.Name]op.Pattern{
	op.Conv2D:      op.PatternOutElemwiseFusable,
	op.MaxPool2D:   op.PatternOutElemwiseFusable,
	op.AvgPool2D:   op.PatternOutElemwiseFusable,
	op.CollapseSum: op.PatternCommReduce,
	op.BroadcastTo: op.PatternBroadcast,
	op.Zeros:       op.PatternElemwise,
	op.Ones:        op.PatternElemwise,
}

func init() {
	for _, operator := range reference.UnaryOperators {
		patterns[operator] = op.PatternElemwise
	}
	for _, operator := range reference.BinaryOperators {
		patterns[operator] = op.PatternBroadcast
	}
}

// Install the generic registrations. The reference kernels must already be in r.Kernels.
func Install(r *dispatch.Registries) {
	lib := r.Kernels
	r.Strategies.Register(op.Conv2D, strategy.GenericTag, Conv2D(lib))

	for _, operator := range []op.Name{op.MaxPool2D, op.AvgPool2D} {
		k := lib.Must(kernels.Generic, operator.String())
		r.Strategies.RegisterCompute(operator, k.Compute)
		r.Strategies.RegisterSchedule(operator, strategy.GenericTag, k.Schedule)
		r.Strategies.RegisterSchedule(operator, GPU, lib.Must(kernels.CUDA, "pool").Schedule)
	}

	for operator, kind := range scheduleKinds {
		r.Strategies.RegisterCompute(operator, lib.Must(kernels.Generic, operator.String()).Compute)
		r.Strategies.RegisterSchedule(operator, strategy.GenericTag, lib.Must(kernels.Generic, kind).Schedule)
		r.Strategies.RegisterSchedule(operator, GPU, lib.Must(kernels.CUDA, kind).Schedule)
	}

	for operator, pattern := range patterns {
		r.Patterns.Register(operator, pattern)
	}
}
