// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package reference

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/opdispatch/attrs"
	"github.com/gomlx/opdispatch/graph"
	"github.com/gomlx/opdispatch/kernels"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/schedule"
	"github.com/gomlx/opdispatch/strategy"
	"github.com/gomlx/opdispatch/target"
	"github.com/gomlx/opdispatch/types/shapes"
	"github.com/pkg/errors"
)

// Names of the schedule-only kernels shared by the elementwise operators.
const (
	Injective = "injective"
	Broadcast = "broadcast"
	Elemwise  = "elemwise"
)

// UnaryOperators are the operators with one input and an output of the same shape.
var UnaryOperators = []op.Name{
	op.Negative, op.Exp, op.Log, op.Sqrt, op.Tanh, op.Sigmoid, op.Floor, op.Ceil, op.Trunc, op.Round,
	op.Abs, op.Copy, op.ZerosLike, op.OnesLike, op.Clip,
}

// BinaryOperators are the operators with two inputs broadcast to the output shape.
var BinaryOperators = []op.Name{
	op.Add, op.Subtract, op.Multiply, op.Divide, op.Mod, op.Power, op.Maximum, op.Minimum,
	op.LeftShift, op.RightShift,
	op.Equal, op.NotEqual, op.Less, op.LessEqual, op.Greater, op.GreaterEq,
}

// comparisons output booleans.
var comparisons = map[op.Name]bool{
	op.Equal: true, op.NotEqual: true, op.Less: true, op.LessEqual: true, op.Greater: true, op.GreaterEq: true,
}

func installElementwise(lib *kernels.Library) {
	for _, operator := range UnaryOperators {
		lib.Register(kernels.Kernel{Namespace: kernels.Generic, Name: operator.String(),
			Compute: ElementwiseCompute(operator), Schedule: injectiveSchedule(Injective, false)})
	}
	for _, operator := range BinaryOperators {
		lib.Register(kernels.Kernel{Namespace: kernels.Generic, Name: operator.String(),
			Compute: ElementwiseCompute(operator), Schedule: injectiveSchedule(Broadcast, false)})
	}
}

// adaptOperators reshape their first input like their second one.
var adaptOperators = map[op.Name]func(x, like *graph.Node) *graph.Node{
	op.CollapseSum: graph.CollapseSumLike,
	op.BroadcastTo: graph.BroadcastToLike,
}

func installInjective(lib *kernels.Library) {
	for operator, adapt := range adaptOperators {
		lib.Register(kernels.Kernel{Namespace: kernels.Generic, Name: operator.String(),
			Compute: adaptCompute(operator, adapt), Schedule: injectiveSchedule(Injective, false)})
	}
	for _, name := range []string{Injective, Broadcast, Elemwise} {
		lib.Register(kernels.Kernel{Namespace: kernels.Generic, Name: name, Schedule: injectiveSchedule(name, false)})
		lib.Register(kernels.Kernel{Namespace: kernels.CUDA, Name: name, Schedule: injectiveSchedule(name, true)})
	}
}

// ElementwiseCompute returns the compute procedure of an elementwise operator: unary operators keep the
// shape of the input, binary operators broadcast their inputs, and comparisons output booleans.
func ElementwiseCompute(operator op.Name) strategy.ComputeFn {
	return func(attributes *attrs.Attributes, inputs []*graph.Node, _ shapes.Shape, _ *target.Target) ([]*graph.Node, error) {
		var shape shapes.Shape
		switch len(inputs) {
		case 1:
			shape = inputs[0].Shape().Clone()
		case 2:
			var err error
			shape, err = shapes.Broadcast(inputs[0].Shape(), inputs[1].Shape())
			if err != nil {
				return nil, errors.WithMessagef(err, "operator %q", operator)
			}
		default:
			return nil, errors.Errorf("operator %q: expected 1 or 2 inputs, got %d", operator, len(inputs))
		}
		if comparisons[operator] {
			shape.DType = dtypes.Bool
		}
		nodeAttrs := attributes.With(AttrKernel, kernels.Generic+"."+operator.String())
		return []*graph.Node{graph.NewNode(inputs[0].Graph(), operator, nodeAttrs, shape, inputs...)}, nil
	}
}

// adaptCompute returns the compute procedure of collapse_sum_like and broadcast_to_like. The graph
// functions panic on incompatible shapes, which the caller reports as a compute error.
func adaptCompute(operator op.Name, adapt func(x, like *graph.Node) *graph.Node) strategy.ComputeFn {
	return func(_ *attrs.Attributes, inputs []*graph.Node, _ shapes.Shape, _ *target.Target) ([]*graph.Node, error) {
		if len(inputs) != 2 {
			return nil, errors.Errorf("operator %q: expected 2 inputs (x, like), got %d", operator, len(inputs))
		}
		return []*graph.Node{adapt(inputs[0], inputs[1])}, nil
	}
}

// injectiveSchedule returns a schedule for operators whose outputs are computed independently per
// element: the output loops are bound to the target. With gpu set, it fails on targets without GPU threads.
func injectiveSchedule(name string, gpu bool) strategy.ScheduleFn {
	return func(_ *attrs.Attributes, outputs []*graph.Node, tgt *target.Target) (*schedule.Schedule, error) {
		if len(outputs) == 0 {
			return nil, errors.Errorf("%s schedule: no outputs", name)
		}
		if gpu && tgt.MaxThreadsPerBlock() <= 1 {
			return nil, errors.Errorf("%s schedule: target %q has no GPU threads", name, tgt)
		}
		tmpl := schedule.NewTemplate(name)
		var axesPerStage [][]schedule.Axis
		for ii, output := range outputs {
			stage := stageName(ii)
			tmpl.AddStageForShape(stage, output.Shape())
			axesPerStage = append(axesPerStage, stageAxes(output.Shape(), nil))
		}
		b := schedule.NewBinder(tmpl, tgt)
		for ii, output := range outputs {
			for jj, input := range output.Inputs() {
				b.DeclareBuffer(inputBufferName(ii, jj), input.Shape(), target.ScopeGlobal, schedule.Argument)
			}
			b.DeclareBuffer(stageName(ii), output.Shape(), target.ScopeGlobal, schedule.Argument)
			bindLoops(b, stageName(ii), axesPerStage[ii], tgt)
		}
		return b.Finalize()
	}
}

func stageName(output int) string { return fmt.Sprintf("output%d", output) }

func inputBufferName(output, input int) string { return fmt.Sprintf("output%d.input%d", output, input) }
