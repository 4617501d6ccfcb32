// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package reference

import (
	"github.com/gomlx/opdispatch/attrs"
	"github.com/gomlx/opdispatch/graph"
	"github.com/gomlx/opdispatch/kernels"
	"github.com/gomlx/opdispatch/nn"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/schedule"
	"github.com/gomlx/opdispatch/strategy"
	"github.com/gomlx/opdispatch/target"
	"github.com/gomlx/opdispatch/types/layout"
	"github.com/gomlx/opdispatch/types/shapes"
	"github.com/pkg/errors"
)

func installPool2D(lib *kernels.Library) {
	for _, operator := range []op.Name{op.MaxPool2D, op.AvgPool2D} {
		lib.Register(kernels.Kernel{
			Namespace: kernels.Generic,
			Name:      operator.String(),
			Compute:   pool2DCompute(operator),
			Schedule:  poolSchedule(kernels.Generic, false),
		})
	}
	lib.Register(kernels.Kernel{Namespace: kernels.CUDA, Name: "pool", Schedule: poolSchedule(kernels.CUDA, false)})
	lib.Register(kernels.Kernel{Namespace: kernels.Adreno, Name: "pool", Schedule: poolSchedule(kernels.Adreno, true)})
}

// pool2DCompute returns the compute procedure of a 2D pooling operator.
func pool2DCompute(operator op.Name) strategy.ComputeFn {
	fullName := kernels.Generic + "." + operator.String()
	return func(attributes *attrs.Attributes, inputs []*graph.Node, _ shapes.Shape, _ *target.Target) ([]*graph.Node, error) {
		if len(inputs) != 1 {
			return nil, errors.Errorf("%s: expected 1 input, got %d", fullName, len(inputs))
		}
		data := inputs[0]
		p, err := nn.DecodePool2D(operator, attributes)
		if err != nil {
			return nil, err
		}
		shape, err := nn.Pool2DOutputShape(data.Shape(), p)
		if err != nil {
			return nil, errors.WithMessagef(err, "kernel %s", fullName)
		}
		nodeAttrs := attributes.With(AttrKernel, fullName).With(AttrAccumulator, data.DType().String())
		return []*graph.Node{graph.NewNode(data.Graph(), operator, nodeAttrs, shape, data)}, nil
	}
}

// poolSchedule returns the schedule procedure of 2D poolings. With texture set, channel blocked operands
// are kept in textures.
func poolSchedule(namespace string, texture bool) strategy.ScheduleFn {
	name := namespace + ".pool"
	return func(attributes *attrs.Attributes, outputs []*graph.Node, tgt *target.Target) (*schedule.Schedule, error) {
		if len(outputs) != 1 || outputs[0].NumInputs() != 1 {
			return nil, errors.Errorf("%s: expected one pooling output with one input", name)
		}
		output := outputs[0]
		data := output.Input(0)
		p, err := nn.DecodePool2D(output.Operator(), attributes)
		if err != nil {
			return nil, err
		}
		l, err := layout.Parse(p.Layout)
		if err != nil {
			return nil, err
		}
		dataScope, outputScope := target.ScopeGlobal, target.ScopeGlobal
		if texture {
			dataScope = textureScopeFor(tgt, target.ScopeTexture, data.Shape())
			outputScope = textureScopeFor(tgt, target.ScopeTexture, output.Shape())
		}
		names := axisNames(l)
		tmpl := schedule.NewTemplate(name).AddStageForShape("pool", output.Shape(), names...)
		b := schedule.NewBinder(tmpl, tgt).
			DeclareBuffer("data", data.Shape(), dataScope, schedule.Argument).
			DeclareBuffer("output", output.Shape(), outputScope, schedule.Argument)
		bindLoops(b, "pool", stageAxes(output.Shape(), names), tgt)
		return b.Finalize()
	}
}
