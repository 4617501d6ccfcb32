// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package adreno registers the strategies and schedules specific to Qualcomm Adreno GPUs, selected for
// targets with the "adreno" key (e.g. "opencl -device=adreno").
//
// Most conv2d kernels keep their operands in 2D textures (image2d). They come in two variants: one
// accumulating in half precision, offered only for float16 outputs, and one accumulating in float32,
// offered always and preferred (higher priority).
package adreno

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/opdispatch/attrs"
	"github.com/gomlx/opdispatch/dispatch"
	"github.com/gomlx/opdispatch/graph"
	"github.com/gomlx/opdispatch/kernels"
	"github.com/gomlx/opdispatch/nn"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/schedule"
	"github.com/gomlx/opdispatch/strategies/generic"
	"github.com/gomlx/opdispatch/strategy"
	"github.com/gomlx/opdispatch/target"
	"github.com/gomlx/opdispatch/types/shapes"
	"github.com/pkg/errors"
)

// Tag of the adreno registrations.
const Tag = "adreno"

// Priorities of the adreno implementations.
const (
	PriorityHalfAccumulation = 10
	PriorityFullAccumulation = 20
)

// Compile-time check that the switches over nn.Conv2DLayout below are revisited when a value is added.
var _ = [1]struct{}{}[nn.NumConv2DLayouts-5]

// Install the adreno registrations. The reference kernels must already be in r.Kernels.
func Install(r *dispatch.Registries) {
	r.Strategies.Register(op.Conv2D, Tag, Conv2D(r.Kernels))
	for _, operator := range []op.Name{op.MaxPool2D, op.AvgPool2D} {
		r.Strategies.RegisterSchedule(operator, Tag, PoolSchedule(r.Kernels))
	}
}

// addTexture adds the image2d kernel `name` (accumulating in the output dtype, only if it is float16)
// and its float32 accumulating variant `name`_acc32.
func addTexture(lib *kernels.Library, b *strategy.Builder, outputType shapes.Shape, name string) {
	if outputType.DType == dtypes.Float16 {
		lib.Must(kernels.Adreno, name).AddTo(b, name+".image2d", PriorityHalfAccumulation)
	}
	lib.Must(kernels.Adreno, name+"_acc32").AddTo(b, name+"_acc32.image2d", PriorityFullAccumulation)
}

func layoutNotSupported(c nn.Conv2DAttrs) error {
	return errors.WithMessagef(generic.UnsupportedLayout(c),
		"only NCHW/OIHW, NHWC/HWIO and NCHW4c/OIHW4o are supported for conv2d, and NCHW/OIHW, NHWC/HWOI and NCHW4c/OIHW4o for depthwise conv2d")
}

// Conv2D returns the adreno conv2d strategy.
func Conv2D(lib *kernels.Library) strategy.BuildFn {
	return func(attributes *attrs.Attributes, inputs []*graph.Node, outputType shapes.Shape, _ *target.Target) (*strategy.Strategy, error) {
		c, data, kernel, err := generic.Conv2DOperands(attributes, inputs)
		if err != nil {
			return nil, err
		}
		b := strategy.NewBuilder(op.Conv2D)
		layoutPair := nn.ClassifyConv2DLayout(c.DataLayout, c.KernelLayout)
		if c.Groups == 1 {
			switch layoutPair {
			case nn.LayoutNCHW_OIHW:
				addTexture(lib, b, outputType, "conv2d_nchwc_tpack")
			case nn.LayoutNHWC_HWIO:
				addTexture(lib, b, outputType, "conv2d_nhwc")
			case nn.LayoutNCHW4c_OIHW4o:
				addTexture(lib, b, outputType, "conv2d_nchwc")
			case nn.LayoutNHWC_HWOI, nn.LayoutUnsupported:
				return nil, layoutNotSupported(c)
			}
			return b.Build()
		}

		isDepthwise, err := nn.IsDepthwiseConv(data.Shape().Dimensions, c.DataLayout, kernel.Shape().Dimensions, c.KernelLayout, c.Groups)
		if err != nil {
			return nil, err
		}
		if !isDepthwise {
			return nil, errors.WithStack(&strategy.UnsupportedConfigurationError{
				Operator: op.Conv2D, Reason: "general group convolution is not currently supported"})
		}
		switch layoutPair {
		case nn.LayoutNCHW_OIHW:
			lib.Must(kernels.CUDA, "depthwise_conv2d_nchw").AddTo(b, "depthwise_conv2d_nchw.cuda", strategy.PriorityDefault)
		case nn.LayoutNHWC_HWOI:
			if data.Shape().Dim(-1)%target.TextureChannels == 0 {
				addTexture(lib, b, outputType, "depthwise_conv2d_nhwc")
			} else {
				// Channels don't fill the texture pixels: the generic GPU kernel is used, under the image2d name.
				lib.Must(kernels.CUDA, "depthwise_conv2d_nhwc").AddTo(b, "depthwise_conv2d_nhwc.image2d", strategy.PriorityDefault)
			}
		case nn.LayoutNCHW4c_OIHW4o:
			addTexture(lib, b, outputType, "depthwise_conv2d_nchwc")
		case nn.LayoutNHWC_HWIO, nn.LayoutUnsupported:
			return nil, layoutNotSupported(c)
		}
		return b.Build()
	}
}

// PoolSchedule returns the adreno pooling schedule: channel blocked (NCHW4c) pooling keeps its operands
// in textures, other layouts use the CUDA schedule.
func PoolSchedule(lib *kernels.Library) strategy.ScheduleFn {
	return func(attributes *attrs.Attributes, outputs []*graph.Node, tgt *target.Target) (*schedule.Schedule, error) {
		poolLayout, err := attributes.StrOr(nn.AttrLayout, "NCHW")
		if err != nil {
			return nil, err
		}
		if poolLayout == "NCHW4c" {
			return lib.Must(kernels.Adreno, "pool").Schedule(attributes, outputs, tgt)
		}
		return lib.Must(kernels.CUDA, "pool").Schedule(attributes, outputs, tgt)
	}
}
