// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package generic

import (
	"github.com/gomlx/opdispatch/attrs"
	"github.com/gomlx/opdispatch/graph"
	"github.com/gomlx/opdispatch/kernels"
	"github.com/gomlx/opdispatch/nn"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/strategy"
	"github.com/gomlx/opdispatch/target"
	"github.com/gomlx/opdispatch/types/shapes"
	"github.com/pkg/errors"
)

// Compile-time check that the switches over nn.Conv2DLayout below are revisited when a value is added.
var _ = [1]struct{}{}[nn.NumConv2DLayouts-5]

// Conv2DOperands decodes the conv2d attributes and splits the inputs into data and kernel.
//
// Invalid attributes (e.g. a dilation < 1) are reported as *strategy.InvalidAttributeError, before
// any candidate is considered.
func Conv2DOperands(attributes *attrs.Attributes, inputs []*graph.Node) (c nn.Conv2DAttrs, data, kernel *graph.Node, err error) {
	c, err = nn.DecodeConv2D(attributes)
	if err != nil {
		return
	}
	if len(inputs) != 2 {
		err = errors.Errorf("operator %q expects 2 inputs (data, kernel), got %d", op.Conv2D, len(inputs))
		return
	}
	data, kernel = inputs[0], inputs[1]
	return
}

// UnsupportedLayout returns the *strategy.UnsupportedLayoutError for the conv2d layouts.
func UnsupportedLayout(c nn.Conv2DAttrs) error {
	return errors.WithStack(&strategy.UnsupportedLayoutError{
		Operator: op.Conv2D, DataLayout: c.DataLayout, KernelLayout: c.KernelLayout})
}

// Conv2D returns the generic conv2d strategy, used for targets without a specific one.
//
// It supports NCHW/OIHW and NHWC/HWIO convolutions, and depthwise convolutions in NCHW/OIHW and NHWC/HWOI.
// Other grouped convolutions fail with *strategy.UnsupportedConfigurationError.
func Conv2D(lib *kernels.Library) strategy.BuildFn {
	return func(attributes *attrs.Attributes, inputs []*graph.Node, _ shapes.Shape, _ *target.Target) (*strategy.Strategy, error) {
		c, data, kernel, err := Conv2DOperands(attributes, inputs)
		if err != nil {
			return nil, err
		}
		b := strategy.NewBuilder(op.Conv2D)
		layoutPair := nn.ClassifyConv2DLayout(c.DataLayout, c.KernelLayout)
		if c.Groups == 1 {
			switch layoutPair {
			case nn.LayoutNCHW_OIHW:
				lib.Must(kernels.Generic, "conv2d_nchw").AddTo(b, "conv2d_nchw.generic", strategy.PriorityDefault)
			case nn.LayoutNHWC_HWIO:
				lib.Must(kernels.Generic, "conv2d_nhwc").AddTo(b, "conv2d_nhwc.generic", strategy.PriorityDefault)
			case nn.LayoutNHWC_HWOI, nn.LayoutNCHW4c_OIHW4o, nn.LayoutUnsupported:
				return nil, UnsupportedLayout(c)
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
			lib.Must(kernels.Generic, "depthwise_conv2d_nchw").AddTo(b, "depthwise_conv2d_nchw.generic", strategy.PriorityDefault)
		case nn.LayoutNHWC_HWOI:
			lib.Must(kernels.Generic, "depthwise_conv2d_nhwc").AddTo(b, "depthwise_conv2d_nhwc.generic", strategy.PriorityDefault)
		case nn.LayoutNHWC_HWIO, nn.LayoutNCHW4c_OIHW4o, nn.LayoutUnsupported:
			return nil, UnsupportedLayout(c)
		}
		return b.Build()
	}
}
