// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package reference

import (
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
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

// Compile-time check that conv2DKernel.schedule's switch covers every nn.Conv2DLayout: it fails to
// compile if a value is added.
var _ = [1]struct{}{}[nn.NumConv2DLayouts-5]

// groupsKind is the grouping a conv2d kernel supports.
type groupsKind int

const (
	groupsOne groupsKind = iota
	groupsDepthwise
)

// conv2DKernel describes a conv2d reference kernel.
type conv2DKernel struct {
	namespace, name string
	layouts         []nn.Conv2DLayout
	groups          groupsKind

	// accumulator dtype, or dtypes.InvalidDType to accumulate in the output dtype.
	accumulator dtypes.DType

	// inputPrecision kernels output the input dtype, ignoring out_dtype.
	inputPrecision bool

	// texture kernels keep their operands in 2D images, packing them first if they are not in a
	// channel blocked layout.
	texture bool
}

var conv2DKernels = []conv2DKernel{
	// Adreno image2d kernels.
	{namespace: kernels.Adreno, name: "conv2d_nchwc_tpack", inputPrecision: true, layouts: []nn.Conv2DLayout{nn.LayoutNCHW_OIHW}, texture: true},
	{namespace: kernels.Adreno, name: "conv2d_nchwc_tpack_acc32", layouts: []nn.Conv2DLayout{nn.LayoutNCHW_OIHW}, accumulator: dtypes.Float32, texture: true},
	{namespace: kernels.Adreno, name: "conv2d_nhwc", inputPrecision: true, layouts: []nn.Conv2DLayout{nn.LayoutNHWC_HWIO}, texture: true},
	{namespace: kernels.Adreno, name: "conv2d_nhwc_acc32", layouts: []nn.Conv2DLayout{nn.LayoutNHWC_HWIO}, accumulator: dtypes.Float32, texture: true},
	{namespace: kernels.Adreno, name: "conv2d_nchwc", inputPrecision: true, layouts: []nn.Conv2DLayout{nn.LayoutNCHW4c_OIHW4o}, texture: true},
	{namespace: kernels.Adreno, name: "conv2d_nchwc_acc32", layouts: []nn.Conv2DLayout{nn.LayoutNCHW4c_OIHW4o}, accumulator: dtypes.Float32, texture: true},
	{namespace: kernels.Adreno, name: "depthwise_conv2d_nhwc", inputPrecision: true, layouts: []nn.Conv2DLayout{nn.LayoutNHWC_HWOI}, groups: groupsDepthwise, texture: true},
	{namespace: kernels.Adreno, name: "depthwise_conv2d_nhwc_acc32", layouts: []nn.Conv2DLayout{nn.LayoutNHWC_HWOI}, groups: groupsDepthwise, accumulator: dtypes.Float32, texture: true},
	{namespace: kernels.Adreno, name: "depthwise_conv2d_nchwc", inputPrecision: true, layouts: []nn.Conv2DLayout{nn.LayoutNCHW4c_OIHW4o}, groups: groupsDepthwise, texture: true},
	{namespace: kernels.Adreno, name: "depthwise_conv2d_nchwc_acc32", layouts: []nn.Conv2DLayout{nn.LayoutNCHW4c_OIHW4o}, groups: groupsDepthwise, accumulator: dtypes.Float32, texture: true},

	// CUDA kernels, also used by other GPUs.
	{namespace: kernels.CUDA, name: "conv2d_nchw", layouts: []nn.Conv2DLayout{nn.LayoutNCHW_OIHW}},
	{namespace: kernels.CUDA, name: "depthwise_conv2d_nchw", layouts: []nn.Conv2DLayout{nn.LayoutNCHW_OIHW}, groups: groupsDepthwise},
	{namespace: kernels.CUDA, name: "depthwise_conv2d_nhwc", layouts: []nn.Conv2DLayout{nn.LayoutNHWC_HWOI}, groups: groupsDepthwise},

	// Generic kernels.
	{namespace: kernels.Generic, name: "conv2d_nchw", layouts: []nn.Conv2DLayout{nn.LayoutNCHW_OIHW}},
	{namespace: kernels.Generic, name: "conv2d_nhwc", layouts: []nn.Conv2DLayout{nn.LayoutNHWC_HWIO}},
	{namespace: kernels.Generic, name: "depthwise_conv2d_nchw", layouts: []nn.Conv2DLayout{nn.LayoutNCHW_OIHW}, groups: groupsDepthwise},
	{namespace: kernels.Generic, name: "depthwise_conv2d_nhwc", layouts: []nn.Conv2DLayout{nn.LayoutNHWC_HWOI}, groups: groupsDepthwise},
}

func installConv2D(lib *kernels.Library) {
	for _, k := range conv2DKernels {
		lib.Register(kernels.Kernel{Namespace: k.namespace, Name: k.name, Compute: k.compute, Schedule: k.schedule})
	}
}

// packStage repacks an operand into a texture before the convolution.
type packStage struct {
	name  string
	shape shapes.Shape
	names []string
	scope target.Scope
}

func (k conv2DKernel) fullName() string { return k.namespace + "." + k.name }

// decode the attributes and check that the kernel supports them.
func (k conv2DKernel) decode(attributes *attrs.Attributes, data, kernel shapes.Shape) (nn.Conv2DAttrs, nn.Conv2DLayout, error) {
	c, err := nn.DecodeConv2D(attributes)
	if err != nil {
		return c, nn.LayoutUnsupported, err
	}
	layoutPair := nn.ClassifyConv2DLayout(c.DataLayout, c.KernelLayout)
	if !slices.Contains(k.layouts, layoutPair) {
		return c, layoutPair, errors.WithStack(&strategy.UnsupportedLayoutError{
			Operator: op.Conv2D, DataLayout: c.DataLayout, KernelLayout: c.KernelLayout})
	}
	switch k.groups {
	case groupsOne:
		if c.Groups != 1 {
			return c, layoutPair, errors.Errorf("kernel %s requires groups=1, got %d", k.fullName(), c.Groups)
		}
	case groupsDepthwise:
		isDepthwise, err := nn.IsDepthwiseConv(data.Dimensions, c.DataLayout, kernel.Dimensions, c.KernelLayout, c.Groups)
		if err != nil {
			return c, layoutPair, err
		}
		if !isDepthwise {
			return c, layoutPair, errors.Errorf("kernel %s requires a depthwise convolution, got groups=%d for data %s",
				k.fullName(), c.Groups, data)
		}
	}
	return c, layoutPair, nil
}

func (k conv2DKernel) compute(attributes *attrs.Attributes, inputs []*graph.Node, _ shapes.Shape, _ *target.Target) ([]*graph.Node, error) {
	if len(inputs) != 2 {
		return nil, errors.Errorf("%s: expected 2 inputs (data, kernel), got %d", k.fullName(), len(inputs))
	}
	data, kernel := inputs[0], inputs[1]
	c, _, err := k.decode(attributes, data.Shape(), kernel.Shape())
	if err != nil {
		return nil, err
	}
	if k.inputPrecision {
		c.OutDType = data.DType()
	}
	shape, err := nn.Conv2DOutputShape(data.Shape(), kernel.Shape(), c)
	if err != nil {
		return nil, errors.WithMessagef(err, "kernel %s", k.fullName())
	}
	accumulator := k.accumulator
	if accumulator == dtypes.InvalidDType {
		accumulator = shape.DType
	}
	nodeAttrs := attributes.With(AttrKernel, k.fullName()).With(AttrAccumulator, accumulator.String())
	return []*graph.Node{graph.NewNode(data.Graph(), op.Conv2D, nodeAttrs, shape, data, kernel)}, nil
}

// schedule binds the output loops and declares the buffers. Texture kernels on NCHW and NHWC data pack
// the data and the kernel into intermediate textures first, bound when the kernel is built.
func (k conv2DKernel) schedule(attributes *attrs.Attributes, outputs []*graph.Node, tgt *target.Target) (*schedule.Schedule, error) {
	if len(outputs) != 1 || outputs[0].NumInputs() != 2 {
		return nil, errors.Errorf("%s: expected one conv2d output with (data, kernel) inputs", k.fullName())
	}
	output := outputs[0]
	data, kernel := output.Input(0), output.Input(1)
	c, layoutPair, err := k.decode(attributes, data.Shape(), kernel.Shape())
	if err != nil {
		return nil, err
	}
	dl, err := layout.Parse(c.DataLayout)
	if err != nil {
		return nil, err
	}
	kl, err := layout.Parse(c.KernelLayout)
	if err != nil {
		return nil, err
	}

	tmpl := schedule.NewTemplate(k.fullName())
	dataScope, kernelScope, outputScope := target.ScopeGlobal, target.ScopeGlobal, target.ScopeGlobal
	var packs []packStage
	if k.texture {
		switch layoutPair {
		case nn.LayoutNCHW_OIHW:
			packs = append(packs,
				packStage{"data_pack", packChannels(data.Shape(), dl.IndexOf('C')), append(axisNames(dl), "cb"), target.ScopeTexture},
				packStage{"kernel_pack", packChannels(kernel.Shape(), kl.IndexOf('O')), append(axisNames(kl), "ob"), target.ScopeTextureWeight},
			)
		case nn.LayoutNHWC_HWIO, nn.LayoutNHWC_HWOI:
			packs = append(packs,
				packStage{"data_pack", packChannels(data.Shape(), dl.IndexOf('C')), append(axisNames(dl), "cb"), target.ScopeTextureNHWC},
				packStage{"kernel_pack", packChannels(kernel.Shape(), kl.IndexOf('O')), append(axisNames(kl), "ob"), target.ScopeTextureWeight},
			)
		case nn.LayoutNCHW4c_OIHW4o:
			dataScope = textureScopeFor(tgt, target.ScopeTexture, data.Shape())
			kernelScope = textureScopeFor(tgt, target.ScopeTextureWeight, kernel.Shape())
			outputScope = textureScopeFor(tgt, target.ScopeTexture, output.Shape())
		case nn.LayoutUnsupported:
			return nil, errors.WithStack(&strategy.UnsupportedLayoutError{
				Operator: op.Conv2D, DataLayout: c.DataLayout, KernelLayout: c.KernelLayout})
		}
	}

	for _, pack := range packs {
		tmpl.AddStageForShape(pack.name, pack.shape, pack.names...)
	}
	outputNames := axisNames(dl)
	tmpl.AddStageForShape("conv2d", output.Shape(), outputNames...)

	b := schedule.NewBinder(tmpl, tgt).
		DeclareBuffer("data", data.Shape(), dataScope, schedule.Argument).
		DeclareBuffer("kernel", kernel.Shape(), kernelScope, schedule.Argument)
	for _, pack := range packs {
		b.DeclareBuffer(pack.name, pack.shape, pack.scope, schedule.Bound)
		bindLoops(b, pack.name, stageAxes(pack.shape, pack.names), tgt)
	}
	if k.accumulator != dtypes.InvalidDType {
		b.DeclareBuffer("accumulator", shapes.Make(k.accumulator, target.TextureChannels), target.ScopeLocal, schedule.Allocated)
	}
	b.DeclareBuffer("output", output.Shape(), outputScope, schedule.Argument)
	bindLoops(b, "conv2d", stageAxes(output.Shape(), outputNames), tgt)
	return b.Finalize()
}
