// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package reference implements shape-level reference kernels: their compute procedures create correctly
// shaped symbolic output nodes, and their schedule procedures bind the loops of the output to the target
// and declare the buffers the kernel would use, including the packed 2D textures of the image2d kernels.
//
// No kernel math is implemented here: the output nodes carry the kernel name and accumulator dtype as
// attributes, so the code generator downstream knows which body to emit.
package reference

import (
	"strings"
	"unicode"

	"github.com/gomlx/opdispatch/kernels"
	"github.com/gomlx/opdispatch/schedule"
	"github.com/gomlx/opdispatch/target"
	"github.com/gomlx/opdispatch/types/layout"
	"github.com/gomlx/opdispatch/types/shapes"
)

// Attributes set by the reference kernels on the nodes they create.
const (
	// AttrKernel is the full name of the kernel that created the node.
	AttrKernel = "kernel"

	// AttrAccumulator is the dtype used to accumulate reductions.
	AttrAccumulator = "accumulator"
)

// maxThreadsPerAxis caps the threads bound to each of the x and y thread axes.
const maxThreadsPerAxis = 16

// Install registers all the reference kernels in the library.
func Install(lib *kernels.Library) {
	installConv2D(lib)
	installPool2D(lib)
	installElementwise(lib)
	installInjective(lib)
}

// axisNames returns the loop names for the axes of a layout: the lower case letter of the axis, with a
// "b" suffix (for "block") for sub-axes. E.g. "NCHW4c" -> n, c, h, w, cb.
func axisNames(l layout.Layout) []string {
	names := make([]string, 0, l.Rank())
	for _, axis := range l.Axes() {
		name := string(unicode.ToLower(axis.Letter))
		if axis.IsSubAxis() {
			name += "b"
		}
		names = append(names, name)
	}
	return names
}

// packChannels returns the shape of a tensor with the primal axis at position axis split in blocks of
// target.TextureChannels, appended as the innermost axis. The primal axis is padded up to a multiple of the
// block.
func packChannels(shape shapes.Shape, axis int) shapes.Shape {
	packed := shape.Clone()
	packed.Dimensions[axis] = (packed.Dimensions[axis] + target.TextureChannels - 1) / target.TextureChannels
	packed.Dimensions = append(packed.Dimensions, target.TextureChannels)
	return packed
}

// stageAxes returns the axes of a stage over shape, named by names.
func stageAxes(shape shapes.Shape, names []string) []schedule.Axis {
	tmpl := schedule.NewTemplate("").AddStageForShape("", shape, names...)
	return tmpl.Stages[0].Axes
}

// bindLoops binds the loops of a stage to the target.
//
// On targets with a single thread per block (CPUs) only the innermost loop is vectorized, if it fits the
// vector lanes. On GPUs, an innermost channel block ("...b" loop) is vectorized, and the innermost
// remaining loops are split and bound to blockIdx.x/threadIdx.x and blockIdx.y/threadIdx.y. The
// next one is bound to blockIdx.z, and outer loops are left serial.
func bindLoops(b *schedule.Binder, stage string, axes []schedule.Axis, tgt *target.Target) {
	if len(axes) == 0 {
		return
	}
	innermost := axes[len(axes)-1]
	maxThreads := tgt.MaxThreadsPerBlock()
	if maxThreads <= 1 {
		if innermost.Extent > 1 && innermost.Extent <= tgt.MaxVectorLanes() {
			b.Vectorize(stage, innermost.Name)
		}
		return
	}
	spatial := axes
	if strings.HasSuffix(innermost.Name, "b") && innermost.Extent <= tgt.MaxVectorLanes() {
		b.Vectorize(stage, innermost.Name)
		spatial = axes[:len(axes)-1]
	}
	threads := maxThreads
	for ii, thread := range []struct{ block, thread schedule.ThreadAxis }{
		{schedule.BlockX, schedule.ThreadX},
		{schedule.BlockY, schedule.ThreadY},
	} {
		axisIdx := len(spatial) - 1 - ii
		if axisIdx < 0 {
			return
		}
		axis := spatial[axisIdx]
		factor := min(axis.Extent, maxThreadsPerAxis, threads)
		threads /= factor
		b.Split(stage, axis.Name, factor).
			Bind(stage, axis.Name+".outer", thread.block).
			Bind(stage, axis.Name+".inner", thread.thread)
	}
	if axisIdx := len(spatial) - 3; axisIdx >= 0 {
		b.Bind(stage, spatial[axisIdx].Name, schedule.BlockZ)
	}
}

// textureScopeFor returns the scope if the target supports it and the shape can be stored in a texture
// (innermost axis of target.TextureChannels), and target.ScopeGlobal otherwise.
func textureScopeFor(tgt *target.Target, scope target.Scope, shape shapes.Shape) target.Scope {
	if !tgt.SupportsScope(scope) || shape.Rank() < 3 || shape.Dim(-1) != target.TextureChannels {
		return target.ScopeGlobal
	}
	return scope
}
