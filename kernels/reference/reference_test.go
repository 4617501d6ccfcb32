// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package reference

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/opdispatch/attrs"
	"github.com/gomlx/opdispatch/graph"
	"github.com/gomlx/opdispatch/kernels"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/schedule"
	"github.com/gomlx/opdispatch/strategy"
	"github.com/gomlx/opdispatch/target"
	"github.com/gomlx/opdispatch/types/shapes"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	adreno = target.MustParse("opencl -device=adreno")
	cuda   = target.MustParse("cuda")
	cpu    = target.MustParse("llvm")
)

func newLibrary() *kernels.Library {
	lib := kernels.NewLibrary()
	Install(lib)
	return lib
}

// lower runs the compute and the schedule of a kernel.
func lower(t *testing.T, k kernels.Kernel, attributes *attrs.Attributes, tgt *target.Target, inputs ...*graph.Node) (*graph.Node, *schedule.Schedule, error) {
	outputs, err := k.Compute(attributes, inputs, shapes.Invalid(), tgt)
	if err != nil {
		return nil, nil, err
	}
	require.Len(t, outputs, 1)
	s, err := k.Schedule(attributes, outputs, tgt)
	return outputs[0], s, err
}

func findLoop(t *testing.T, s *schedule.Schedule, stage, name string) schedule.Loop {
	st := s.Stage(stage)
	require.NotNil(t, st, "stage %q not found in %s", stage, s)
	for _, loop := range st.Loops {
		if loop.Name == name {
			return loop
		}
	}
	require.Failf(t, "loop not found", "loop %q not found in stage %q of %s", name, stage, s)
	return schedule.Loop{}
}

func TestConv2DTexturePack(t *testing.T) {
	lib := newLibrary()
	g := graph.New(t.Name())
	data := graph.Parameter(g, "data", shapes.Make(dtypes.Float16, 1, 32, 56, 56))
	kernel := graph.Parameter(g, "kernel", shapes.Make(dtypes.Float16, 64, 32, 3, 3))
	attributes := attrs.New(map[string]any{"padding": 1})

	output, s, err := lower(t, lib.Must(kernels.Adreno, "conv2d_nchwc_tpack_acc32"), attributes, adreno, data, kernel)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 64, 56, 56}, output.Shape().Dimensions)
	assert.Equal(t, dtypes.Float16, output.DType())
	assert.Equal(t, op.Conv2D, output.Operator())
	assert.Equal(t, "adreno.conv2d_nchwc_tpack_acc32", must.M1(output.Attributes().Str(AttrKernel)))
	assert.Equal(t, dtypes.Float32.String(), must.M1(output.Attributes().Str(AttrAccumulator)))

	dataPack := s.Buffer("data_pack")
	require.NotNil(t, dataPack)
	assert.Equal(t, target.ScopeTexture, dataPack.Scope)
	assert.Equal(t, schedule.Bound, dataPack.Kind)
	assert.Equal(t, []int{1, 8, 56, 56, 4}, dataPack.Shape.Dimensions)
	assert.Equal(t, schedule.Texture2DShape{Width: 56, Height: 448, Channels: 4}, *dataPack.Texture)

	kernelPack := s.Buffer("kernel_pack")
	require.NotNil(t, kernelPack)
	assert.Equal(t, target.ScopeTextureWeight, kernelPack.Scope)
	assert.Equal(t, schedule.Texture2DShape{Width: 288, Height: 16, Channels: 4}, *kernelPack.Texture)

	acc := s.Buffer("accumulator")
	require.NotNil(t, acc)
	assert.Equal(t, schedule.Allocated, acc.Kind)
	assert.Equal(t, target.ScopeLocal, acc.Scope)
	assert.Equal(t, target.ScopeGlobal, s.Buffer("output").Scope)

	wInner := findLoop(t, s, "conv2d", "w.inner")
	assert.Equal(t, schedule.ThreadX, wInner.Thread)
	assert.Equal(t, 16, wInner.Extent)
	assert.Equal(t, schedule.ThreadY, findLoop(t, s, "conv2d", "h.inner").Thread)
	assert.Equal(t, schedule.BlockZ, findLoop(t, s, "conv2d", "c").Thread)
	assert.Equal(t, schedule.Vectorized, findLoop(t, s, "data_pack", "cb").Annotation)

	// Without texture support the packing cannot be scheduled.
	_, _, err = lower(t, lib.Must(kernels.Adreno, "conv2d_nchwc_tpack_acc32"), attributes, cuda, data, kernel)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported by the target")
}

func TestConv2DBlockedTextures(t *testing.T) {
	lib := newLibrary()
	g := graph.New(t.Name())
	data := graph.Parameter(g, "data", shapes.Make(dtypes.Float16, 1, 8, 28, 28, 4))
	kernel := graph.Parameter(g, "kernel", shapes.Make(dtypes.Float16, 16, 32, 3, 3, 4))
	attributes := attrs.New(map[string]any{"data_layout": "NCHW4c", "kernel_layout": "OIHW4o"})

	output, s, err := lower(t, lib.Must(kernels.Adreno, "conv2d_nchwc"), attributes, adreno, data, kernel)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 16, 26, 26, 4}, output.Shape().Dimensions)
	assert.Equal(t, target.ScopeTexture, s.Buffer("data").Scope)
	assert.Equal(t, target.ScopeTextureWeight, s.Buffer("kernel").Scope)
	assert.Equal(t, target.ScopeTexture, s.Buffer("output").Scope)
	assert.Nil(t, s.Buffer("accumulator"))
	assert.Nil(t, s.Buffer("data_pack"))
	assert.Equal(t, schedule.Vectorized, findLoop(t, s, "conv2d", "cb").Annotation)

	// Same kernel on the wrong layouts.
	_, _, err = lower(t, lib.Must(kernels.Adreno, "conv2d_nchwc"), attrs.New(nil), adreno,
		graph.Parameter(g, "nchw", shapes.Make(dtypes.Float16, 1, 32, 28, 28)),
		graph.Parameter(g, "oihw", shapes.Make(dtypes.Float16, 64, 32, 3, 3)))
	var layoutErr *strategy.UnsupportedLayoutError
	require.True(t, errors.As(err, &layoutErr), "got %v", err)
	assert.Equal(t, "NCHW", layoutErr.DataLayout)
}

func TestConv2DAccumulatorDType(t *testing.T) {
	lib := newLibrary()
	g := graph.New(t.Name())
	data := graph.Parameter(g, "data", shapes.Make(dtypes.Float16, 1, 16, 16, 8))
	kernel := graph.Parameter(g, "kernel", shapes.Make(dtypes.Float16, 3, 3, 8, 16))
	attributes := attrs.New(map[string]any{"data_layout": "NHWC", "kernel_layout": "HWIO", "out_dtype": "float32"})

	// Half precision accumulation outputs the input dtype.
	output, s, err := lower(t, lib.Must(kernels.Adreno, "conv2d_nhwc"), attributes, adreno, data, kernel)
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float16, output.DType())
	assert.Equal(t, target.ScopeTextureNHWC, s.Buffer("data_pack").Scope)

	output, _, err = lower(t, lib.Must(kernels.Adreno, "conv2d_nhwc_acc32"), attributes, adreno, data, kernel)
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float32, output.DType())
	assert.Equal(t, []int{1, 14, 14, 16}, output.Shape().Dimensions)
}

func TestConv2DDepthwise(t *testing.T) {
	lib := newLibrary()
	g := graph.New(t.Name())
	data := graph.Parameter(g, "data", shapes.Make(dtypes.Float32, 1, 8, 8, 6))
	kernel := graph.Parameter(g, "kernel", shapes.Make(dtypes.Float32, 3, 3, 6, 1))
	k := lib.Must(kernels.CUDA, "depthwise_conv2d_nhwc")

	output, _, err := lower(t, k, attrs.New(map[string]any{"data_layout": "NHWC", "kernel_layout": "HWOI", "groups": 6}), cuda, data, kernel)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 6, 6, 6}, output.Shape().Dimensions)

	_, _, err = lower(t, k, attrs.New(map[string]any{"data_layout": "NHWC", "kernel_layout": "HWOI", "groups": 3}), cuda, data, kernel)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depthwise")
}

func TestConv2DOnCPU(t *testing.T) {
	lib := newLibrary()
	g := graph.New(t.Name())
	data := graph.Parameter(g, "data", shapes.Make(dtypes.Float32, 1, 3, 10, 10))
	kernel := graph.Parameter(g, "kernel", shapes.Make(dtypes.Float32, 4, 3, 3, 3))
	output, s, err := lower(t, lib.Must(kernels.Generic, "conv2d_nchw"), nil, cpu, data, kernel)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 8, 8}, output.Shape().Dimensions)
	assert.Equal(t, schedule.Vectorized, findLoop(t, s, "conv2d", "w").Annotation)
	assert.Equal(t, schedule.Serial, findLoop(t, s, "conv2d", "h").Annotation)
}

func TestPool2D(t *testing.T) {
	lib := newLibrary()
	g := graph.New(t.Name())
	data := graph.Parameter(g, "data", shapes.Make(dtypes.Float16, 1, 4, 16, 16, 4))
	attributes := attrs.New(map[string]any{"pool_size": 2, "strides": 2, "layout": "NCHW4c"})
	pool := lib.Must(kernels.Generic, op.MaxPool2D.String())

	outputs := must.M1(pool.Compute(attributes, []*graph.Node{data}, shapes.Invalid(), adreno))
	require.Len(t, outputs, 1)
	assert.Equal(t, []int{1, 4, 8, 8, 4}, outputs[0].Shape().Dimensions)
	assert.Equal(t, op.MaxPool2D, outputs[0].Operator())

	s := must.M1(lib.Must(kernels.Adreno, "pool").Schedule(attributes, outputs, adreno))
	assert.Equal(t, target.ScopeTexture, s.Buffer("data").Scope)
	assert.Equal(t, target.ScopeTexture, s.Buffer("output").Scope)

	s = must.M1(lib.Must(kernels.CUDA, "pool").Schedule(attributes, outputs, adreno))
	assert.Equal(t, target.ScopeGlobal, s.Buffer("data").Scope)
	assert.Equal(t, target.ScopeGlobal, s.Buffer("output").Scope)
}

func TestElementwise(t *testing.T) {
	lib := newLibrary()
	g := graph.New(t.Name())
	x := graph.Parameter(g, "x", shapes.Make(dtypes.Float32, 2, 3))
	y := graph.Parameter(g, "y", shapes.Make(dtypes.Float32, 3))

	output, s, err := lower(t, lib.Must(kernels.Generic, op.Add.String()), nil, cuda, x, y)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, output.Shape().Dimensions)
	assert.Equal(t, op.Add, output.Operator())
	assert.Equal(t, schedule.ThreadX, findLoop(t, s, "output0", "i1.inner").Thread)
	require.NotNil(t, s.Buffer("output0.input1"))
	assert.Equal(t, []int{3}, s.Buffer("output0.input1").Shape.Dimensions)

	output, _, err = lower(t, lib.Must(kernels.Generic, op.Less.String()), nil, cuda, x, y)
	require.NoError(t, err)
	assert.Equal(t, dtypes.Bool, output.DType())

	_, _, err = lower(t, lib.Must(kernels.Generic, op.Exp.String()), nil, cpu, x, x, y)
	assert.Error(t, err)

	outputs := must.M1(lib.Must(kernels.Generic, op.Exp.String()).Compute(nil, []*graph.Node{x}, shapes.Invalid(), cpu))
	_, err = lib.Must(kernels.CUDA, Injective).Schedule(nil, outputs, cpu)
	assert.Error(t, err)
	s = must.M1(lib.Must(kernels.Generic, Injective).Schedule(nil, outputs, cpu))
	assert.Equal(t, schedule.Vectorized, findLoop(t, s, "output0", "i1").Annotation)
}
