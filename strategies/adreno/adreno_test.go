// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package adreno

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/opdispatch/attrs"
	"github.com/gomlx/opdispatch/dispatch"
	"github.com/gomlx/opdispatch/graph"
	"github.com/gomlx/opdispatch/kernels/reference"
	"github.com/gomlx/opdispatch/nn"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/strategy"
	"github.com/gomlx/opdispatch/target"
	"github.com/gomlx/opdispatch/types/shapes"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tgt = target.MustParse("opencl -device=adreno")

func newRegistries() *dispatch.Registries {
	r := dispatch.NewRegistries()
	reference.Install(r.Kernels)
	Install(r)
	return r
}

type candidate struct {
	name     string
	priority int
}

func candidates(s *strategy.Strategy) []candidate {
	var list []candidate
	for _, impl := range s.Implementations() {
		list = append(list, candidate{impl.Name, impl.Priority})
	}
	return list
}

func TestConv2DAllLayouts(t *testing.T) {
	build := Conv2D(newRegistries().Kernels)
	operands := map[nn.Conv2DLayout][2][]int{
		nn.LayoutNCHW_OIHW:     {{1, 8, 10, 10}, {8, 8, 3, 3}},
		nn.LayoutNHWC_HWIO:     {{1, 10, 10, 8}, {3, 3, 8, 8}},
		nn.LayoutNHWC_HWOI:     {{1, 10, 10, 8}, {3, 3, 8, 1}},
		nn.LayoutNCHW4c_OIHW4o: {{1, 2, 10, 10, 4}, {2, 8, 3, 3, 4}},
	}
	want := map[nn.Conv2DLayout]string{
		nn.LayoutNCHW_OIHW:     "conv2d_nchwc_tpack",
		nn.LayoutNHWC_HWIO:     "conv2d_nhwc",
		nn.LayoutNCHW4c_OIHW4o: "conv2d_nchwc",
	}
	for _, layoutPair := range nn.Conv2DLayouts() {
		for _, dtype := range []dtypes.DType{dtypes.Float16, dtypes.Float32} {
			t.Run(layoutPair.String()+"/"+dtype.String(), func(t *testing.T) {
				g := graph.New(t.Name())
				dims := operands[layoutPair]
				require.NotNil(t, dims[0], "no operands for layout %s", layoutPair)
				inputs := []*graph.Node{
					graph.Parameter(g, "data", shapes.Make(dtype, dims[0]...)),
					graph.Parameter(g, "kernel", shapes.Make(dtype, dims[1]...)),
				}
				attributes := attrs.New(map[string]any{
					nn.AttrDataLayout: layoutPair.DataLayout(), nn.AttrKernelLayout: layoutPair.KernelLayout()})
				s, err := build(attributes, inputs, shapes.Make(dtype), tgt)
				name, supported := want[layoutPair]
				if !supported {
					var layoutErr *strategy.UnsupportedLayoutError
					require.True(t, errors.As(err, &layoutErr), "got %v", err)
					return
				}
				require.NoError(t, err)
				expected := []candidate{{name + "_acc32.image2d", PriorityFullAccumulation}}
				if dtype == dtypes.Float16 {
					expected = append([]candidate{{name + ".image2d", PriorityHalfAccumulation}}, expected...)
				}
				assert.Equal(t, expected, candidates(s))
			})
		}
	}
}

func TestConv2DDepthwise(t *testing.T) {
	build := Conv2D(newRegistries().Kernels)
	g := graph.New(t.Name())
	nhwc := attrs.New(map[string]any{nn.AttrDataLayout: "NHWC", nn.AttrKernelLayout: "HWOI", nn.AttrGroups: 8})
	inputs := []*graph.Node{
		graph.Parameter(g, "data", shapes.Make(dtypes.Float16, 1, 10, 10, 8)),
		graph.Parameter(g, "kernel", shapes.Make(dtypes.Float16, 3, 3, 8, 1)),
	}
	s := must.M1(build(nhwc, inputs, shapes.Make(dtypes.Float16), tgt))
	assert.Equal(t, []candidate{
		{"depthwise_conv2d_nhwc.image2d", PriorityHalfAccumulation},
		{"depthwise_conv2d_nhwc_acc32.image2d", PriorityFullAccumulation},
	}, candidates(s))

	blocked := attrs.New(map[string]any{nn.AttrDataLayout: "NCHW4c", nn.AttrKernelLayout: "OIHW4o", nn.AttrGroups: 8})
	inputs = []*graph.Node{
		graph.Parameter(g, "data4c", shapes.Make(dtypes.Float32, 1, 2, 10, 10, 4)),
		graph.Parameter(g, "kernel4o", shapes.Make(dtypes.Float32, 2, 1, 3, 3, 4)),
	}
	s = must.M1(build(blocked, inputs, shapes.Make(dtypes.Float32), tgt))
	assert.Equal(t, []candidate{{"depthwise_conv2d_nchwc_acc32.image2d", PriorityFullAccumulation}}, candidates(s))

	// Depthwise with HWIO kernels is not supported.
	hwio := attrs.New(map[string]any{nn.AttrDataLayout: "NHWC", nn.AttrKernelLayout: "HWIO", nn.AttrGroups: 8})
	inputs = []*graph.Node{
		graph.Parameter(g, "nhwc", shapes.Make(dtypes.Float32, 1, 10, 10, 8)),
		graph.Parameter(g, "hwio", shapes.Make(dtypes.Float32, 3, 3, 1, 8)),
	}
	_, err := build(hwio, inputs, shapes.Make(dtypes.Float32), tgt)
	var layoutErr *strategy.UnsupportedLayoutError
	require.True(t, errors.As(err, &layoutErr), "got %v", err)
	assert.Contains(t, err.Error(), "only NCHW/OIHW")

	// Grouped.
	grouped := attrs.New(map[string]any{nn.AttrGroups: 2})
	inputs = []*graph.Node{
		graph.Parameter(g, "nchw", shapes.Make(dtypes.Float32, 1, 8, 10, 10)),
		graph.Parameter(g, "oihw", shapes.Make(dtypes.Float32, 8, 4, 3, 3)),
	}
	_, err = build(grouped, inputs, shapes.Make(dtypes.Float32), tgt)
	var configErr *strategy.UnsupportedConfigurationError
	require.True(t, errors.As(err, &configErr), "got %v", err)

	_, err = build(attrs.New(map[string]any{nn.AttrDilation: []int{1, 0}}), inputs, shapes.Make(dtypes.Float32), tgt)
	var attrErr *strategy.InvalidAttributeError
	require.True(t, errors.As(err, &attrErr), "got %v", err)
}

func TestPoolSchedule(t *testing.T) {
	r := newRegistries()
	g := graph.New(t.Name())
	sched := PoolSchedule(r.Kernels)
	for _, tc := range []struct {
		layout string
		data   []int
		output []int
		scope  target.Scope
	}{
		{"NCHW4c", []int{1, 2, 8, 8, 4}, []int{1, 2, 4, 4, 4}, target.ScopeTexture},
		{"NCHW", []int{1, 8, 8, 8}, []int{1, 8, 4, 4}, target.ScopeGlobal},
	} {
		t.Run(tc.layout, func(t *testing.T) {
			attributes := attrs.New(map[string]any{nn.AttrPoolSize: 2, nn.AttrStrides: 2, nn.AttrLayout: tc.layout})
			data := graph.Parameter(g, "data", shapes.Make(dtypes.Float16, tc.data...))
			output := graph.NewNode(g, op.MaxPool2D, attributes, shapes.Make(dtypes.Float16, tc.output...), data)
			s := must.M1(sched(attributes, []*graph.Node{output}, tgt))
			assert.Equal(t, tc.scope, s.Buffer("data").Scope)
			assert.Equal(t, tc.scope, s.Buffer("output").Scope)
		})
	}
}
