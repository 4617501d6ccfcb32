// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/opdispatch/attrs"
	"github.com/gomlx/opdispatch/dispatch"
	"github.com/gomlx/opdispatch/graph"
	"github.com/gomlx/opdispatch/kernels"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/strategy"
	"github.com/gomlx/opdispatch/target"
	"github.com/gomlx/opdispatch/types/shapes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstall(t *testing.T) {
	r := NewRegistries()
	assert.Contains(t, r.Strategies.Operators(), op.Conv2D)
	assert.Contains(t, r.Strategies.Operators(), op.MaxPool2D)
	assert.True(t, r.Strategies.HasCompute(op.Add))
	assert.Equal(t, []string{kernels.CUDA, kernels.Generic}, r.Kernels.Namespaces("conv2d_nchw"))
	assert.Contains(t, r.Gradients.Operators(), op.Subtract)
	assert.Equal(t, op.PatternBroadcast, r.Patterns.Get(op.Add))

	// Separate registries don't share registrations.
	other := dispatch.NewRegistries()
	assert.Empty(t, other.Strategies.Operators())
	assert.Equal(t, 0, other.Kernels.Len())
}

func TestInit(t *testing.T) {
	Init()
	Init()
	assert.Equal(t, op.PatternBroadcast, dispatch.GetPatternTag(op.Add))
	assert.Equal(t, op.PatternOpaque, dispatch.GetPatternTag("nn.unknown"))
	rule := must.M1(dispatch.GetGradientRule(op.Subtract))
	assert.NotNil(t, rule)

	g := graph.New(t.Name())
	x := graph.Parameter(g, "x", shapes.Make(dtypes.Float32, 2, 3))
	impl := must.M1(dispatch.ResolveStrategy(op.Exp, nil, []*graph.Node{x}, x.Shape(), target.MustParse("metal")))
	assert.Equal(t, "exp.gpu", impl.Name)

	// Frozen: only late registrations are accepted.
	build := func(*attrs.Attributes, []*graph.Node, shapes.Shape, *target.Target) (*strategy.Strategy, error) {
		return strategy.NewBuilder("test.late").Build()
	}
	assert.Panics(t, func() { dispatch.RegisterStrategy("test.late", strategy.GenericTag, build) })
	assert.Panics(t, func() { dispatch.RegisterPattern("test.late", op.PatternInjective) })
	assert.NotPanics(t, func() { dispatch.RegisterStrategyLate("test.late", strategy.GenericTag, build) })
	_, err := dispatch.ResolveStrategy("test.late", nil, []*graph.Node{x}, x.Shape(), target.MustParse("llvm"))
	var noMatch *strategy.NoCandidateMatchedError
	require.ErrorAs(t, err, &noMatch)
}
