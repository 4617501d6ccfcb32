// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/opdispatch/attrs"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/types/shapes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	g := New("test")
	x := Parameter(g, "x", shapes.Make(dtypes.Float32, 2, 3))
	y := Parameter(g, "y", shapes.Make(dtypes.Float32, 3))
	sum := Add(x, y)
	assert.Equal(t, []int{2, 3}, sum.Shape().Dimensions)
	assert.Equal(t, op.Add, sum.Operator())
	assert.Equal(t, []*Node{x, y}, sum.Inputs())
	assert.Equal(t, NodeId(2), sum.Id())
	assert.Equal(t, 3, g.NumNodes())
	assert.Same(t, sum, g.NodeById(2))
	assert.Nil(t, g.NodeById(3))
	assert.Equal(t, "x", x.Name())
	assert.Contains(t, sum.String(), "add(#0, #1)")

	collapsed := CollapseSumLike(sum, y)
	assert.True(t, collapsed.Shape().Equal(y.Shape()))
	broadcast := BroadcastToLike(y, x)
	assert.True(t, broadcast.Shape().Equal(x.Shape()))
	assert.Same(t, x, AdaptLike(x, x))
	assert.Equal(t, op.CollapseSum, AdaptLike(sum, y).Operator())
	assert.Equal(t, op.BroadcastTo, AdaptLike(y, sum).Operator())

	z := Parameter(g, "z", shapes.Make(dtypes.Float32, 2))
	err := exceptions.TryCatch[error](func() { _ = Add(x, z) })
	assert.Error(t, err)
	err = exceptions.TryCatch[error](func() { _ = CollapseSumLike(y, x) })
	assert.Error(t, err)
	err = exceptions.TryCatch[error](func() { _ = AdaptLike(x, z) })
	assert.Error(t, err)

	other := New("other")
	w := Parameter(other, "w", shapes.Make(dtypes.Float32, 3))
	err = exceptions.TryCatch[error](func() { _ = Add(x, w) })
	assert.Error(t, err)

	kernelOut := NewNode(g, "generic.conv2d_nchw", attrs.New(map[string]any{"groups": 1}), shapes.Make(dtypes.Float32, 1, 2), x)
	assert.Contains(t, kernelOut.String(), "{groups=1}")
}

func TestEvaluate(t *testing.T) {
	g := New("test")
	x := Parameter(g, "x", shapes.Make(dtypes.Float32, 2, 3))
	y := Parameter(g, "y", shapes.Make(dtypes.Float32, 3))
	feeds := map[*Node]*Value{
		x: must.M1(NewValue(x.Shape(), 1, 2, 3, 4, 5, 6)),
		y: must.M1(NewValue(y.Shape(), 10, 20, 30)),
	}
	sum := Add(x, y)
	diff := Subtract(x, y)
	collapsed := CollapseSumLike(sum, y)
	neg := Negative(y)
	values, err := Evaluate(feeds, sum, diff, collapsed, neg, OnesLike(y), Multiply(y, y), Divide(y, y))
	require.NoError(t, err)
	assert.Equal(t, []float64{11, 22, 33, 14, 25, 36}, values[0].Flat)
	assert.Equal(t, []float64{-9, -18, -27, -6, -15, -24}, values[1].Flat)
	assert.Equal(t, []float64{25, 47, 69}, values[2].Flat)
	assert.Equal(t, []float64{-10, -20, -30}, values[3].Flat)
	assert.Equal(t, []float64{1, 1, 1}, values[4].Flat)
	assert.Equal(t, []float64{100, 400, 900}, values[5].Flat)
	assert.Equal(t, []float64{1, 1, 1}, values[6].Flat)

	// Missing feed.
	_, err = Evaluate(map[*Node]*Value{x: feeds[x]}, sum)
	assert.Error(t, err)

	// Unsupported operator.
	kernelOut := NewNode(g, "cuda.conv2d_nchw", nil, shapes.Make(dtypes.Float32, 1), x)
	_, err = Evaluate(feeds, kernelOut)
	assert.Error(t, err)

	_, err = NewValue(x.Shape(), 1, 2)
	assert.Error(t, err)
}

func TestEvaluateFloat16(t *testing.T) {
	g := New("test")
	c := Const(g, shapes.Make(dtypes.Float16, 2), 1.0001, 2)
	values, err := Evaluate(nil, Copy(c))
	require.NoError(t, err)
	// 1.0001 is not representable in half precision.
	assert.Equal(t, []float64{1, 2}, values[0].Flat)

	c = Const(g, shapes.Make(dtypes.Float32, 2, 2), 3)
	values, err = Evaluate(nil, c)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 3, 3, 3}, values[0].Flat)
}
