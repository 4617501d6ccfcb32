// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gradients

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/opdispatch/graph"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/types/shapes"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTensorRegistry() *Registry {
	r := NewRegistry()
	for operator, rule := range TensorRules {
		r.Register(operator, rule)
	}
	return r
}

func TestAddGradient(t *testing.T) {
	r := newTensorRegistry()
	g := graph.New("test")
	x := graph.Parameter(g, "x", shapes.Make(dtypes.Float32, 2, 3))
	y := graph.Parameter(g, "y", shapes.Make(dtypes.Float32, 3))
	sum := graph.Add(x, y)
	v := graph.Parameter(g, "v", sum.Shape())

	grads, err := r.Apply(sum, v)
	require.NoError(t, err)
	require.Len(t, grads, 2)
	assert.True(t, grads[0].Shape().Equal(x.Shape()))
	assert.True(t, grads[1].Shape().Equal(y.Shape()))
	assert.Same(t, v, grads[0])
	assert.Equal(t, op.CollapseSum, grads[1].Operator())

	values, err := graph.Evaluate(map[*graph.Node]*graph.Value{
		v: must.M1(graph.NewValue(v.Shape(), 1, 1, 1, 1, 1, 1)),
	}, grads[1])
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2, 2}, values[0].Flat)
}

func TestSubtractGradient(t *testing.T) {
	r := newTensorRegistry()
	g := graph.New("test")
	x := graph.Parameter(g, "x", shapes.Make(dtypes.Float32, 2, 3))
	y := graph.Parameter(g, "y", shapes.Make(dtypes.Float32, 3))
	diff := graph.Subtract(x, y)
	v := graph.Parameter(g, "v", diff.Shape())

	grads, err := r.Apply(diff, v)
	require.NoError(t, err)
	require.Len(t, grads, 2)
	assert.True(t, grads[1].Shape().Equal(y.Shape()))
	// Second gradient is the negated gradient, adapted to y.
	require.Equal(t, op.CollapseSum, grads[1].Operator())
	negated := grads[1].Input(0)
	assert.Equal(t, op.Negative, negated.Operator())
	assert.Same(t, v, negated.Input(0))

	values, err := graph.Evaluate(map[*graph.Node]*graph.Value{
		v: must.M1(graph.NewValue(v.Shape(), 1, 2, 3, 4, 5, 6)),
	}, grads...)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, values[0].Flat)
	assert.Equal(t, []float64{-5, -7, -9}, values[1].Flat)
}

// numericGradient returns the gradient of sum(v * f(x)) with respect to x, using central differences.
func numericGradient(t *testing.T, f func(x *graph.Node) *graph.Node, xFlat, vFlat []float64) []float64 {
	const eps = 1e-6
	shape := shapes.Make(dtypes.Float64, len(xFlat))
	eval := func(flat []float64) []float64 {
		g := graph.New("numeric")
		x := graph.Parameter(g, "x", shape)
		values, err := graph.Evaluate(map[*graph.Node]*graph.Value{x: must.M1(graph.NewValue(shape, flat...))}, f(x))
		require.NoError(t, err)
		return values[0].Flat
	}
	grad := make([]float64, len(xFlat))
	for ii := range xFlat {
		plus := append([]float64(nil), xFlat...)
		minus := append([]float64(nil), xFlat...)
		plus[ii] += eps
		minus[ii] -= eps
		fPlus, fMinus := eval(plus), eval(minus)
		for jj := range vFlat {
			grad[ii] += vFlat[jj] * (fPlus[jj] - fMinus[jj]) / (2 * eps)
		}
	}
	return grad
}

func TestRulesNumerically(t *testing.T) {
	r := newTensorRegistry()
	xFlat := []float64{0.5, 1.0, 2.0}
	vFlat := []float64{1.0, -2.0, 0.5}
	testCases := map[string]func(x *graph.Node) *graph.Node{
		"negative": graph.Negative,
		"exp":      graph.Exp,
		"log":      graph.Log,
		"sqrt":     graph.Sqrt,
		"tanh":     graph.Tanh,
		"sigmoid":  graph.Sigmoid,
		"copy":     graph.Copy,
		"multiply": func(x *graph.Node) *graph.Node { return graph.Multiply(x, x) },
		"divide": func(x *graph.Node) *graph.Node {
			return graph.Divide(graph.OnesLike(x), graph.Add(x, graph.OnesLike(x)))
		},
		"subtract": func(x *graph.Node) *graph.Node { return graph.Subtract(graph.Exp(x), x) },
	}
	for name, f := range testCases {
		t.Run(name, func(t *testing.T) {
			want := numericGradient(t, f, xFlat, vFlat)

			g := graph.New(name)
			shape := shapes.Make(dtypes.Float64, len(xFlat))
			x := graph.Parameter(g, "x", shape)
			output := f(x)
			v := graph.Parameter(g, "v", output.Shape())
			xGrad := backprop(t, r, output, v, x)
			values, err := graph.Evaluate(map[*graph.Node]*graph.Value{
				x: must.M1(graph.NewValue(shape, xFlat...)),
				v: must.M1(graph.NewValue(shape, vFlat...)),
			}, xGrad)
			require.NoError(t, err)
			assert.InDeltaSlice(t, want, values[0].Flat, 1e-5)
		})
	}
}

// backprop computes the gradient of output with respect to x, given the output gradient v, by applying
// the rules in reverse creation order.
func backprop(t *testing.T, r *Registry, output, v, x *graph.Node) *graph.Node {
	adjoints := map[graph.NodeId]*graph.Node{output.Id(): v}
	for id := output.Id(); id > x.Id(); id-- {
		node := output.Graph().NodeById(id)
		adjoint := adjoints[id]
		if adjoint == nil || node.NumInputs() == 0 {
			continue
		}
		grads, err := r.Apply(node, adjoint)
		require.NoError(t, err)
		for ii, grad := range grads {
			inputId := node.Input(ii).Id()
			if previous := adjoints[inputId]; previous != nil {
				grad = graph.Add(previous, grad)
			}
			adjoints[inputId] = grad
		}
	}
	require.NotNil(t, adjoints[x.Id()])
	return adjoints[x.Id()]
}

func TestRegistryErrors(t *testing.T) {
	r := newTensorRegistry()
	g := graph.New("test")
	x := graph.Parameter(g, "x", shapes.Make(dtypes.Float32, 3))
	conv := graph.NewNode(g, op.Conv2D, nil, x.Shape(), x)

	_, err := r.Lookup(op.Conv2D)
	var noRule *NoGradientRuleError
	require.True(t, errors.As(err, &noRule))
	assert.Equal(t, op.Conv2D, noRule.Operator)
	_, err = r.Apply(conv, x)
	require.True(t, errors.As(err, &noRule))

	// Wrong number of gradients.
	r.Register(op.Conv2D, func(node, v *graph.Node) []*graph.Node { return nil })
	_, err = r.Apply(conv, x)
	assert.ErrorContains(t, err, "returned 0 gradients")

	// Wrong shape.
	y := graph.Parameter(g, "y", shapes.Make(dtypes.Float32, 2, 3))
	r.Register(op.Conv2D, func(node, v *graph.Node) []*graph.Node { return []*graph.Node{y} })
	_, err = r.Apply(conv, x)
	assert.ErrorContains(t, err, "invalid shape")

	// Panicking rule.
	z := graph.Parameter(g, "z", shapes.Make(dtypes.Float32, 2))
	r.Register(op.Conv2D, func(node, v *graph.Node) []*graph.Node { return []*graph.Node{graph.Add(z, node)} })
	_, err = r.Apply(conv, x)
	assert.ErrorContains(t, err, "gradient rule of")

	// Output gradient with the wrong shape.
	sum := graph.Add(x, x)
	_, err = r.Apply(sum, y)
	assert.Error(t, err)

	r.Freeze()
	assert.Panics(t, func() { r.Register(op.Add, addRule) })
	r.RegisterLate(op.Conv2D, func(node, v *graph.Node) []*graph.Node { return []*graph.Node{nil} })
	grads, err := r.Apply(conv, x)
	require.NoError(t, err)
	assert.Nil(t, grads[0])
	assert.Contains(t, r.Operators(), op.Conv2D)
}
