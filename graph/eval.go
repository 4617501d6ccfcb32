// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/types/shapes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"gonum.org/v1/gonum/floats"
)

// Value is a concrete tensor used by the reference evaluator. Values are held as float64, and rounded
// to the precision of the shape's dtype after each operation.
type Value struct {
	Shape shapes.Shape
	Flat  []float64
}

// NewValue creates a value with the given shape and flat values, in row-major order.
func NewValue(shape shapes.Shape, flat ...float64) (*Value, error) {
	if len(flat) != shape.Size() {
		return nil, errors.Errorf("value of shape %s requires %d elements, got %d", shape, shape.Size(), len(flat))
	}
	v := &Value{Shape: shape.Clone(), Flat: append([]float64(nil), flat...)}
	v.round()
	return v, nil
}

// round the values to the precision of the dtype.
func (v *Value) round() {
	switch v.Shape.DType {
	case dtypes.Float16:
		for ii, f := range v.Flat {
			v.Flat[ii] = float64(float16.Fromfloat32(float32(f)).Float32())
		}
	case dtypes.Float32:
		for ii, f := range v.Flat {
			v.Flat[ii] = float64(float32(f))
		}
	}
}

// broadcastTo returns the flat values of v broadcast to shape.
func (v *Value) broadcastTo(shape shapes.Shape) []float64 {
	if v.Shape.EqualDimensions(shape) {
		return append([]float64(nil), v.Flat...)
	}
	output := make([]float64, shape.Size())
	srcStrides := v.Shape.Strides()
	offset := shape.Rank() - v.Shape.Rank()
	for flat, indices := range shape.Iter() {
		output[flat] = v.Flat[alignedFlatIndex(indices, v.Shape, srcStrides, offset)]
	}
	return output
}

// collapseTo sums v into the given (smaller) shape, the reverse of a broadcast.
func (v *Value) collapseTo(shape shapes.Shape) []float64 {
	output := make([]float64, shape.Size())
	dstStrides := shape.Strides()
	offset := v.Shape.Rank() - shape.Rank()
	for flat, indices := range v.Shape.Iter() {
		output[alignedFlatIndex(indices, shape, dstStrides, offset)] += v.Flat[flat]
	}
	return output
}

// alignedFlatIndex maps indices of a larger shape to the flat position in the smaller right-aligned
// shape, where axes of dimension 1 are broadcast.
func alignedFlatIndex(indices []int, small shapes.Shape, strides []int, offset int) int {
	pos := 0
	for axis, dim := range small.Dimensions {
		if dim > 1 {
			pos += indices[axis+offset] * strides[axis]
		}
	}
	return pos
}

// Evaluate computes the values of outputs, given the values of the parameters they depend on.
//
// Only the operations created by this package are supported: kernels' outputs can't be evaluated.
// It exists to check gradient rules against numeric differentiation in tests.
func Evaluate(feeds map[*Node]*Value, outputs ...*Node) (values []*Value, err error) {
	if len(outputs) == 0 {
		return nil, nil
	}
	err = exceptions.TryCatch[error](func() {
		_ = validateBuildingGraphFromInputs(outputs...)
		cache := make(map[NodeId]*Value)
		values = make([]*Value, len(outputs))
		for ii, output := range outputs {
			values[ii] = evaluateNode(output, feeds, cache)
		}
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

func evaluateNode(node *Node, feeds map[*Node]*Value, cache map[NodeId]*Value) *Value {
	if v, found := cache[node.id]; found {
		return v
	}
	needed := node.inputNodes
	if node.operator == op.CollapseSum || node.operator == op.BroadcastTo {
		// The second input only provides the shape.
		needed = needed[:1]
	}
	inputs := make([]*Value, len(needed))
	for ii, input := range needed {
		inputs[ii] = evaluateNode(input, feeds, cache)
	}
	shape := node.Shape()
	result := &Value{Shape: shape}
	switch node.operator {
	case op.Parameter:
		feed, found := feeds[node]
		if !found {
			exceptions.Panicf("Evaluate: no value fed for parameter %s", node)
		}
		if !feed.Shape.Equal(shape) {
			exceptions.Panicf("Evaluate: value fed for parameter %s has shape %s", node, feed.Shape)
		}
		result.Flat = append([]float64(nil), feed.Flat...)
	case op.Constant:
		result.Flat = append([]float64(nil), node.constValues...)
	case op.ZerosLike:
		result.Flat = make([]float64, shape.Size())
	case op.OnesLike:
		result.Flat = make([]float64, shape.Size())
		floats.AddConst(1, result.Flat)
	case op.Copy:
		result.Flat = append([]float64(nil), inputs[0].Flat...)
	case op.Negative:
		result.Flat = append([]float64(nil), inputs[0].Flat...)
		floats.Scale(-1, result.Flat)
	case op.Exp:
		result.Flat = mapValues(inputs[0].Flat, math.Exp)
	case op.Log:
		result.Flat = mapValues(inputs[0].Flat, math.Log)
	case op.Sqrt:
		result.Flat = mapValues(inputs[0].Flat, math.Sqrt)
	case op.Tanh:
		result.Flat = mapValues(inputs[0].Flat, math.Tanh)
	case op.Abs:
		result.Flat = mapValues(inputs[0].Flat, math.Abs)
	case op.Sigmoid:
		result.Flat = mapValues(inputs[0].Flat, func(x float64) float64 { return 1 / (1 + math.Exp(-x)) })
	case op.Add, op.Subtract, op.Multiply, op.Divide:
		lhs, rhs := inputs[0].broadcastTo(shape), inputs[1].broadcastTo(shape)
		result.Flat = make([]float64, shape.Size())
		switch node.operator {
		case op.Add:
			floats.AddTo(result.Flat, lhs, rhs)
		case op.Subtract:
			floats.SubTo(result.Flat, lhs, rhs)
		case op.Multiply:
			floats.MulTo(result.Flat, lhs, rhs)
		case op.Divide:
			floats.DivTo(result.Flat, lhs, rhs)
		}
	case op.CollapseSum:
		result.Flat = inputs[0].collapseTo(shape)
	case op.BroadcastTo:
		result.Flat = inputs[0].broadcastTo(shape)
	default:
		exceptions.Panicf("Evaluate: no reference evaluation for operator %q (node %s)", node.operator, node)
	}
	result.round()
	cache[node.id] = result
	return result
}

func mapValues(values []float64, fn func(float64) float64) []float64 {
	output := make([]float64, len(values))
	for ii, v := range values {
		output[ii] = fn(v)
	}
	return output
}
