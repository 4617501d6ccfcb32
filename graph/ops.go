// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/opdispatch/attrs"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/types/shapes"
)

// Parameter creates an input of the graph with the given shape.
func Parameter(g *Graph, name string, shape shapes.Shape) *Node {
	if !shape.Ok() || shape.IsTuple() {
		exceptions.Panicf("Parameter(%q): invalid shape %s", name, shape)
	}
	return NewNode(g, op.Parameter, attrs.New(map[string]any{"name": name}), shape).SetName(name)
}

// Const creates a constant with the given flat values, in row-major order.
// A single value is broadcast to all elements.
func Const(g *Graph, shape shapes.Shape, values ...float64) *Node {
	size := shape.Size()
	switch len(values) {
	case size:
	case 1:
		single := values[0]
		values = make([]float64, size)
		for ii := range values {
			values[ii] = single
		}
	default:
		exceptions.Panicf("Const(%s): got %d values, wanted %d", shape, len(values), size)
	}
	node := NewNode(g, op.Constant, nil, shape)
	node.constValues = append([]float64(nil), values...)
	return node
}

func unaryOp(operator op.Name, x *Node) *Node {
	g := validateBuildingGraphFromInputs(x)
	return NewNode(g, operator, nil, x.Shape(), x)
}

// Negative returns -x.
func Negative(x *Node) *Node { return unaryOp(op.Negative, x) }

// Exp returns e^x.
func Exp(x *Node) *Node { return unaryOp(op.Exp, x) }

// Log returns the natural logarithm of x.
func Log(x *Node) *Node { return unaryOp(op.Log, x) }

// Sqrt returns the square root of x.
func Sqrt(x *Node) *Node { return unaryOp(op.Sqrt, x) }

// Tanh returns the hyperbolic tangent of x.
func Tanh(x *Node) *Node { return unaryOp(op.Tanh, x) }

// Sigmoid returns 1/(1+e^-x).
func Sigmoid(x *Node) *Node { return unaryOp(op.Sigmoid, x) }

// Abs returns the absolute value of x.
func Abs(x *Node) *Node { return unaryOp(op.Abs, x) }

// Copy returns a copy of x.
func Copy(x *Node) *Node { return unaryOp(op.Copy, x) }

// ZerosLike returns zeros with the shape of x.
func ZerosLike(x *Node) *Node { return unaryOp(op.ZerosLike, x) }

// OnesLike returns ones with the shape of x.
func OnesLike(x *Node) *Node { return unaryOp(op.OnesLike, x) }

// binaryOp creates an elementwise binary operation, with the inputs broadcast to a common shape.
func binaryOp(operator op.Name, lhs, rhs *Node) *Node {
	g := validateBuildingGraphFromInputs(lhs, rhs)
	shape, err := shapes.Broadcast(lhs.Shape(), rhs.Shape())
	if err != nil {
		exceptions.Panicf("%s(%s, %s): %v", operator, lhs.Shape(), rhs.Shape(), err)
	}
	return NewNode(g, operator, nil, shape, lhs, rhs)
}

// Add returns lhs+rhs, broadcasting the inputs if needed.
func Add(lhs, rhs *Node) *Node { return binaryOp(op.Add, lhs, rhs) }

// Subtract returns lhs-rhs, broadcasting the inputs if needed.
func Subtract(lhs, rhs *Node) *Node { return binaryOp(op.Subtract, lhs, rhs) }

// Multiply returns lhs*rhs, broadcasting the inputs if needed.
func Multiply(lhs, rhs *Node) *Node { return binaryOp(op.Multiply, lhs, rhs) }

// Divide returns lhs/rhs, broadcasting the inputs if needed.
func Divide(lhs, rhs *Node) *Node { return binaryOp(op.Divide, lhs, rhs) }

// CollapseSumLike sums x over the axes broadcast from like's shape, so the result has like's shape.
// It is the reverse of broadcasting like to x.
func CollapseSumLike(x, like *Node) *Node {
	g := validateBuildingGraphFromInputs(x, like)
	if x.DType() != like.DType() {
		exceptions.Panicf("CollapseSumLike(%s, like=%s): dtypes don't match", x.Shape(), like.Shape())
	}
	if _, err := shapes.ReductionAxes(x.Shape(), like.Shape()); err != nil {
		exceptions.Panicf("CollapseSumLike(%s, like=%s): %v", x.Shape(), like.Shape(), err)
	}
	return NewNode(g, op.CollapseSum, nil, like.Shape(), x, like)
}

// BroadcastToLike broadcasts x to like's shape.
func BroadcastToLike(x, like *Node) *Node {
	g := validateBuildingGraphFromInputs(x, like)
	if !shapes.CanBroadcastTo(x.Shape(), like.Shape()) {
		exceptions.Panicf("BroadcastToLike(%s, like=%s): shape cannot be broadcast", x.Shape(), like.Shape())
	}
	return NewNode(g, op.BroadcastTo, nil, like.Shape(), x, like)
}

// AdaptLike adapts x to the shape of like: it returns x itself if the shapes are the same, it collapses x
// (with CollapseSumLike) if like was broadcast into x, or it broadcasts x (with BroadcastToLike) if x can be
// broadcast to like.
//
// Gradient rules use it to return gradients shaped like the original inputs.
func AdaptLike(x, like *Node) *Node {
	switch {
	case x.Shape().Equal(like.Shape()):
		return x
	case shapes.CanBroadcastTo(like.Shape(), x.Shape()):
		return CollapseSumLike(x, like)
	case shapes.CanBroadcastTo(x.Shape(), like.Shape()):
		return BroadcastToLike(x, like)
	}
	exceptions.Panicf("AdaptLike(%s, like=%s): shapes are not broadcast compatible", x.Shape(), like.Shape())
	return nil
}
