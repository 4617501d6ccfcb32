// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gradients

import (
	. "github.com/gomlx/opdispatch/graph"
	"github.com/gomlx/opdispatch/op"
)

// TensorRules are the gradient rules of the elementwise tensor operators.
var TensorRules = map[op.Name]Rule{
	op.Add:         addRule,
	op.Subtract:    subtractRule,
	op.Multiply:    multiplyRule,
	op.Divide:      divideRule,
	op.Negative:    negativeRule,
	op.Exp:         expRule,
	op.Log:         logRule,
	op.Sqrt:        sqrtRule,
	op.Tanh:        tanhRule,
	op.Sigmoid:     sigmoidRule,
	op.Copy:        copyRule,
	op.ZerosLike:   zeroRule,
	op.OnesLike:    zeroRule,
	op.CollapseSum: collapseSumRule,
	op.BroadcastTo: broadcastToRule,
}

func addRule(node, v *Node) []*Node {
	x, y := node.Input(0), node.Input(1)
	return []*Node{AdaptLike(v, x), AdaptLike(v, y)}
}

func subtractRule(node, v *Node) []*Node {
	x, y := node.Input(0), node.Input(1)
	return []*Node{AdaptLike(v, x), AdaptLike(Negative(v), y)}
}

func multiplyRule(node, v *Node) []*Node {
	x, y := node.Input(0), node.Input(1)
	return []*Node{AdaptLike(Multiply(v, y), x), AdaptLike(Multiply(v, x), y)}
}

func divideRule(node, v *Node) []*Node {
	x, y := node.Input(0), node.Input(1)
	// d(x/y)/dy = -x/y^2 = -node/y
	return []*Node{AdaptLike(Divide(v, y), x), AdaptLike(Negative(Divide(Multiply(v, node), y)), y)}
}

func negativeRule(_, v *Node) []*Node {
	return []*Node{Negative(v)}
}

func expRule(node, v *Node) []*Node {
	return []*Node{Multiply(v, node)}
}

func logRule(node, v *Node) []*Node {
	return []*Node{Divide(v, node.Input(0))}
}

func sqrtRule(node, v *Node) []*Node {
	// d(x^0.5)/dx = 0.5/sqrt(x)
	return []*Node{Divide(v, Add(node, node))}
}

func tanhRule(node, v *Node) []*Node {
	return []*Node{Multiply(v, Subtract(OnesLike(node), Multiply(node, node)))}
}

func sigmoidRule(node, v *Node) []*Node {
	return []*Node{Multiply(v, Multiply(node, Subtract(OnesLike(node), node)))}
}

func copyRule(_, v *Node) []*Node {
	return []*Node{v}
}

func zeroRule(node, _ *Node) []*Node {
	return []*Node{ZerosLike(node.Input(0))}
}

// collapseSumRule: the second input only provides the shape.
func collapseSumRule(node, v *Node) []*Node {
	x, like := node.Input(0), node.Input(1)
	return []*Node{BroadcastToLike(v, x), ZerosLike(like)}
}

func broadcastToRule(node, v *Node) []*Node {
	x, like := node.Input(0), node.Input(1)
	return []*Node{CollapseSumLike(v, x), ZerosLike(like)}
}
