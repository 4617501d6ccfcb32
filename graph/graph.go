// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graph implements the symbolic compute-graph operators are lowered on: nodes carry an
// operator name, its attributes, its input nodes and the output shape, but no values.
//
// Kernels (compute procedures) return new nodes, and gradient rules are expressed as new nodes built
// with the operations in this package, e.g. Add, Negative or CollapseSumLike.
//
// Like most graph building libraries, construction errors (e.g. incompatible shapes) panic with
// github.com/gomlx/exceptions. Use exceptions.TryCatch to convert them to errors.
//
// A reference evaluator, Evaluate, executes the small set of elementwise and broadcasting operations
// defined here. It's used to check gradient rules numerically.
package graph

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/opdispatch/attrs"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/types/shapes"
)

// NodeId is the position of a node in its graph. Nodes are created in topological order, so a node's
// inputs always have smaller ids.
type NodeId int

// Graph holds the nodes of a computation. It's safe to add nodes concurrently.
type Graph struct {
	name  string
	mu    sync.Mutex
	nodes []*Node
}

// New creates an empty graph.
func New(name string) *Graph {
	return &Graph{name: name}
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// NumNodes returns the number of nodes in the graph.
func (g *Graph) NumNodes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

// Nodes returns a copy of the list of nodes, in creation order.
func (g *Graph) Nodes() []*Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.nodes)
}

// NodeById returns the node with the given id, or nil if out of range.
func (g *Graph) NodeById(id NodeId) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id < 0 || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

func (g *Graph) registerNode(node *Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	node.id = NodeId(len(g.nodes))
	g.nodes = append(g.nodes, node)
}

// Node of a graph: the symbolic handle of a tensor produced by an operator.
type Node struct {
	graph      *Graph
	id         NodeId
	operator   op.Name
	attributes *attrs.Attributes
	inputNodes []*Node
	shape      shapes.Shape
	name       string

	// constValues holds the flat values of constant nodes.
	constValues []float64
}

// NewNode creates a node for any operator in graph g, with the given output shape.
//
// Kernels use it to create their outputs. All inputs must belong to g.
func NewNode(g *Graph, operator op.Name, attributes *attrs.Attributes, shape shapes.Shape, inputs ...*Node) *Node {
	if g == nil {
		exceptions.Panicf("NewNode(%q): nil graph", operator)
	}
	for ii, input := range inputs {
		if input == nil {
			exceptions.Panicf("NewNode(%q): input #%d is nil", operator, ii)
		}
		if input.graph != g {
			exceptions.Panicf("NewNode(%q): input #%d (%s) is from graph %q, not %q",
				operator, ii, input, input.graph.name, g.name)
		}
	}
	if !shape.Ok() {
		exceptions.Panicf("NewNode(%q): invalid output shape", operator)
	}
	node := &Node{
		graph:      g,
		operator:   operator,
		attributes: attributes,
		inputNodes: slices.Clone(inputs),
		shape:      shape.Clone(),
	}
	g.registerNode(node)
	return node
}

// validateBuildingGraphFromInputs checks that all inputs are valid and from the same graph, and
// returns the graph.
func validateBuildingGraphFromInputs(inputs ...*Node) *Graph {
	if len(inputs) == 0 {
		exceptions.Panicf("no input nodes provided, at least one is required")
	}
	var g *Graph
	for ii, n := range inputs {
		if n == nil || n.graph == nil {
			exceptions.Panicf("input node #%d is nil or invalid", ii)
		}
		if g == nil {
			g = n.graph
		} else if n.graph != g {
			exceptions.Panicf("combining nodes from different graphs not allowed: input node #%d is from graph %q, while node #0 is from graph %q",
				ii, n.graph.name, g.name)
		}
	}
	return g
}

// Graph the node belongs to.
func (n *Node) Graph() *Graph { return n.graph }

// Id of the node within its graph.
func (n *Node) Id() NodeId { return n.id }

// Operator that produces the node.
func (n *Node) Operator() op.Name { return n.operator }

// Attributes of the operator. It may be nil, which is a valid empty descriptor.
func (n *Node) Attributes() *attrs.Attributes { return n.attributes }

// Inputs returns a copy of the input nodes.
func (n *Node) Inputs() []*Node { return slices.Clone(n.inputNodes) }

// NumInputs returns the number of input nodes.
func (n *Node) NumInputs() int { return len(n.inputNodes) }

// Input returns the input node at position ii.
func (n *Node) Input(ii int) *Node { return n.inputNodes[ii] }

// Shape of the output of the node.
func (n *Node) Shape() shapes.Shape { return n.shape }

// DType of the output of the node.
func (n *Node) DType() dtypes.DType { return n.shape.DType }

// Rank of the output of the node.
func (n *Node) Rank() int { return n.shape.Rank() }

// IsScalar returns whether the output of the node is a scalar.
func (n *Node) IsScalar() bool { return n.shape.IsScalar() }

// Name of the node, if one was set with SetName.
func (n *Node) Name() string { return n.name }

// SetName sets a name to the node, used when printing. It returns the node itself.
func (n *Node) SetName(name string) *Node {
	n.name = name
	return n
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	if n == nil {
		return "Node(nil)"
	}
	parts := make([]string, 0, len(n.inputNodes))
	for _, input := range n.inputNodes {
		parts = append(parts, fmt.Sprintf("#%d", input.id))
	}
	str := fmt.Sprintf("#%d %s(%s) -> %s", n.id, n.operator, strings.Join(parts, ", "), n.shape)
	if n.name != "" {
		str = fmt.Sprintf("%q %s", n.name, str)
	}
	if n.attributes.Len() > 0 {
		str += " {" + n.attributes.Encode() + "}"
	}
	return str
}
