// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package gradients holds the reverse-mode differentiation rules of operators.
//
// A Rule takes the original node and the gradient of its output (the adjoint), and returns the gradient
// with respect to each of the node's inputs, aligned by position. Rules must return gradients with the
// exact shape of the corresponding input: when an input was broadcast, its gradient is collapsed back with
// graph.CollapseSumLike (graph.AdaptLike picks the right adaptation).
package gradients

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/opdispatch/graph"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/registry"
	"github.com/pkg/errors"
)

// Rule returns the gradients of the inputs of node, given the gradient of its output.
// A nil gradient means the input doesn't receive any gradient.
//
// Rules build new graph nodes, and like graph operations, they panic on errors.
type Rule func(node, outputGradient *graph.Node) []*graph.Node

// NoGradientRuleError is returned when an operator has no registered gradient rule.
type NoGradientRuleError struct {
	Operator op.Name
}

// Error implements the error interface.
func (e *NoGradientRuleError) Error() string {
	return fmt.Sprintf("operator %q has no gradient rule registered", e.Operator)
}

// Registry maps operators to their gradient rule.
type Registry struct {
	table *registry.Table[op.Name, Rule]
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{table: registry.New[op.Name, Rule]("gradient")}
}

// Register the gradient rule of operator. Registering again replaces the previous rule.
// It panics if the registry is frozen or rule is nil.
func (r *Registry) Register(operator op.Name, rule Rule) {
	if rule == nil {
		exceptions.Panicf("gradients.Register(%q): nil rule", operator)
	}
	r.table.Register(operator, registry.GenericTag, rule)
}

// RegisterLate is like Register, but can be used after the registry is frozen.
func (r *Registry) RegisterLate(operator op.Name, rule Rule) {
	if rule == nil {
		exceptions.Panicf("gradients.RegisterLate(%q): nil rule", operator)
	}
	r.table.RegisterLate(operator, registry.GenericTag, rule)
}

// Freeze the registry.
func (r *Registry) Freeze() { r.table.Freeze() }

// Operators returns the sorted names of operators with a gradient rule.
func (r *Registry) Operators() []op.Name { return r.table.Names() }

// Lookup returns the rule of operator, or a *NoGradientRuleError.
func (r *Registry) Lookup(operator op.Name) (Rule, error) {
	rule, found := r.table.Get(operator, registry.GenericTag)
	if !found {
		return nil, errors.WithStack(&NoGradientRuleError{Operator: operator})
	}
	return rule, nil
}

// Apply looks up and runs the gradient rule for node, and verifies that it returns one gradient per input,
// each with the shape (and dtype) of the input.
func (r *Registry) Apply(node, outputGradient *graph.Node) ([]*graph.Node, error) {
	rule, err := r.Lookup(node.Operator())
	if err != nil {
		return nil, err
	}
	if !outputGradient.Shape().Equal(node.Shape()) {
		return nil, errors.Errorf("gradient of %q: output gradient has shape %s, wanted %s",
			node.Operator(), outputGradient.Shape(), node.Shape())
	}
	var inputGradients []*graph.Node
	err = exceptions.TryCatch[error](func() {
		inputGradients = rule(node, outputGradient)
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "gradient rule of %q failed", node.Operator())
	}
	if len(inputGradients) != node.NumInputs() {
		return nil, errors.Errorf("gradient rule of %q returned %d gradients, but the node has %d inputs",
			node.Operator(), len(inputGradients), node.NumInputs())
	}
	for ii, gradient := range inputGradients {
		if gradient == nil {
			continue
		}
		input := node.Input(ii)
		if !gradient.Shape().Equal(input.Shape()) {
			return nil, errors.Errorf("gradient rule of %q: invalid shape for the gradient of input #%d (out of %d): input shape=%s, gradient shape=%s",
				node.Operator(), ii, node.NumInputs(), input.Shape(), gradient.Shape())
		}
	}
	return inputGradients, nil
}
