// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package strategy

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/opdispatch/attrs"
	"github.com/gomlx/opdispatch/graph"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/target"
	"github.com/gomlx/opdispatch/types/shapes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Candidate is an implementation evaluated during selection.
type Candidate struct {
	Implementation

	// Eligible is true if the compute outputs matched the output type.
	Eligible bool

	// Reason the candidate is not eligible.
	Reason string

	// Outputs created by the compute procedure.
	Outputs []*graph.Node
}

// Selection is the result of selecting an implementation of a strategy.
type Selection struct {
	Operator   op.Name
	Target     string
	OutputType shapes.Shape
	Candidates []Candidate

	// Chosen is the index of the selected candidate, or -1 if none is eligible.
	Chosen int
}

// Selected returns the chosen candidate. It panics if none was chosen.
func (s *Selection) Selected() *Candidate {
	if s.Chosen < 0 {
		exceptions.Panicf("operator %q: no candidate was selected", s.Operator)
	}
	return &s.Candidates[s.Chosen]
}

// Select invokes the compute procedure of every implementation, in insertion order, and chooses the
// eligible one (outputs equal in shape and dtype to outputType) with the highest priority. On ties the
// first added wins.
//
// A compute procedure that fails (or panics) aborts the selection with its error. If no candidate is
// eligible, it returns a *NoCandidateMatchedError along with the Selection, for reporting.
func (s *Strategy) Select(attributes *attrs.Attributes, inputs []*graph.Node, outputType shapes.Shape, tgt *target.Target) (*Selection, error) {
	sel := &Selection{Operator: s.operator, Target: tgt.String(), OutputType: outputType, Chosen: -1}
	for ii, impl := range s.impls {
		outputs, err := Invoke(s.operator, impl, attributes, inputs, outputType, tgt)
		if err != nil {
			return nil, err
		}
		candidate := Candidate{Implementation: impl, Outputs: outputs}
		candidate.Reason = matchOutputs(outputs, outputType)
		candidate.Eligible = candidate.Reason == ""
		if candidate.Eligible && (sel.Chosen < 0 || impl.Priority > s.impls[sel.Chosen].Priority) {
			sel.Chosen = ii
		}
		klog.V(2).Infof("operator %q on %q: candidate %q (priority %d) eligible=%v %s",
			s.operator, sel.Target, impl.Name, impl.Priority, candidate.Eligible, candidate.Reason)
		sel.Candidates = append(sel.Candidates, candidate)
	}
	if sel.Chosen < 0 {
		noMatch := &NoCandidateMatchedError{Operator: s.operator, Target: sel.Target, OutputType: outputType}
		for _, candidate := range sel.Candidates {
			noMatch.Rejections = append(noMatch.Rejections, Rejection{Implementation: candidate.Name, Reason: candidate.Reason})
		}
		return sel, errors.WithStack(noMatch)
	}
	klog.V(1).Infof("operator %q on %q: selected %q (priority %d) out of %d candidates",
		s.operator, sel.Target, sel.Selected().Name, sel.Selected().Priority, len(sel.Candidates))
	return sel, nil
}

// Invoke calls the compute procedure of the implementation, converting panics to errors. Errors are
// annotated with the operator and implementation names.
func Invoke(operator op.Name, impl Implementation, attributes *attrs.Attributes, inputs []*graph.Node,
	outputType shapes.Shape, tgt *target.Target) (outputs []*graph.Node, err error) {
	panicErr := exceptions.TryCatch[error](func() {
		outputs, err = impl.Compute(attributes, inputs, outputType, tgt)
	})
	if panicErr != nil {
		err = panicErr
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "operator %q implementation %q compute failed", operator, impl.Name)
	}
	return outputs, nil
}

// matchOutputs returns why outputs don't match outputType, or "" if they do.
func matchOutputs(outputs []*graph.Node, outputType shapes.Shape) string {
	if outputType.IsTuple() {
		if len(outputs) != outputType.TupleSize() {
			return fmt.Sprintf("produced %d outputs, wanted %d", len(outputs), outputType.TupleSize())
		}
		for ii, output := range outputs {
			if !output.Shape().Equal(outputType.TupleShapes[ii]) {
				return fmt.Sprintf("output #%d has shape %s, wanted %s", ii, output.Shape(), outputType.TupleShapes[ii])
			}
		}
		return ""
	}
	if len(outputs) != 1 {
		return fmt.Sprintf("produced %d outputs, wanted 1", len(outputs))
	}
	if !outputs[0].Shape().Equal(outputType) {
		return fmt.Sprintf("output has shape %s, wanted %s", outputs[0].Shape(), outputType)
	}
	return ""
}
