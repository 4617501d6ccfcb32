// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/gomlx/opdispatch/attrs"
	"github.com/gomlx/opdispatch/dispatch"
	"github.com/gomlx/opdispatch/graph"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/target"
	"github.com/gomlx/opdispatch/types/shapes"
	"github.com/pkg/errors"
)

// parseInputs parses the semicolon separated input shapes.
func parseInputs(text string) ([]shapes.Shape, error) {
	var inputs []shapes.Shape
	for _, part := range strings.Split(text, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		shape, err := shapes.Parse(part)
		if err != nil {
			return nil, errors.WithMessagef(err, "input #%d", len(inputs))
		}
		inputs = append(inputs, shape)
	}
	return inputs, nil
}

// explain prints the candidates evaluated for the operator in opts.Op, and the schedule of the selected one.
func explain(w io.Writer, d *dispatch.Dispatcher, tgt *target.Target, opts options) error {
	if opts.Out == "" {
		return errors.Errorf("-op=%s requires the output shape (-out)", opts.Op)
	}
	operator := op.Name(opts.Op)
	outputType, err := shapes.Parse(opts.Out)
	if err != nil {
		return errors.WithMessage(err, "-out")
	}
	inputShapes, err := parseInputs(opts.Inputs)
	if err != nil {
		return errors.WithMessage(err, "-inputs")
	}
	var attributes *attrs.Attributes
	if opts.Attrs != "" {
		if attributes, err = attrs.Parse(opts.Attrs); err != nil {
			return errors.WithMessage(err, "-attrs")
		}
	}

	g := graph.New("explain")
	inputs := make([]*graph.Node, len(inputShapes))
	for ii, shape := range inputShapes {
		inputs[ii] = graph.Parameter(g, fmt.Sprintf("input%d", ii), shape)
	}
	sel, err := d.Explain(operator, attributes, inputs, outputType, tgt)
	if sel != nil {
		printCandidates(w, sel)
	}
	if err != nil {
		return err
	}

	node := graph.NewNode(g, operator, attributes, outputType, inputs...)
	lowered, err := d.Lower(node, tgt)
	if err != nil {
		return err
	}
	printSchedule(w, lowered)
	return nil
}
