// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/opdispatch/attrs"
	"github.com/gomlx/opdispatch/dispatch"
	"github.com/gomlx/opdispatch/graph"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/target"
	"github.com/gomlx/opdispatch/types/shapes"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// GraphFile describes a graph to lower. Example:
//
//	name: block
//	parameters:
//	  - {name: x, shape: "float16[1,56,56,32]"}
//	  - {name: w, shape: "float16[3,3,32,32]"}
//	nodes:
//	  - name: conv
//	    op: nn.conv2d
//	    inputs: [x, w]
//	    attrs: {data_layout: NHWC, kernel_layout: HWIO, padding: 1}
//	    shape: "float16[1,56,56,32]"
//
// Nodes can only use parameters or nodes defined before them.
type GraphFile struct {
	Name       string         `yaml:"name"`
	Parameters []ParameterDef `yaml:"parameters"`
	Nodes      []NodeDef      `yaml:"nodes"`
}

// ParameterDef is an input of the graph.
type ParameterDef struct {
	Name  string `yaml:"name"`
	Shape string `yaml:"shape"`
}

// NodeDef is a node of the graph to lower.
type NodeDef struct {
	Name   string         `yaml:"name"`
	Op     string         `yaml:"op"`
	Inputs []string       `yaml:"inputs"`
	Attrs  map[string]any `yaml:"attrs"`
	Shape  string         `yaml:"shape"`
}

// ParseGraphFile decodes a YAML graph description.
func ParseGraphFile(data []byte) (*GraphFile, error) {
	gf := &GraphFile{}
	if err := yaml.Unmarshal(data, gf); err != nil {
		return nil, errors.Wrap(err, "parsing graph YAML")
	}
	if len(gf.Nodes) == 0 {
		return nil, errors.New("graph has no nodes to lower")
	}
	if gf.Name == "" {
		gf.Name = "graph"
	}
	return gf, nil
}

// Build the graph, returning the nodes to lower, in the order they were described.
func (gf *GraphFile) Build() (nodes []*graph.Node, err error) {
	g := graph.New(gf.Name)
	byName := make(map[string]*graph.Node)
	define := func(name string, node *graph.Node) error {
		if name == "" {
			return nil
		}
		if _, found := byName[name]; found {
			return errors.Errorf("%q defined more than once", name)
		}
		byName[name] = node
		return nil
	}
	for _, param := range gf.Parameters {
		shape, err := shapes.Parse(param.Shape)
		if err != nil {
			return nil, errors.WithMessagef(err, "parameter %q", param.Name)
		}
		var node *graph.Node
		if err = exceptions.TryCatch[error](func() { node = graph.Parameter(g, param.Name, shape) }); err != nil {
			return nil, err
		}
		if err = define(param.Name, node); err != nil {
			return nil, err
		}
	}
	for ii, def := range gf.Nodes {
		nodeName := def.Name
		if nodeName == "" {
			nodeName = fmt.Sprintf("#%d", ii)
		}
		if def.Op == "" {
			return nil, errors.Errorf("node %s: missing op", nodeName)
		}
		shape, err := shapes.Parse(def.Shape)
		if err != nil {
			return nil, errors.WithMessagef(err, "node %s", nodeName)
		}
		attributes, err := attrs.FromMap(def.Attrs)
		if err != nil {
			return nil, errors.WithMessagef(err, "node %s", nodeName)
		}
		inputs := make([]*graph.Node, len(def.Inputs))
		for jj, inputName := range def.Inputs {
			input, found := byName[inputName]
			if !found {
				return nil, errors.Errorf("node %s: input %q is not defined before it", nodeName, inputName)
			}
			inputs[jj] = input
		}
		var node *graph.Node
		err = exceptions.TryCatch[error](func() {
			node = graph.NewNode(g, op.Name(def.Op), attributes, shape, inputs...)
			if def.Name != "" {
				node.SetName(def.Name)
			}
		})
		if err != nil {
			return nil, errors.WithMessagef(err, "node %s", nodeName)
		}
		if err = define(def.Name, node); err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// lowerGraphFile reads the graph in opts.Graph, lowers all its nodes and prints their schedules.
func lowerGraphFile(ctx context.Context, w io.Writer, d *dispatch.Dispatcher, tgt *target.Target, opts options) error {
	data, err := os.ReadFile(opts.Graph)
	if err != nil {
		return errors.Wrapf(err, "reading graph file")
	}
	gf, err := ParseGraphFile(data)
	if err != nil {
		return errors.WithMessagef(err, "graph file %q", opts.Graph)
	}
	nodes, err := gf.Build()
	if err != nil {
		return errors.WithMessagef(err, "graph file %q", opts.Graph)
	}

	var notify func(int, *dispatch.Lowered)
	if opts.Progress {
		bar := progressbar.NewOptions(len(nodes),
			progressbar.OptionSetDescription(fmt.Sprintf("Lowering %q", gf.Name)),
			progressbar.OptionSetWriter(w),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("nodes"),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionOnCompletion(func() { _, _ = fmt.Fprintln(w) }),
		)
		notify = func(int, *dispatch.Lowered) { _ = bar.Add(1) }
	}
	results, err := d.LowerAllNotify(ctx, nodes, tgt, opts.Parallelism, notify)
	if err != nil {
		return err
	}
	klog.V(1).Infof("graph %q: %d nodes lowered for %q", gf.Name, len(results), tgt)

	printTitle(w, fmt.Sprintf("Graph %q lowered for %q (session %s)", gf.Name, tgt, results[0].Session))
	table := newTable("Node", "Operator", "Tag", "Implementation", "Pattern")
	for _, lowered := range results {
		table.Row(nil, lowered.Node.Name(), lowered.Node.Operator().String(), lowered.Tag,
			lowered.Implementation.Name, d.PatternTag(lowered.Node.Operator()).String())
	}
	printTable(w, table)
	for _, lowered := range results {
		printSchedule(w, lowered)
	}
	return nil
}
