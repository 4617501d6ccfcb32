// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/opdispatch/attrs"
	"github.com/gomlx/opdispatch/gradients"
	"github.com/gomlx/opdispatch/graph"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/registry"
	"github.com/gomlx/opdispatch/schedule"
	"github.com/gomlx/opdispatch/strategy"
	"github.com/gomlx/opdispatch/target"
	"github.com/gomlx/opdispatch/types/shapes"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Dispatcher resolves operator strategies and lowers nodes. It only reads the registries, and it is safe
// for concurrent use.
type Dispatcher struct {
	registries *Registries
}

// New creates a Dispatcher over the given registries.
func New(registries *Registries) *Dispatcher {
	if registries == nil {
		exceptions.Panicf("dispatch.New: nil registries")
	}
	return &Dispatcher{registries: registries}
}

// Registries returns the registries the Dispatcher reads from.
func (d *Dispatcher) Registries() *Registries { return d.registries }

// BuildStrategy resolves and runs the build function of the operator for the target. It also returns the
// target tag that matched, or strategy.GenericTag.
//
// Build functions returning an error (or panicking) fail the resolution before any candidate is
// evaluated.
func (d *Dispatcher) BuildStrategy(operator op.Name, attributes *attrs.Attributes, inputs []*graph.Node,
	outputType shapes.Shape, tgt *target.Target) (s *strategy.Strategy, tag string, err error) {
	if tgt == nil {
		return nil, "", errors.Errorf("operator %q: nil target", operator)
	}
	build, tag, err := d.registries.Strategies.Resolve(operator, tgt)
	if err != nil {
		return nil, tag, err
	}
	tagName := registry.Key[op.Name]{Name: operator, Tag: tag}.TagName()
	panicErr := exceptions.TryCatch[error](func() {
		s, err = build(attributes, inputs, outputType, tgt)
	})
	if panicErr != nil {
		err = panicErr
	}
	if err != nil {
		return nil, tag, errors.WithMessagef(err, "operator %q: building %s strategy for target %q", operator, tagName, tgt)
	}
	if s == nil {
		return nil, tag, errors.Errorf("operator %q: %s strategy for target %q returned no strategy", operator, tagName, tgt)
	}
	klog.V(2).Infof("operator %q on %q: %s strategy with %d implementations", operator, tgt, tagName, s.Len())
	return s, tag, nil
}

// Explain resolves the strategy and evaluates every candidate, returning the full Selection: the
// candidates, their eligibility and the chosen one. If no candidate is eligible, the Selection is
// returned along with the *strategy.NoCandidateMatchedError.
func (d *Dispatcher) Explain(operator op.Name, attributes *attrs.Attributes, inputs []*graph.Node,
	outputType shapes.Shape, tgt *target.Target) (*strategy.Selection, error) {
	s, _, err := d.BuildStrategy(operator, attributes, inputs, outputType, tgt)
	if err != nil {
		return nil, err
	}
	sel, err := s.Select(attributes, inputs, outputType, tgt)
	if sel != nil {
		for _, candidate := range sel.Candidates {
			if !candidate.Eligible {
				klog.Warningf("operator %q on %q: candidate %q rejected: %s", operator, tgt, candidate.Name, candidate.Reason)
			}
		}
	}
	return sel, err
}

// ResolveStrategy returns the implementation selected for the operator on the target: among the
// candidates of the most specific strategy registered, the highest priority one whose outputs match
// outputType.
//
// The result is deterministic: the same arguments always select the same implementation.
func (d *Dispatcher) ResolveStrategy(operator op.Name, attributes *attrs.Attributes, inputs []*graph.Node,
	outputType shapes.Shape, tgt *target.Target) (strategy.Implementation, error) {
	s, _, err := d.BuildStrategy(operator, attributes, inputs, outputType, tgt)
	if err != nil {
		return strategy.Implementation{}, err
	}
	sel, err := s.Select(attributes, inputs, outputType, tgt)
	if err != nil {
		return strategy.Implementation{}, err
	}
	return sel.Selected().Implementation, nil
}

// Lowered is the result of lowering a node: the selected implementation, the outputs created by its
// compute procedure and the schedule binding them to the target.
type Lowered struct {
	Node           *graph.Node
	Tag            string
	Implementation strategy.Implementation
	Outputs        []*graph.Node
	Schedule       *schedule.Schedule

	// Session identifies the LowerAll call that lowered the node. It is empty for Lower.
	Session string
}

// Lower selects the implementation of node for the target and runs its schedule procedure over the
// outputs created during selection. The node's shape is the requested output type.
func (d *Dispatcher) Lower(node *graph.Node, tgt *target.Target) (*Lowered, error) {
	if node == nil {
		return nil, errors.New("dispatch.Lower: nil node")
	}
	operator, attributes, inputs, outputType := node.Operator(), node.Attributes(), node.Inputs(), node.Shape()
	s, tag, err := d.BuildStrategy(operator, attributes, inputs, outputType, tgt)
	if err != nil {
		return nil, err
	}
	sel, err := s.Select(attributes, inputs, outputType, tgt)
	if err != nil {
		return nil, err
	}
	chosen := sel.Selected()
	var sched *schedule.Schedule
	panicErr := exceptions.TryCatch[error](func() {
		sched, err = chosen.Schedule(attributes, chosen.Outputs, tgt)
	})
	if panicErr != nil {
		err = panicErr
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "operator %q implementation %q schedule failed", operator, chosen.Name)
	}
	return &Lowered{
		Node:           node,
		Tag:            tag,
		Implementation: chosen.Implementation,
		Outputs:        chosen.Outputs,
		Schedule:       sched,
	}, nil
}

// LowerAll lowers the independent nodes in parallel, using at most parallelism goroutines (or one per
// node if parallelism <= 0). The results are aligned with nodes.
//
// The first error cancels the lowering of the nodes not yet started, and is returned.
func (d *Dispatcher) LowerAll(ctx context.Context, nodes []*graph.Node, tgt *target.Target, parallelism int) ([]*Lowered, error) {
	return d.LowerAllNotify(ctx, nodes, tgt, parallelism, nil)
}

// LowerAllNotify is like LowerAll, but calls notify (if not nil) as each node is lowered. notify may be
// called concurrently.
func (d *Dispatcher) LowerAllNotify(ctx context.Context, nodes []*graph.Node, tgt *target.Target, parallelism int,
	notify func(index int, lowered *Lowered)) ([]*Lowered, error) {
	session := uuid.NewString()
	start := time.Now()
	klog.V(1).Infof("lowering session %s: %d nodes for target %q", session, len(nodes), tgt)
	results := make([]*Lowered, len(nodes))
	g, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for ii, node := range nodes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			lowered, err := d.Lower(node, tgt)
			if err != nil {
				return errors.WithMessagef(err, "lowering session %s, node #%d", session, ii)
			}
			lowered.Session = session
			results[ii] = lowered
			if notify != nil {
				notify(ii, lowered)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	klog.V(1).Infof("lowering session %s: done in %s", session, time.Since(start))
	return results, nil
}

// GradientRule returns the gradient rule of the operator, or a *gradients.NoGradientRuleError.
func (d *Dispatcher) GradientRule(operator op.Name) (gradients.Rule, error) {
	return d.registries.Gradients.Lookup(operator)
}

// PatternTag returns the fusion pattern of the operator, op.PatternOpaque if none was registered.
func (d *Dispatcher) PatternTag(operator op.Name) op.Pattern {
	return d.registries.Patterns.Get(operator)
}
