// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package schedule

import (
	"slices"

	"github.com/gomlx/opdispatch/target"
	"github.com/gomlx/opdispatch/types/shapes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Binder applies scheduling directives to a Template for a target.
type Binder struct {
	name    string
	target  *target.Target
	stages  []*ScheduledStage
	buffers []Buffer
	err     error
}

// NewBinder creates a Binder for the template and target. Every stage starts with one serial loop per axis.
func NewBinder(tmpl *Template, tgt *target.Target) *Binder {
	b := &Binder{name: tmpl.Name, target: tgt}
	if tgt == nil {
		b.err = errors.Errorf("schedule %q: nil target", tmpl.Name)
		return b
	}
	for _, stage := range tmpl.Stages {
		if b.findStage(stage.Name) != nil {
			b.setErrorf("duplicate stage %q", stage.Name)
			return b
		}
		scheduled := &ScheduledStage{Name: stage.Name}
		for _, axis := range stage.Axes {
			if axis.Extent <= 0 {
				b.setErrorf("stage %q axis %q has invalid extent %d", stage.Name, axis.Name, axis.Extent)
				return b
			}
			scheduled.Loops = append(scheduled.Loops, Loop{Name: axis.Name, Extent: axis.Extent})
		}
		b.stages = append(b.stages, scheduled)
	}
	return b
}

func (b *Binder) setErrorf(format string, args ...any) {
	if b.err == nil {
		b.err = errors.WithMessagef(errors.Errorf(format, args...), "schedule %q for target %q", b.name, b.target)
	}
}

// Err returns the first error found, if any.
func (b *Binder) Err() error { return b.err }

func (b *Binder) findStage(name string) *ScheduledStage {
	for _, stage := range b.stages {
		if stage.Name == name {
			return stage
		}
	}
	return nil
}

// findLoop returns the stage and the position of the loop, or sets the error and returns nil.
func (b *Binder) findLoop(stageName, loopName string) (*ScheduledStage, int) {
	stage := b.findStage(stageName)
	if stage == nil {
		b.setErrorf("unknown stage %q", stageName)
		return nil, -1
	}
	idx := slices.IndexFunc(stage.Loops, func(l Loop) bool { return l.Name == loopName })
	if idx < 0 {
		b.setErrorf("stage %q has no loop %q", stageName, loopName)
		return nil, -1
	}
	return stage, idx
}

// Split the loop into an outer loop "<axis>.outer" and an inner loop "<axis>.inner" of extent factor.
// The outer extent is rounded up if factor doesn't divide the loop extent.
func (b *Binder) Split(stageName, axis string, factor int) *Binder {
	if b.err != nil {
		return b
	}
	stage, idx := b.findLoop(stageName, axis)
	if stage == nil {
		return b
	}
	loop := stage.Loops[idx]
	if loop.Annotation != Serial {
		b.setErrorf("cannot split loop %q of stage %q: it's already annotated", axis, stageName)
		return b
	}
	if factor <= 0 || factor > loop.Extent {
		b.setErrorf("invalid split factor %d for loop %q of extent %d in stage %q", factor, axis, loop.Extent, stageName)
		return b
	}
	outer := Loop{Name: axis + ".outer", Extent: (loop.Extent + factor - 1) / factor}
	inner := Loop{Name: axis + ".inner", Extent: factor}
	stage.Loops = slices.Replace(stage.Loops, idx, idx+1, outer, inner)
	return b
}

// Bind the loop to a parallel hardware axis.
func (b *Binder) Bind(stageName, axis string, thread ThreadAxis) *Binder {
	if b.err != nil {
		return b
	}
	if !thread.IsValid() {
		b.setErrorf("invalid thread axis %q", thread)
		return b
	}
	stage, idx := b.findLoop(stageName, axis)
	if stage == nil {
		return b
	}
	if stage.Loops[idx].Annotation != Serial {
		b.setErrorf("loop %q of stage %q is already annotated", axis, stageName)
		return b
	}
	threads := 1
	for _, loop := range stage.Loops {
		if loop.Annotation != Parallel {
			continue
		}
		if loop.Thread == thread && thread != VThread {
			b.setErrorf("stage %q binds %q to both loops %q and %q", stageName, thread, loop.Name, axis)
			return b
		}
		if loop.Thread.IsThread() {
			threads *= loop.Extent
		}
	}
	if thread.IsThread() {
		threads *= stage.Loops[idx].Extent
		if maxThreads := b.target.MaxThreadsPerBlock(); threads > maxThreads {
			b.setErrorf("stage %q uses %d threads per block, target supports at most %d", stageName, threads, maxThreads)
			return b
		}
	}
	stage.Loops[idx].Annotation = Parallel
	stage.Loops[idx].Thread = thread
	return b
}

// Vectorize the loop. Only the innermost loop of a stage can be vectorized, and its extent must fit
// the target vector lanes.
func (b *Binder) Vectorize(stageName, axis string) *Binder {
	if b.err != nil {
		return b
	}
	stage, idx := b.findLoop(stageName, axis)
	if stage == nil {
		return b
	}
	if idx != len(stage.Loops)-1 {
		b.setErrorf("only the innermost loop of stage %q can be vectorized, not %q", stageName, axis)
		return b
	}
	loop := &stage.Loops[idx]
	if loop.Annotation != Serial {
		b.setErrorf("loop %q of stage %q is already annotated", axis, stageName)
		return b
	}
	if lanes := b.target.MaxVectorLanes(); loop.Extent > lanes {
		b.setErrorf("loop %q of stage %q has extent %d, larger than the target's %d vector lanes", axis, stageName, loop.Extent, lanes)
		return b
	}
	loop.Annotation = Vectorized
	return b
}

// DeclareBuffer declares a buffer used by the kernel, in the given memory scope.
//
// Buffers in texture scopes must have the innermost axis of extent target.TextureChannels and their 2D
// image must fit the target's maximum texture extent. Allocated buffers in scopes where the target
// doesn't support in-kernel allocation fail with a *ScopeAllocationError.
func (b *Binder) DeclareBuffer(name string, shape shapes.Shape, scope target.Scope, kind BufferKind) *Binder {
	if b.err != nil {
		return b
	}
	if slices.ContainsFunc(b.buffers, func(buf Buffer) bool { return buf.Name == name }) {
		b.setErrorf("buffer %q declared more than once", name)
		return b
	}
	if !shape.Ok() || shape.IsTuple() {
		b.setErrorf("buffer %q has invalid shape %s", name, shape)
		return b
	}
	if !b.target.SupportsScope(scope) {
		b.setErrorf("buffer %q: scope %q not supported by the target", name, scope)
		return b
	}
	if !b.target.SupportsDType(shape.DType) {
		b.setErrorf("buffer %q: dtype %s not supported by the target", name, shape.DType)
		return b
	}
	if kind == Allocated && !b.target.CanAllocate(scope) {
		b.err = errors.WithStack(&ScopeAllocationError{Buffer: name, Scope: scope, Target: b.target.String()})
		return b
	}
	buffer := Buffer{Name: name, Shape: shape.Clone(), Scope: scope, Kind: kind}
	if scope.IsTexture() {
		if shape.Rank() == 0 || shape.Dim(-1) != target.TextureChannels {
			b.setErrorf("buffer %q of shape %s in scope %q must have an innermost axis of extent %d",
				name, shape, scope, target.TextureChannels)
			return b
		}
		texture, err := FlattenTexture2D(shape, scope)
		if err != nil {
			b.setErrorf("buffer %q: %v", name, err)
			return b
		}
		if maxExtent := b.target.MaxTextureExtent(); texture.Width > maxExtent || texture.Height > maxExtent {
			b.setErrorf("buffer %q of shape %s flattens to a %dx%d texture, larger than the target maximum of %d",
				name, shape, texture.Height, texture.Width, maxExtent)
			return b
		}
		buffer.Texture = &texture
	}
	b.buffers = append(b.buffers, buffer)
	return b
}

// Finalize returns the Schedule, or the first error found by the directives.
func (b *Binder) Finalize() (*Schedule, error) {
	if b.err != nil {
		return nil, b.err
	}
	s := &Schedule{
		Name:    b.name,
		Target:  b.target.String(),
		Buffers: slices.Clone(b.buffers),
	}
	for _, stage := range b.stages {
		s.Stages = append(s.Stages, ScheduledStage{Name: stage.Name, Loops: slices.Clone(stage.Loops)})
	}
	if klog.V(2).Enabled() {
		klog.Infof("%s", s)
	}
	return s, nil
}
