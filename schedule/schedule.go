// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package schedule binds the loops of a kernel to the parallel hardware of a target.
//
// A kernel describes its loop nest with a Template: a list of stages, each with named axes and their
// extents. A Binder then applies directives (Split, Bind, Vectorize) to the loops and declares the
// buffers the kernel uses (DeclareBuffer), validating them against the target capabilities.
// Finalize returns the resulting Schedule.
//
// The Binder keeps the first error and ignores the directives after it, so a sequence of directives can
// be written without checking errors until Finalize.
package schedule

import (
	"fmt"
	"strings"

	"github.com/gomlx/opdispatch/target"
	"github.com/gomlx/opdispatch/types/shapes"
)

// ThreadAxis is a hardware parallel axis loops can be bound to.
type ThreadAxis string

const (
	BlockX  ThreadAxis = "blockIdx.x"
	BlockY  ThreadAxis = "blockIdx.y"
	BlockZ  ThreadAxis = "blockIdx.z"
	ThreadX ThreadAxis = "threadIdx.x"
	ThreadY ThreadAxis = "threadIdx.y"
	ThreadZ ThreadAxis = "threadIdx.z"
	VThread ThreadAxis = "vthread"
)

// IsThread returns whether the axis is one of the threads within a block, whose combined extent is
// limited by the target maximum threads per block.
func (t ThreadAxis) IsThread() bool {
	return t == ThreadX || t == ThreadY || t == ThreadZ
}

// IsValid returns whether t is one of the known thread axes.
func (t ThreadAxis) IsValid() bool {
	switch t {
	case BlockX, BlockY, BlockZ, ThreadX, ThreadY, ThreadZ, VThread:
		return true
	}
	return false
}

// BufferKind defines how a buffer used by a kernel gets its memory.
type BufferKind int

const (
	// Argument buffers are inputs or outputs of the kernel.
	Argument BufferKind = iota

	// Bound buffers are intermediate results between chained stages, bound to memory when the
	// kernel is built.
	Bound

	// Allocated buffers are allocated from inside the kernel.
	Allocated
)

// String implements fmt.Stringer.
func (k BufferKind) String() string {
	switch k {
	case Argument:
		return "argument"
	case Bound:
		return "bound"
	case Allocated:
		return "allocated"
	}
	return fmt.Sprintf("BufferKind(%d)", int(k))
}

// Axis of a stage loop nest.
type Axis struct {
	Name   string
	Extent int
}

// Stage of a kernel: a loop nest over the given axes, outermost first.
type Stage struct {
	Name string
	Axes []Axis
}

// Template lists the stages of a kernel, before any scheduling directive is applied.
type Template struct {
	Name   string
	Stages []Stage
}

// NewTemplate creates an empty template.
func NewTemplate(name string) *Template {
	return &Template{Name: name}
}

// AddStage appends a stage with the given axes. It returns the template itself.
func (t *Template) AddStage(name string, axes ...Axis) *Template {
	t.Stages = append(t.Stages, Stage{Name: name, Axes: append([]Axis(nil), axes...)})
	return t
}

// AddStageForShape appends a stage iterating over the given shape, with the axes named by the given
// names (e.g. "n", "c", "h", "w"). Missing names are generated as "i0", "i1", etc.
func (t *Template) AddStageForShape(name string, shape shapes.Shape, axisNames ...string) *Template {
	axes := make([]Axis, shape.Rank())
	for ii, dim := range shape.Dimensions {
		axisName := fmt.Sprintf("i%d", ii)
		if ii < len(axisNames) && axisNames[ii] != "" {
			axisName = axisNames[ii]
		}
		axes[ii] = Axis{Name: axisName, Extent: dim}
	}
	return t.AddStage(name, axes...)
}

// Annotation of a scheduled loop.
type Annotation int

const (
	Serial Annotation = iota
	Parallel
	Vectorized
)

// Loop of a scheduled stage.
type Loop struct {
	Name       string
	Extent     int
	Annotation Annotation

	// Thread is set if Annotation is Parallel.
	Thread ThreadAxis
}

// String implements fmt.Stringer.
func (l Loop) String() string {
	switch l.Annotation {
	case Parallel:
		return fmt.Sprintf("for %s in [0, %d) bind(%s)", l.Name, l.Extent, l.Thread)
	case Vectorized:
		return fmt.Sprintf("for %s in [0, %d) vectorized", l.Name, l.Extent)
	}
	return fmt.Sprintf("for %s in [0, %d)", l.Name, l.Extent)
}

// ScheduledStage is a stage after the directives were applied.
type ScheduledStage struct {
	Name  string
	Loops []Loop
}

// Buffer used by a kernel.
type Buffer struct {
	Name  string
	Shape shapes.Shape
	Scope target.Scope
	Kind  BufferKind

	// Texture is the 2D image shape for buffers in texture scopes.
	Texture *Texture2DShape
}

// String implements fmt.Stringer.
func (b Buffer) String() string {
	str := fmt.Sprintf("%s %s %s in %q", b.Kind, b.Name, b.Shape, b.Scope)
	if b.Texture != nil {
		str += fmt.Sprintf(" as image2d[%d x %d x %d]", b.Texture.Height, b.Texture.Width, b.Texture.Channels)
	}
	return str
}

// Schedule is the result of applying the directives of a Binder to a Template. It is immutable.
type Schedule struct {
	Name    string
	Target  string
	Stages  []ScheduledStage
	Buffers []Buffer
}

// Stage returns the scheduled stage with the given name, or nil.
func (s *Schedule) Stage(name string) *ScheduledStage {
	for ii := range s.Stages {
		if s.Stages[ii].Name == name {
			return &s.Stages[ii]
		}
	}
	return nil
}

// Buffer returns the buffer with the given name, or nil.
func (s *Schedule) Buffer(name string) *Buffer {
	for ii := range s.Buffers {
		if s.Buffers[ii].Name == name {
			return &s.Buffers[ii]
		}
	}
	return nil
}

// String pretty-prints the schedule as nested loops.
func (s *Schedule) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "schedule %q for %q:\n", s.Name, s.Target)
	for _, buffer := range s.Buffers {
		fmt.Fprintf(&sb, "  %s\n", buffer)
	}
	for _, stage := range s.Stages {
		fmt.Fprintf(&sb, "  stage %s:\n", stage.Name)
		for depth, loop := range stage.Loops {
			fmt.Fprintf(&sb, "  %s%s\n", strings.Repeat("  ", depth+1), loop)
		}
	}
	return sb.String()
}
