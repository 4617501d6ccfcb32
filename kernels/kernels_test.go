// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"testing"

	"github.com/gomlx/opdispatch/attrs"
	"github.com/gomlx/opdispatch/graph"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/schedule"
	"github.com/gomlx/opdispatch/strategy"
	"github.com/gomlx/opdispatch/target"
	"github.com/gomlx/opdispatch/types/shapes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nopCompute(_ *attrs.Attributes, inputs []*graph.Node, _ shapes.Shape, _ *target.Target) ([]*graph.Node, error) {
	return inputs, nil
}

func nopSchedule(_ *attrs.Attributes, _ []*graph.Node, tgt *target.Target) (*schedule.Schedule, error) {
	return schedule.NewBinder(schedule.NewTemplate("nop"), tgt).Finalize()
}

func TestLibrary(t *testing.T) {
	lib := NewLibrary()
	lib.Register(Kernel{Namespace: CUDA, Name: "pool", Compute: nopCompute, Schedule: nopSchedule})
	lib.Register(Kernel{Namespace: Adreno, Name: "pool", Compute: nopCompute, Schedule: nopSchedule})
	lib.Register(Kernel{Namespace: Generic, Name: "injective", Compute: nopCompute, Schedule: nopSchedule})
	assert.Equal(t, 3, lib.Len())

	k := must.M1(lib.Lookup(Adreno, "pool"))
	assert.Equal(t, "adreno.pool", k.FullName())
	assert.Equal(t, "adreno.pool", k.String())
	assert.Equal(t, []string{Adreno, CUDA}, lib.Namespaces("pool"))

	_, err := lib.Lookup(Adreno, "injective")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adreno.injective")
	assert.Panics(t, func() { lib.Must(Generic, "pool") })

	var names []string
	for _, k := range lib.Kernels() {
		names = append(names, k.FullName())
	}
	assert.Equal(t, []string{"generic.injective", "adreno.pool", "cuda.pool"}, names)

	assert.Panics(t, func() { lib.Register(Kernel{Namespace: CUDA, Name: "bad"}) })
	assert.Panics(t, func() { lib.Register(Kernel{Name: "anonymous", Compute: nopCompute, Schedule: nopSchedule}) })

	lib.Freeze()
	assert.Panics(t, func() {
		lib.Register(Kernel{Namespace: CUDA, Name: "late", Compute: nopCompute, Schedule: nopSchedule})
	})
}

func TestAddTo(t *testing.T) {
	k := Kernel{Namespace: CUDA, Name: "pool", Compute: nopCompute, Schedule: nopSchedule}
	b := strategy.NewBuilder(op.MaxPool2D)
	k.AddTo(b, "pool.cuda", strategy.PriorityDefault)
	k.AddTo(b, "pool.cuda.fast", 20)
	s := must.M1(b.Build())
	require.Equal(t, 2, s.Len())
	impl, found := s.Implementation("pool.cuda.fast")
	require.True(t, found)
	assert.Equal(t, 20, impl.Priority)
}
