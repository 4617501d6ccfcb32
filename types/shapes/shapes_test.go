// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	s := Make(dtypes.Float16, 2, 3)
	assert.True(t, s.Ok())
	assert.Equal(t, 2, s.Rank())
	assert.Equal(t, 6, s.Size())
	assert.Equal(t, uintptr(12), s.Memory())
	assert.Equal(t, 3, s.Dim(-1))
	assert.True(t, s.Equal(Make(dtypes.Float16, 2, 3)))
	assert.False(t, s.Equal(Make(dtypes.Float32, 2, 3)))
	assert.True(t, s.EqualDimensions(Make(dtypes.Float32, 2, 3)))
	assert.True(t, Make(dtypes.Float32).IsScalar())
	assert.False(t, Invalid().Ok())
	assert.Panics(t, func() { _ = Make(dtypes.Float32, 0) })
	assert.Panics(t, func() { _ = s.Dim(2) })

	tuple := MakeTuple(s, Make(dtypes.Int32, 4))
	assert.True(t, tuple.IsTuple())
	assert.True(t, tuple.Equal(tuple.Clone()))
	assert.Equal(t, uintptr(12+16), tuple.Memory())
	assert.NoError(t, s.CheckDims(2, -1))
	assert.Error(t, s.CheckDims(2))
}

func TestParse(t *testing.T) {
	s, err := Parse("float16[1, 56,56,32]")
	require.NoError(t, err)
	assert.True(t, s.Equal(Make(dtypes.Float16, 1, 56, 56, 32)))

	s, err = Parse("Float32[]")
	require.NoError(t, err)
	assert.True(t, s.IsScalar())
	assert.Equal(t, dtypes.Float32, s.DType)

	_, err = Parse("float32[1,0]")
	assert.Error(t, err)
	_, err = Parse("notatype[1]")
	assert.Error(t, err)
	_, err = Parse("float32[1,2")
	assert.Error(t, err)
}

func TestBroadcast(t *testing.T) {
	out, err := Broadcast(Make(dtypes.Float32, 2, 3), Make(dtypes.Float32, 3))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, out.Dimensions)

	out, err = Broadcast(Make(dtypes.Float32, 4, 1), Make(dtypes.Float32, 1, 5))
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5}, out.Dimensions)

	_, err = Broadcast(Make(dtypes.Float32, 2, 3), Make(dtypes.Float32, 2))
	assert.Error(t, err)
	_, err = Broadcast(Make(dtypes.Float32, 3), Make(dtypes.Float16, 3))
	assert.Error(t, err)
}

func TestReductionAxes(t *testing.T) {
	axes, err := ReductionAxes(Make(dtypes.Float32, 2, 3), Make(dtypes.Float32, 3))
	require.NoError(t, err)
	assert.Equal(t, []int{0}, axes)

	axes, err = ReductionAxes(Make(dtypes.Float32, 2, 3, 4), Make(dtypes.Float32, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, axes)

	axes, err = ReductionAxes(Make(dtypes.Float32, 2, 3), Make(dtypes.Float32, 2, 3))
	require.NoError(t, err)
	assert.Empty(t, axes)

	_, err = ReductionAxes(Make(dtypes.Float32, 2, 3), Make(dtypes.Float32, 2))
	assert.Error(t, err)
	assert.True(t, CanBroadcastTo(Make(dtypes.Float32, 3), Make(dtypes.Float32, 2, 3)))
	assert.False(t, CanBroadcastTo(Make(dtypes.Float32, 2, 3), Make(dtypes.Float32, 3)))
}
