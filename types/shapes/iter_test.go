// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"slices"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
)

func TestShape_Iter(t *testing.T) {
	shape := Make(dtypes.Float32, 1, 1)
	var collect [][]int
	for _, indices := range shape.Iter() {
		collect = append(collect, slices.Clone(indices))
	}
	require.Equal(t, [][]int{{0, 0}}, collect)

	shape = Make(dtypes.Float64, 3, 2)
	collect = nil
	var flats []int
	for flat, indices := range shape.Iter() {
		collect = append(collect, slices.Clone(indices))
		flats = append(flats, flat)
	}
	require.Equal(t, [][]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}, {2, 0}, {2, 1}}, collect)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5}, flats)

	// Scalar yields exactly one empty index.
	count := 0
	for _, indices := range Make(dtypes.Float32).Iter() {
		require.Empty(t, indices)
		count++
	}
	require.Equal(t, 1, count)

	// Early break.
	count = 0
	for range Make(dtypes.Int32, 4, 4).Iter() {
		count++
		if count == 3 {
			break
		}
	}
	require.Equal(t, 3, count)
}

func TestShape_Strides(t *testing.T) {
	require.Equal(t, []int{12, 4, 1}, Make(dtypes.Float32, 2, 3, 4).Strides())
	require.Empty(t, Make(dtypes.Float32).Strides())
}
