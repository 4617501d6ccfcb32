// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import "iter"

// Strides returns the row-major strides of the shape: the distance in the flat storage
// between consecutive elements of each axis.
func (s Shape) Strides() []int {
	strides := make([]int, s.Rank())
	stride := 1
	for axis := s.Rank() - 1; axis >= 0; axis-- {
		strides[axis] = stride
		stride *= s.Dimensions[axis]
	}
	return strides
}

// Iter iterates over all indices of the given shape, in row-major order, along with the
// flat position of each index.
//
// To avoid allocating the slice of indices, the yielded indices is owned by Iter:
// don't change it inside the loop.
func (s Shape) Iter() iter.Seq2[int, []int] {
	return func(yield func(int, []int) bool) {
		if !s.Ok() || s.IsTuple() {
			return
		}
		rank := s.Rank()
		if rank == 0 {
			_ = yield(0, make([]int, 0))
			return
		}
		for _, dim := range s.Dimensions {
			if dim <= 0 {
				return
			}
		}

		indices := make([]int, rank)
		for flat := 0; ; flat++ {
			if !yield(flat, indices) {
				return
			}
			// Increment the last axis, carrying over to the previous ones.
			axis := rank - 1
			for ; axis >= 0; axis-- {
				indices[axis]++
				if indices[axis] < s.Dimensions[axis] {
					break
				}
				indices[axis] = 0
			}
			if axis < 0 {
				return
			}
		}
	}
}
