// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"github.com/pkg/errors"
)

// Broadcast returns the shape resulting from broadcasting lhs and rhs with the usual (numpy) rules:
// dimensions are aligned from the right, and each aligned pair must either match or one of them
// must be 1. Missing leading axes are treated as 1.
//
// Both shapes must have the same DType.
func Broadcast(lhs, rhs Shape) (Shape, error) {
	if !lhs.Ok() || !rhs.Ok() || lhs.IsTuple() || rhs.IsTuple() {
		return Invalid(), errors.Errorf("cannot broadcast shapes %s and %s", lhs, rhs)
	}
	if lhs.DType != rhs.DType {
		return Invalid(), errors.Errorf("data types (DType) must match for broadcasting, got %s and %s", lhs, rhs)
	}
	rank := max(lhs.Rank(), rhs.Rank())
	output := Shape{DType: lhs.DType, Dimensions: make([]int, rank)}
	for axis := range rank {
		lhsDim := alignedDim(lhs, axis, rank)
		rhsDim := alignedDim(rhs, axis, rank)
		if lhsDim != 1 && rhsDim != 1 && lhsDim != rhsDim {
			return Invalid(), errors.Errorf("dimension of axis #%d doesn't match and cannot be broadcast, got shapes %s and %s",
				axis, lhs, rhs)
		}
		output.Dimensions[axis] = max(lhsDim, rhsDim)
	}
	return output, nil
}

// alignedDim returns the dimension of shape s for the axis of a right-aligned shape of the given rank.
// Leading axes missing from s are 1.
func alignedDim(s Shape, axis, rank int) int {
	offset := rank - s.Rank()
	if axis < offset {
		return 1
	}
	return s.Dimensions[axis-offset]
}

// ReductionAxes returns the axes of `from` that must be summed over to collapse it back to `to`,
// the inverse of broadcasting `to` into `from`.
//
// The leading axes of `from` not present in `to` are always included. Aligned axes where `to` has
// dimension 1 and `from` doesn't are also included: these are the axes reduced with the dimension
// kept, so a reshape to `to` follows.
//
// It returns an error if `to` cannot be broadcast to `from`.
func ReductionAxes(from, to Shape) ([]int, error) {
	if from.Rank() < to.Rank() {
		return nil, errors.Errorf("cannot collapse shape %s to the higher rank shape %s", from, to)
	}
	offset := from.Rank() - to.Rank()
	var axes []int
	for axis, dim := range from.Dimensions {
		if axis < offset {
			axes = append(axes, axis)
			continue
		}
		toDim := to.Dimensions[axis-offset]
		switch {
		case toDim == dim:
		case toDim == 1:
			axes = append(axes, axis)
		default:
			return nil, errors.Errorf("shape %s cannot be broadcast to %s: axis #%d has dimension %d, wanted %d or 1",
				to, from, axis, dim, toDim)
		}
	}
	return axes, nil
}

// CanBroadcastTo returns whether `from` can be broadcast to the shape `to`.
func CanBroadcastTo(from, to Shape) bool {
	if from.DType != to.DType {
		return false
	}
	_, err := ReductionAxes(to, from)
	return err == nil
}
