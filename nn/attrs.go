// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package nn decodes the attributes of the neural network operators (conv2d and pool2d), classifies
// their layouts and infers their output shapes.
package nn

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/opdispatch/attrs"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/strategy"
	"github.com/pkg/errors"
)

// Attribute names of the conv2d and pool2d operators.
const (
	AttrStrides      = "strides"
	AttrPadding      = "padding"
	AttrDilation     = "dilation"
	AttrGroups       = "groups"
	AttrDataLayout   = "data_layout"
	AttrKernelLayout = "kernel_layout"
	AttrOutDType     = "out_dtype"
	AttrPoolSize     = "pool_size"
	AttrLayout       = "layout"
	AttrCeilMode     = "ceil_mode"
)

// Conv2DAttrs are the decoded attributes of a conv2d.
type Conv2DAttrs struct {
	Strides  [2]int
	Dilation [2]int

	// Padding is top, left, bottom, right.
	Padding [4]int

	Groups       int
	DataLayout   string
	KernelLayout string

	// OutDType is the requested output dtype, or dtypes.InvalidDType to use the input dtype.
	OutDType dtypes.DType
}

func invalidAttr(operator op.Name, attribute, format string, args ...any) error {
	return errors.WithStack(&strategy.InvalidAttributeError{Operator: operator, Attribute: attribute, Reason: fmt.Sprintf(format, args...)})
}

// pair decodes an attribute with 2 values, given as one value for both or two values.
func pair(operator op.Name, a *attrs.Attributes, key string, defaultValue int) ([2]int, error) {
	values, err := a.IntsOr(key, defaultValue, defaultValue)
	if err != nil {
		return [2]int{}, invalidAttr(operator, key, "%v", err)
	}
	switch len(values) {
	case 1:
		return [2]int{values[0], values[0]}, nil
	case 2:
		return [2]int{values[0], values[1]}, nil
	}
	return [2]int{}, invalidAttr(operator, key, "expected 1 or 2 values, got %v", values)
}

// padding decodes the padding attribute: 1 value for all sides, 2 values for (vertical, horizontal), or
// 4 values for (top, left, bottom, right).
func padding(operator op.Name, a *attrs.Attributes) ([4]int, error) {
	values, err := a.IntsOr(AttrPadding, 0)
	if err != nil {
		return [4]int{}, invalidAttr(operator, AttrPadding, "%v", err)
	}
	var pad [4]int
	switch len(values) {
	case 1:
		pad = [4]int{values[0], values[0], values[0], values[0]}
	case 2:
		pad = [4]int{values[0], values[1], values[0], values[1]}
	case 4:
		pad = [4]int{values[0], values[1], values[2], values[3]}
	default:
		return pad, invalidAttr(operator, AttrPadding, "expected 1, 2 or 4 values, got %v", values)
	}
	for _, p := range pad {
		if p < 0 {
			return pad, invalidAttr(operator, AttrPadding, "padding must be >= 0, got %v", values)
		}
	}
	return pad, nil
}

// DecodeConv2D decodes and validates the conv2d attributes. Invalid values (e.g. a dilation < 1) are
// returned as *strategy.InvalidAttributeError.
func DecodeConv2D(a *attrs.Attributes) (Conv2DAttrs, error) {
	operator := op.Conv2D
	var c Conv2DAttrs
	var err error
	if c.Dilation, err = pair(operator, a, AttrDilation, 1); err != nil {
		return c, err
	}
	if c.Dilation[0] < 1 || c.Dilation[1] < 1 {
		return c, invalidAttr(operator, AttrDilation, "dilation should be positive, got %v", c.Dilation)
	}
	if c.Strides, err = pair(operator, a, AttrStrides, 1); err != nil {
		return c, err
	}
	if c.Strides[0] < 1 || c.Strides[1] < 1 {
		return c, invalidAttr(operator, AttrStrides, "strides should be positive, got %v", c.Strides)
	}
	if c.Padding, err = padding(operator, a); err != nil {
		return c, err
	}
	if c.Groups, err = a.IntOr(AttrGroups, 1); err != nil {
		return c, invalidAttr(operator, AttrGroups, "%v", err)
	}
	if c.Groups < 1 {
		return c, invalidAttr(operator, AttrGroups, "groups should be positive, got %d", c.Groups)
	}
	if c.DataLayout, err = a.StrOr(AttrDataLayout, "NCHW"); err != nil {
		return c, invalidAttr(operator, AttrDataLayout, "%v", err)
	}
	if c.KernelLayout, err = a.StrOr(AttrKernelLayout, "OIHW"); err != nil {
		return c, invalidAttr(operator, AttrKernelLayout, "%v", err)
	}
	if c.OutDType, err = a.DTypeOr(AttrOutDType, dtypes.InvalidDType); err != nil {
		return c, invalidAttr(operator, AttrOutDType, "%v", err)
	}
	return c, nil
}

// Pool2DAttrs are the decoded attributes of max_pool2d and avg_pool2d.
type Pool2DAttrs struct {
	PoolSize [2]int
	Strides  [2]int
	Dilation [2]int

	// Padding is top, left, bottom, right.
	Padding [4]int

	Layout   string
	CeilMode bool
}

// DecodePool2D decodes and validates the pool2d attributes of the given operator.
func DecodePool2D(operator op.Name, a *attrs.Attributes) (Pool2DAttrs, error) {
	var p Pool2DAttrs
	var err error
	if p.PoolSize, err = pair(operator, a, AttrPoolSize, 1); err != nil {
		return p, err
	}
	if p.Strides, err = pair(operator, a, AttrStrides, 1); err != nil {
		return p, err
	}
	if p.Dilation, err = pair(operator, a, AttrDilation, 1); err != nil {
		return p, err
	}
	for _, check := range []struct {
		name   string
		values [2]int
	}{{AttrPoolSize, p.PoolSize}, {AttrStrides, p.Strides}, {AttrDilation, p.Dilation}} {
		if check.values[0] < 1 || check.values[1] < 1 {
			return p, invalidAttr(operator, check.name, "%s should be positive, got %v", check.name, check.values)
		}
	}
	if p.Padding, err = padding(operator, a); err != nil {
		return p, err
	}
	if p.Layout, err = a.StrOr(AttrLayout, "NCHW"); err != nil {
		return p, invalidAttr(operator, AttrLayout, "%v", err)
	}
	if a.Has(AttrCeilMode) {
		if p.CeilMode, err = a.Bool(AttrCeilMode); err != nil {
			return p, invalidAttr(operator, AttrCeilMode, "%v", err)
		}
	}
	return p, nil
}
