// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"fmt"

	"github.com/gomlx/opdispatch/types/layout"
	"github.com/pkg/errors"
)

// Conv2DLayout is the closed set of (data, kernel) layout pairs conv2d strategies know about.
//
// Switches over Conv2DLayout should be exhaustive and guarded with
//
//	var _ = [1]struct{}{}[nn.NumConv2DLayouts-5]
//
// which fails to compile when a value is added, so every switch gets revisited.
type Conv2DLayout int

const (
	// LayoutUnsupported is any other combination of layouts.
	LayoutUnsupported Conv2DLayout = iota
	LayoutNCHW_OIHW
	LayoutNHWC_HWIO
	LayoutNHWC_HWOI
	LayoutNCHW4c_OIHW4o

	// NumConv2DLayouts is the number of Conv2DLayout values.
	NumConv2DLayouts
)

var conv2DLayoutPairs = [NumConv2DLayouts][2]string{
	LayoutNCHW_OIHW:     {"NCHW", "OIHW"},
	LayoutNHWC_HWIO:     {"NHWC", "HWIO"},
	LayoutNHWC_HWOI:     {"NHWC", "HWOI"},
	LayoutNCHW4c_OIHW4o: {"NCHW4c", "OIHW4o"},
}

// ClassifyConv2DLayout returns the Conv2DLayout of the data and kernel layouts, or LayoutUnsupported.
func ClassifyConv2DLayout(dataLayout, kernelLayout string) Conv2DLayout {
	for l := LayoutUnsupported + 1; l < NumConv2DLayouts; l++ {
		if conv2DLayoutPairs[l] == [2]string{dataLayout, kernelLayout} {
			return l
		}
	}
	return LayoutUnsupported
}

// Conv2DLayouts returns all the supported values, excluding LayoutUnsupported.
func Conv2DLayouts() []Conv2DLayout {
	values := make([]Conv2DLayout, 0, NumConv2DLayouts-1)
	for l := LayoutUnsupported + 1; l < NumConv2DLayouts; l++ {
		values = append(values, l)
	}
	return values
}

// DataLayout returns the data layout of the pair, or "" for LayoutUnsupported.
func (l Conv2DLayout) DataLayout() string {
	if l <= LayoutUnsupported || l >= NumConv2DLayouts {
		return ""
	}
	return conv2DLayoutPairs[l][0]
}

// KernelLayout returns the kernel layout of the pair, or "" for LayoutUnsupported.
func (l Conv2DLayout) KernelLayout() string {
	if l <= LayoutUnsupported || l >= NumConv2DLayouts {
		return ""
	}
	return conv2DLayoutPairs[l][1]
}

// String implements fmt.Stringer.
func (l Conv2DLayout) String() string {
	if l == LayoutUnsupported {
		return "Unsupported"
	}
	if l < 0 || l >= NumConv2DLayouts {
		return fmt.Sprintf("Conv2DLayout(%d)", int(l))
	}
	return conv2DLayoutPairs[l][0] + "_" + conv2DLayoutPairs[l][1]
}

// IsDepthwiseConv returns whether a conv2d is depthwise: true iff groups equals the number of input
// channels, counted under the data layout (the "C" axis times its "c" sub-axis, if packed).
//
// The kernel shape and layout are validated, but don't take part in the decision.
func IsDepthwiseConv(dataShape []int, dataLayout string, kernelShape []int, kernelLayout string, groups int) (bool, error) {
	dl, err := layout.Parse(dataLayout)
	if err != nil {
		return false, err
	}
	kl, err := layout.Parse(kernelLayout)
	if err != nil {
		return false, err
	}
	if kl.Rank() != len(kernelShape) {
		return false, errors.Errorf("kernel shape %v doesn't match kernel layout %q", kernelShape, kernelLayout)
	}
	channels, err := dl.Channels(dataShape)
	if err != nil {
		return false, errors.WithMessagef(err, "data shape %v", dataShape)
	}
	return groups == channels, nil
}
