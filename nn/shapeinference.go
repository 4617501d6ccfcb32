// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/opdispatch/types/layout"
	"github.com/gomlx/opdispatch/types/shapes"
	"github.com/pkg/errors"
)

// spatialOutputDim returns the output dimension of a window of size `window` with the given dilation
// and stride, sliding over an input of dimension `input` padded with `padBefore` and `padAfter`.
func spatialOutputDim(input, window, stride, dilation, padBefore, padAfter int, ceilMode bool) (int, error) {
	effectiveWindow := (window-1)*dilation + 1
	padded := input + padBefore + padAfter
	if padded < effectiveWindow {
		return 0, errors.Errorf("padded input dimension %d smaller than effective window %d (window %d, dilation %d)",
			padded, effectiveWindow, window, dilation)
	}
	span := padded - effectiveWindow
	if ceilMode {
		return (span+stride-1)/stride + 1, nil
	}
	return span/stride + 1, nil
}

// outputDims lays out the output dimensions following the data layout: the batch is kept, the channels
// are set to `channels` (split in the sub-axis, if packed) and the spatial axes take the given values.
func outputDims(dl layout.Layout, data []int, channels, height, width int) ([]int, error) {
	dims := make([]int, dl.Rank())
	factor := dl.Factor('C')
	for ii, axis := range dl.Axes() {
		switch axis.Letter {
		case 'N':
			dims[ii] = data[ii]
		case 'C':
			if factor > 0 {
				if channels%factor != 0 {
					return nil, errors.Errorf("%d output channels not divisible by the channel block %d of layout %q",
						channels, factor, dl)
				}
				dims[ii] = channels / factor
			} else {
				dims[ii] = channels
			}
		case 'c':
			dims[ii] = factor
		case 'H':
			dims[ii] = height
		case 'W':
			dims[ii] = width
		default:
			return nil, errors.Errorf("unexpected axis %q in layout %q", axis, dl)
		}
	}
	return dims, nil
}

// spatialExtents returns the H and W extents of the dimensions under layout l.
func spatialExtents(l layout.Layout, dims []int) (height, width int, err error) {
	if height, err = l.Extent(dims, 'H'); err != nil {
		return
	}
	width, err = l.Extent(dims, 'W')
	return
}

// Conv2DOutputShape infers the output shape of a conv2d of `data` by `kernel`. The output keeps the data
// layout, and takes the dtype of the data unless attributes set out_dtype.
//
// The number of output channels is the extent of the kernel "O" axis, times the "I" axis for HWOI
// kernels, where the kernel holds (input channels, channel multiplier).
func Conv2DOutputShape(data, kernel shapes.Shape, c Conv2DAttrs) (shapes.Shape, error) {
	dl, err := layout.Parse(c.DataLayout)
	if err != nil {
		return shapes.Invalid(), err
	}
	kl, err := layout.Parse(c.KernelLayout)
	if err != nil {
		return shapes.Invalid(), err
	}
	if data.Rank() != dl.Rank() || kernel.Rank() != kl.Rank() {
		return shapes.Invalid(), errors.Errorf("conv2d data %s / kernel %s don't match layouts %q / %q",
			data, kernel, c.DataLayout, c.KernelLayout)
	}
	if data.DType != kernel.DType {
		return shapes.Invalid(), errors.Errorf("conv2d data dtype %s doesn't match kernel dtype %s", data.DType, kernel.DType)
	}
	inChannels, err := dl.Channels(data.Dimensions)
	if err != nil {
		return shapes.Invalid(), err
	}
	if inChannels%c.Groups != 0 {
		return shapes.Invalid(), errors.Errorf("conv2d: %d input channels not divisible by %d groups", inChannels, c.Groups)
	}
	kernelOut, err := kl.Extent(kernel.Dimensions, 'O')
	if err != nil {
		return shapes.Invalid(), err
	}
	kernelIn, err := kl.Extent(kernel.Dimensions, 'I')
	if err != nil {
		return shapes.Invalid(), err
	}
	outChannels := kernelOut
	if c.KernelLayout == "HWOI" {
		if kernelOut != inChannels {
			return shapes.Invalid(), errors.Errorf("conv2d: HWOI kernel %s holds %d channels, data has %d",
				kernel, kernelOut, inChannels)
		}
		outChannels = kernelOut * kernelIn
	} else if kernelIn*c.Groups != inChannels {
		return shapes.Invalid(), errors.Errorf("conv2d: kernel input channels (%d) * groups (%d) != data channels (%d)",
			kernelIn, c.Groups, inChannels)
	}
	if c.KernelLayout != "HWOI" && outChannels%c.Groups != 0 {
		return shapes.Invalid(), errors.Errorf("conv2d: %d output channels not divisible by %d groups", outChannels, c.Groups)
	}
	inHeight, inWidth, err := spatialExtents(dl, data.Dimensions)
	if err != nil {
		return shapes.Invalid(), err
	}
	kHeight, kWidth, err := spatialExtents(kl, kernel.Dimensions)
	if err != nil {
		return shapes.Invalid(), err
	}
	outHeight, err := spatialOutputDim(inHeight, kHeight, c.Strides[0], c.Dilation[0], c.Padding[0], c.Padding[2], false)
	if err != nil {
		return shapes.Invalid(), errors.WithMessage(err, "conv2d height")
	}
	outWidth, err := spatialOutputDim(inWidth, kWidth, c.Strides[1], c.Dilation[1], c.Padding[1], c.Padding[3], false)
	if err != nil {
		return shapes.Invalid(), errors.WithMessage(err, "conv2d width")
	}
	dims, err := outputDims(dl, data.Dimensions, outChannels, outHeight, outWidth)
	if err != nil {
		return shapes.Invalid(), err
	}
	dtype := data.DType
	if c.OutDType != dtypes.InvalidDType {
		dtype = c.OutDType
	}
	return shapes.Make(dtype, dims...), nil
}

// Pool2DOutputShape infers the output shape of a max_pool2d or avg_pool2d over `data`.
func Pool2DOutputShape(data shapes.Shape, p Pool2DAttrs) (shapes.Shape, error) {
	dl, err := layout.Parse(p.Layout)
	if err != nil {
		return shapes.Invalid(), err
	}
	if data.Rank() != dl.Rank() {
		return shapes.Invalid(), errors.Errorf("pool2d data %s doesn't match layout %q", data, p.Layout)
	}
	channels, err := dl.Channels(data.Dimensions)
	if err != nil {
		return shapes.Invalid(), err
	}
	inHeight, inWidth, err := spatialExtents(dl, data.Dimensions)
	if err != nil {
		return shapes.Invalid(), err
	}
	outHeight, err := spatialOutputDim(inHeight, p.PoolSize[0], p.Strides[0], p.Dilation[0], p.Padding[0], p.Padding[2], p.CeilMode)
	if err != nil {
		return shapes.Invalid(), errors.WithMessage(err, "pool2d height")
	}
	outWidth, err := spatialOutputDim(inWidth, p.PoolSize[1], p.Strides[1], p.Dilation[1], p.Padding[1], p.Padding[3], p.CeilMode)
	if err != nil {
		return shapes.Invalid(), errors.WithMessage(err, "pool2d width")
	}
	dims, err := outputDims(dl, data.Dimensions, channels, outHeight, outWidth)
	if err != nil {
		return shapes.Invalid(), err
	}
	return shapes.Make(data.DType, dims...), nil
}
