// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package schedule

import (
	"github.com/gomlx/opdispatch/target"
	"github.com/gomlx/opdispatch/types/shapes"
	"github.com/pkg/errors"
)

// Texture2DShape is the 2D image a buffer in a texture scope is flattened to.
type Texture2DShape struct {
	Width, Height, Channels int
}

// TextureRowSeparator returns the number of leading axes flattened into the rows (height) of the texture,
// for a buffer of the given rank in the texture scope:
//
//   - target.ScopeTexture (activations): all but the last two axes, e.g. [N,C,H,W,c] -> [N*C*H, W, c].
//   - target.ScopeTextureWeight: the first axis, e.g. [O,I,H,W,o] -> [O, I*H*W, o].
//   - target.ScopeTextureNHWC: the first two axes, e.g. [N,H,W,C,c] -> [N*H, W*C, c].
func TextureRowSeparator(rank int, scope target.Scope) (int, error) {
	switch scope {
	case target.ScopeTexture:
		return rank - 2, nil
	case target.ScopeTextureWeight:
		return 1, nil
	case target.ScopeTextureNHWC:
		return 2, nil
	}
	return 0, errors.Errorf("scope %q is not a known texture scope", scope)
}

// FlattenTexture2D returns the 2D texture shape for a buffer of the given shape in a texture scope:
// the last axis are the channels, axes before the row separator are multiplied into the height and the
// remaining ones into the width.
func FlattenTexture2D(shape shapes.Shape, scope target.Scope) (Texture2DShape, error) {
	rank := shape.Rank()
	if rank < 3 {
		return Texture2DShape{}, errors.Errorf("buffer shape %s for texture scope %q must be at least rank 3", shape, scope)
	}
	separator, err := TextureRowSeparator(rank, scope)
	if err != nil {
		return Texture2DShape{}, err
	}
	if separator >= rank-1 {
		return Texture2DShape{}, errors.Errorf("buffer shape %s has too few axes for texture scope %q", shape, scope)
	}
	texture := Texture2DShape{Width: 1, Height: 1, Channels: shape.Dimensions[rank-1]}
	for axis, dim := range shape.Dimensions[:rank-1] {
		if axis < separator {
			texture.Height *= dim
		} else {
			texture.Width *= dim
		}
	}
	return texture, nil
}
