// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package attrs

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributes(t *testing.T) {
	strides := []int{1, 1}
	a := New(map[string]any{
		"strides":     strides,
		"data_layout": "NCHW",
		"groups":      int64(1),
		"out_dtype":   dtypes.Float16,
		"scale":       float32(0.5),
		"use_bias":    true,
	})
	strides[0] = 7 // Must not change the attributes.
	got, err := a.Ints("strides")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, got)
	got[1] = 9 // Nor changing the returned slice.
	got, _ = a.Ints("strides")
	assert.Equal(t, []int{1, 1}, got)

	groups, err := a.Int("groups")
	require.NoError(t, err)
	assert.Equal(t, 1, groups)
	dtype, err := a.DType("out_dtype")
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float16, dtype)
	f, err := a.Float("scale")
	require.NoError(t, err)
	assert.Equal(t, 0.5, f)
	b, err := a.Bool("use_bias")
	require.NoError(t, err)
	assert.True(t, b)

	_, err = a.Int("data_layout")
	assert.Error(t, err)
	_, err = a.Str("missing")
	assert.Error(t, err)
	layout, err := a.StrOr("kernel_layout", "OIHW")
	require.NoError(t, err)
	assert.Equal(t, "OIHW", layout)

	a2 := a.With("groups", 32)
	groups, _ = a.Int("groups")
	assert.Equal(t, 1, groups)
	groups, _ = a2.Int("groups")
	assert.Equal(t, 32, groups)

	var empty *Attributes
	assert.Equal(t, 0, empty.Len())
	assert.False(t, empty.Has("groups"))
	assert.Equal(t, 1, empty.With("groups", 1).Len())

	_, err = FromMap(map[string]any{"bad": struct{}{}})
	assert.Error(t, err)
	assert.Panics(t, func() { _ = New(map[string]any{"bad": []string{"a"}}) })
}

func TestParse(t *testing.T) {
	a, err := Parse("strides=1,1; dilation=[2,2];groups=1;data_layout=NHWC;out_dtype=float16;alpha=0.5;flag=true")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "data_layout", "dilation", "flag", "groups", "out_dtype", "strides"}, a.Keys())
	dilation, err := a.Ints("dilation")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, dilation)
	dtype, err := a.DType("out_dtype")
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float16, dtype)
	assert.Equal(t,
		"alpha=0.5;data_layout=NHWC;dilation=[2,2];flag=true;groups=1;out_dtype=float16;strides=[1,1]",
		a.Encode())

	// YAML style lists.
	a, err = FromMap(map[string]any{"padding": []any{0, 1, 0, 1}})
	require.NoError(t, err)
	padding, _ := a.Ints("padding")
	assert.Equal(t, []int{0, 1, 0, 1}, padding)

	_, err = Parse("groups")
	assert.Error(t, err)
	_, err = Parse("groups=1;groups=2")
	assert.Error(t, err)

	a, err = Parse("out_dtype=notadtype")
	require.NoError(t, err)
	_, err = a.DType("out_dtype")
	assert.Error(t, err)
}
