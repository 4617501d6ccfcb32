// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package op

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternStrings(t *testing.T) {
	assert.Equal(t, "OutElemwiseFusable", PatternOutElemwiseFusable.String())
	assert.Equal(t, "Pattern(17)", Pattern(17).String())
	p, err := PatternString("commreduce")
	require.NoError(t, err)
	assert.Equal(t, PatternCommReduce, p)
	_, err = PatternString("fancy")
	assert.Error(t, err)
	assert.Len(t, PatternValues(), 7)
}

func TestPatternRegistry(t *testing.T) {
	r := NewPatternRegistry()
	r.Register(Add, PatternBroadcast)
	r.Register(Zeros, PatternElemwise)
	assert.Equal(t, PatternBroadcast, r.Get(Add))
	assert.Equal(t, PatternOpaque, r.Get(Conv2D))
	_, found := r.Lookup(Conv2D)
	assert.False(t, found)

	r.Freeze()
	assert.Panics(t, func() { r.Register(Conv2D, PatternOutElemwiseFusable) })
	r.RegisterLate(Conv2D, PatternOutElemwiseFusable)
	assert.Equal(t, PatternOutElemwiseFusable, r.Get(Conv2D))
	assert.Equal(t, []Name{Add, Conv2D, Zeros}, r.Operators())
}
