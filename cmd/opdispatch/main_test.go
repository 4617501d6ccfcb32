// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/opdispatch/dispatch"
	"github.com/gomlx/opdispatch/dispatch/builtin"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/strategy"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher() *dispatch.Dispatcher {
	return dispatch.New(builtin.NewRegistries())
}

func TestNothingToDo(t *testing.T) {
	var buf bytes.Buffer
	err := run(context.Background(), &buf, newDispatcher(), options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to do")
}

func TestList(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, run(context.Background(), &buf, newDispatcher(), options{List: true, Target: "llvm"}))
	out := buf.String()
	assert.Contains(t, out, "Strategies and schedules")
	assert.Contains(t, out, "nn.conv2d")
	assert.Contains(t, out, "adreno")
	assert.Contains(t, out, "conv2d_nchwc_tpack_acc32")
	assert.Contains(t, out, "OutElemwiseFusable")
}

func TestExplain(t *testing.T) {
	var buf bytes.Buffer
	opts := options{
		Target: "opencl -device=adreno",
		Op:     string(op.Conv2D),
		Inputs: "float16[1,56,56,32];float16[3,3,32,32]",
		Attrs:  "data_layout=NHWC;kernel_layout=HWIO;padding=1",
		Out:    "float16[1,56,56,32]",
	}
	require.NoError(t, run(context.Background(), &buf, newDispatcher(), opts))
	out := buf.String()
	assert.Contains(t, out, "conv2d_nhwc.image2d")
	assert.Contains(t, out, "conv2d_nhwc_acc32.image2d")
	assert.Contains(t, out, "selected")
	assert.Contains(t, out, "texture")

	// Missing output shape.
	opts.Out = ""
	require.Error(t, run(context.Background(), &buf, newDispatcher(), opts))

	// Output type that no candidate produces: the candidates are still listed.
	buf.Reset()
	opts.Out = "float16[1,28,28,32]"
	err := run(context.Background(), &buf, newDispatcher(), opts)
	var noMatch *strategy.NoCandidateMatchedError
	require.True(t, errors.As(err, &noMatch), "got %v", err)
	assert.Contains(t, buf.String(), "conv2d_nhwc_acc32.image2d")

	// Unknown operator.
	opts.Op = "nn.unknown"
	err = run(context.Background(), &buf, newDispatcher(), opts)
	var unsupported *strategy.UnsupportedOperatorError
	require.True(t, errors.As(err, &unsupported), "got %v", err)
}

const blockYAML = `
name: block
parameters:
  - {name: x, shape: "float32[1,3,16,16]"}
  - {name: w, shape: "float32[8,3,3,3]"}
  - {name: b, shape: "float32[8,1,1]"}
nodes:
  - name: conv
    op: nn.conv2d
    inputs: [x, w]
    attrs: {padding: 1, strides: [1, 1]}
    shape: "float32[1,8,16,16]"
  - name: bias
    op: add
    inputs: [conv, b]
    shape: "float32[1,8,16,16]"
  - name: act
    op: sigmoid
    inputs: [bias]
    shape: "float32[1,8,16,16]"
  - name: pool
    op: nn.max_pool2d
    inputs: [act]
    attrs: {pool_size: 2, strides: 2}
    shape: "float32[1,8,8,8]"
`

func TestGraphFile(t *testing.T) {
	gf := must.M1(ParseGraphFile([]byte(blockYAML)))
	nodes := must.M1(gf.Build())
	require.Len(t, nodes, 4)
	assert.Equal(t, "pool", nodes[3].Name())
	assert.Equal(t, op.MaxPool2D, nodes[3].Operator())
	assert.Equal(t, []int{1, 1}, must.M1(nodes[0].Attributes().Ints("strides")))

	path := filepath.Join(t.TempDir(), "block.yaml")
	require.NoError(t, os.WriteFile(path, []byte(blockYAML), 0o644))
	for _, progress := range []bool{false, true} {
		var buf bytes.Buffer
		opts := options{Target: "cuda", Graph: path, Parallelism: 2, Progress: progress}
		require.NoError(t, run(context.Background(), &buf, newDispatcher(), opts))
		out := buf.String()
		assert.Contains(t, out, "conv2d_nchw.generic")
		assert.Contains(t, out, "sigmoid.gpu")
		assert.Contains(t, out, "nn.max_pool2d.gpu")
		assert.Regexp(t, `\(session [0-9a-f-]{36}\)`, out)
	}
}

func TestGraphFileErrors(t *testing.T) {
	_, err := ParseGraphFile([]byte("name: empty\n"))
	require.Error(t, err)

	const param = "parameters:\n  - {name: x, shape: 'float32[2]'}\n"
	for _, text := range []string{
		// Undefined input.
		"nodes:\n  - {op: exp, inputs: [y], shape: 'float32[2]'}\n",
		// Missing op.
		param + "nodes:\n  - {inputs: [x], shape: 'float32[2]'}\n",
		// Invalid shape.
		param + "nodes:\n  - {op: exp, inputs: [x], shape: 'float32[0]'}\n",
		// Name defined twice.
		param + "nodes:\n  - {name: x, op: exp, inputs: [x], shape: 'float32[2]'}\n",
		// Unsupported attribute value.
		param + "nodes:\n  - {op: exp, inputs: [x], attrs: {a: {b: 1}}, shape: 'float32[2]'}\n",
	} {
		gf, err := ParseGraphFile([]byte(text))
		require.NoError(t, err, "parsing %q", text)
		_, err = gf.Build()
		assert.Error(t, err, "building %q", text)
	}
}
