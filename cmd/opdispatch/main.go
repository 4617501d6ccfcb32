// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// opdispatch inspects the operator dispatch registries: it lists the registrations, explains how an
// operator is resolved for a target and lowers the nodes of a graph described in a YAML file.
//
// Examples:
//
//	opdispatch -list
//	opdispatch -target="opencl -device=adreno" -op=nn.conv2d -inputs="float16[1,56,56,32];float16[3,3,32,32]" \
//	    -attrs="data_layout=NHWC;kernel_layout=HWIO;padding=1" -out="float16[1,56,56,32]"
//	opdispatch -target=cuda -graph=model.yaml -parallelism=4
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/opdispatch/dispatch"
	"github.com/gomlx/opdispatch/dispatch/builtin"
	"github.com/gomlx/opdispatch/target"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagTarget = flag.String("target", "",
		fmt.Sprintf("Target configuration, e.g. \"cuda\" or \"opencl -device=adreno\". "+
			"If empty, it uses $%s, or the generic CPU target.", target.OPDISPATCH_TARGET))

	flagList = flag.Bool("list", false, "Lists the registered strategies, schedules and kernels.")
	flagOp   = flag.String("op", "", "Operator to explain, e.g. \"nn.conv2d\". It requires -inputs and -out.")

	flagAttrs = flag.String("attrs", "",
		"Attributes of the operator explained with -op, in the format \"key=value;key=value\".")

	flagInputs = flag.String("inputs", "",
		"Semicolon separated shapes of the inputs of the operator explained with -op, e.g. \"float32[1,3,224,224];float32[64,3,7,7]\".")

	flagOut         = flag.String("out", "", "Output shape of the operator explained with -op, e.g. \"float32[1,64,112,112]\".")
	flagGraph       = flag.String("graph", "", "YAML file describing a graph whose nodes are lowered.")
	flagParallelism = flag.Int("parallelism", 0, "Maximum number of nodes lowered in parallel. If <= 0, no limit.")
	flagProgress    = flag.Bool("progress", true, "Display a progress bar when lowering a graph.")
)

// options of one run of the tool.
type options struct {
	Target      string
	List        bool
	Op          string
	Attrs       string
	Inputs      string
	Out         string
	Graph       string
	Parallelism int
	Progress    bool
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	builtin.Init()

	opts := options{
		Target:      *flagTarget,
		List:        *flagList,
		Op:          *flagOp,
		Attrs:       *flagAttrs,
		Inputs:      *flagInputs,
		Out:         *flagOut,
		Graph:       *flagGraph,
		Parallelism: *flagParallelism,
		Progress:    *flagProgress,
	}
	if err := run(context.Background(), os.Stdout, dispatch.Global(), opts); err != nil {
		klog.Errorf("opdispatch failed: %+v", err)
		os.Exit(1)
	}
}

// run the tool with the given options, writing the reports to w.
func run(ctx context.Context, w io.Writer, d *dispatch.Dispatcher, opts options) error {
	if !opts.List && opts.Op == "" && opts.Graph == "" {
		return errors.New("nothing to do: use -list, -op or -graph, see 'opdispatch -help'")
	}
	lipgloss.SetColorProfile(termenv.NewOutput(w).EnvColorProfile())

	var tgt *target.Target
	var err error
	if opts.Target != "" {
		tgt, err = target.Parse(opts.Target)
	} else {
		tgt, err = target.New()
	}
	if err != nil {
		return err
	}

	if opts.List {
		listRegistries(w, d)
	}
	if opts.Op != "" {
		if err := explain(w, d, tgt, opts); err != nil {
			return err
		}
	}
	if opts.Graph != "" {
		if err := lowerGraphFile(ctx, w, d, tgt, opts); err != nil {
			return err
		}
	}
	return nil
}
