// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package builtin installs the built-in kernels, strategies, schedules, gradient rules and fusion
// patterns.
//
// Nothing is registered by importing the package: call Init to populate and freeze the process-wide
// registries, or Install to populate a separate Registries (e.g. in tests).
package builtin

import (
	"sync"

	"github.com/gomlx/opdispatch/dispatch"
	"github.com/gomlx/opdispatch/gradients"
	"github.com/gomlx/opdispatch/kernels/reference"
	"github.com/gomlx/opdispatch/strategies/adreno"
	"github.com/gomlx/opdispatch/strategies/generic"
	"k8s.io/klog/v2"
)

// Install all the built-in registrations into r. It doesn't freeze r.
func Install(r *dispatch.Registries) {
	reference.Install(r.Kernels)
	generic.Install(r)
	adreno.Install(r)
	for operator, rule := range gradients.TensorRules {
		r.Gradients.Register(operator, rule)
	}
}

// NewRegistries returns new registries with the built-in registrations installed.
func NewRegistries() *dispatch.Registries {
	r := dispatch.NewRegistries()
	Install(r)
	return r
}

var initOnce sync.Once

// Init installs the built-in registrations into the process-wide registries and freezes them.
// It is safe to call more than once: only the first call has an effect.
//
// Registrations of other packages must happen before Init, or use the "Late" variants.
func Init() {
	initOnce.Do(func() {
		r := dispatch.Global().Registries()
		Install(r)
		r.Freeze()
		klog.V(1).Infof("built-in registrations installed: %d operators with strategies or schedules, %d gradient rules, %d kernels",
			len(r.Strategies.Operators()), len(r.Gradients.Operators()), r.Kernels.Len())
	})
}
