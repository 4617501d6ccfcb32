// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dispatch selects and binds the implementation of operator nodes for a target.
//
// The Registries bundle holds the strategy, gradient, pattern and kernel tables. A Dispatcher resolves
// the strategy of an operator for a target (most specific target tag first, then generic), builds it,
// selects the implementation and finally runs its compute and schedule procedures.
//
// The package also exposes process-wide registries (see Global) with functions to register into them.
// They are populated during initialization (see package builtin) and frozen before use.
package dispatch

import (
	"github.com/gomlx/opdispatch/gradients"
	"github.com/gomlx/opdispatch/kernels"
	"github.com/gomlx/opdispatch/op"
	"github.com/gomlx/opdispatch/strategy"
)

// Registries bundles the tables the Dispatcher consults.
type Registries struct {
	Strategies *strategy.Registry
	Gradients  *gradients.Registry
	Patterns   *op.PatternRegistry
	Kernels    *kernels.Library
}

// NewRegistries creates a bundle of empty registries.
func NewRegistries() *Registries {
	return &Registries{
		Strategies: strategy.NewRegistry(),
		Gradients:  gradients.NewRegistry(),
		Patterns:   op.NewPatternRegistry(),
		Kernels:    kernels.NewLibrary(),
	}
}

// Freeze all the registries: further calls to Register panic, RegisterLate still works.
func (r *Registries) Freeze() {
	r.Strategies.Freeze()
	r.Gradients.Freeze()
	r.Patterns.Freeze()
	r.Kernels.Freeze()
}
