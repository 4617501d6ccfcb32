// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package kernels holds the library of named kernels: the compute and schedule procedures that
// strategies bind into candidate implementations.
//
// Kernels are registered under a namespace, usually the name of the hardware family they were written
// for ("adreno", "cuda") or "generic" for the ones that work on any target.
package kernels

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/opdispatch/registry"
	"github.com/gomlx/opdispatch/strategy"
	"github.com/pkg/errors"
)

// Namespaces of the built-in kernels.
const (
	Adreno  = "adreno"
	CUDA    = "cuda"
	Generic = "generic"
)

// Kernel is a named pair of compute and schedule procedures. Schedule-only kernels (e.g. the injective
// schedules shared by many operators) leave Compute nil.
type Kernel struct {
	Namespace string
	Name      string
	Compute   strategy.ComputeFn
	Schedule  strategy.ScheduleFn
}

// FullName returns "<namespace>.<name>".
func (k Kernel) FullName() string {
	return k.Namespace + "." + k.Name
}

// String implements fmt.Stringer.
func (k Kernel) String() string { return k.FullName() }

// AddTo adds the kernel as a candidate implementation of the strategy being built. The builder reports
// an error if the kernel is schedule-only.
func (k Kernel) AddTo(b *strategy.Builder, implementationName string, priority int) *strategy.Builder {
	return b.AddImplementation(k.Compute, k.Schedule, implementationName, priority)
}

// Library of kernels, indexed by namespace and name.
//
// Like the other registries, it is populated during initialization and frozen afterwards.
type Library struct {
	table *registry.Table[string, Kernel]
}

// NewLibrary creates an empty kernel library.
func NewLibrary() *Library {
	return &Library{table: registry.New[string, Kernel]("kernel")}
}

// Register a kernel. It panics if the kernel has no namespace or name, if it has neither procedure, or
// if the library is frozen. A kernel registered twice replaces the previous one.
func (l *Library) Register(k Kernel) {
	if k.Namespace == "" || k.Name == "" {
		exceptions.Panicf("kernels.Register: kernel %q needs a namespace and a name", k.FullName())
	}
	if k.Compute == nil && k.Schedule == nil {
		exceptions.Panicf("kernels.Register(%q): no compute nor schedule procedure", k.FullName())
	}
	l.table.Register(k.Name, k.Namespace, k)
}

// Freeze the library: further registrations panic.
func (l *Library) Freeze() { l.table.Freeze() }

// Lookup returns the kernel with the given namespace and name.
func (l *Library) Lookup(namespace, name string) (Kernel, error) {
	k, found := l.table.Get(name, namespace)
	if !found {
		return Kernel{}, errors.Errorf("kernel %s.%s not found", namespace, name)
	}
	return k, nil
}

// Must returns the kernel with the given namespace and name, and panics if it's not registered.
// It's meant to be used by the strategy build functions, which run under a panic guard.
func (l *Library) Must(namespace, name string) Kernel {
	k, err := l.Lookup(namespace, name)
	if err != nil {
		panic(err)
	}
	return k
}

// Len returns the number of kernels registered.
func (l *Library) Len() int { return l.table.Len() }

// Kernels returns all the kernels, sorted by name and then namespace.
func (l *Library) Kernels() []Kernel {
	keys := l.table.Keys()
	list := make([]Kernel, 0, len(keys))
	for _, key := range keys {
		k, _ := l.table.Get(key.Name, key.Tag)
		list = append(list, k)
	}
	return list
}

// Namespaces returns the namespaces that have a kernel with the given name.
func (l *Library) Namespaces(name string) []string {
	return l.table.Tags(name)
}

var _ fmt.Stringer = Kernel{}
