// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package registry implements the process-wide tables used to register per-operator entries
// (strategies, gradient rules, pattern tags, schedules), keyed by operator name and target tag.
//
// Tables are populated during initialization, typically from a single goroutine, and then frozen.
// Lookups read an immutable snapshot published with an atomic pointer, so they never lock and
// never observe a partially updated table. Writers (Register and RegisterLate) are serialized
// on a mutex and publish a new copy of the table.
package registry

import (
	"cmp"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// GenericTag is the target tag of the generic entry, used as the last fallback in Resolve.
const GenericTag = ""

// Key of a table entry.
type Key[N ~string] struct {
	Name N
	Tag  string
}

// TagName returns the tag, or "generic" for the GenericTag. Used for printing.
func (k Key[N]) TagName() string {
	if k.Tag == GenericTag {
		return "generic"
	}
	return k.Tag
}

// Table maps (name, tag) keys to values of type V.
type Table[N ~string, V any] struct {
	kind     string
	mu       sync.Mutex
	snapshot atomic.Pointer[map[Key[N]]V]
	frozen   atomic.Bool
}

// New creates a new empty table. The kind (e.g. "strategy") is used in log and panic messages.
func New[N ~string, V any](kind string) *Table[N, V] {
	t := &Table[N, V]{kind: kind}
	empty := make(map[Key[N]]V)
	t.snapshot.Store(&empty)
	return t
}

// Kind of entries in the table, as given to New.
func (t *Table[N, V]) Kind() string { return t.kind }

// Register value under (name, tag). Registering the same key again replaces the previous value.
//
// It panics if the table is frozen: use RegisterLate for registrations after initialization.
func (t *Table[N, V]) Register(name N, tag string, value V) {
	if t.frozen.Load() {
		exceptions.Panicf("%s registry is frozen: cannot register %q for tag %q, use RegisterLate instead",
			t.kind, name, tag)
	}
	t.store(name, tag, value)
}

// RegisterLate registers value under (name, tag) even if the table is already frozen.
// Concurrent lookups see either the old or the new table, never a partial update.
func (t *Table[N, V]) RegisterLate(name N, tag string, value V) {
	t.store(name, tag, value)
}

func (t *Table[N, V]) store(name N, tag string, value V) {
	if name == "" {
		exceptions.Panicf("%s registry: cannot register an empty name", t.kind)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	current := *t.snapshot.Load()
	key := Key[N]{Name: name, Tag: tag}
	if _, found := current[key]; found {
		klog.V(1).Infof("%s registry: replacing entry for %q (%s)", t.kind, name, key.TagName())
	}
	updated := make(map[Key[N]]V, len(current)+1)
	maps.Copy(updated, current)
	updated[key] = value
	t.snapshot.Store(&updated)
}

// Freeze the table: further calls to Register panic.
func (t *Table[N, V]) Freeze() { t.frozen.Store(true) }

// Frozen returns whether Freeze was called.
func (t *Table[N, V]) Frozen() bool { return t.frozen.Load() }

// Get returns the value registered exactly under (name, tag).
func (t *Table[N, V]) Get(name N, tag string) (value V, found bool) {
	value, found = (*t.snapshot.Load())[Key[N]{Name: name, Tag: tag}]
	return
}

// Resolve returns the value of the first tag in tags registered for name, falling back to the
// generic entry. Tags should be ordered from the most specific to the least specific.
// It also returns the tag that matched.
func (t *Table[N, V]) Resolve(name N, tags []string) (value V, tag string, found bool) {
	snapshot := *t.snapshot.Load()
	for _, tag = range tags {
		if tag == GenericTag {
			continue
		}
		if value, found = snapshot[Key[N]{Name: name, Tag: tag}]; found {
			return
		}
	}
	tag = GenericTag
	value, found = snapshot[Key[N]{Name: name, Tag: tag}]
	return
}

// Len returns the number of entries.
func (t *Table[N, V]) Len() int { return len(*t.snapshot.Load()) }

// Keys returns all keys, sorted by name and then tag (generic first).
func (t *Table[N, V]) Keys() []Key[N] {
	keys := slices.Collect(maps.Keys(*t.snapshot.Load()))
	slices.SortFunc(keys, func(a, b Key[N]) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.Tag, b.Tag))
	})
	return keys
}

// Names returns the sorted distinct names with at least one entry.
func (t *Table[N, V]) Names() []N {
	var names []N
	for _, key := range t.Keys() {
		if len(names) == 0 || names[len(names)-1] != key.Name {
			names = append(names, key.Name)
		}
	}
	return names
}

// Tags returns the sorted tags registered for name.
func (t *Table[N, V]) Tags(name N) []string {
	var tags []string
	for _, key := range t.Keys() {
		if key.Name == name {
			tags = append(tags, key.Tag)
		}
	}
	return tags
}
