// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package layout parses tensor layout strings like "NCHW", "NHWC", "OIHW4o" or "NCHW4c".
//
// A layout is a sequence of axes: upper-case letters are primal axes (e.g. "C" for channels), and
// a number followed by a lower-case letter is a sub-axis split from the primal axis of the same
// letter, with the given factor (e.g. "4c" holds 4 channels per element of "C").
package layout

import (
	"strconv"
	"unicode"

	"github.com/pkg/errors"
)

// Axis of a layout.
type Axis struct {
	// Letter is the upper-case letter for primal axes and lower-case for sub-axes.
	Letter rune

	// Factor of a sub-axis. It is 0 for primal axes.
	Factor int
}

// IsSubAxis returns whether the axis was split from a primal axis.
func (a Axis) IsSubAxis() bool { return a.Factor > 0 }

// String implements fmt.Stringer.
func (a Axis) String() string {
	if a.IsSubAxis() {
		return strconv.Itoa(a.Factor) + string(a.Letter)
	}
	return string(a.Letter)
}

// Layout is a parsed layout string. The zero value is the undefined layout.
type Layout struct {
	name string
	axes []Axis
}

// Parse a layout string.
func Parse(name string) (Layout, error) {
	l := Layout{name: name}
	seen := make(map[rune]bool, len(name))
	factor := 0
	for pos, r := range name {
		switch {
		case r >= '0' && r <= '9':
			factor = factor*10 + int(r-'0')
		case unicode.IsUpper(r):
			if factor != 0 {
				return Layout{}, errors.Errorf("invalid layout %q: primal axis %q at position %d cannot have a factor", name, r, pos)
			}
			if seen[r] {
				return Layout{}, errors.Errorf("invalid layout %q: axis %q repeated", name, r)
			}
			seen[r] = true
			l.axes = append(l.axes, Axis{Letter: r})
		case unicode.IsLower(r):
			if factor == 0 {
				return Layout{}, errors.Errorf("invalid layout %q: sub-axis %q at position %d requires a factor > 0", name, r, pos)
			}
			if seen[r] {
				return Layout{}, errors.Errorf("invalid layout %q: sub-axis %q repeated", name, r)
			}
			seen[r] = true
			l.axes = append(l.axes, Axis{Letter: r, Factor: factor})
			factor = 0
		default:
			return Layout{}, errors.Errorf("invalid layout %q: unexpected character %q at position %d", name, r, pos)
		}
	}
	if factor != 0 {
		return Layout{}, errors.Errorf("invalid layout %q: dangling factor %d at the end", name, factor)
	}
	for _, axis := range l.axes {
		if axis.IsSubAxis() && !seen[unicode.ToUpper(axis.Letter)] {
			return Layout{}, errors.Errorf("invalid layout %q: sub-axis %q without primal axis %q",
				name, axis.Letter, unicode.ToUpper(axis.Letter))
		}
	}
	return l, nil
}

// MustParse is like Parse, but panics on error. Use it for constants.
func MustParse(name string) Layout {
	l, err := Parse(name)
	if err != nil {
		panic(err)
	}
	return l
}

// String returns the layout string it was parsed from.
func (l Layout) String() string { return l.name }

// Defined returns whether the layout has any axes.
func (l Layout) Defined() bool { return len(l.axes) > 0 }

// Rank is the number of axes, primal and sub-axes, of the layout.
func (l Layout) Rank() int { return len(l.axes) }

// Axes returns a copy of the axes of the layout.
func (l Layout) Axes() []Axis { return append([]Axis(nil), l.axes...) }

// IndexOf returns the position of the axis with the given letter, or -1 if not present.
// Use upper-case for primal axes and lower-case for sub-axes.
func (l Layout) IndexOf(letter rune) int {
	for ii, axis := range l.axes {
		if axis.Letter == letter {
			return ii
		}
	}
	return -1
}

// Contains returns whether the layout has the axis with the given letter.
func (l Layout) Contains(letter rune) bool { return l.IndexOf(letter) >= 0 }

// Factor returns the factor of the sub-axis split from the primal axis `primal`, or 0 if the
// primal axis was not split.
func (l Layout) Factor(primal rune) int {
	idx := l.IndexOf(unicode.ToLower(primal))
	if idx < 0 {
		return 0
	}
	return l.axes[idx].Factor
}

// IsPacked returns whether any primal axis was split into a sub-axis.
func (l Layout) IsPacked() bool {
	for _, axis := range l.axes {
		if axis.IsSubAxis() {
			return true
		}
	}
	return false
}

// Extent returns the total extent of the primal axis `primal` for a tensor with the given
// dimensions in this layout: the dimension of the primal axis times the dimension of its
// sub-axis, if any.
func (l Layout) Extent(dimensions []int, primal rune) (int, error) {
	if len(dimensions) != l.Rank() {
		return 0, errors.Errorf("dimensions %v have rank %d, but layout %q has rank %d", dimensions, len(dimensions), l.name, l.Rank())
	}
	primal = unicode.ToUpper(primal)
	idx := l.IndexOf(primal)
	if idx < 0 {
		return 0, errors.Errorf("layout %q has no axis %q", l.name, primal)
	}
	extent := dimensions[idx]
	if subIdx := l.IndexOf(unicode.ToLower(primal)); subIdx >= 0 {
		extent *= dimensions[subIdx]
	}
	return extent, nil
}

// Channels returns the number of channels of a tensor with the given dimensions in this layout.
// It is the extent of the "C" axis for data layouts.
func (l Layout) Channels(dimensions []int) (int, error) {
	return l.Extent(dimensions, 'C')
}
