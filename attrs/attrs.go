// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package attrs implements the immutable attribute descriptor attached to operator nodes,
// e.g. `strides: [1, 1]`, `data_layout: "NCHW"`, `groups: 1` or `out_dtype: float16`.
//
// Values are normalized on construction: integer slices become []int, integers become int and
// floating point numbers become float64. Accessors never return storage owned by the descriptor.
package attrs

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/opdispatch/types/shapes"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// Attributes is an immutable key to value mapping. A nil *Attributes is valid and empty.
type Attributes struct {
	values map[string]any
}

// New creates an Attributes with a copy of the given values.
//
// It panics if a value is of an unsupported type: use it for literals. FromMap returns an error instead.
func New(values map[string]any) *Attributes {
	a, err := FromMap(values)
	if err != nil {
		panic(err)
	}
	return a
}

// FromMap creates an Attributes with a normalized copy of the given values. Supported value types:
// integers, slices of integers ([]any of integers as well, as decoded from YAML), floats, bool,
// string and dtypes.DType.
func FromMap(values map[string]any) (*Attributes, error) {
	a := &Attributes{values: make(map[string]any, len(values))}
	for key, value := range values {
		normalized, err := normalize(value)
		if err != nil {
			return nil, errors.WithMessagef(err, "attribute %q", key)
		}
		a.values[key] = normalized
	}
	return a, nil
}

func normalize(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int8:
		return int(v), nil
	case int16:
		return int(v), nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint8:
		return int(v), nil
	case uint16:
		return int(v), nil
	case uint32:
		return int(v), nil
	case float32:
		return float64(v), nil
	case float64, bool, string, dtypes.DType:
		return v, nil
	case []int:
		return slices.Clone(v), nil
	case []int32:
		return toInts(v), nil
	case []int64:
		return toInts(v), nil
	case []any:
		ints := make([]int, 0, len(v))
		for ii, element := range v {
			n, err := normalize(element)
			if err != nil {
				return nil, err
			}
			i, ok := n.(int)
			if !ok {
				return nil, errors.Errorf("element #%d of list is %T, only lists of integers are supported", ii, element)
			}
			ints = append(ints, i)
		}
		return ints, nil
	}
	return nil, errors.Errorf("unsupported attribute value type %T", value)
}

func toInts[T constraints.Integer](values []T) []int {
	ints := make([]int, len(values))
	for ii, v := range values {
		ints[ii] = int(v)
	}
	return ints
}

// With returns a new Attributes with the key set to value. The receiver is not changed.
// It panics if value is of an unsupported type.
func (a *Attributes) With(key string, value any) *Attributes {
	normalized, err := normalize(value)
	if err != nil {
		panic(errors.WithMessagef(err, "attribute %q", key))
	}
	a2 := &Attributes{values: make(map[string]any, a.Len()+1)}
	if a != nil {
		maps.Copy(a2.values, a.values)
	}
	a2.values[key] = normalized
	return a2
}

// Len returns the number of attributes.
func (a *Attributes) Len() int {
	if a == nil {
		return 0
	}
	return len(a.values)
}

// Has returns whether the key is set.
func (a *Attributes) Has(key string) bool {
	if a == nil {
		return false
	}
	_, found := a.values[key]
	return found
}

// Keys returns the sorted keys.
func (a *Attributes) Keys() []string {
	if a == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(a.values))
}

// Get returns a copy of the value for key, or nil if not set.
func (a *Attributes) Get(key string) any {
	if a == nil {
		return nil
	}
	if ints, ok := a.values[key].([]int); ok {
		return slices.Clone(ints)
	}
	return a.values[key]
}

func (a *Attributes) lookup(key string) (any, error) {
	if a == nil {
		return nil, errors.Errorf("attribute %q not set", key)
	}
	value, found := a.values[key]
	if !found {
		return nil, errors.Errorf("attribute %q not set", key)
	}
	return value, nil
}

// Int returns the integer value for key.
func (a *Attributes) Int(key string) (int, error) {
	value, err := a.lookup(key)
	if err != nil {
		return 0, err
	}
	i, ok := value.(int)
	if !ok {
		return 0, errors.Errorf("attribute %q is %T, not an int", key, value)
	}
	return i, nil
}

// IntOr returns the integer value for key, or defaultValue if the key is not set.
// A value set with a different type is still an error.
func (a *Attributes) IntOr(key string, defaultValue int) (int, error) {
	if !a.Has(key) {
		return defaultValue, nil
	}
	return a.Int(key)
}

// Ints returns a copy of the integer list for key. A single integer is returned as a list of one.
func (a *Attributes) Ints(key string) ([]int, error) {
	value, err := a.lookup(key)
	if err != nil {
		return nil, err
	}
	switch v := value.(type) {
	case []int:
		return slices.Clone(v), nil
	case int:
		return []int{v}, nil
	}
	return nil, errors.Errorf("attribute %q is %T, not a list of ints", key, value)
}

// IntsOr returns a copy of the integer list for key, or defaultValue if the key is not set.
func (a *Attributes) IntsOr(key string, defaultValue ...int) ([]int, error) {
	if !a.Has(key) {
		return slices.Clone(defaultValue), nil
	}
	return a.Ints(key)
}

// Str returns the string value for key.
func (a *Attributes) Str(key string) (string, error) {
	value, err := a.lookup(key)
	if err != nil {
		return "", err
	}
	s, ok := value.(string)
	if !ok {
		return "", errors.Errorf("attribute %q is %T, not a string", key, value)
	}
	return s, nil
}

// StrOr returns the string value for key, or defaultValue if the key is not set.
func (a *Attributes) StrOr(key, defaultValue string) (string, error) {
	if !a.Has(key) {
		return defaultValue, nil
	}
	return a.Str(key)
}

// Float returns the floating point value for key. Integer values are converted.
func (a *Attributes) Float(key string) (float64, error) {
	value, err := a.lookup(key)
	if err != nil {
		return 0, err
	}
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	}
	return 0, errors.Errorf("attribute %q is %T, not a float", key, value)
}

// Bool returns the boolean value for key.
func (a *Attributes) Bool(key string) (bool, error) {
	value, err := a.lookup(key)
	if err != nil {
		return false, err
	}
	b, ok := value.(bool)
	if !ok {
		return false, errors.Errorf("attribute %q is %T, not a bool", key, value)
	}
	return b, nil
}

// DType returns the dtype for key. A string value is parsed as a dtype name.
func (a *Attributes) DType(key string) (dtypes.DType, error) {
	value, err := a.lookup(key)
	if err != nil {
		return dtypes.InvalidDType, err
	}
	switch v := value.(type) {
	case dtypes.DType:
		return v, nil
	case string:
		dtype, err := shapes.ParseDType(v)
		if err != nil {
			return dtypes.InvalidDType, errors.WithMessagef(err, "attribute %q", key)
		}
		return dtype, nil
	}
	return dtypes.InvalidDType, errors.Errorf("attribute %q is %T, not a dtype", key, value)
}

// DTypeOr returns the dtype for key, or defaultValue if the key is not set or is an empty string.
func (a *Attributes) DTypeOr(key string, defaultValue dtypes.DType) (dtypes.DType, error) {
	if !a.Has(key) {
		return defaultValue, nil
	}
	if s, ok := a.values[key].(string); ok && s == "" {
		return defaultValue, nil
	}
	return a.DType(key)
}

// Encode pretty-prints the attributes in the same format accepted by Parse, with sorted keys.
func (a *Attributes) Encode() string {
	parts := make([]string, 0, a.Len())
	for _, key := range a.Keys() {
		var valueStr string
		switch v := a.values[key].(type) {
		case []int:
			elements := make([]string, len(v))
			for ii, i := range v {
				elements[ii] = strconv.Itoa(i)
			}
			valueStr = "[" + strings.Join(elements, ",") + "]"
		default:
			valueStr = fmt.Sprint(v)
		}
		parts = append(parts, key+"="+valueStr)
	}
	return strings.Join(parts, ";")
}

// Parse attributes from the text format "key=value;key=value". Values are inferred:
// "[1,2]" or "1,2" is a list of ints, "1" an int, "0.5" a float, "true"/"false" a bool, and anything
// else a string. Dtype attributes can be given as strings, they are parsed by DType.
func Parse(text string) (*Attributes, error) {
	values := make(map[string]any)
	for _, part := range strings.Split(text, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, valueStr, found := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, errors.Errorf("invalid attribute %q in %q: expected \"key=value\"", part, text)
		}
		if _, dup := values[key]; dup {
			return nil, errors.Errorf("attribute %q given more than once in %q", key, text)
		}
		values[key] = parseValue(strings.TrimSpace(valueStr))
	}
	return FromMap(values)
}

func parseValue(text string) any {
	if list, isList := strings.CutPrefix(text, "["); isList {
		list = strings.TrimSuffix(list, "]")
		if ints, ok := parseInts(list); ok {
			return ints
		}
		return text
	}
	if strings.Contains(text, ",") {
		if ints, ok := parseInts(text); ok {
			return ints
		}
		return text
	}
	if i, err := strconv.Atoi(text); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(text); err == nil && (text == "true" || text == "false") {
		return b
	}
	return text
}

func parseInts(text string) ([]int, bool) {
	ints := []int{}
	for _, element := range strings.Split(text, ",") {
		element = strings.TrimSpace(element)
		if element == "" {
			continue
		}
		i, err := strconv.Atoi(element)
		if err != nil {
			return nil, false
		}
		ints = append(ints, i)
	}
	return ints, true
}
