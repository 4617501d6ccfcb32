// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package op defines operator names and the fusion pattern tags attached to them.
package op

// Name of an operator, e.g. "nn.conv2d" or "add". It is the key into all registries.
type Name string

// Names of the operators with built-in registrations.
const (
	Add         Name = "add"
	Subtract    Name = "subtract"
	Multiply    Name = "multiply"
	Divide      Name = "divide"
	Negative    Name = "negative"
	Exp         Name = "exp"
	Log         Name = "log"
	Sqrt        Name = "sqrt"
	Tanh        Name = "tanh"
	Sigmoid     Name = "sigmoid"
	Floor       Name = "floor"
	Ceil        Name = "ceil"
	Trunc       Name = "trunc"
	Round       Name = "round"
	Abs         Name = "abs"
	Copy        Name = "copy"
	Mod         Name = "mod"
	Power       Name = "power"
	Maximum     Name = "maximum"
	Minimum     Name = "minimum"
	Equal       Name = "equal"
	NotEqual    Name = "not_equal"
	Less        Name = "less"
	LessEqual   Name = "less_equal"
	Greater     Name = "greater"
	GreaterEq   Name = "greater_equal"
	LeftShift   Name = "left_shift"
	RightShift  Name = "right_shift"
	Zeros       Name = "zeros"
	ZerosLike   Name = "zeros_like"
	Ones        Name = "ones"
	OnesLike    Name = "ones_like"
	Clip        Name = "clip"
	Conv2D      Name = "nn.conv2d"
	MaxPool2D   Name = "nn.max_pool2d"
	AvgPool2D   Name = "nn.avg_pool2d"
	Parameter   Name = "parameter"
	CollapseSum Name = "collapse_sum_like"
	BroadcastTo Name = "broadcast_to_like"
	Constant    Name = "constant"
)

// String implements fmt.Stringer.
func (n Name) String() string { return string(n) }
