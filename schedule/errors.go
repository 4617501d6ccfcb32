// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package schedule

import (
	"fmt"

	"github.com/gomlx/opdispatch/target"
)

// ScopeAllocationError is returned when a schedule allocates a buffer from inside the kernel in a memory
// scope where the target doesn't support allocation, e.g. textures on OpenCL. Such buffers must be passed
// as arguments or bound between stages instead.
type ScopeAllocationError struct {
	Buffer string
	Scope  target.Scope
	Target string
}

// Error implements the error interface.
func (e *ScopeAllocationError) Error() string {
	return fmt.Sprintf("buffer %q cannot be allocated inside the kernel in scope %q for target %q: declare it as an argument or bound buffer",
		e.Buffer, e.Scope, e.Target)
}
