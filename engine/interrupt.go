// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import "github.com/xcherryio/durable/protocol"

// Interrupts unwind user code from a step boundary back to Run or to the
// parallel group coordinator. They are raised with panic and never escape the engine.

// responseInterrupt ends the current pass with step responses for the orchestrator
type responseInterrupt struct {
	responses []protocol.StepResponse
}

// skipInterrupt abandons the current branch because another step is targeted
type skipInterrupt struct {
	step protocol.StepInfo
}

// hookInterrupt carries a middleware failure raised at a step boundary
type hookInterrupt struct {
	err error
}

// branchPanic is a user panic recovered on a parallel branch goroutine
type branchPanic struct {
	value any
	stack string
}

// IsInterrupt reports whether a recovered value is an engine interrupt that must be re-panicked
func IsInterrupt(r any) bool {
	switch r.(type) {
	case *responseInterrupt, *skipInterrupt, *hookInterrupt, *branchPanic:
		return true
	}
	return false
}
