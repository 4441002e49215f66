// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package step

import (
	"context"
	"fmt"
	"time"

	"github.com/xcherryio/durable/common/errs"
	"github.com/xcherryio/durable/engine"
	"github.com/xcherryio/durable/memo"
	"github.com/xcherryio/durable/protocol"
)

type WaitForEventOpts struct {
	// Event is the name of the event to wait for
	Event string
	// If is an optional expression matching the awaited event against the
	// triggering one, e.g. "event.data.id == async.data.id"
	If *string
	// Timeout is how long to wait. errs.ErrEventNotReceived is returned after it
	Timeout time.Duration
}

// WaitForEvent pauses the function until a matching event is received or the
// timeout passes.
func WaitForEvent[T any](ctx context.Context, id string, opts WaitForEventOpts) (T, error) {
	var zero T
	if opts.Event == "" {
		return zero, fmt.Errorf("event name is required to wait for an event")
	}
	if opts.Timeout <= 0 {
		return zero, fmt.Errorf("timeout must be positive to wait for an event")
	}
	e, err := fromContext(ctx)
	if err != nil {
		return zero, err
	}

	stepOpts := map[string]any{
		"event":   opts.Event,
		"timeout": opts.Timeout.String(),
	}
	if opts.If != nil {
		stepOpts["if"] = *opts.If
	}
	info := protocol.StepInfo{
		ID:          e.NewStep(id),
		Name:        opts.Event,
		DisplayName: id,
		Op:          protocol.OpWaitForEvent,
		Opts:        stepOpts,
	}
	m, decision := e.Report(ctx, info)
	switch decision {
	case engine.DecisionDrain:
		return zero, errs.ErrInvocationFinished
	case engine.DecisionResolve:
		if m.Kind == memo.KindNull {
			return zero, errs.ErrEventNotReceived
		}
		return resolve[T](id, m)
	}
	e.Emit(info)
	return zero, nil
}
