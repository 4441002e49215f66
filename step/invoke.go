// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package step

import (
	"context"
	"fmt"
	"time"

	"github.com/xcherryio/durable/common/errs"
	"github.com/xcherryio/durable/engine"
	"github.com/xcherryio/durable/protocol"
)

type InvokeOpts struct {
	// FunctionID is the fully qualified id of the function to call, i.e. "<app>-<fn>"
	FunctionID string
	Data       map[string]any
	User       map[string]any
	// Timeout is optional, zero lets the orchestrator wait for as long as the callee runs
	Timeout time.Duration
}

// Invoke calls another function and returns its output.
// A failed callee returns *errs.StepError.
func Invoke[T any](ctx context.Context, id string, opts InvokeOpts) (T, error) {
	var zero T
	if opts.FunctionID == "" {
		return zero, fmt.Errorf("function id is required to invoke a function")
	}
	e, err := fromContext(ctx)
	if err != nil {
		return zero, err
	}

	payload := map[string]any{"data": opts.Data}
	if opts.Data == nil {
		payload["data"] = map[string]any{}
	}
	if opts.User != nil {
		payload["user"] = opts.User
	}
	stepOpts := map[string]any{
		"function_id": opts.FunctionID,
		"payload":     payload,
	}
	if opts.Timeout > 0 {
		stepOpts["timeout"] = opts.Timeout.String()
	}
	info := protocol.StepInfo{
		ID:          e.NewStep(id),
		Name:        id,
		DisplayName: id,
		Op:          protocol.OpInvoke,
		Opts:        stepOpts,
	}
	m, decision := e.Report(ctx, info)
	switch decision {
	case engine.DecisionDrain:
		return zero, errs.ErrInvocationFinished
	case engine.DecisionResolve:
		return resolve[T](id, m)
	}
	e.Emit(info)
	return zero, nil
}
