// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"

	"github.com/xcherryio/durable/memo"
	"github.com/xcherryio/durable/protocol"
)

// CallInput is the execution context a middleware may rewrite before user code runs.
type CallInput struct {
	FunctionID string
	Event      protocol.Event
	Events     []protocol.Event
	CallCtx    protocol.CallCtx
	Steps      *memo.Store
}

// Output is one emitted result: the function output, or one step of a multi result.
type Output struct {
	Data  any
	Error *protocol.ErrorData
	// Step is nil for function level results
	Step *protocol.StepInfo
}

// Middleware hooks around the execution phases of one invocation.
// Embed Base to only implement the hooks you need.
type Middleware interface {
	// TransformInput runs once before user code and may replace the context passed to it
	TransformInput(ctx context.Context, input *CallInput) (context.Context, error)
	// BeforeExecution runs once, the first time code that is not memoized is reached
	BeforeExecution(ctx context.Context) error
	// AfterExecution runs once after user code returned, failed or was interrupted
	AfterExecution(ctx context.Context) error
	// TransformOutput runs for every emitted result and may rewrite it
	TransformOutput(ctx context.Context, output *Output) error
	// BeforeResponse runs before each outbound response
	BeforeResponse(ctx context.Context) error
}

// AsyncOnly is implemented by middleware that must never run inline on a
// synchronous handler's serving goroutine.
type AsyncOnly interface {
	AsyncOnly() bool
}

// Factory creates a fresh middleware instance per invocation
type Factory func() Middleware

// Base is a middleware with no-op hooks
type Base struct{}

var _ Middleware = Base{}

func (Base) TransformInput(ctx context.Context, _ *CallInput) (context.Context, error) {
	return ctx, nil
}

func (Base) BeforeExecution(context.Context) error {
	return nil
}

func (Base) AfterExecution(context.Context) error {
	return nil
}

func (Base) TransformOutput(context.Context, *Output) error {
	return nil
}

func (Base) BeforeResponse(context.Context) error {
	return nil
}
