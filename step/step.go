// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

// Package step is the toolkit a durable function uses to declare its steps.
//
// Every call is a step boundary: a memoized step returns its prior result, a
// step the orchestrator has not seen yet ends the current invocation pass and is
// reported back. Calls unwind the function with a panic when they end a pass,
// so step calls must not be wrapped in a recover that swallows the panic.
// Within a Parallel branch, use the context passed to the branch.
package step

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/xcherryio/durable/common/errs"
	"github.com/xcherryio/durable/engine"
	"github.com/xcherryio/durable/memo"
	"github.com/xcherryio/durable/protocol"
)

// ErrNotInFunction is returned by step calls made outside a function invocation
var ErrNotInFunction = errors.New("step called outside of a function invocation")

func fromContext(ctx context.Context) (*engine.Engine, error) {
	e, ok := engine.FromContext(ctx)
	if !ok {
		return nil, ErrNotInFunction
	}
	return e, nil
}

// Run executes fn as a retriable step and memoizes its output. On replay the
// memoized output is decoded into T, a memoized failure returns *errs.StepError.
func Run[T any](ctx context.Context, id string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	e, err := fromContext(ctx)
	if err != nil {
		return zero, err
	}

	info := protocol.StepInfo{
		ID:          e.NewStep(id),
		Name:        id,
		DisplayName: id,
		Op:          protocol.OpStepRun,
	}
	m, decision := e.Report(ctx, info)
	switch decision {
	case engine.DecisionDrain:
		return zero, errs.ErrInvocationFinished
	case engine.DecisionResolve:
		return resolve[T](id, m)
	}

	out, err := execute(ctx, fn)
	e.Complete(info, out, err)
	return zero, nil
}

func execute[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			if engine.IsInterrupt(r) {
				panic(r)
			}
			err = &errs.PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return fn(ctx)
}

func resolve[T any](id string, m memo.Memo) (T, error) {
	var out T
	switch m.Kind {
	case memo.KindError:
		return out, errs.StepErrorFromData(*m.Error)
	case memo.KindNull:
		return out, nil
	}
	if err := m.Decode(&out); err != nil {
		return out, fmt.Errorf("failed to decode memoized output of step %q: %w", id, err)
	}
	return out, nil
}
