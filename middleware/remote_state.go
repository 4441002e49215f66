// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"fmt"

	"github.com/xcherryio/durable/persistence"
	"github.com/xcherryio/durable/protocol"
)

type remoteState struct {
	Base
	driver persistence.StateDriver
	runId  string
}

// NewRemoteState offloads step outputs to driver and memoizes placeholders
// instead. The run's state is deleted once the function returns an output or a
// non-retriable error. It blocks on storage I/O, so it is only allowed on async functions.
func NewRemoteState(driver persistence.StateDriver) Factory {
	return func() Middleware {
		return &remoteState{driver: driver}
	}
}

func (r *remoteState) AsyncOnly() bool {
	return true
}

func (r *remoteState) TransformInput(ctx context.Context, input *CallInput) (context.Context, error) {
	r.runId = input.CallCtx.RunID
	if input.Steps == nil {
		return ctx, nil
	}
	if err := r.driver.LoadSteps(ctx, input.Steps); err != nil {
		return ctx, fmt.Errorf("failed to load remote step state: %w", err)
	}
	return ctx, nil
}

func (r *remoteState) TransformOutput(ctx context.Context, output *Output) error {
	if output.Step == nil {
		if output.Error != nil && output.Error.IsRetriable {
			return nil
		}
		// the run has its final result, nothing will load its state again
		if err := r.driver.DeleteRunSteps(ctx, r.runId); err != nil {
			return fmt.Errorf("failed to delete remote step state: %w", err)
		}
		return nil
	}
	if output.Step.Op != protocol.OpStepRun || output.Error != nil || output.Data == nil {
		return nil
	}
	placeholder, err := r.driver.SaveStep(ctx, r.runId, output.Data)
	if err != nil {
		return fmt.Errorf("failed to save remote step state: %w", err)
	}
	output.Data = placeholder
	return nil
}
