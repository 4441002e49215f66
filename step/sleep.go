// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package step

import (
	"context"
	"time"

	"github.com/xcherryio/durable/common/errs"
	"github.com/xcherryio/durable/engine"
	"github.com/xcherryio/durable/protocol"
)

// Sleep pauses the function for d. The orchestrator resumes it afterwards.
func Sleep(ctx context.Context, id string, d time.Duration) error {
	return sleep(ctx, id, d.String(), map[string]any{"duration": d.String()})
}

// SleepUntil pauses the function until t.
func SleepUntil(ctx context.Context, id string, t time.Time) error {
	until := t.UTC().Format(time.RFC3339)
	return sleep(ctx, id, until, map[string]any{"until": until})
}

func sleep(ctx context.Context, id, name string, opts map[string]any) error {
	e, err := fromContext(ctx)
	if err != nil {
		return err
	}
	info := protocol.StepInfo{
		ID:          e.NewStep(id),
		Name:        name,
		DisplayName: id,
		Op:          protocol.OpSleep,
		Opts:        opts,
	}
	_, decision := e.Report(ctx, info)
	switch decision {
	case engine.DecisionDrain:
		return errs.ErrInvocationFinished
	case engine.DecisionResolve:
		return nil
	}
	e.Emit(info)
	return nil
}
