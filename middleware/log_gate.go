// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"

	"github.com/xcherryio/durable/common/log"
)

// LogGate silences the function logger while memoized steps are replayed, so
// that every log line is written once per run.
type LogGate struct {
	Base
	logger *log.GatedLogger
}

func NewLogGate(logger *log.GatedLogger) *LogGate {
	return &LogGate{logger: logger}
}

func (l *LogGate) TransformInput(ctx context.Context, input *CallInput) (context.Context, error) {
	if input.Steps != nil && input.Steps.Size() > 0 {
		l.logger.Disable()
	} else {
		l.logger.Enable()
	}
	return ctx, nil
}

func (l *LogGate) BeforeExecution(context.Context) error {
	l.logger.Enable()
	return nil
}
