// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xcherryio/durable"

type tracing struct {
	Base
	tracer trace.Tracer

	mu   sync.Mutex
	span trace.Span
}

// NewTracing records one span per invocation with an event per execution phase
// and per emitted step. A nil tracer uses the global provider.
func NewTracing(tracer trace.Tracer) Factory {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return func() Middleware {
		return &tracing{tracer: tracer}
	}
}

func (t *tracing) TransformInput(ctx context.Context, input *CallInput) (context.Context, error) {
	memos := 0
	if input.Steps != nil {
		memos = input.Steps.Size()
	}
	ctx, span := t.tracer.Start(ctx, "durable.invoke",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("durable.function_id", input.FunctionID),
			attribute.String("durable.run_id", input.CallCtx.RunID),
			attribute.Int("durable.attempt", input.CallCtx.Attempt),
			attribute.Int("durable.memo_count", memos),
		))
	t.mu.Lock()
	t.span = span
	t.mu.Unlock()
	return ctx, nil
}

func (t *tracing) current() trace.Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.span
}

func (t *tracing) BeforeExecution(context.Context) error {
	if span := t.current(); span != nil {
		span.AddEvent("execution.started")
	}
	return nil
}

func (t *tracing) AfterExecution(context.Context) error {
	if span := t.current(); span != nil {
		span.AddEvent("execution.finished")
	}
	return nil
}

func (t *tracing) TransformOutput(_ context.Context, output *Output) error {
	span := t.current()
	if span == nil {
		return nil
	}
	if output.Step != nil {
		span.AddEvent("step", trace.WithAttributes(
			attribute.String("durable.step.id", output.Step.ID),
			attribute.String("durable.step.name", output.Step.DisplayName),
			attribute.String("durable.step.op", string(output.Step.Op)),
		))
	}
	if output.Error != nil && output.Step == nil {
		span.SetStatus(codes.Error, output.Error.Message)
	}
	return nil
}

func (t *tracing) BeforeResponse(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.span != nil {
		t.span.End()
		t.span = nil
	}
	return nil
}
