// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/xcherryio/durable/memo"
	"github.com/xcherryio/durable/protocol"
)

func TestTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	mw := NewTracing(provider.Tracer("test"))()
	p, err := NewPipeline(true, mw)
	require.NoError(t, err)

	ctx, err := p.TransformInput(context.Background(), &CallInput{
		FunctionID: "billing-charge",
		CallCtx:    protocol.CallCtx{RunID: "run-1", Attempt: 1},
		Steps:      memo.NewStore(),
	})
	require.NoError(t, err)
	assert.True(t, trace.SpanFromContext(ctx).SpanContext().IsValid())

	require.NoError(t, p.BeforeExecution(ctx))
	require.NoError(t, p.AfterExecution(ctx))
	require.NoError(t, p.TransformOutput(ctx, &Output{Step: &protocol.StepInfo{ID: "abc", DisplayName: "a", Op: protocol.OpPlanned}}))
	require.NoError(t, p.TransformOutput(ctx, &Output{Error: &protocol.ErrorData{Message: "failed"}}))
	require.NoError(t, p.BeforeResponse(ctx))
	require.NoError(t, p.BeforeResponse(ctx))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "durable.invoke", span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)

	var events []string
	for _, e := range span.Events() {
		events = append(events, e.Name)
	}
	assert.Equal(t, []string{"execution.started", "execution.finished", "step"}, events)
}
