// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/xcherryio/durable/common/errs"
	"github.com/xcherryio/durable/common/log"
	"github.com/xcherryio/durable/common/log/tag"
	"github.com/xcherryio/durable/memo"
	"github.com/xcherryio/durable/middleware"
	"github.com/xcherryio/durable/protocol"
)

// Decision is what a step call must do after reporting to the engine.
// Skipping and planning never return to the caller.
type Decision int

const (
	// DecisionResolve returns the memoized result
	DecisionResolve Decision = iota
	// DecisionExecute runs the step body, or emits the op for steps without a body
	DecisionExecute
	// DecisionDrain returns errs.ErrInvocationFinished
	DecisionDrain
)

// EventSender sends events on behalf of a running function
type EventSender interface {
	Send(ctx context.Context, events ...protocol.Event) ([]string, error)
}

// Handler is the user code of one invocation
type Handler func(ctx context.Context, input *middleware.CallInput) (any, error)

type ResultKind int

const (
	ResultOutput ResultKind = iota
	ResultError
	ResultMulti
)

// CallResult is the outcome of one invocation pass.
type CallResult struct {
	Kind   ResultKind
	Output any
	Error  *protocol.ErrorData
	Steps  []protocol.StepResponse
}

type Options struct {
	Input       *middleware.CallInput
	Pipeline    *middleware.Pipeline
	Logger      log.Logger
	EventSender EventSender
}

// Engine drives one invocation of one function. It is never reused.
type Engine struct {
	input    *middleware.CallInput
	pipeline *middleware.Pipeline
	logger   log.Logger
	sender   EventSender
	counter  *stepCounter

	mu             sync.Mutex
	finished       bool
	parallelStaged bool
}

func New(opts Options) *Engine {
	pipeline := opts.Pipeline
	if pipeline == nil {
		pipeline, _ = middleware.NewPipeline(false)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if opts.Input.Steps == nil {
		opts.Input.Steps = memo.NewStore()
	}
	return &Engine{
		input:    opts.Input,
		pipeline: pipeline,
		logger:   logger,
		sender:   opts.EventSender,
		counter:  newStepCounter(),
	}
}

type engineKey struct{}

// FromContext returns the engine running the current invocation
func FromContext(ctx context.Context) (*Engine, bool) {
	e, ok := ctx.Value(engineKey{}).(*Engine)
	return e, ok
}

func (e *Engine) Logger() log.Logger {
	return e.logger
}

func (e *Engine) EventSender() EventSender {
	return e.sender
}

func (e *Engine) Input() *middleware.CallInput {
	return e.input
}

// NewStep returns the hashed id of the next occurrence of a step id
func (e *Engine) NewStep(id string) string {
	return HashStepID(id, e.counter.increment(id))
}

// Dispatch runs the invocation inline, or on the pool when one is given.
func (e *Engine) Dispatch(ctx context.Context, pool *WorkerPool, handler Handler) CallResult {
	if pool == nil {
		return e.Run(ctx, handler)
	}
	results := make(chan CallResult, 1)
	err := pool.Submit(ctx, func(ctx context.Context) {
		results <- e.Run(ctx, handler)
	})
	if err != nil {
		return e.errorResult(err)
	}
	select {
	case result := <-results:
		return result
	case <-ctx.Done():
		return e.errorResult(ctx.Err())
	}
}

// Run executes the handler once and shapes what it produced.
func (e *Engine) Run(ctx context.Context, handler Handler) CallResult {
	defer e.finish()

	ctx = context.WithValue(ctx, engineKey{}, e)
	ctx, err := e.pipeline.TransformInput(ctx, e.input)
	if err != nil {
		e.logger.Error("failed to transform input", tag.Error(err))
		return e.errorResult(err)
	}
	e.logger = e.logger.WithTags(tag.RunId(e.input.CallCtx.RunID), tag.Attempt(e.input.CallCtx.Attempt))

	var out outcome
	if e.input.Steps.Size() == 0 {
		if err := e.pipeline.BeforeExecution(ctx); err != nil {
			out.err = err
		}
	}
	if out.err == nil {
		out = e.invoke(ctx, handler)
	}
	if err := e.pipeline.AfterExecution(ctx); err != nil && out.err == nil && out.responses == nil {
		out.err = err
	}

	var result CallResult
	switch {
	case out.responses != nil:
		e.logger.Debug("invocation paused on steps", tag.Count(len(out.responses)))
		result = CallResult{Kind: ResultMulti, Steps: out.responses}
	case out.err != nil:
		e.logger.Info("function returned an error", tag.Error(out.err))
		result = e.errorResult(out.err)
	default:
		result = CallResult{Kind: ResultOutput, Output: out.output}
	}
	return e.transformOutput(ctx, result)
}

type outcome struct {
	output    any
	err       error
	responses []protocol.StepResponse
}

func (e *Engine) invoke(ctx context.Context, handler Handler) (out outcome) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch v := r.(type) {
		case *responseInterrupt:
			out = outcome{responses: v.responses}
		case *skipInterrupt:
			e.logger.Error("unexpected step found while targeting another step",
				tag.StepId(v.step.DisplayName), tag.HashedStepId(v.step.ID))
			out = outcome{err: &errs.StepUnexpectedError{StepName: v.step.DisplayName}}
		case *hookInterrupt:
			out = outcome{err: v.err}
		case *branchPanic:
			out = outcome{err: &errs.PanicError{Value: v.value, Stack: v.stack}}
		default:
			out = outcome{err: &errs.PanicError{Value: r, Stack: string(debug.Stack())}}
		}
	}()
	output, err := handler(ctx, e.input)
	return outcome{output: output, err: err}
}

func (e *Engine) transformOutput(ctx context.Context, result CallResult) CallResult {
	if result.Kind == ResultMulti {
		for i := range result.Steps {
			s := &result.Steps[i]
			o := &middleware.Output{Data: s.Data, Error: s.Error, Step: &s.StepInfo}
			if err := e.pipeline.TransformOutput(ctx, o); err != nil {
				e.logger.Error("failed to transform step output", tag.Error(err), tag.HashedStepId(s.ID))
				return e.errorResult(err)
			}
			s.Data, s.Error = o.Data, o.Error
		}
		return result
	}

	o := &middleware.Output{Data: result.Output, Error: result.Error}
	if err := e.pipeline.TransformOutput(ctx, o); err != nil {
		e.logger.Error("failed to transform output", tag.Error(err))
		return e.errorResult(err)
	}
	if o.Error != nil {
		return CallResult{Kind: ResultError, Error: o.Error}
	}
	return CallResult{Kind: ResultOutput, Output: o.Data}
}

func (e *Engine) errorResult(err error) CallResult {
	data := e.errorData(err)
	return CallResult{Kind: ResultError, Error: &data}
}

func (e *Engine) errorData(err error) protocol.ErrorData {
	data := errs.ToErrorData(err)
	data.IsRetriable = data.IsRetriable && !e.attemptsExhausted()
	return data
}

func (e *Engine) attemptsExhausted() bool {
	callCtx := e.input.CallCtx
	return callCtx.MaxAttempts != nil && callCtx.Attempt+1 >= *callCtx.MaxAttempts
}

// target returns the hashed id of the step the orchestrator asked to run, if any
func (e *Engine) target() string {
	id := e.input.CallCtx.StepID
	if id == protocol.StepIdSentinel {
		return ""
	}
	return id
}

func (e *Engine) finish() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finished = true
}

func (e *Engine) isFinished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finished
}

func (e *Engine) markParallelStaged() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.parallelStaged = true
}

func (e *Engine) isParallelStaged() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.parallelStaged
}

// Report is the step boundary. It returns the memo to resolve with, or asks the
// caller to execute the step. Skipped and planned steps unwind and never return.
// Inside a parallel group the report waits for the coordinator to release it.
func (e *Engine) Report(ctx context.Context, info protocol.StepInfo) (memo.Memo, Decision) {
	if e.isFinished() {
		e.logger.Warn("step reported after the invocation finished", tag.StepId(info.DisplayName))
		return memo.Memo{}, DecisionDrain
	}
	if ref, ok := branchFromContext(ctx); ok && ref.group.engine == e {
		if !ref.group.park(ref.index, e.newReport(ref.index, info)) {
			return memo.Memo{}, DecisionDrain
		}
		return e.decide(ctx, info, true)
	}
	return e.decide(ctx, info, false)
}

func (e *Engine) decide(ctx context.Context, info protocol.StepInfo, inGroup bool) (memo.Memo, Decision) {
	logger := e.logger.WithTags(tag.StepId(info.DisplayName), tag.HashedStepId(info.ID), tag.Opcode(string(info.Op)))

	if m, ok := e.input.Steps.Pop(info.ID); ok {
		logger.Debug("step resolved from memo")
		if e.input.Steps.Size() == 0 {
			e.beforeExecution(ctx)
		}
		return m, DecisionResolve
	}

	target := e.target()
	if target != "" && info.ID != target {
		logger.Debug("skipping step that is not targeted")
		panic(&skipInterrupt{step: info})
	}

	e.beforeExecution(ctx)
	if target == "" && info.Op == protocol.OpStepRun &&
		(inGroup || (e.input.CallCtx.DisableImmediateExecution && e.isParallelStaged())) {
		logger.Debug("planning step")
		info.Op = protocol.OpPlanned
		panic(&responseInterrupt{responses: []protocol.StepResponse{{StepInfo: info}}})
	}
	return memo.Memo{}, DecisionExecute
}

func (e *Engine) beforeExecution(ctx context.Context) {
	if err := e.pipeline.BeforeExecution(ctx); err != nil {
		panic(&hookInterrupt{err: err})
	}
}

// Complete ends the pass with the outcome of an executed StepRun body
func (e *Engine) Complete(info protocol.StepInfo, data any, err error) {
	resp := protocol.StepResponse{StepInfo: info, Data: data}
	if err != nil {
		errData := e.errorData(err)
		id := info.ID
		errData.StepID = &id
		resp.Op = protocol.OpStepError
		resp.Data = nil
		resp.Error = &errData
		e.logger.Info("step errored", tag.StepId(info.DisplayName), tag.Error(err))
	}
	panic(&responseInterrupt{responses: []protocol.StepResponse{resp}})
}

// Emit ends the pass by reporting a step the orchestrator performs itself
func (e *Engine) Emit(info protocol.StepInfo) {
	panic(&responseInterrupt{responses: []protocol.StepResponse{{StepInfo: info}}})
}
