// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"net/http"

	"github.com/xcherryio/durable/common/errs"
	"github.com/xcherryio/durable/common/log"
	"github.com/xcherryio/durable/common/log/tag"
	"github.com/xcherryio/durable/engine"
	"github.com/xcherryio/durable/function"
	"github.com/xcherryio/durable/memo"
	"github.com/xcherryio/durable/middleware"
	"github.com/xcherryio/durable/protocol"
)

func (s serviceImpl) Call(ctx context.Context, request CommRequest) CommResponse {
	if errResp := s.checkServerKind(request); errResp != nil {
		return s.respondError(errResp)
	}
	if errResp := s.validateSignature(request); errResp != nil {
		return s.respondError(errResp)
	}

	fnId := request.Query.Get(protocol.QueryParamFunctionId)
	if fnId == "" {
		return s.respondError(NewErrorWithStatus(http.StatusBadRequest, errs.CodeQueryParamMissing,
			"missing "+protocol.QueryParamFunctionId+" query parameter"))
	}
	fn, err := s.registry.Resolve(fnId)
	if err != nil {
		s.logger.Warn("function not found", tag.FunctionId(fnId))
		return s.respondError(toErrorWithStatus(err))
	}
	logger := s.logger.WithTags(tag.FunctionId(fnId))

	req, err := protocol.DecodeRequest(request.Body)
	if err != nil {
		logger.Warn("invalid request body", tag.Error(err))
		return s.respondError(NewErrorWithStatus(http.StatusBadRequest, errs.CodeBodyInvalid, err.Error()))
	}
	if stepId := request.Query.Get(protocol.QueryParamStepId); stepId != "" {
		req.CallCtx.StepID = stepId
	}
	if req.UseAPI {
		if err := s.fetchFromAPI(ctx, req); err != nil {
			logger.Error("failed to fetch the run payload", tag.RunId(req.CallCtx.RunID), tag.Error(err))
			return s.respondError(toErrorWithStatus(err))
		}
	}
	steps, err := memo.FromRaw(req.Steps)
	if err != nil {
		return s.respondError(NewErrorWithStatus(http.StatusBadRequest, errs.CodeBodyInvalid, err.Error()))
	}

	input := &middleware.CallInput{
		FunctionID: fnId,
		Event:      req.Event,
		Events:     req.Events,
		CallCtx:    req.CallCtx,
		Steps:      steps,
	}
	fnLogger := log.NewGatedLogger(logger.WithTags(tag.RunId(req.CallCtx.RunID)))
	pipeline, err := s.buildPipeline(fn, fnLogger)
	if err != nil {
		logger.Error("failed to build the middleware pipeline", tag.Error(err))
		return s.respondError(toErrorWithStatus(err))
	}

	opts := engine.Options{
		Input:    input,
		Pipeline: pipeline,
		Logger:   logger,
	}
	if s.opts.Client != nil {
		opts.EventSender = s.opts.Client
	}
	var pool *engine.WorkerPool
	if fn.Kind() == function.KindAsync {
		pool = s.opts.WorkerPool
	}

	handler := fn.Handler()
	result := engine.New(opts).Dispatch(ctx, pool, func(ctx context.Context, in *middleware.CallInput) (any, error) {
		return handler(ctx, function.Input{
			Event:   in.Event,
			Events:  in.Events,
			CallCtx: in.CallCtx,
			Logger:  fnLogger,
		})
	})

	if err := pipeline.BeforeResponse(ctx); err != nil {
		logger.Error("before response hook failed", tag.Error(err))
	}
	return s.shapeResult(result)
}

func (s serviceImpl) fetchFromAPI(ctx context.Context, req *protocol.Request) error {
	if err := s.requireClient(); err != nil {
		return err
	}
	events, err := s.opts.Client.FetchBatch(ctx, req.CallCtx.RunID)
	if err != nil {
		return err
	}
	steps, err := s.opts.Client.FetchSteps(ctx, req.CallCtx.RunID)
	if err != nil {
		return err
	}
	req.Events = events
	if len(events) > 0 {
		req.Event = events[0]
	}
	req.Steps = steps
	return nil
}

// buildPipeline puts the log gate first, then the app's middleware, then the function's
func (s serviceImpl) buildPipeline(fn *function.Function, fnLogger *log.GatedLogger) (*middleware.Pipeline, error) {
	mws := []middleware.Middleware{middleware.NewLogGate(fnLogger)}
	for _, factory := range s.opts.Middleware {
		mws = append(mws, factory())
	}
	for _, factory := range fn.Middleware() {
		mws = append(mws, factory())
	}
	return middleware.NewPipeline(fn.Kind() == function.KindSync, mws...)
}

func (s serviceImpl) shapeResult(result engine.CallResult) CommResponse {
	switch result.Kind {
	case engine.ResultMulti:
		headers := s.newHeaders()
		noRetry := false
		for _, step := range result.Steps {
			noRetry = noRetry || !step.IsRetriable()
		}
		setNoRetry(headers, noRetry)
		return s.respond(http.StatusPartialContent, result.Steps, headers)
	case engine.ResultError:
		return s.respondError(&ErrorWithStatus{
			StatusCode: http.StatusInternalServerError,
			Error:      *result.Error,
		})
	default:
		return s.respond(http.StatusOK, result.Output, nil)
	}
}
