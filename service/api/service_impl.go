// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/xcherryio/durable/client"
	"github.com/xcherryio/durable/common/errs"
	"github.com/xcherryio/durable/common/log"
	"github.com/xcherryio/durable/common/log/tag"
	"github.com/xcherryio/durable/config"
	"github.com/xcherryio/durable/engine"
	"github.com/xcherryio/durable/function"
	"github.com/xcherryio/durable/middleware"
	"github.com/xcherryio/durable/protocol"
	"github.com/xcherryio/durable/signing"
)

// FrameworkGin is reported to the orchestrator by the bundled adapter
const FrameworkGin = "gin"

type ServiceOptions struct {
	// Client calls the orchestrator. Without it use_api requests, out-of-band
	// sync and event sending fail.
	Client *client.Client
	// WorkerPool runs async functions. Without it they run inline.
	WorkerPool *engine.WorkerPool
	// Middleware is applied to every function, before the function's own middleware
	Middleware []middleware.Factory
	// Framework is reported in headers and registration. Default is gin
	Framework string
}

type serviceImpl struct {
	cfg      config.AppConfig
	registry *function.Registry
	opts     ServiceOptions
	logger   log.Logger
	now      func() time.Time
}

func NewServiceImpl(
	cfg config.AppConfig, registry *function.Registry, opts ServiceOptions, logger log.Logger,
) Service {
	if opts.Framework == "" {
		opts.Framework = FrameworkGin
	}
	return &serviceImpl{
		cfg:      cfg,
		registry: registry,
		opts:     opts,
		logger:   logger.WithTags(tag.AppId(cfg.ID)),
		now:      time.Now,
	}
}

// validateSignature returns nil when the request may be served. Development
// mode never checks.
func (s serviceImpl) validateSignature(request CommRequest) *ErrorWithStatus {
	if !s.cfg.IsProduction() {
		return nil
	}
	if s.cfg.SigningKey == "" {
		return NewErrorWithStatus(http.StatusInternalServerError, errs.CodeSigningKeyUnspecified,
			"a signing key is required in production mode")
	}
	header := request.Headers.Get(protocol.HeaderSignature)
	if header == "" {
		return NewErrorWithStatus(http.StatusUnauthorized, errs.CodeHeaderMissing,
			"missing "+protocol.HeaderSignature+" header")
	}
	_, err := signing.VerifyWithFallback(
		header, request.Body, s.cfg.SigningKey, s.cfg.SigningKeyFallback, s.cfg.SignatureMaxAge, s.now())
	if err != nil {
		s.logger.Warn("request signature verification failed", tag.Error(err))
		return NewErrorWithStatus(http.StatusUnauthorized, errs.CodeSigVerificationFailed, err.Error())
	}
	return nil
}

// isSigned reports whether the request carries a valid signature for a configured key
func (s serviceImpl) isSigned(request CommRequest) (signed bool, attempted bool) {
	header := request.Headers.Get(protocol.HeaderSignature)
	if header == "" || s.cfg.SigningKey == "" {
		return false, header != ""
	}
	_, err := signing.VerifyWithFallback(
		header, request.Body, s.cfg.SigningKey, s.cfg.SigningKeyFallback, s.cfg.SignatureMaxAge, s.now())
	return err == nil, true
}

// checkServerKind rejects calls from a dev server when running in production
func (s serviceImpl) checkServerKind(request CommRequest) *ErrorWithStatus {
	if s.cfg.IsProduction() && request.Headers.Get(protocol.HeaderServerKind) == protocol.ServerKindDev {
		return NewErrorWithStatus(http.StatusForbidden, errs.CodeServerKindMismatch,
			"the app is in production mode and cannot be called by a dev server")
	}
	return nil
}

func (s serviceImpl) serverKind() string {
	if s.cfg.IsProduction() {
		return protocol.ServerKindCloud
	}
	return protocol.ServerKindDev
}

func (s serviceImpl) newHeaders() http.Header {
	headers := http.Header{}
	headers.Set(protocol.HeaderContentType, "application/json")
	headers.Set(protocol.HeaderSDK, protocol.SDKHeaderValue())
	headers.Set(protocol.HeaderUserAgent, protocol.SDKHeaderValue())
	headers.Set(protocol.HeaderFramework, s.opts.Framework)
	headers.Set(protocol.HeaderReqVersion, protocol.RequestVersion)
	headers.Set(protocol.HeaderExpectedServer, s.serverKind())
	return headers
}

// respond serializes body and signs it when a signing key is configured
func (s serviceImpl) respond(status int, body any, headers http.Header) CommResponse {
	if headers == nil {
		headers = s.newHeaders()
	}
	raw, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("failed to serialize the response", tag.Error(err))
		errResp := NewErrorWithStatus(http.StatusInternalServerError, errs.CodeUnserializableOutput,
			"the response could not be serialized: "+err.Error())
		errResp.Error.IsRetriable = false
		return s.respondError(errResp)
	}
	if s.cfg.SigningKey != "" {
		headers.Set(protocol.HeaderSignature, signing.Sign(s.cfg.SigningKey, raw, s.now()))
	}
	return CommResponse{
		Body:       raw,
		Headers:    headers,
		StatusCode: status,
	}
}

func (s serviceImpl) respondError(errResp *ErrorWithStatus) CommResponse {
	headers := s.newHeaders()
	setNoRetry(headers, !errResp.Error.IsRetriable)
	if at := errResp.Error.RetryAfter; at != nil {
		headers.Set(protocol.HeaderRetryAfter, at.UTC().Format(http.TimeFormat))
	}
	return s.respond(errResp.StatusCode, errResp.Error, headers)
}

func setNoRetry(headers http.Header, noRetry bool) {
	if noRetry {
		headers.Set(protocol.HeaderNoRetry, "true")
	} else {
		headers.Set(protocol.HeaderNoRetry, "false")
	}
}

func (s serviceImpl) requireClient() error {
	if s.opts.Client == nil {
		return errs.NewProtocolError(http.StatusInternalServerError, errs.CodeAPIRequestFailed,
			"no orchestrator client is configured")
	}
	return nil
}
