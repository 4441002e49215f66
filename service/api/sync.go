// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/xcherryio/durable/common/errs"
	"github.com/xcherryio/durable/common/log/tag"
	"github.com/xcherryio/durable/common/ptr"
	"github.com/xcherryio/durable/common/urlautofix"
	"github.com/xcherryio/durable/protocol"
)

// Sync registers the functions. The orchestrator may ask for the in-band flow,
// where the app config is returned in the signed response instead of being posted.
func (s serviceImpl) Sync(ctx context.Context, request CommRequest) CommResponse {
	if errResp := s.checkServerKind(request); errResp != nil {
		return s.respondError(errResp)
	}

	if request.Headers.Get(protocol.HeaderSyncKind) == protocol.SyncKindInBand && !s.cfg.DisableInBandSync {
		signed, _ := s.isSigned(request)
		if signed || !s.cfg.IsProduction() {
			return s.syncInBand(request)
		}
		s.logger.Warn("in-band sync requested without a valid signature, falling back to out-of-band sync")
	}
	return s.syncOutOfBand(ctx, request)
}

func (s serviceImpl) syncInBand(request CommRequest) CommResponse {
	var syncReq protocol.InBandSyncRequest
	if len(request.Body) > 0 {
		if err := json.Unmarshal(request.Body, &syncReq); err != nil {
			return s.respondError(NewErrorWithStatus(http.StatusBadRequest, errs.CodeBodyInvalid, err.Error()))
		}
	}
	serveURL := syncReq.URL
	if serveURL == "" {
		serveURL = urlautofix.FixServeUrl(s.cfg.ServeURL())
	}

	inspection := s.authenticatedInspection(protocol.UnauthenticatedInspection{
		SchemaVersion:           protocol.InspectionSchemaVersion,
		AuthenticationSucceeded: ptr.Any(true),
		FunctionCount:           s.registry.Len(),
		HasEventKey:             s.cfg.EventKey != "",
		HasSigningKey:           s.cfg.SigningKey != "",
		HasSigningKeyFallback:   s.cfg.SigningKeyFallback != "",
		Mode:                    s.serverKind(),
	})
	resp := protocol.InBandSyncResponse{
		AppID:       s.cfg.ID,
		Env:         optional(s.cfg.Env),
		Framework:   s.opts.Framework,
		Functions:   s.registry.Configs(serveURL),
		Inspection:  inspection,
		SDKAuthor:   protocol.SDKAuthor,
		SDKLanguage: protocol.SDKLanguage,
		SDKVersion:  protocol.SDKVersion,
		URL:         serveURL,
	}
	s.logger.Info("in-band sync", tag.Count(len(resp.Functions)), tag.URL(serveURL))

	headers := s.newHeaders()
	headers.Set(protocol.HeaderSyncKind, protocol.SyncKindInBand)
	return s.respond(http.StatusOK, resp, headers)
}

func (s serviceImpl) syncOutOfBand(ctx context.Context, request CommRequest) CommResponse {
	if err := s.requireClient(); err != nil {
		return s.respondError(toErrorWithStatus(err))
	}
	registerReq := s.registerRequest()
	resp, err := s.opts.Client.Register(ctx, registerReq, request.Query.Get(protocol.QueryParamDeployId))
	if err != nil {
		s.logger.Error("failed to register functions", tag.Error(err))
		return s.respondError(toErrorWithStatus(err))
	}

	headers := s.newHeaders()
	headers.Set(protocol.HeaderSyncKind, protocol.SyncKindOutOfBand)
	return s.respond(http.StatusOK, protocol.RegisterResponse{
		Message:  "Successfully registered",
		Modified: resp.Modified,
	}, headers)
}

// registerRequest is the out-of-band registration payload
func (s serviceImpl) registerRequest() protocol.RegisterRequest {
	serveURL := urlautofix.FixServeUrl(s.cfg.ServeURL())
	return protocol.RegisterRequest{
		AppName:    s.cfg.ID,
		DeployType: protocol.DeployTypePing,
		Framework:  s.opts.Framework,
		Functions:  s.registry.Configs(serveURL),
		SDK:        protocol.SDKHeaderValue(),
		URL:        serveURL,
		V:          protocol.RegistrationVersion,
	}
}
