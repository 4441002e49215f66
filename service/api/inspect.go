// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/xcherryio/durable/common/log/tag"
	"github.com/xcherryio/durable/common/ptr"
	"github.com/xcherryio/durable/protocol"
	"github.com/xcherryio/durable/signing"
)

// Inspect returns the reduced body unless the request is signed with one of the app's keys
func (s serviceImpl) Inspect(ctx context.Context, request CommRequest) CommResponse {
	signed, attempted := s.isSigned(request)

	base := protocol.UnauthenticatedInspection{
		SchemaVersion:         protocol.InspectionSchemaVersion,
		FunctionCount:         s.registry.Len(),
		HasEventKey:           s.cfg.EventKey != "",
		HasSigningKey:         s.cfg.SigningKey != "",
		HasSigningKeyFallback: s.cfg.SigningKeyFallback != "",
		Mode:                  s.serverKind(),
	}
	if !signed {
		if attempted {
			base.AuthenticationSucceeded = ptr.Any(false)
		}
		return s.respond(http.StatusOK, base, nil)
	}

	base.AuthenticationSucceeded = ptr.Any(true)
	return s.respond(http.StatusOK, s.authenticatedInspection(base), nil)
}

func (s serviceImpl) authenticatedInspection(base protocol.UnauthenticatedInspection) protocol.AuthenticatedInspection {
	inspection := protocol.AuthenticatedInspection{
		UnauthenticatedInspection: base,
		APIOrigin:                 s.cfg.APIBaseURL,
		AppID:                     s.cfg.ID,
		EventAPIOrigin:            s.cfg.EventBaseURL,
		Framework:                 s.opts.Framework,
		SDKLanguage:               protocol.SDKLanguage,
		SDKVersion:                protocol.SDKVersion,
		ServeOrigin:               optional(s.cfg.ServeOrigin),
		ServePath:                 optional(s.cfg.ServePath),
		Env:                       optional(s.cfg.Env),
		SigningKeyHash:            s.hashSigningKey(s.cfg.SigningKey),
		SigningKeyFallbackHash:    s.hashSigningKey(s.cfg.SigningKeyFallback),
	}
	if s.cfg.EventKey != "" {
		sum := sha256.Sum256([]byte(s.cfg.EventKey))
		inspection.EventKeyHash = ptr.Any(hex.EncodeToString(sum[:]))
	}
	return inspection
}

func (s serviceImpl) hashSigningKey(key string) *string {
	if key == "" {
		return nil
	}
	hashed, err := signing.HashedKey(key)
	if err != nil {
		s.logger.Warn("failed to hash the signing key", tag.Error(err))
		return nil
	}
	return &hashed
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
