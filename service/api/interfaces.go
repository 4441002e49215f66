// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"net/http"
	"net/url"
)

type Server interface {
	// Start will start running on the background
	Start() error
	Stop(ctx context.Context) error
}

// Service is the protocol layer, decoupled from REST server framework like Gin
// So that users can choose to use other REST frameworks or transports to serve requests
type Service interface {
	// Call runs one invocation of a function (POST)
	Call(ctx context.Context, request CommRequest) CommResponse
	// Inspect describes the app (GET)
	Inspect(ctx context.Context, request CommRequest) CommResponse
	// Sync registers the functions with the orchestrator (PUT)
	Sync(ctx context.Context, request CommRequest) CommResponse
}

// CommRequest is what an adapter extracts from the incoming request
type CommRequest struct {
	Body    []byte
	Headers http.Header
	Query   url.Values
	// Raw is the adapter's own request object, e.g. *gin.Context
	Raw any
}

// CommResponse is what an adapter writes back
type CommResponse struct {
	Body       []byte
	Headers    http.Header
	StatusCode int
}
