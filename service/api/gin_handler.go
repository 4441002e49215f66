// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xcherryio/durable/common/errs"
	"github.com/xcherryio/durable/common/log"
	"github.com/xcherryio/durable/common/log/tag"
	"github.com/xcherryio/durable/config"
)

type ginHandler struct {
	logger       log.Logger
	svc          Service
	maxBodyBytes int64
}

func newGinHandler(svc Service, maxBodyBytes int64, logger log.Logger) *ginHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = config.DefaultMaxRequestBodyBytes
	}
	return &ginHandler{
		logger:       logger,
		svc:          svc,
		maxBodyBytes: maxBodyBytes,
	}
}

func (h *ginHandler) Call(c *gin.Context) {
	h.serve(c, h.svc.Call)
}

func (h *ginHandler) Inspect(c *gin.Context) {
	h.serve(c, h.svc.Inspect)
}

func (h *ginHandler) Sync(c *gin.Context) {
	h.serve(c, h.svc.Sync)
}

func (h *ginHandler) serve(c *gin.Context, fn func(ctx context.Context, request CommRequest) CommResponse) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		h.logger.Warn("failed to read the request body", tag.Error(err))
		errResp := NewErrorWithStatus(http.StatusBadRequest, errs.CodeBodyInvalid, "failed to read the request body")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errResp = NewErrorWithStatus(http.StatusRequestEntityTooLarge, errs.CodeBodyInvalid,
				"request body is larger than the configured limit")
		}
		h.write(c, errResp.Response())
		return
	}

	h.write(c, fn(c.Request.Context(), CommRequest{
		Body:    body,
		Headers: c.Request.Header,
		Query:   c.Request.URL.Query(),
		Raw:     c,
	}))
}

func (h *ginHandler) write(c *gin.Context, resp CommResponse) {
	for key, values := range resp.Headers {
		for _, v := range values {
			c.Writer.Header().Add(key, v)
		}
	}
	c.Data(resp.StatusCode, resp.Headers.Get("Content-Type"), resp.Body)
}

// RegisterGinRoutes serves the protocol on cfg.ServePath of an existing gin engine
func RegisterGinRoutes(router gin.IRoutes, cfg config.AppConfig, svc Service, logger log.Logger) {
	handler := newGinHandler(svc, cfg.MaxRequestBodyBytes, logger)

	router.POST(cfg.ServePath, handler.Call)
	router.GET(cfg.ServePath, handler.Inspect)
	router.PUT(cfg.ServePath, handler.Sync)
}
