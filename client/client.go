// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/xcherryio/durable/common/errs"
	"github.com/xcherryio/durable/common/httperror"
	"github.com/xcherryio/durable/common/log"
	"github.com/xcherryio/durable/common/log/tag"
	"github.com/xcherryio/durable/common/uuid"
	"github.com/xcherryio/durable/config"
	"github.com/xcherryio/durable/protocol"
	"github.com/xcherryio/durable/signing"
)

// devEventKey is accepted by the dev server in place of a real event key
const devEventKey = "NO_EVENT_KEY_SET"

// Client calls the orchestrator: registration, large payload fetches and event sends.
type Client struct {
	http   *resty.Client
	cfg    config.AppConfig
	logger log.Logger
	now    func() time.Time
}

func New(cfg config.AppConfig, logger log.Logger) *Client {
	httpClient := withRetries(resty.New(), cfg.Retry).
		SetTimeout(cfg.RequestTimeout).
		SetHeader(protocol.HeaderSDK, protocol.SDKHeaderValue()).
		SetHeader(protocol.HeaderUserAgent, protocol.SDKHeaderValue()).
		SetHeader(protocol.HeaderContentType, "application/json")
	if cfg.Env != "" {
		httpClient.SetHeader(protocol.HeaderEnv, cfg.Env)
	}
	return &Client{
		http:   httpClient,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// bearerKeys are the hashed signing keys to try in order
func (c *Client) bearerKeys() ([]string, error) {
	var keys []string
	for _, key := range []string{c.cfg.SigningKey, c.cfg.SigningKeyFallback} {
		if key == "" {
			continue
		}
		hashed, err := signing.HashedKey(key)
		if err != nil {
			return nil, err
		}
		keys = append(keys, hashed)
	}
	if len(keys) == 0 {
		if c.cfg.IsProduction() {
			return nil, errs.NewProtocolError(http.StatusInternalServerError, errs.CodeSigningKeyUnspecified,
				"a signing key is required to call the orchestrator API")
		}
		keys = []string{""}
	}
	return keys, nil
}

// call retries with the fallback key when the primary key is rejected
func (c *Client) call(
	ctx context.Context, method, url string, query map[string]string, body any, result any,
) error {
	keys, err := c.bearerKeys()
	if err != nil {
		return err
	}
	logger := c.logger.WithTags(tag.URL(url))
	for i, key := range keys {
		req := c.http.R().
			SetContext(ctx).
			SetQueryParams(query).
			SetResult(result)
		if body != nil {
			req.SetBody(body)
		}
		if key != "" {
			req.SetAuthToken(key)
		}
		resp, err := req.Execute(method, url)
		if !httperror.CheckHttpResponseAndError(err, resp, logger) {
			return nil
		}
		if err == nil && resp.StatusCode() == http.StatusUnauthorized && i < len(keys)-1 {
			logger.Warn("orchestrator rejected the signing key, retrying with the fallback key")
			continue
		}
		if err != nil {
			return errs.NewProtocolError(http.StatusInternalServerError, errs.CodeAPIRequestFailed,
				"request to %v failed: %v", url, err)
		}
		return errs.NewProtocolError(http.StatusInternalServerError, errs.CodeAPIRequestFailed,
			"request to %v failed with status %d: %s", url, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}

func (c *Client) apiURL(path string) string {
	return strings.TrimSuffix(c.cfg.APIBaseURL, "/") + path
}

// FetchBatch returns the events of a run whose request was too large to be sent inline
func (c *Client) FetchBatch(ctx context.Context, runId string) ([]protocol.Event, error) {
	var events []protocol.Event
	if err := c.call(ctx, http.MethodGet, c.apiURL("/v0/runs/"+runId+"/batch"), nil, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// FetchSteps returns the memoized steps of a run whose request was too large to be sent inline
func (c *Client) FetchSteps(ctx context.Context, runId string) (map[string]json.RawMessage, error) {
	steps := map[string]json.RawMessage{}
	if err := c.call(ctx, http.MethodGet, c.apiURL("/v0/runs/"+runId+"/actions"), nil, nil, &steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// Register syncs the app's functions out of band
func (c *Client) Register(
	ctx context.Context, req protocol.RegisterRequest, deployId string,
) (*protocol.RegisterResponse, error) {
	query := map[string]string{}
	if deployId != "" {
		query[protocol.QueryParamDeployId] = deployId
	}
	resp := &protocol.RegisterResponse{}
	if err := c.call(ctx, http.MethodPost, c.apiURL("/fn/register"), query, req, resp); err != nil {
		return nil, err
	}
	c.logger.Info("functions registered", tag.Count(len(req.Functions)), tag.Value(resp.Modified))
	return resp, nil
}

// Send sends events to the event API and returns their ids
func (c *Client) Send(ctx context.Context, events ...protocol.Event) ([]string, error) {
	if len(events) == 0 {
		return nil, nil
	}
	key := c.cfg.EventKey
	if key == "" {
		if c.cfg.IsProduction() {
			return nil, fmt.Errorf("an event key is required to send events")
		}
		key = devEventKey
	}
	// defaults are filled on a copy, the caller's events are left as they are
	events = append([]protocol.Event(nil), events...)
	now := c.now().UnixMilli()
	for i := range events {
		if err := events[i].Validate(); err != nil {
			return nil, err
		}
		if events[i].ID == "" {
			events[i].ID = uuid.MustNewUUID()
		}
		if events[i].Timestamp == 0 {
			events[i].Timestamp = now
		}
		if events[i].Data == nil {
			events[i].Data = map[string]any{}
		}
	}

	url := strings.TrimSuffix(c.cfg.EventBaseURL, "/") + "/e/" + key
	result := &protocol.SendEventResponse{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(events).
		SetResult(result).
		Post(url)
	if httperror.CheckHttpResponseAndError(err, resp, c.logger) {
		if err != nil {
			return nil, fmt.Errorf("failed to send events: %w", err)
		}
		return nil, fmt.Errorf("failed to send events, status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	if result.Error != "" {
		return nil, fmt.Errorf("failed to send events: %v", result.Error)
	}
	return result.IDs, nil
}
