// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xcherryio/durable/common/log"
	"github.com/xcherryio/durable/config"
	"github.com/xcherryio/durable/engine"
	"github.com/xcherryio/durable/function"
	"github.com/xcherryio/durable/protocol"
	"github.com/xcherryio/durable/service/api"
)

func callDemo(t *testing.T, fnId string, event map[string]any, steps map[string]any) api.CommResponse {
	registry, err := function.NewRegistry("demo", DemoFunctions(nil)...)
	require.NoError(t, err)
	svc := api.NewServiceImpl(config.AppConfig{
		ID:          "demo",
		Mode:        config.ModeDevelopment,
		ServeOrigin: "http://localhost:8080",
		ServePath:   "/api/inngest",
	}, registry, api.ServiceOptions{}, log.NewNopLogger())

	body, err := json.Marshal(map[string]any{
		"event": event,
		"steps": steps,
		"ctx":   map[string]any{"run_id": "run-1", "stack": map[string]any{"stack": []string{}}},
	})
	require.NoError(t, err)
	return svc.Call(context.Background(), api.CommRequest{
		Body:    body,
		Headers: http.Header{},
		Query:   url.Values{protocol.QueryParamFunctionId: {fnId}},
	})
}

func TestOnboardingRunsFirstStep(t *testing.T) {
	event := map[string]any{"name": "user/signed.up", "data": map[string]any{"user_id": "u1", "email": "ada@example.com"}}

	resp := callDemo(t, "demo-user-onboarding", event, nil)
	require.Equal(t, http.StatusPartialContent, resp.StatusCode, string(resp.Body))
	var steps []map[string]any
	require.NoError(t, json.Unmarshal(resp.Body, &steps))
	require.Len(t, steps, 1)
	assert.Equal(t, engine.HashStepID("compose-greeting", 1), steps[0]["id"])
	assert.Equal(t, "Welcome, ada", steps[0]["data"])
}

func TestOnboardingTimesOutWithoutActivation(t *testing.T) {
	event := map[string]any{"name": "user/signed.up", "data": map[string]any{"user_id": "u1", "email": "ada@example.com"}}

	resp := callDemo(t, "demo-user-onboarding", event, map[string]any{
		engine.HashStepID("compose-greeting", 1):    map[string]any{"data": "Welcome, ada"},
		engine.HashStepID("send-welcome", 1):        map[string]any{"data": []string{"e1"}},
		engine.HashStepID("wait-for-activation", 1): nil,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(resp.Body))
	assert.JSONEq(t, `{"user_id":"u1","activated":false}`, string(resp.Body))
}

func TestDailyReportPlansBothCounts(t *testing.T) {
	resp := callDemo(t, "demo-daily-report", map[string]any{"name": "inngest/scheduled.timer", "data": map[string]any{}}, nil)
	require.Equal(t, http.StatusPartialContent, resp.StatusCode, string(resp.Body))
	var steps []map[string]any
	require.NoError(t, json.Unmarshal(resp.Body, &steps))
	require.Len(t, steps, 2)
	for _, s := range steps {
		assert.Equal(t, string(protocol.OpPlanned), s["op"])
	}
}
