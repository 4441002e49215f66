// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xcherryio/durable/common/errs"
	"github.com/xcherryio/durable/common/log"
	"github.com/xcherryio/durable/config"
	"github.com/xcherryio/durable/engine"
	"github.com/xcherryio/durable/extensions/sqlite"
	"github.com/xcherryio/durable/function"
	"github.com/xcherryio/durable/middleware"
	sqlpersistence "github.com/xcherryio/durable/persistence/sql"
	"github.com/xcherryio/durable/protocol"
	"github.com/xcherryio/durable/signing"
	"github.com/xcherryio/durable/step"
)

const (
	testAppID      = "my-app"
	testSigningKey = "signkey-test-12345678"
	servePath      = "/api/inngest"
)

func testAppConfig(mode config.Mode) config.AppConfig {
	return config.AppConfig{
		ID:              testAppID,
		Mode:            mode,
		SigningKey:      testSigningKey,
		APIBaseURL:      "https://api.inngest.com",
		EventBaseURL:    "https://inn.gs",
		ServeOrigin:     "http://localhost:8080",
		ServePath:       servePath,
		SignatureMaxAge: 5 * time.Minute,
		RequestTimeout:  5 * time.Second,
	}
}

func mustFunction(t *testing.T) func(*function.Function, error) *function.Function {
	return func(fn *function.Function, err error) *function.Function {
		require.NoError(t, err)
		return fn
	}
}

type testServer struct {
	cfg    config.AppConfig
	router *gin.Engine
}

func newTestServer(t *testing.T, cfg config.AppConfig, opts ServiceOptions, fns ...*function.Function) *testServer {
	return newTestServerWithLogger(t, cfg, opts, log.NewNopLogger(), fns...)
}

func newTestServerWithLogger(
	t *testing.T, cfg config.AppConfig, opts ServiceOptions, logger log.Logger, fns ...*function.Function,
) *testServer {
	gin.SetMode(gin.TestMode)
	registry, err := function.NewRegistry(cfg.ID, fns...)
	require.NoError(t, err)
	svc := NewServiceImpl(cfg, registry, opts, logger)

	router := gin.New()
	RegisterGinRoutes(router, cfg, svc, log.NewNopLogger())
	return &testServer{cfg: cfg, router: router}
}

func (s *testServer) do(method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// call posts a signed invocation request
func (s *testServer) call(t *testing.T, fnId string, body []byte) *httptest.ResponseRecorder {
	headers := map[string]string{
		protocol.HeaderSignature: signing.Sign(testSigningKey, body, time.Now()),
	}
	return s.do(http.MethodPost, servePath+"?fnId="+fnId+"&stepId=step", body, headers)
}

func requestBody(t *testing.T, steps map[string]any) []byte {
	if steps == nil {
		steps = map[string]any{}
	}
	body, err := json.Marshal(map[string]any{
		"event": map[string]any{"name": "app/foo", "data": map[string]any{}},
		"steps": steps,
		"ctx": map[string]any{
			"run_id":  "run-1",
			"attempt": 0,
			"stack":   map[string]any{"stack": []string{}},
		},
	})
	require.NoError(t, err)
	return body
}

func decodeSteps(t *testing.T, rec *httptest.ResponseRecorder) []map[string]any {
	var steps []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &steps))
	return steps
}

func TestCallNoStepFunction(t *testing.T) {
	fn := mustFunction(t)(function.New(function.Config{
		ID:       "foo",
		Triggers: []function.Trigger{function.EventTrigger("app/foo")},
	}, func(ctx context.Context, input function.Input) (any, error) {
		assert.Equal(t, "app/foo", input.Event.Name)
		return 42, nil
	}))
	srv := newTestServer(t, testAppConfig(config.ModeProduction), ServiceOptions{}, fn)

	rec := srv.call(t, "my-app-foo", requestBody(t, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", rec.Body.String())
	assert.Equal(t, protocol.SDKHeaderValue(), rec.Header().Get(protocol.HeaderSDK))
	assert.Equal(t, FrameworkGin, rec.Header().Get(protocol.HeaderFramework))
	assert.Equal(t, protocol.RequestVersion, rec.Header().Get(protocol.HeaderReqVersion))

	// the response is signed with the same key
	err := signing.Verify(rec.Header().Get(protocol.HeaderSignature), rec.Body.Bytes(),
		testSigningKey, time.Minute, time.Now())
	assert.NoError(t, err)
}

func sequentialFunction(t *testing.T, calls *[]string) *function.Function {
	return mustFunction(t)(function.New(function.Config{
		ID:       "sequential",
		Triggers: []function.Trigger{function.EventTrigger("app/foo")},
	}, func(ctx context.Context, input function.Input) (any, error) {
		a, err := step.Run(ctx, "a", func(ctx context.Context) (int, error) {
			*calls = append(*calls, "a")
			return 1, nil
		})
		if err != nil {
			return nil, err
		}
		b, err := step.Run(ctx, "b", func(ctx context.Context) (int, error) {
			*calls = append(*calls, "b")
			return a + 1, nil
		})
		return a + b, err
	}))
}

func TestCallSequentialSteps(t *testing.T) {
	var calls []string
	srv := newTestServer(t, testAppConfig(config.ModeProduction), ServiceOptions{}, sequentialFunction(t, &calls))

	rec := srv.call(t, "my-app-sequential", requestBody(t, nil))
	require.Equal(t, http.StatusPartialContent, rec.Code)
	steps := decodeSteps(t, rec)
	require.Len(t, steps, 1)
	assert.Equal(t, engine.HashStepID("a", 1), steps[0]["id"])
	assert.Equal(t, "a", steps[0]["displayName"])
	assert.Equal(t, string(protocol.OpStepRun), steps[0]["op"])
	assert.Equal(t, float64(1), steps[0]["data"])
	assert.Equal(t, "false", rec.Header().Get(protocol.HeaderNoRetry))

	rec = srv.call(t, "my-app-sequential", requestBody(t, map[string]any{
		engine.HashStepID("a", 1): map[string]any{"data": 1},
	}))
	require.Equal(t, http.StatusPartialContent, rec.Code)
	steps = decodeSteps(t, rec)
	require.Len(t, steps, 1)
	assert.Equal(t, engine.HashStepID("b", 1), steps[0]["id"])
	assert.Equal(t, float64(2), steps[0]["data"])

	rec = srv.call(t, "my-app-sequential", requestBody(t, map[string]any{
		engine.HashStepID("a", 1): map[string]any{"data": 1},
		engine.HashStepID("b", 1): map[string]any{"data": 2},
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3", rec.Body.String())

	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestCallParallelStepsArePlanned(t *testing.T) {
	executed := false
	fn := mustFunction(t)(function.New(function.Config{
		ID:       "fan-out",
		Triggers: []function.Trigger{function.EventTrigger("app/foo")},
	}, func(ctx context.Context, input function.Input) (any, error) {
		return step.Parallel(ctx,
			func(ctx context.Context) (any, error) {
				return step.Run(ctx, "a", func(ctx context.Context) (int, error) {
					executed = true
					return 1, nil
				})
			},
			func(ctx context.Context) (any, error) {
				return step.Run(ctx, "b", func(ctx context.Context) (int, error) {
					executed = true
					return 2, nil
				})
			},
		)
	}))
	srv := newTestServer(t, testAppConfig(config.ModeProduction), ServiceOptions{}, fn)

	rec := srv.call(t, "my-app-fan-out", requestBody(t, nil))
	require.Equal(t, http.StatusPartialContent, rec.Code)
	steps := decodeSteps(t, rec)
	require.Len(t, steps, 2)
	var ids []any
	for _, s := range steps {
		assert.Equal(t, string(protocol.OpPlanned), s["op"])
		ids = append(ids, s["id"])
	}
	assert.ElementsMatch(t, []any{engine.HashStepID("a", 1), engine.HashStepID("b", 1)}, ids)
	assert.False(t, executed)
}

func TestCallSignature(t *testing.T) {
	fn := mustFunction(t)(function.New(function.Config{
		ID:       "foo",
		Triggers: []function.Trigger{function.EventTrigger("app/foo")},
	}, func(ctx context.Context, input function.Input) (any, error) {
		return "ok", nil
	}))
	body := requestBody(t, nil)
	target := servePath + "?fnId=my-app-foo"

	prod := newTestServer(t, testAppConfig(config.ModeProduction), ServiceOptions{}, fn)
	rec := prod.do(http.MethodPost, target, body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assertErrorCode(t, rec, errs.CodeHeaderMissing)

	rec = prod.do(http.MethodPost, target, body, map[string]string{
		protocol.HeaderSignature: signing.Sign("signkey-test-87654321", body, time.Now()),
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assertErrorCode(t, rec, errs.CodeSigVerificationFailed)

	rec = prod.do(http.MethodPost, target, body, map[string]string{
		protocol.HeaderSignature: signing.Sign(testSigningKey, body, time.Now().Add(-time.Hour)),
	})
	assertErrorCode(t, rec, errs.CodeSigVerificationFailed)

	dev := newTestServer(t, testAppConfig(config.ModeDevelopment), ServiceOptions{}, fn)
	rec = dev.do(http.MethodPost, target, body, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `"ok"`, rec.Body.String())
}

func TestCallWithFallbackKey(t *testing.T) {
	fn := mustFunction(t)(function.New(function.Config{
		ID:       "foo",
		Triggers: []function.Trigger{function.EventTrigger("app/foo")},
	}, func(ctx context.Context, input function.Input) (any, error) {
		return nil, nil
	}))
	cfg := testAppConfig(config.ModeProduction)
	cfg.SigningKey = "signkey-test-aaaaaaaa"
	cfg.SigningKeyFallback = testSigningKey
	srv := newTestServer(t, cfg, ServiceOptions{}, fn)

	rec := srv.call(t, "my-app-foo", requestBody(t, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", rec.Body.String())
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, code errs.Code) {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	assert.Equal(t, string(code), body["code"])
}

func TestCallProtocolErrors(t *testing.T) {
	fn := mustFunction(t)(function.New(function.Config{
		ID:       "foo",
		Triggers: []function.Trigger{function.EventTrigger("app/foo")},
	}, func(ctx context.Context, input function.Input) (any, error) {
		return nil, nil
	}))
	srv := newTestServer(t, testAppConfig(config.ModeDevelopment), ServiceOptions{}, fn)

	rec := srv.do(http.MethodPost, servePath, requestBody(t, nil), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assertErrorCode(t, rec, errs.CodeQueryParamMissing)

	rec = srv.do(http.MethodPost, servePath+"?fnId=my-app-bar", requestBody(t, nil), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assertErrorCode(t, rec, errs.CodeFunctionNotFound)

	rec = srv.do(http.MethodPost, servePath+"?fnId=my-app-foo", []byte("{not json"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assertErrorCode(t, rec, errs.CodeBodyInvalid)

	rec = srv.do(http.MethodPost, servePath+"?fnId=my-app-foo", requestBody(t, nil), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCallProductionRejectsDevServer(t *testing.T) {
	srv := newTestServer(t, testAppConfig(config.ModeProduction), ServiceOptions{})
	body := requestBody(t, nil)
	rec := srv.do(http.MethodPost, servePath+"?fnId=my-app-foo", body, map[string]string{
		protocol.HeaderServerKind: protocol.ServerKindDev,
		protocol.HeaderSignature:  signing.Sign(testSigningKey, body, time.Now()),
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assertErrorCode(t, rec, errs.CodeServerKindMismatch)
}

func TestCallFunctionErrors(t *testing.T) {
	retryAt := time.Now().Add(time.Hour).Truncate(time.Second)
	tests := []struct {
		name        string
		err         error
		maxAttempts *int
		noRetry     string
		retryAfter  string
		errorName   string
	}{
		{name: "retriable", err: errors.New("boom"), noRetry: "false", errorName: "Error"},
		{name: "non-retriable", err: errs.NoRetryError(errors.New("boom")), noRetry: "true", errorName: "NonRetriableError"},
		{name: "attempts exhausted", err: errors.New("boom"), maxAttempts: intPtr(1), noRetry: "true", errorName: "Error"},
		{
			name:       "retry after",
			err:        errs.RetryAtError(errors.New("boom"), retryAt),
			noRetry:    "false",
			retryAfter: retryAt.UTC().Format(http.TimeFormat),
			errorName:  "RetryAfterError",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := mustFunction(t)(function.New(function.Config{
				ID:       "foo",
				Triggers: []function.Trigger{function.EventTrigger("app/foo")},
			}, func(ctx context.Context, input function.Input) (any, error) {
				return nil, tt.err
			}))
			srv := newTestServer(t, testAppConfig(config.ModeDevelopment), ServiceOptions{}, fn)

			callCtx := map[string]any{"run_id": "run-1", "attempt": 0}
			if tt.maxAttempts != nil {
				callCtx["max_attempts"] = *tt.maxAttempts
			}
			body, err := json.Marshal(map[string]any{
				"event": map[string]any{"name": "app/foo", "data": map[string]any{}},
				"ctx":   callCtx,
			})
			require.NoError(t, err)

			rec := srv.do(http.MethodPost, servePath+"?fnId=my-app-foo", body, nil)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, tt.noRetry, rec.Header().Get(protocol.HeaderNoRetry))
			assert.Equal(t, tt.retryAfter, rec.Header().Get(protocol.HeaderRetryAfter))

			var errBody protocol.ErrorData
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
			assert.Equal(t, "boom", errBody.Message)
			assert.Equal(t, tt.errorName, errBody.Name)
		})
	}
}

func intPtr(i int) *int {
	return &i
}

func TestFunctionLoggerIsSilentDuringReplay(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	fn := mustFunction(t)(function.New(function.Config{
		ID:       "foo",
		Triggers: []function.Trigger{function.EventTrigger("app/foo")},
	}, func(ctx context.Context, input function.Input) (any, error) {
		input.Logger.Info("starting")
		a, err := step.Run(ctx, "a", func(ctx context.Context) (int, error) {
			input.Logger.Info("running a")
			return 1, nil
		})
		if err != nil {
			return nil, err
		}
		input.Logger.Info("after a")
		b, err := step.Run(ctx, "b", func(ctx context.Context) (int, error) {
			input.Logger.Info("running b")
			return 2, nil
		})
		if err != nil {
			return nil, err
		}
		input.Logger.Info("done")
		return a + b, nil
	}))
	srv := newTestServerWithLogger(t, testAppConfig(config.ModeDevelopment), ServiceOptions{},
		log.NewLogger(zap.New(core)), fn)
	target := servePath + "?fnId=my-app-foo"

	rec := srv.do(http.MethodPost, target, requestBody(t, nil), nil)
	require.Equal(t, http.StatusPartialContent, rec.Code)
	rec = srv.do(http.MethodPost, target, requestBody(t, map[string]any{
		engine.HashStepID("a", 1): map[string]any{"data": 1},
	}), nil)
	require.Equal(t, http.StatusPartialContent, rec.Code)
	rec = srv.do(http.MethodPost, target, requestBody(t, map[string]any{
		engine.HashStepID("a", 1): map[string]any{"data": 1},
		engine.HashStepID("b", 1): map[string]any{"data": 2},
	}), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3", rec.Body.String())

	// every line is written once across the three requests of the run
	for _, msg := range []string{"starting", "running a", "after a", "running b", "done"} {
		assert.Equal(t, 1, logs.FilterMessage(msg).Len(), msg)
	}
}

func TestCallBodyLargerThanLimit(t *testing.T) {
	var calls []string
	cfg := testAppConfig(config.ModeDevelopment)
	cfg.MaxRequestBodyBytes = 64
	srv := newTestServer(t, cfg, ServiceOptions{}, sequentialFunction(t, &calls))

	body := requestBody(t, map[string]any{"padding": strings.Repeat("x", 128)})
	rec := srv.do(http.MethodPost, servePath+"?fnId=my-app-sequential", body, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(protocol.HeaderNoRetry))
	assertErrorCode(t, rec, errs.CodeBodyInvalid)
	assert.Empty(t, calls)
}

func TestCallUnserializableOutput(t *testing.T) {
	fn := mustFunction(t)(function.New(function.Config{
		ID:       "foo",
		Triggers: []function.Trigger{function.EventTrigger("app/foo")},
	}, func(ctx context.Context, input function.Input) (any, error) {
		return make(chan int), nil
	}))
	srv := newTestServer(t, testAppConfig(config.ModeDevelopment), ServiceOptions{}, fn)

	rec := srv.do(http.MethodPost, servePath+"?fnId=my-app-foo", requestBody(t, nil), nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(protocol.HeaderNoRetry))
	assertErrorCode(t, rec, errs.CodeUnserializableOutput)
}

func TestCallAsyncFunctionWithRemoteState(t *testing.T) {
	ctx := context.Background()
	driver, err := sqlpersistence.NewSQLStateDriver(config.StateStoreConfig{
		SQL: &config.SQL{
			DBExtensionName: sqlite.ExtensionName,
			DatabaseName:    filepath.Join(t.TempDir(), "state.db"),
		},
		DriverID: "sql",
	}, log.NewNopLogger())
	require.NoError(t, err)
	defer driver.Close()

	pool := engine.NewWorkerPool(ctx, config.WorkerPoolConfig{Concurrency: 2, BufferSize: 2}, log.NewNopLogger())
	require.NoError(t, pool.Start())
	defer pool.Stop(ctx)

	fn := mustFunction(t)(function.NewAsync(function.Config{
		ID:         "big-output",
		Triggers:   []function.Trigger{function.EventTrigger("app/foo")},
		Middleware: []middleware.Factory{middleware.NewRemoteState(driver)},
	}, func(ctx context.Context, input function.Input) (any, error) {
		out, err := step.Run(ctx, "a", func(ctx context.Context) (map[string]string, error) {
			return map[string]string{"big": "payload"}, nil
		})
		return out["big"], err
	}))
	srv := newTestServer(t, testAppConfig(config.ModeDevelopment), ServiceOptions{WorkerPool: pool}, fn)

	rec := srv.do(http.MethodPost, servePath+"?fnId=my-app-big-output", requestBody(t, nil), nil)
	require.Equal(t, http.StatusPartialContent, rec.Code)
	steps := decodeSteps(t, rec)
	require.Len(t, steps, 1)
	placeholder, ok := steps[0]["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sql", placeholder["__durable_state_driver"])

	rec = srv.do(http.MethodPost, servePath+"?fnId=my-app-big-output", requestBody(t, map[string]any{
		engine.HashStepID("a", 1): map[string]any{"data": placeholder},
	}), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `"payload"`, rec.Body.String())

	// the run's state is gone once it has an output
	rec = srv.do(http.MethodPost, servePath+"?fnId=my-app-big-output", requestBody(t, map[string]any{
		engine.HashStepID("a", 1): map[string]any{"data": placeholder},
	}), nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCallSyncFunctionWithAsyncOnlyMiddleware(t *testing.T) {
	fn := mustFunction(t)(function.New(function.Config{
		ID:         "foo",
		Triggers:   []function.Trigger{function.EventTrigger("app/foo")},
		Middleware: []middleware.Factory{middleware.NewRemoteState(nil)},
	}, func(ctx context.Context, input function.Input) (any, error) {
		return nil, nil
	}))
	srv := newTestServer(t, testAppConfig(config.ModeDevelopment), ServiceOptions{}, fn)

	rec := srv.do(http.MethodPost, servePath+"?fnId=my-app-foo", requestBody(t, nil), nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(protocol.HeaderNoRetry))
	assertErrorCode(t, rec, errs.CodeAsyncUnsupported)
}
