// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package pulsar

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	apachepulsar "github.com/apache/pulsar-client-go/pulsar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xcherryio/durable/common/log"
	"github.com/xcherryio/durable/config"
	"github.com/xcherryio/durable/function"
	"github.com/xcherryio/durable/protocol"
	"github.com/xcherryio/durable/service/api"
	"github.com/xcherryio/durable/signing"
)

const testSigningKey = "signkey-test-12345678"

func newTestService(t *testing.T) api.Service {
	fn, err := function.New(function.Config{
		ID:       "hello",
		Triggers: []function.Trigger{function.EventTrigger("app/hello")},
	}, func(ctx context.Context, input function.Input) (any, error) {
		return "hello " + input.Event.Name, nil
	})
	require.NoError(t, err)
	registry, err := function.NewRegistry("my-app", fn)
	require.NoError(t, err)
	return api.NewServiceImpl(config.AppConfig{
		ID:              "my-app",
		Mode:            config.ModeProduction,
		SigningKey:      testSigningKey,
		ServeOrigin:     "http://localhost:8080",
		ServePath:       "/api/inngest",
		SignatureMaxAge: 5 * time.Minute,
	}, registry, api.ServiceOptions{}, log.NewNopLogger())
}

func TestHandleRequestCall(t *testing.T) {
	svc := newTestService(t)
	body := []byte(`{"event":{"name":"app/hello","data":{}},"steps":{},"ctx":{"run_id":"run-1","stack":{"stack":[]}}}`)
	headers := http.Header{}
	headers.Set(protocol.HeaderSignature, signing.Sign(testSigningKey, body, time.Now()))
	msg := NewRequestMessage(OperationCall, "corr-1", api.CommRequest{
		Body:    body,
		Headers: headers,
		Query:   map[string][]string{protocol.QueryParamFunctionId: {"my-app-hello"}},
	})

	response := handleRequest(context.Background(), svc, msg.Payload, msg.Properties)
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, `"hello app/hello"`, string(response.Body))
	assert.NotEmpty(t, response.Headers.Get(protocol.HeaderSignature))
}

func TestHandleRequestInspect(t *testing.T) {
	msg := NewRequestMessage(OperationInspect, "corr-1", api.CommRequest{})

	response := handleRequest(context.Background(), newTestService(t), msg.Payload, msg.Properties)
	require.Equal(t, http.StatusOK, response.StatusCode)
	var inspection protocol.UnauthenticatedInspection
	require.NoError(t, json.Unmarshal(response.Body, &inspection))
	assert.Equal(t, 1, inspection.FunctionCount)
	assert.Nil(t, inspection.AuthenticationSucceeded)
}

func TestHandleRequestInvalidMessage(t *testing.T) {
	response := handleRequest(context.Background(), newTestService(t), []byte(`{}`), map[string]string{})
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	assert.Equal(t, "true", response.Headers.Get(protocol.HeaderNoRetry))

	var data map[string]any
	require.NoError(t, json.Unmarshal(response.Body, &data))
	assert.Equal(t, "body_invalid", data["code"])
}

func newTestTransport(concurrency int) *pulsarTransport {
	return NewPulsarTransport(context.Background(), config.PulsarConfig{
		Concurrency: concurrency,
	}, nil, log.NewNopLogger()).(*pulsarTransport)
}

func TestMessagesAreHandledConcurrently(t *testing.T) {
	p := newTestTransport(2)
	msgCh := make(chan apachepulsar.ConsumerMessage)
	blocked := make(chan struct{})
	release := make(chan struct{})
	second := make(chan struct{})

	var first sync.Once
	handle := func(apachepulsar.ConsumerMessage) {
		isFirst := false
		first.Do(func() { isFirst = true })
		if isFirst {
			close(blocked)
			<-release
			return
		}
		close(second)
	}
	go p.processMessages(msgCh, handle)

	msgCh <- apachepulsar.ConsumerMessage{}
	<-blocked
	// the first message is still being handled
	msgCh <- apachepulsar.ConsumerMessage{}
	select {
	case <-second:
	case <-time.After(5 * time.Second):
		t.Fatal("second message was not handled while the first one was running")
	}
	close(release)

	require.NoError(t, p.Stop(context.Background()))
	select {
	case <-p.doneCh:
	default:
		t.Fatal("message processors are still running")
	}
}

func TestMessageProcessorsStopWhenChannelCloses(t *testing.T) {
	p := newTestTransport(3)
	msgCh := make(chan apachepulsar.ConsumerMessage)
	go p.processMessages(msgCh, func(apachepulsar.ConsumerMessage) {})

	close(msgCh)
	select {
	case <-p.doneCh:
	case <-time.After(5 * time.Second):
		t.Fatal("message processors did not stop")
	}
}
