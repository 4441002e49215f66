// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package pulsar

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xcherryio/durable/protocol"
	"github.com/xcherryio/durable/service/api"
)

func TestRequestMessage(t *testing.T) {
	headers := http.Header{}
	headers.Set(protocol.HeaderSignature, "t=1&s=abc")
	headers.Set(protocol.HeaderServerKind, protocol.ServerKindCloud)
	query := url.Values{}
	query.Set(protocol.QueryParamFunctionId, "my-app-foo")
	query.Set(protocol.QueryParamStepId, protocol.StepIdSentinel)

	msg := NewRequestMessage(OperationCall, "corr-1", api.CommRequest{
		Body:    []byte(`{"event":{}}`),
		Headers: headers,
		Query:   query,
	})
	assert.Equal(t, "corr-1", msg.Key)
	assert.Equal(t, "call", msg.Properties[PropertyOperation])
	assert.Equal(t, "t=1&s=abc", msg.Properties["header-x-inngest-signature"])

	op, request, err := RequestFromMessage(msg.Payload, msg.Properties)
	require.NoError(t, err)
	assert.Equal(t, OperationCall, op)
	assert.Equal(t, `{"event":{}}`, string(request.Body))
	assert.Equal(t, "t=1&s=abc", request.Headers.Get(protocol.HeaderSignature))
	assert.Equal(t, protocol.ServerKindCloud, request.Headers.Get(protocol.HeaderServerKind))
	assert.Equal(t, "my-app-foo", request.Query.Get(protocol.QueryParamFunctionId))
	assert.Empty(t, request.Headers.Get(PropertyCorrelationId))
}

func TestRequestFromMessageErrors(t *testing.T) {
	_, _, err := RequestFromMessage(nil, map[string]string{})
	assert.ErrorContains(t, err, PropertyOperation)

	_, _, err = RequestFromMessage(nil, map[string]string{PropertyOperation: "delete"})
	assert.ErrorContains(t, err, "unknown operation")

	_, _, err = RequestFromMessage(nil, map[string]string{
		PropertyOperation: string(OperationSync),
		PropertyQuery:     "%zz",
	})
	assert.ErrorContains(t, err, PropertyQuery)
}

func TestResponseMessage(t *testing.T) {
	headers := http.Header{}
	headers.Set(protocol.HeaderNoRetry, "true")
	msg := NewResponseMessage("corr-1", api.CommResponse{
		Body:       []byte(`[]`),
		Headers:    headers,
		StatusCode: http.StatusPartialContent,
	})
	assert.Equal(t, "206", msg.Properties[PropertyStatusCode])

	correlationId, response, err := ResponseFromMessage(msg.Payload, msg.Properties)
	require.NoError(t, err)
	assert.Equal(t, "corr-1", correlationId)
	assert.Equal(t, http.StatusPartialContent, response.StatusCode)
	assert.Equal(t, "true", response.Headers.Get(protocol.HeaderNoRetry))
	assert.Equal(t, "[]", string(response.Body))

	_, _, err = ResponseFromMessage(nil, map[string]string{PropertyCorrelationId: "corr-1"})
	assert.Error(t, err)
}
