// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package pulsar

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	apachepulsar "github.com/apache/pulsar-client-go/pulsar"

	"github.com/xcherryio/durable/service/api"
)

// Message properties. Request headers travel as properties prefixed with "header-".
const (
	PropertyOperation     = "durable-operation"
	PropertyQuery         = "durable-query"
	PropertyCorrelationId = "durable-correlation-id"
	PropertyStatusCode    = "durable-status-code"

	headerPropertyPrefix = "header-"
)

// Operation selects the service method a request message is delivered to
type Operation string

const (
	OperationCall    Operation = "call"
	OperationInspect Operation = "inspect"
	OperationSync    Operation = "sync"
)

// NewRequestMessage builds the message an orchestrator-side producer publishes on the request topic
func NewRequestMessage(op Operation, correlationId string, request api.CommRequest) *apachepulsar.ProducerMessage {
	props := headersToProperties(request.Headers)
	props[PropertyOperation] = string(op)
	props[PropertyCorrelationId] = correlationId
	if len(request.Query) > 0 {
		props[PropertyQuery] = request.Query.Encode()
	}
	return &apachepulsar.ProducerMessage{
		Key:        correlationId,
		Payload:    request.Body,
		Properties: props,
	}
}

// RequestFromMessage is the inverse of NewRequestMessage
func RequestFromMessage(payload []byte, props map[string]string) (Operation, api.CommRequest, error) {
	op := Operation(props[PropertyOperation])
	switch op {
	case OperationCall, OperationInspect, OperationSync:
	case "":
		return "", api.CommRequest{}, fmt.Errorf("message has no %v property", PropertyOperation)
	default:
		return "", api.CommRequest{}, fmt.Errorf("unknown operation %q", op)
	}

	query, err := url.ParseQuery(props[PropertyQuery])
	if err != nil {
		return "", api.CommRequest{}, fmt.Errorf("invalid %v property: %w", PropertyQuery, err)
	}
	return op, api.CommRequest{
		Body:    payload,
		Headers: propertiesToHeaders(props),
		Query:   query,
	}, nil
}

// NewResponseMessage carries a service response back on the response topic
func NewResponseMessage(correlationId string, response api.CommResponse) *apachepulsar.ProducerMessage {
	props := headersToProperties(response.Headers)
	props[PropertyCorrelationId] = correlationId
	props[PropertyStatusCode] = strconv.Itoa(response.StatusCode)
	return &apachepulsar.ProducerMessage{
		Key:        correlationId,
		Payload:    response.Body,
		Properties: props,
	}
}

// ResponseFromMessage is the inverse of NewResponseMessage
func ResponseFromMessage(payload []byte, props map[string]string) (string, api.CommResponse, error) {
	status, err := strconv.Atoi(props[PropertyStatusCode])
	if err != nil {
		return "", api.CommResponse{}, fmt.Errorf("invalid %v property: %w", PropertyStatusCode, err)
	}
	return props[PropertyCorrelationId], api.CommResponse{
		Body:       payload,
		Headers:    propertiesToHeaders(props),
		StatusCode: status,
	}, nil
}

// only the first value of a header is kept, the protocol never repeats headers
func headersToProperties(headers http.Header) map[string]string {
	props := make(map[string]string, len(headers)+3)
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		props[headerPropertyPrefix+strings.ToLower(name)] = values[0]
	}
	return props
}

func propertiesToHeaders(props map[string]string) http.Header {
	headers := http.Header{}
	for key, value := range props {
		if name, ok := strings.CutPrefix(key, headerPropertyPrefix); ok {
			headers.Set(name, value)
		}
	}
	return headers
}
