// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/xcherryio/durable/common/errs"
	"github.com/xcherryio/durable/protocol"
)

type ErrorWithStatus struct {
	StatusCode int
	Error      protocol.ErrorData
}

func NewErrorWithStatus(status int, code errs.Code, details string) *ErrorWithStatus {
	return &ErrorWithStatus{
		StatusCode: status,
		Error: protocol.ErrorData{
			Code:        string(code),
			Message:     details,
			Name:        "ProtocolError",
			IsRetriable: status >= http.StatusInternalServerError,
		},
	}
}

// toErrorWithStatus keeps the status of protocol errors, anything else is a 500
func toErrorWithStatus(err error) *ErrorWithStatus {
	var protoErr *errs.ProtocolError
	if errors.As(err, &protoErr) {
		return &ErrorWithStatus{
			StatusCode: protoErr.Status,
			Error:      errs.ToErrorData(err),
		}
	}
	return &ErrorWithStatus{
		StatusCode: http.StatusInternalServerError,
		Error:      errs.ToErrorData(err),
	}
}

func (e *ErrorWithStatus) String() string {
	return fmt.Sprintf("%d %v: %v", e.StatusCode, e.Error.Code, e.Error.Message)
}

// Response is the unsigned error response, for transports that reject a message
// before it reaches the service
func (e *ErrorWithStatus) Response() CommResponse {
	// the serialized fields of ErrorData are all strings
	body, _ := json.Marshal(e.Error)
	headers := http.Header{}
	headers.Set(protocol.HeaderContentType, "application/json")
	setNoRetry(headers, !e.Error.IsRetriable)
	return CommResponse{
		Body:       body,
		Headers:    headers,
		StatusCode: e.StatusCode,
	}
}
