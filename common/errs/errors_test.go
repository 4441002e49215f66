// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xcherryio/durable/protocol"
)

func TestToErrorData(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	cases := []struct {
		name      string
		err       error
		code      Code
		errName   string
		retriable bool
	}{
		{"plain", errors.New("x"), CodeUnknown, "Error", true},
		{"no retry", NoRetryError(errors.New("x")), CodeNonRetriableFunctionErr, "NonRetriableError", false},
		{"wrapped no retry", fmt.Errorf("ctx: %w", NoRetryError(errors.New("x"))), CodeNonRetriableFunctionErr, "NonRetriableError", false},
		{"retry after", RetryAtError(errors.New("x"), at), CodeUnknown, "RetryAfterError", true},
		{"client protocol error", NewProtocolError(http.StatusBadRequest, CodeBodyInvalid, "bad"), CodeBodyInvalid, "ProtocolError", false},
		{"server protocol error", NewProtocolError(http.StatusInternalServerError, CodeAPIRequestFailed, "down"), CodeAPIRequestFailed, "ProtocolError", true},
		{"unexpected step", &StepUnexpectedError{StepName: "a"}, CodeStepUnexpected, "StepUnexpectedError", false},
		{"async unsupported", ErrAsyncUnsupported, CodeAsyncUnsupported, "Error", false},
		{"panic", &PanicError{Value: "boom", Stack: "trace"}, CodeUnknown, "PanicError", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			data := ToErrorData(c.err)
			assert.Equal(t, string(c.code), data.Code)
			assert.Equal(t, c.errName, data.Name)
			assert.Equal(t, c.retriable, data.IsRetriable)
			assert.Equal(t, c.err.Error(), data.Message)
		})
	}

	data := ToErrorData(RetryAtError(errors.New("x"), at))
	require.NotNil(t, data.RetryAfter)
	assert.Equal(t, at, *data.RetryAfter)
}

func TestStepErrorRoundTrip(t *testing.T) {
	original := protocol.ErrorData{Message: "card declined", Name: "PaymentError", Stack: "at charge()"}
	stepErr := StepErrorFromData(original)

	data := ToErrorData(stepErr)
	assert.Equal(t, original.Message, data.Message)
	assert.Equal(t, original.Name, data.Name)
	assert.Equal(t, original.Stack, data.Stack)
	assert.Equal(t, string(CodeStepErrored), data.Code)

	// a step error rethrown by the function keeps the step's name
	data = ToErrorData(fmt.Errorf("charge failed: %w", stepErr))
	assert.Equal(t, "PaymentError", data.Name)

	assert.Equal(t, "StepError", StepErrorFromData(protocol.ErrorData{Message: "x"}).ErrorName())
}
