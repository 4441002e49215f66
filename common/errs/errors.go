// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package errs

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/xcherryio/durable/protocol"
)

type Code string

const (
	CodeAPIRequestFailed        Code = "api_request_failed"
	CodeAsyncUnsupported        Code = "async_unsupported"
	CodeBodyInvalid             Code = "body_invalid"
	CodeFunctionNotFound        Code = "function_not_found"
	CodeHeaderMissing           Code = "header_missing"
	CodeQueryParamMissing       Code = "query_param_missing"
	CodeServerKindMismatch      Code = "server_kind_mismatch"
	CodeSigVerificationFailed   Code = "sig_verification_failed"
	CodeSigningKeyUnspecified   Code = "signing_key_unspecified"
	CodeStepErrored             Code = "step_errored"
	CodeStepUnexpected          Code = "step_unexpected"
	CodeUnknown                 Code = "unknown"
	CodeUnserializableOutput    Code = "unserializable_output"
	CodeNonRetriableFunctionErr Code = "non_retriable_error"
)

var (
	// ErrEventNotReceived is returned by WaitForEvent when the wait timed out
	ErrEventNotReceived = errors.New("event not received")
	// ErrInvocationFinished is returned by step calls made after the invocation ended
	ErrInvocationFinished = errors.New("invocation already finished")
	// ErrAsyncUnsupported is returned when an async-only middleware is used by a sync function
	ErrAsyncUnsupported = errors.New("async-only middleware cannot run in a synchronous context")
)

// Named errors report a stable name for the error envelope
type Named interface {
	ErrorName() string
}

// ProtocolError is fatal to a single HTTP call.
type ProtocolError struct {
	Code    Code
	Status  int
	Message string
}

func NewProtocolError(status int, code Code, format string, args ...any) *ProtocolError {
	return &ProtocolError{
		Code:    code,
		Status:  status,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%v: %v", e.Code, e.Message)
}

func (e *ProtocolError) ErrorName() string {
	return "ProtocolError"
}

// NonRetriableError marks an error that the orchestrator must not retry.
type NonRetriableError struct {
	Err error
}

// NoRetryError wraps err so that the function or step is not retried
func NoRetryError(err error) error {
	return &NonRetriableError{Err: err}
}

func (e *NonRetriableError) Error() string {
	return e.Err.Error()
}

func (e *NonRetriableError) Unwrap() error {
	return e.Err
}

func (e *NonRetriableError) ErrorName() string {
	return "NonRetriableError"
}

// RetryAfterError asks the orchestrator to retry no earlier than At.
type RetryAfterError struct {
	Err error
	At  time.Time
}

func RetryAtError(err error, at time.Time) error {
	return &RetryAfterError{Err: err, At: at}
}

func (e *RetryAfterError) Error() string {
	return e.Err.Error()
}

func (e *RetryAfterError) Unwrap() error {
	return e.Err
}

func (e *RetryAfterError) ErrorName() string {
	return "RetryAfterError"
}

// StepError is a step failure memoized by the orchestrator and raised again on replay.
type StepError struct {
	Message string
	Name    string
	Stack   string
}

func StepErrorFromData(data protocol.ErrorData) *StepError {
	return &StepError{
		Message: data.Message,
		Name:    data.Name,
		Stack:   data.Stack,
	}
}

func (e *StepError) Error() string {
	return e.Message
}

func (e *StepError) ErrorName() string {
	if e.Name == "" {
		return "StepError"
	}
	return e.Name
}

func (e *StepError) StackTrace() string {
	return e.Stack
}

// StepUnexpectedError means a step was discovered while targeting a different step,
// which only happens when the function is not deterministic.
type StepUnexpectedError struct {
	StepName string
}

func (e *StepUnexpectedError) Error() string {
	return fmt.Sprintf("found step %q while targeting a different step, "+
		"the function must be deterministic across invocations", e.StepName)
}

func (e *StepUnexpectedError) ErrorName() string {
	return "StepUnexpectedError"
}

// PanicError is a recovered panic from user code.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) ErrorName() string {
	return "PanicError"
}

func (e *PanicError) StackTrace() string {
	return e.Stack
}

// IsRetriable reports whether the orchestrator may retry after err
func IsRetriable(err error) bool {
	var nonRetriable *NonRetriableError
	if errors.As(err, &nonRetriable) {
		return false
	}
	var unexpected *StepUnexpectedError
	if errors.As(err, &unexpected) {
		return false
	}
	if errors.Is(err, ErrAsyncUnsupported) {
		return false
	}
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return protoErr.Status >= http.StatusInternalServerError
	}
	return true
}

// ToErrorData converts any error into the canonical error envelope
func ToErrorData(err error) protocol.ErrorData {
	data := protocol.ErrorData{
		Code:        string(codeOf(err)),
		Message:     err.Error(),
		Name:        nameOf(err),
		Stack:       stackOf(err),
		IsRetriable: IsRetriable(err),
	}
	var retryAfter *RetryAfterError
	if errors.As(err, &retryAfter) {
		at := retryAfter.At
		data.RetryAfter = &at
	}
	return data
}

func codeOf(err error) Code {
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return protoErr.Code
	}
	var unexpected *StepUnexpectedError
	if errors.As(err, &unexpected) {
		return CodeStepUnexpected
	}
	if errors.Is(err, ErrAsyncUnsupported) {
		return CodeAsyncUnsupported
	}
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return CodeStepErrored
	}
	var nonRetriable *NonRetriableError
	if errors.As(err, &nonRetriable) {
		return CodeNonRetriableFunctionErr
	}
	return CodeUnknown
}

func nameOf(err error) string {
	// the outermost named error wins
	for e := err; e != nil; e = errors.Unwrap(e) {
		if named, ok := e.(Named); ok {
			return named.ErrorName()
		}
	}
	return "Error"
}

func stackOf(err error) string {
	var tracer interface{ StackTrace() string }
	if errors.As(err, &tracer) {
		return tracer.StackTrace()
	}
	return ""
}
