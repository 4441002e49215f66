// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package protocol

import "time"

// ErrorData is the canonical error envelope. Only code, message, name and stack
// ever leave the process.
type ErrorData struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Name    string `json:"name"`
	Stack   string `json:"stack,omitempty"`

	IsRetriable bool       `json:"-"`
	RetryAfter  *time.Time `json:"-"`
	StepID      *string    `json:"-"`
}
