// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package protocol

import "encoding/json"

type Opcode string

const (
	OpStepRun      Opcode = "StepRun"
	OpPlanned      Opcode = "StepPlanned"
	OpSleep        Opcode = "Sleep"
	OpWaitForEvent Opcode = "WaitForEvent"
	OpInvoke       Opcode = "InvokeFunction"
	OpStepError    Opcode = "StepError"
)

// StepInfo is one step occurrence as reported to the orchestrator.
type StepInfo struct {
	// ID is the hashed step id
	ID string `json:"id"`
	// Name is the op specific name, e.g. the event name for WaitForEvent
	Name string `json:"name"`
	// DisplayName is the id the user gave the step
	DisplayName string         `json:"displayName"`
	Op          Opcode         `json:"op"`
	Opts        map[string]any `json:"opts,omitempty"`
}

// StepResponse is an outbound unit of a multi result.
type StepResponse struct {
	StepInfo
	Data  any        `json:"data,omitempty"`
	Error *ErrorData `json:"error,omitempty"`
}

// MarshalJSON always writes data for an executed StepRun, so that a nil output
// is memoized as {"data":null}.
func (r StepResponse) MarshalJSON() ([]byte, error) {
	type plain StepResponse
	if r.Op != OpStepRun || r.Error != nil {
		return json.Marshal(plain(r))
	}
	return json.Marshal(struct {
		plain
		Data any `json:"data"`
	}{plain: plain(r), Data: r.Data})
}

// IsRetriable reports false only for errored steps that must not be retried
func (r StepResponse) IsRetriable() bool {
	if r.Error == nil {
		return true
	}
	return r.Error.IsRetriable
}
