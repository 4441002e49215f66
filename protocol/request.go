// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"fmt"
)

// Event is a triggering or occurring fact.
type Event struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Data      map[string]any `json:"data"`
	User      map[string]any `json:"user,omitempty"`
	Timestamp int64          `json:"ts,omitempty"`
	Version   string         `json:"v,omitempty"`
}

// Decode re-encodes the event data into v
func (e Event) Decode(v any) error {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// Validate checks the minimum an event needs before it can be sent
func (e Event) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("event name is required")
	}
	return nil
}

// Request represents an incoming invoke request used to call functions.
type Request struct {
	// Event represents the input event.  If the input is a batch of events, this
	// represents the first event in the batch (for backwards compatibility).
	Event Event `json:"event"`
	// Events represents the array of input events, if the function run is for
	// a batch of events.
	Events []Event `json:"events"`
	// Steps indicates the current step state for the function run, keyed by hashed step id.
	Steps map[string]json.RawMessage `json:"steps"`
	// CallCtx represents call context - metadata around the current function run.
	CallCtx CallCtx `json:"ctx"`
	// UseAPI indicates whether the input request was too large to be pushed
	// inline, and the events and steps should instead be fetched from the API.
	UseAPI bool `json:"use_api"`
}

// CallCtx represents context for individual function calls.
type CallCtx struct {
	Attempt                   int       `json:"attempt"`
	DisableImmediateExecution bool      `json:"disable_immediate_execution"`
	Env                       string    `json:"env,omitempty"`
	FunctionID                string    `json:"fn_id,omitempty"`
	MaxAttempts               *int      `json:"max_attempts,omitempty"`
	RunID                     string    `json:"run_id"`
	Stack                     CallStack `json:"stack"`
	StepID                    string    `json:"step_id,omitempty"`
}

// CallStack is the orchestrator-supplied order of completed step ids.
type CallStack struct {
	Current uint     `json:"current"`
	Stack   []string `json:"stack"`
}

// IndexOf returns the position of the hashed id in the stack, or -1
func (s CallStack) IndexOf(hashedId string) int {
	for i, id := range s.Stack {
		if id == hashedId {
			return i
		}
	}
	return -1
}

// DecodeRequest decodes and sanity checks an invoke request body
func DecodeRequest(body []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request body: %w", err)
	}
	if req.Steps == nil {
		req.Steps = map[string]json.RawMessage{}
	}
	if len(req.Events) == 0 && req.Event.Name != "" {
		req.Events = []Event{req.Event}
	}
	return &req, nil
}
