// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package integTests

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xcherryio/durable/protocol"
)

// fakeOrchestrator drives a run the way the orchestrator does: it memoizes every
// reported step, runs planned steps one at a time and calls again until the
// function returns.
type fakeOrchestrator struct {
	t      *testing.T
	fnId   string
	event  map[string]any
	steps  map[string]json.RawMessage
	stack  []string
	ops    []protocol.Opcode
	calls  int
	output json.RawMessage
}

func newFakeOrchestrator(t *testing.T, fnId string, event map[string]any) *fakeOrchestrator {
	return &fakeOrchestrator{
		t:     t,
		fnId:  fnId,
		event: event,
		steps: map[string]json.RawMessage{},
	}
}

func (o *fakeOrchestrator) run() json.RawMessage {
	pending := []string{""}
	for len(pending) > 0 {
		require.Less(o.t, o.calls, 50, "the run did not finish")
		target := pending[0]
		pending = pending[1:]

		status, body := o.call(target)
		switch status {
		case http.StatusOK:
			o.output = body
			return body
		case http.StatusPartialContent:
			var steps []protocol.StepResponse
			require.NoError(o.t, json.Unmarshal(body, &steps))
			for _, s := range steps {
				o.ops = append(o.ops, s.Op)
				switch s.Op {
				case protocol.OpPlanned:
					pending = append(pending, s.ID)
				case protocol.OpSleep, protocol.OpWaitForEvent:
					// the sleep is over, the awaited event never came
					o.memoize(s.ID, json.RawMessage("null"))
				default:
					require.Nil(o.t, s.Error, "step %v failed", s.DisplayName)
					data, err := json.Marshal(map[string]any{"data": s.Data})
					require.NoError(o.t, err)
					o.memoize(s.ID, data)
				}
			}
			if len(pending) == 0 {
				pending = append(pending, "")
			}
		default:
			require.Failf(o.t, "unexpected status", "%d: %s", status, body)
		}
	}
	return nil
}

func (o *fakeOrchestrator) memoize(id string, memo json.RawMessage) {
	o.steps[id] = memo
	o.stack = append(o.stack, id)
}

func (o *fakeOrchestrator) call(target string) (int, []byte) {
	o.calls++
	body, err := json.Marshal(map[string]any{
		"event":  o.event,
		"events": []any{o.event},
		"steps":  o.steps,
		"ctx": map[string]any{
			"run_id":  "run-" + o.fnId,
			"attempt": 0,
			"stack":   map[string]any{"stack": o.stack, "current": len(o.stack)},
		},
	})
	require.NoError(o.t, err)

	resp, err := http.Post(functionURL(o.fnId, target), "application/json", bytes.NewReader(body))
	require.NoError(o.t, err)
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(o.t, err)
	return resp.StatusCode, respBody
}
