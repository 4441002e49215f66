// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package persistence

import (
	"context"
	"encoding/json"

	"github.com/xcherryio/durable/memo"
)

const (
	// PlaceholderDriverKey and PlaceholderStateKey are the fields of the object
	// that replaces an offloaded step output in the orchestrator's state
	PlaceholderDriverKey = "__durable_state_driver"
	PlaceholderStateKey  = "__durable_state_key"
)

// StateDriver stores step outputs outside the orchestrator and hands back a
// small placeholder instead.
type StateDriver interface {
	// DriverID identifies the driver in placeholders so that several drivers can coexist
	DriverID() string
	// LoadSteps replaces every placeholder owned by this driver in the memo store with the stored value
	LoadSteps(ctx context.Context, steps *memo.Store) error
	// SaveStep stores the value and returns the placeholder to memoize instead
	SaveStep(ctx context.Context, runId string, value any) (map[string]any, error)
	// DeleteRunSteps drops every value stored for the run once it has a final result
	DeleteRunSteps(ctx context.Context, runId string) error
	Close() error
}

// Placeholder is the decoded form of a placeholder object
type Placeholder struct {
	DriverID string `json:"__durable_state_driver"`
	StateKey string `json:"__durable_state_key"`
}

func NewPlaceholder(driverId, stateKey string) map[string]any {
	return map[string]any{
		PlaceholderDriverKey: driverId,
		PlaceholderStateKey:  stateKey,
	}
}

// ParsePlaceholder reports whether the memoized data is a placeholder
func ParsePlaceholder(data json.RawMessage) (Placeholder, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || len(obj) != 2 {
		return Placeholder{}, false
	}
	var p Placeholder
	if err := json.Unmarshal(data, &p); err != nil {
		return Placeholder{}, false
	}
	if p.DriverID == "" || p.StateKey == "" {
		return Placeholder{}, false
	}
	return p, true
}
