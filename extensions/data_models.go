// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package extensions

import "time"

// StepStateRow is one offloaded step output. Column names are the snake case
// of the field names.
type StepStateRow struct {
	StateKey  string
	RunId     string
	Data      []byte
	CreatedAt time.Time
}
