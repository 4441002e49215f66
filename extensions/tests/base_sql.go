// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package tests

import (
	"context"
	"fmt"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xcherryio/durable/common/uuid"
	"github.com/xcherryio/durable/extensions"
)

func testStepStateCRUD(ass *assert.Assertions, session extensions.SQLDBSession) {
	ctx := context.Background()
	runId := fmt.Sprintf("test-run-%v", time.Now().UnixNano())
	otherRunId := runId + "-other"

	createdAt := time.Now().UTC().Truncate(time.Millisecond)
	row1 := extensions.StepStateRow{
		StateKey:  uuid.MustNewUUID(),
		RunId:     runId,
		Data:      []byte(`{"a":1}`),
		CreatedAt: createdAt,
	}
	row2 := extensions.StepStateRow{
		StateKey:  uuid.MustNewUUID(),
		RunId:     runId,
		Data:      []byte(`"text"`),
		CreatedAt: createdAt,
	}
	row3 := extensions.StepStateRow{
		StateKey:  uuid.MustNewUUID(),
		RunId:     otherRunId,
		Data:      []byte(`null`),
		CreatedAt: createdAt,
	}
	for _, row := range []extensions.StepStateRow{row1, row2, row3} {
		ass.Nil(session.InsertStepState(ctx, row))
	}

	// the key is the primary key
	err := session.InsertStepState(ctx, row1)
	ass.NotNil(err)
	ass.True(session.IsDupEntryError(err))

	rows, err := session.SelectStepStates(ctx, []string{row1.StateKey, row2.StateKey, "not-exists"})
	ass.Nil(err)
	ass.Equal(2, len(rows))
	found := map[string]extensions.StepStateRow{}
	for _, row := range rows {
		found[row.StateKey] = row
	}
	ass.Equal(string(row1.Data), string(found[row1.StateKey].Data))
	ass.Equal(string(row2.Data), string(found[row2.StateKey].Data))
	ass.Equal(runId, found[row1.StateKey].RunId)
	assertTimeEqual(ass, createdAt, found[row1.StateKey].CreatedAt)

	rows, err = session.SelectStepStates(ctx, nil)
	ass.Nil(err)
	ass.Empty(rows)

	deleted, err := session.DeleteRunStepStates(ctx, runId)
	ass.Nil(err)
	ass.Equal(int64(2), deleted)

	rows, err = session.SelectStepStates(ctx, []string{row1.StateKey, row3.StateKey})
	ass.Nil(err)
	ass.Equal(1, len(rows))
	ass.Equal(row3.StateKey, rows[0].StateKey)
}

func assertTimeEqual(ass *assert.Assertions, t1, t2 time.Time) {
	ass.Equal(t1.UnixMilli(), t2.UnixMilli())
}
