// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/xcherryio/durable/extensions"
)

type dbSession struct {
	db *sqlx.DB
}

var _ extensions.SQLDBSession = (*dbSession)(nil)

func newDBSession(db *sqlx.DB) *dbSession {
	return &dbSession{
		db: db,
	}
}

const insertStepStateQuery = `INSERT INTO durable_step_states
	(state_key, run_id, data, created_at) VALUES
	(:state_key, :run_id, :data, :created_at)`

func (d dbSession) InsertStepState(ctx context.Context, row extensions.StepStateRow) error {
	row.CreatedAt = row.CreatedAt.UTC()
	_, err := d.db.NamedExecContext(ctx, insertStepStateQuery, row)
	return err
}

const selectStepStatesQuery = `SELECT
	state_key, run_id, data, created_at
	FROM durable_step_states WHERE state_key IN (?)`

func (d dbSession) SelectStepStates(ctx context.Context, stateKeys []string) ([]extensions.StepStateRow, error) {
	if len(stateKeys) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(selectStepStatesQuery, stateKeys)
	if err != nil {
		return nil, err
	}
	var rows []extensions.StepStateRow
	err = d.db.SelectContext(ctx, &rows, d.db.Rebind(query), args...)
	return rows, err
}

const deleteRunStepStatesQuery = `DELETE FROM durable_step_states WHERE run_id = ?`

func (d dbSession) DeleteRunStepStates(ctx context.Context, runId string) (int64, error) {
	result, err := d.db.ExecContext(ctx, deleteRunStepStatesQuery, runId)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (d dbSession) Close() error {
	return d.db.Close()
}
