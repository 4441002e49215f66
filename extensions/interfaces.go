// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package extensions

import (
	"context"

	"github.com/xcherryio/durable/config"
)

type SQLDBExtension interface {
	// StartDBSession starts the session for regular business logic
	StartDBSession(cfg *config.SQL) (SQLDBSession, error)
	// StartAdminDBSession starts the session for admin operation like DDL
	StartAdminDBSession(cfg *config.SQL) (SQLAdminDBSession, error)
}

type SQLDBSession interface {
	stepStateCRUD
	ErrorChecker
	Close() error
}

type SQLAdminDBSession interface {
	CreateDatabase(ctx context.Context, database string) error
	DropDatabase(ctx context.Context, database string) error
	ExecuteSchemaDDL(ctx context.Context, ddlQuery string) error
	Close() error
}

type stepStateCRUD interface {
	InsertStepState(ctx context.Context, row StepStateRow) error
	// SelectStepStates returns the rows found for the keys, in no particular order
	SelectStepStates(ctx context.Context, stateKeys []string) ([]StepStateRow, error)
	DeleteRunStepStates(ctx context.Context, runId string) (int64, error)
}

type ErrorChecker interface {
	IsDupEntryError(err error) bool
	IsTimeoutError(err error) bool
	IsThrottlingError(err error) bool
}
