// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"errors"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/xcherryio/durable/extensions"
)

// adminDBSession treats a database as a file on disk
type adminDBSession struct {
	db *sqlx.DB
}

var _ extensions.SQLAdminDBSession = (*adminDBSession)(nil)

func newAdminDBSession(db *sqlx.DB) *adminDBSession {
	return &adminDBSession{
		db: db,
	}
}

func (a adminDBSession) CreateDatabase(ctx context.Context, database string) error {
	db, err := openDB(database)
	if err != nil {
		return err
	}
	return db.Close()
}

func (a adminDBSession) DropDatabase(ctx context.Context, database string) error {
	for _, suffix := range []string{"", "-wal", "-shm"} {
		err := os.Remove(database + suffix)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (a adminDBSession) ExecuteSchemaDDL(ctx context.Context, ddlQuery string) error {
	_, err := a.db.ExecContext(ctx, ddlQuery)
	return err
}

func (a adminDBSession) Close() error {
	return a.db.Close()
}
