// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

// Package sqlite is the embedded step state store. It needs no server and is
// the default for local development and tests.
package sqlite

import (
	_ "embed"
	"fmt"

	"github.com/iancoleman/strcase"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // load the SQL driver for sqlite

	"github.com/xcherryio/durable/config"
	"github.com/xcherryio/durable/extensions"
)

const (
	ExtensionName = "sqlite"

	driverName     = "sqlite3"
	inMemoryDBName = ":memory:"
)

//go:embed schema/durable.sql
var schemaSQL string

type extension struct{}

var _ extensions.SQLDBExtension = (*extension)(nil)

func init() {
	extensions.RegisterSQLDBExtension(ExtensionName, &extension{})
}

// StartDBSession opens the database file and makes sure the schema exists
func (d *extension) StartDBSession(cfg *config.SQL) (extensions.SQLDBSession, error) {
	db, err := openDB(cfg.DatabaseName)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return newDBSession(db), nil
}

func (d *extension) StartAdminDBSession(cfg *config.SQL) (extensions.SQLAdminDBSession, error) {
	db, err := openDB(cfg.DatabaseName)
	if err != nil {
		return nil, err
	}
	return newAdminDBSession(db), nil
}

func openDB(path string) (*sqlx.DB, error) {
	if path == "" {
		path = inMemoryDBName
	}
	db, err := sqlx.Connect(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %v: %w", path, err)
	}
	// sqlite allows a single writer, and every connection to :memory: is a new database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	db.MapperFunc(strcase.ToSnake)
	return db, nil
}

func applyPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}
