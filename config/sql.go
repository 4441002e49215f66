// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package config

type (
	// SQL is the configuration for connecting to a SQL backed datastore
	SQL struct {
		// User is the username to be used for connecting to database
		User string `yaml:"user"`
		// Password is the password corresponding to the username
		Password string `yaml:"password"`
		// DatabaseName is the name of SQL database to connect to,
		// or the file path for sqlite
		DatabaseName string `yaml:"databaseName"`
		// ConnectAddr is the remote addr of the database, unused by sqlite
		ConnectAddr string `yaml:"connectAddr"`
		// DBExtensionName is the name of the extension, postgres or sqlite
		DBExtensionName string `yaml:"dbExtensionName" validate:"oneof=postgres sqlite"`
		// MaxOpenConns bounds the connection pool. Default is 10
		MaxOpenConns int `yaml:"maxOpenConns" default:"10"`
	}
)
