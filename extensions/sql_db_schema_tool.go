// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package extensions

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/xcherryio/durable/config"
)

func SetupSchemaByCli(cli *cli.Context, extensionName string) error {
	cfg, err := ParseConnectConfig(cli, extensionName)
	if err != nil {
		return err
	}
	filePath := cli.String(CLIFlagFile)
	return SetupSchema(cfg, filePath)
}

func SetupSchema(cfg *config.SQL, filePath string) error {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("error reading contents of file %v:%v", filePath, err.Error())
	}

	adminSession, err := NewSQLAdminSession(cfg)
	if err != nil {
		return err
	}
	defer adminSession.Close()

	return adminSession.ExecuteSchemaDDL(context.Background(), string(content))
}

func CreateDatabaseByCli(cli *cli.Context, extensionName string) error {
	cfg, err := ParseConnectConfig(cli, extensionName)
	if err != nil {
		return err
	}
	database := cli.String(CLIFlagDatabase)
	return CreateDatabase(*cfg, database)
}

func CreateDatabase(cfg config.SQL, name string) error {
	// the database does not exist yet, it's up to the extension to connect without one
	cfg.DatabaseName = ""

	adminSession, err := NewSQLAdminSession(&cfg)
	if err != nil {
		return err
	}
	defer adminSession.Close()
	return adminSession.CreateDatabase(context.Background(), name)
}

func DropDatabase(cfg config.SQL, name string) error {
	// in Postgres, all connections must be closed before deleting a database
	cfg.DatabaseName = ""
	adminSession, err := NewSQLAdminSession(&cfg)
	if err != nil {
		return err
	}
	defer adminSession.Close()
	return adminSession.DropDatabase(context.Background(), name)
}

func ParseConnectConfig(cli *cli.Context, extensionName string) (*config.SQL, error) {
	cfg := new(config.SQL)

	host := cli.String(CLIFlagEndpoint)
	port := cli.Int(CLIFlagPort)
	cfg.ConnectAddr = fmt.Sprintf("%s:%v", host, port)
	cfg.User = cli.String(CLIFlagUser)
	cfg.Password = cli.String(CLIFlagPassword)
	cfg.DatabaseName = cli.String(CLIFlagDatabase)
	cfg.DBExtensionName = extensionName

	if err := ValidateConnectConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func ValidateConnectConfig(cfg *config.SQL) error {
	host, _, err := net.SplitHostPort(cfg.ConnectAddr)
	if err != nil {
		return fmt.Errorf("invalid host and port %v", cfg.ConnectAddr)
	}
	if len(host) == 0 {
		return fmt.Errorf("missing sql endpoint argument %v", flag(CLIFlagEndpoint))
	}
	if cfg.DatabaseName == "" {
		return fmt.Errorf("missing %v argument", flag(CLIFlagDatabase))
	}
	return nil
}

func flag(opt string) string {
	return "(-" + opt + ")"
}
