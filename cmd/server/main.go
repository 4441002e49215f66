// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/xcherryio/durable/cmd/server/bootstrap"

	_ "github.com/xcherryio/durable/extensions/postgres" // import postgres extension
	_ "github.com/xcherryio/durable/extensions/sqlite"   // import sqlite extension
)

func main() {
	app := &cli.App{
		Name:  "durable example server",
		Usage: "serve the example durable functions",
		Action: func(c *cli.Context) error {
			bootstrap.StartDurableServerCli(c)
			return nil
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  bootstrap.FlagConfig,
				Value: "./config/development.yaml",
				Usage: "the config to start the server",
			},
			&cli.StringFlag{
				Name:  bootstrap.FlagService,
				Value: bootstrap.ApiServiceName,
				Usage: fmt.Sprintf("the services to start, separated by comma: %v,%v",
					bootstrap.ApiServiceName, bootstrap.PulsarServiceName),
			},
			&cli.BoolFlag{
				Name:  bootstrap.FlagSync,
				Usage: "register the functions with the orchestrator once started",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
