// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"
	"fmt"
	rawLog "log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.uber.org/multierr"

	"github.com/xcherryio/durable/client"
	"github.com/xcherryio/durable/common/log"
	"github.com/xcherryio/durable/common/log/tag"
	"github.com/xcherryio/durable/config"
	"github.com/xcherryio/durable/engine"
	"github.com/xcherryio/durable/function"
	"github.com/xcherryio/durable/middleware"
	"github.com/xcherryio/durable/persistence"
	sqlpersistence "github.com/xcherryio/durable/persistence/sql"
	"github.com/xcherryio/durable/service/api"
	"github.com/xcherryio/durable/service/transport/pulsar"
)

const ApiServiceName = "api"
const PulsarServiceName = "pulsar"

const FlagConfig = "config"
const FlagService = "service"
const FlagSync = "sync"

const tracerName = "github.com/xcherryio/durable"

func StartDurableServerCli(c *cli.Context) {
	// register interrupt signal for graceful shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	configPath := c.String(FlagConfig)
	services := getServices(c)

	cfg, err := config.NewConfig(configPath)
	if err != nil {
		rawLog.Fatalf("Unable to load config for path %v because of error %v", configPath, err)
	}
	shutdownFunc := StartDurableServer(rootCtx, cfg, services, c.Bool(FlagSync))
	// wait for os signals
	<-rootCtx.Done()

	ctx, cancF := context.WithTimeout(context.Background(), time.Second*10)
	defer cancF()
	err = shutdownFunc(ctx)
	if err != nil {
		fmt.Println("shutdown error:", err)
	}
}

type GracefulShutdown func(ctx context.Context) error

// StartDurableServer serves the demo functions. With syncOnStart the functions are
// registered out of band once the servers are up.
func StartDurableServer(
	rootCtx context.Context, cfg *config.Config, services map[string]bool, syncOnStart bool,
) GracefulShutdown {
	if len(services) == 0 {
		services = map[string]bool{ApiServiceName: true}
	}

	zapLogger, err := cfg.Log.NewZapLogger(cfg.App.ID)
	if err != nil {
		rawLog.Fatalf("Unable to create a new zap logger %v", err)
	}
	logger := log.NewLogger(zapLogger)
	err = cfg.ValidateAndSetDefaults()
	if err != nil {
		logger.Fatal("config is invalid", tag.Error(err))
	}
	logger.Info("config is loaded", tag.Value(cfg.String()))

	middlewares := []middleware.Factory{
		middleware.NewTracing(otel.Tracer(tracerName)),
	}
	var stateDriver persistence.StateDriver
	if cfg.StateStore != nil {
		stateDriver, err = sqlpersistence.NewSQLStateDriver(*cfg.StateStore, logger)
		if err != nil {
			logger.Fatal("error on state store setup", tag.Error(err))
		}
	}

	registry, err := function.NewRegistry(cfg.App.ID, DemoFunctions(stateDriver)...)
	if err != nil {
		logger.Fatal("invalid functions", tag.Error(err))
	}

	workerPool := engine.NewWorkerPool(rootCtx, cfg.WorkerPool, logger.WithTags(tag.Service("worker-pool")))
	if err := workerPool.Start(); err != nil {
		logger.Fatal("Failed to start the worker pool", tag.Error(err))
	}

	orchestrator := client.New(cfg.App, logger)
	svc := api.NewServiceImpl(cfg.App, registry, api.ServiceOptions{
		Client:     orchestrator,
		WorkerPool: workerPool,
		Middleware: middlewares,
	}, logger)

	var servers []api.Server
	if services[ApiServiceName] {
		apiServer := api.NewDefaultAPIServerWithGin(
			rootCtx, *cfg, svc, logger.WithTags(tag.Service(ApiServiceName)))
		if err := apiServer.Start(); err != nil {
			logger.Fatal("Failed to start api server", tag.Error(err))
		}
		servers = append(servers, apiServer)
	}
	if services[PulsarServiceName] {
		if cfg.Transport == nil {
			logger.Fatal("the pulsar service needs a transport config")
		}
		transport := pulsar.NewPulsarTransport(rootCtx, *cfg.Transport.Pulsar, svc, logger)
		if err := transport.Start(); err != nil {
			logger.Fatal("Failed to start pulsar transport", tag.Error(err))
		}
		servers = append(servers, transport)
	}

	if syncOnStart {
		resp := svc.Sync(rootCtx, api.CommRequest{})
		if resp.StatusCode >= 300 {
			logger.Error("failed to sync functions on start",
				tag.StatusCode(resp.StatusCode), tag.Message(string(resp.Body)))
		}
	}

	return func(ctx context.Context) error {
		// graceful shutdown
		var errs error
		// first stop accepting requests
		for _, server := range servers {
			errs = multierr.Append(errs, server.Stop(ctx))
		}
		errs = multierr.Append(errs, workerPool.Stop(ctx))
		if stateDriver != nil {
			errs = multierr.Append(errs, stateDriver.Close())
		}
		return errs
	}
}

func getServices(c *cli.Context) map[string]bool {
	val := strings.TrimSpace(c.String(FlagService))
	tokens := strings.Split(val, ",")

	if len(tokens) == 0 {
		rawLog.Fatal("No services specified for starting")
	}

	services := map[string]bool{}
	for _, token := range tokens {
		t := strings.TrimSpace(token)
		services[t] = true
	}

	return services
}
