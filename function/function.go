// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package function

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/iancoleman/strcase"

	"github.com/xcherryio/durable/common/log"
	"github.com/xcherryio/durable/middleware"
	"github.com/xcherryio/durable/protocol"
)

// Kind decides where the handler runs. It is fixed when the function is defined.
type Kind int

const (
	// KindSync handlers run inline on the goroutine serving the call
	KindSync Kind = iota
	// KindAsync handlers run on the bounded worker pool and may use async-only middleware
	KindAsync
)

func (k Kind) String() string {
	if k == KindAsync {
		return "async"
	}
	return "sync"
}

// Input is what a handler receives for one invocation.
type Input struct {
	Event   protocol.Event
	Events  []protocol.Event
	CallCtx protocol.CallCtx
	// Logger is silenced while memoized steps are replayed
	Logger log.Logger
}

type Handler func(ctx context.Context, input Input) (any, error)

type Trigger struct {
	Event      string
	Expression string
	Cron       string
}

func EventTrigger(name string) Trigger {
	return Trigger{Event: name}
}

func EventTriggerIf(name, expression string) Trigger {
	return Trigger{Event: name, Expression: expression}
}

func CronTrigger(cron string) Trigger {
	return Trigger{Cron: cron}
}

type Config struct {
	// ID is unique within the app. It is slugged to build the function id
	ID string
	// Name is shown in the orchestrator UI, defaults to ID
	Name     string
	Triggers []Trigger
	// Retries overrides the orchestrator default number of retries
	Retries     *int
	Concurrency []protocol.Concurrency
	BatchEvents *BatchEvents
	Cancel      []Cancel
	Idempotency *string
	// Middleware runs after the client middleware, in order
	Middleware []middleware.Factory
}

type BatchEvents struct {
	MaxSize int
	Timeout time.Duration
}

type Cancel struct {
	Event   string
	If      string
	Timeout time.Duration
}

// Function is a registered durable function. It is immutable once created.
type Function struct {
	config  Config
	kind    Kind
	handler Handler
}

// New defines a sync function
func New(cfg Config, handler Handler) (*Function, error) {
	return newFunction(cfg, KindSync, handler)
}

// NewAsync defines a function running on the worker pool
func NewAsync(cfg Config, handler Handler) (*Function, error) {
	return newFunction(cfg, KindAsync, handler)
}

func newFunction(cfg Config, kind Kind, handler Handler) (*Function, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("function id is required")
	}
	if Slug(cfg.ID) == "" {
		return nil, fmt.Errorf("function id %q has no usable characters", cfg.ID)
	}
	if len(cfg.Triggers) == 0 {
		return nil, fmt.Errorf("function %q needs at least one trigger", cfg.ID)
	}
	for _, t := range cfg.Triggers {
		if (t.Event == "") == (t.Cron == "") {
			return nil, fmt.Errorf("function %q: a trigger needs exactly one of event or cron", cfg.ID)
		}
	}
	if handler == nil {
		return nil, fmt.Errorf("function %q has no handler", cfg.ID)
	}
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}
	return &Function{config: cfg, kind: kind, handler: handler}, nil
}

func (f *Function) ID() string {
	return f.config.ID
}

func (f *Function) Name() string {
	return f.config.Name
}

func (f *Function) Kind() Kind {
	return f.kind
}

func (f *Function) Handler() Handler {
	return f.handler
}

func (f *Function) Middleware() []middleware.Factory {
	return f.config.Middleware
}

// Slug turns a function id into its url-safe form, e.g. "Send Welcome" to "send-welcome"
func Slug(id string) string {
	return strcase.ToKebab(id)
}

// FullyQualifiedID is "<app>-<slug>", the id the orchestrator calls the function with
func (f *Function) FullyQualifiedID(appID string) string {
	return appID + "-" + Slug(f.config.ID)
}

// LegacyID is "<app>-<id>" without slugging, still accepted when resolving
func (f *Function) LegacyID(appID string) string {
	return appID + "-" + f.config.ID
}

// RegistrationConfig is the function as described to the orchestrator on sync
func (f *Function) RegistrationConfig(appID, serveURL string) protocol.FunctionConfig {
	fqID := f.FullyQualifiedID(appID)

	triggers := make([]protocol.Trigger, 0, len(f.config.Triggers))
	for _, t := range f.config.Triggers {
		triggers = append(triggers, protocol.Trigger{Event: t.Event, Expression: t.Expression, Cron: t.Cron})
	}

	query := url.Values{}
	query.Set(protocol.QueryParamFunctionId, fqID)
	query.Set(protocol.QueryParamStepId, protocol.StepIdSentinel)
	stepConfig := protocol.StepConfig{
		ID:   protocol.StepIdSentinel,
		Name: protocol.StepIdSentinel,
		Runtime: protocol.StepRuntime{
			Type: "http",
			URL:  serveURL + "?" + query.Encode(),
		},
	}
	if f.config.Retries != nil {
		stepConfig.Retries = &protocol.Retries{Attempts: *f.config.Retries}
	}

	cfg := protocol.FunctionConfig{
		ID:          fqID,
		Name:        f.config.Name,
		Triggers:    triggers,
		Steps:       map[string]protocol.StepConfig{protocol.StepIdSentinel: stepConfig},
		Concurrency: f.config.Concurrency,
		Idempotency: f.config.Idempotency,
	}
	if b := f.config.BatchEvents; b != nil {
		cfg.BatchEvents = &protocol.BatchEvents{MaxSize: b.MaxSize, Timeout: b.Timeout.String()}
	}
	for _, c := range f.config.Cancel {
		cancel := protocol.Cancel{Event: c.Event, If: c.If}
		if c.Timeout > 0 {
			cancel.Timeout = c.Timeout.String()
		}
		cfg.Cancel = append(cfg.Cancel, cancel)
	}
	return cfg
}
