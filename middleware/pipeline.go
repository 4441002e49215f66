// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"fmt"
	"sync"

	"github.com/xcherryio/durable/common/errs"
)

type hook string

const (
	hookTransformInput  hook = "transform_input"
	hookBeforeExecution hook = "before_execution"
	hookAfterExecution  hook = "after_execution"
)

// Pipeline is the ordered middleware list of one invocation. Before-hooks run in
// registration order, after-hooks and TransformOutput in reverse.
type Pipeline struct {
	middleware []Middleware

	mu    sync.Mutex
	fired map[hook]bool
}

// NewPipeline fails with errs.ErrAsyncUnsupported when an async-only middleware
// would run in a synchronous context.
func NewPipeline(sync bool, middleware ...Middleware) (*Pipeline, error) {
	if sync {
		for _, m := range middleware {
			if a, ok := m.(AsyncOnly); ok && a.AsyncOnly() {
				return nil, fmt.Errorf("%w: %T", errs.ErrAsyncUnsupported, m)
			}
		}
	}
	return &Pipeline{
		middleware: middleware,
		fired:      map[hook]bool{},
	}, nil
}

// fire marks the hook as fired and reports whether it was the first time
func (p *Pipeline) fire(h hook) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fired[h] {
		return false
	}
	p.fired[h] = true
	return true
}

func (p *Pipeline) Fired(h string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fired[hook(h)]
}

func (p *Pipeline) TransformInput(ctx context.Context, input *CallInput) (context.Context, error) {
	if !p.fire(hookTransformInput) {
		return ctx, nil
	}
	for _, m := range p.middleware {
		next, err := m.TransformInput(ctx, input)
		if err != nil {
			return ctx, err
		}
		if next != nil {
			ctx = next
		}
	}
	return ctx, nil
}

func (p *Pipeline) BeforeExecution(ctx context.Context) error {
	if !p.fire(hookBeforeExecution) {
		return nil
	}
	for _, m := range p.middleware {
		if err := m.BeforeExecution(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) AfterExecution(ctx context.Context) error {
	if !p.fire(hookAfterExecution) {
		return nil
	}
	for i := len(p.middleware) - 1; i >= 0; i-- {
		if err := p.middleware[i].AfterExecution(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) TransformOutput(ctx context.Context, output *Output) error {
	for i := len(p.middleware) - 1; i >= 0; i-- {
		if err := p.middleware[i].TransformOutput(ctx, output); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) BeforeResponse(ctx context.Context) error {
	for _, m := range p.middleware {
		if err := m.BeforeResponse(ctx); err != nil {
			return err
		}
	}
	return nil
}
