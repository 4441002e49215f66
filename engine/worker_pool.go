// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/xcherryio/durable/common/log"
	"github.com/xcherryio/durable/common/log/tag"
	"github.com/xcherryio/durable/config"
)

type poolTask struct {
	ctx context.Context
	fn  func(ctx context.Context)
}

// WorkerPool runs async function invocations on a bounded set of goroutines.
type WorkerPool struct {
	rootCtx     context.Context
	cancel      context.CancelFunc
	concurrency int
	tasks       chan poolTask
	wg          sync.WaitGroup
	logger      log.Logger
}

func NewWorkerPool(ctx context.Context, cfg config.WorkerPoolConfig, logger log.Logger) *WorkerPool {
	rootCtx, cancel := context.WithCancel(ctx)
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &WorkerPool{
		rootCtx:     rootCtx,
		cancel:      cancel,
		concurrency: concurrency,
		tasks:       make(chan poolTask, cfg.BufferSize),
		logger:      logger,
	}
}

func (p *WorkerPool) Start() error {
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-p.rootCtx.Done():
					return
				case task := <-p.tasks:
					p.process(task)
				}
			}
		}()
	}
	p.logger.Info("worker pool started", tag.Count(p.concurrency))
	return nil
}

func (p *WorkerPool) process(task poolTask) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in worker pool task", tag.Value(r), tag.Message(string(debug.Stack())))
		}
	}()
	if task.ctx.Err() != nil {
		p.logger.Debug("skip the task whose caller is gone", tag.Error(task.ctx.Err()))
		return
	}
	task.fn(task.ctx)
}

// Submit queues fn. It blocks while the buffer is full and fails when ctx is
// done or the pool is stopped.
func (p *WorkerPool) Submit(ctx context.Context, fn func(ctx context.Context)) error {
	if p.rootCtx.Err() != nil {
		return fmt.Errorf("worker pool is stopped")
	}
	select {
	case p.tasks <- poolTask{ctx: ctx, fn: fn}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.rootCtx.Done():
		return fmt.Errorf("worker pool is stopped")
	}
}

// Stop stops accepting tasks and waits for running ones until ctx is done
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
