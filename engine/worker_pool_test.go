// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xcherryio/durable/common/log"
	"github.com/xcherryio/durable/config"
	"github.com/xcherryio/durable/middleware"
	"github.com/xcherryio/durable/protocol"
)

func newTestPool(t *testing.T, concurrency int) *WorkerPool {
	pool := NewWorkerPool(context.Background(), config.WorkerPoolConfig{
		Concurrency: concurrency,
		BufferSize:  10,
	}, log.NewNopLogger())
	require.NoError(t, pool.Start())
	return pool
}

func TestDispatchOnPool(t *testing.T) {
	pool := newTestPool(t, 2)
	defer pool.Stop(context.Background())

	e := newTestEngine(protocol.CallCtx{RunID: "run-1"})
	result := e.Dispatch(context.Background(), pool, func(ctx context.Context, input *middleware.CallInput) (any, error) {
		return "pooled", nil
	})
	assert.Equal(t, ResultOutput, result.Kind)
	assert.Equal(t, "pooled", result.Output)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := newTestPool(t, 2)
	defer pool.Stop(context.Background())

	var running, maxRunning int32
	done := make(chan struct{}, 6)
	for i := 0; i < 6; i++ {
		require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context) {
			n := atomic.AddInt32(&running, 1)
			for {
				m := atomic.LoadInt32(&maxRunning)
				if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			done <- struct{}{}
		}))
	}
	for i := 0; i < 6; i++ {
		<-done
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&maxRunning), int32(2))
}

func TestPoolSurvivesTaskPanic(t *testing.T) {
	pool := newTestPool(t, 1)
	defer pool.Stop(context.Background())

	require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context) {
		panic("boom")
	}))
	done := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context) {
		close(done)
	}))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("the worker did not survive the panic")
	}
}

func TestSubmitAfterStopFails(t *testing.T) {
	pool := newTestPool(t, 1)
	require.NoError(t, pool.Stop(context.Background()))

	err := pool.Submit(context.Background(), func(ctx context.Context) {})
	assert.Error(t, err)

	e := newTestEngine(protocol.CallCtx{})
	result := e.Dispatch(context.Background(), pool, func(ctx context.Context, input *middleware.CallInput) (any, error) {
		return nil, nil
	})
	assert.Equal(t, ResultError, result.Kind)
}
