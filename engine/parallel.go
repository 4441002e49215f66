// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"math"
	"runtime/debug"
	"sort"

	"go.uber.org/multierr"

	"github.com/xcherryio/durable/common/errs"
	"github.com/xcherryio/durable/common/log/tag"
	"github.com/xcherryio/durable/protocol"
)

// reportClass orders parked reports. Memoized progress is always released
// before anything that ends a branch.
type reportClass int

const (
	classMemo reportClass = iota
	classSkip
	classExecute
	classPlan
)

type parkedReport struct {
	branch     int
	info       protocol.StepInfo
	class      reportClass
	stackIndex int
	seq        int
	// release receives true to proceed, false to drain
	release chan bool
}

type branchOutcome struct {
	result    any
	err       error
	responses []protocol.StepResponse
	// repanic is raised again on the caller of Parallel
	repanic any
}

type branchEvent struct {
	branch  int
	report  *parkedReport
	outcome *branchOutcome
}

// group coordinates the branches of one Parallel call. At most one branch runs
// user code at any time, so step ids are hashed in a deterministic order.
type group struct {
	engine *Engine
	events chan branchEvent
	done   chan struct{}
}

type branchKey struct{}

type branchRef struct {
	group *group
	index int
}

func branchFromContext(ctx context.Context) (branchRef, bool) {
	ref, ok := ctx.Value(branchKey{}).(branchRef)
	return ref, ok
}

func (e *Engine) newReport(branch int, info protocol.StepInfo) *parkedReport {
	r := &parkedReport{
		branch:     branch,
		info:       info,
		class:      classPlan,
		stackIndex: e.input.CallCtx.Stack.IndexOf(info.ID),
		release:    make(chan bool, 1),
	}
	if r.stackIndex < 0 {
		r.stackIndex = math.MaxInt
	}
	target := e.target()
	switch {
	case e.input.Steps.Has(info.ID):
		r.class = classMemo
	case target != "" && target != info.ID:
		r.class = classSkip
	case target != "":
		r.class = classExecute
	}
	return r
}

// Parallel runs fns as branches of one group. Memoized steps are released in the
// orchestrator's stack order; steps that need work are collected into a single
// multi result instead of being run.
func (e *Engine) Parallel(ctx context.Context, fns ...func(ctx context.Context) (any, error)) ([]any, error) {
	if e.isFinished() {
		return nil, errs.ErrInvocationFinished
	}
	g := &group{
		engine: e,
		events: make(chan branchEvent),
		done:   make(chan struct{}),
	}

	outcomes := make([]*branchOutcome, len(fns))
	var parked []*parkedReport
	seq := 0
	handle := func(ev branchEvent) {
		if ev.report != nil {
			ev.report.seq = seq
			seq++
			parked = append(parked, ev.report)
			return
		}
		outcomes[ev.branch] = ev.outcome
	}

	// launch branches one at a time, each runs until its first step or its end
	for i, fn := range fns {
		go g.runBranch(ctx, i, fn)
		ev, err := g.next(ctx)
		if err != nil {
			return nil, g.abort(parked, err)
		}
		handle(ev)
	}

	// release chain
	for len(parked) > 0 {
		sort.SliceStable(parked, func(i, j int) bool {
			a, b := parked[i], parked[j]
			if a.class != b.class {
				return a.class < b.class
			}
			if a.stackIndex != b.stackIndex {
				return a.stackIndex < b.stackIndex
			}
			return a.seq < b.seq
		})
		next := parked[0]
		parked = parked[1:]
		next.release <- true

		ev, err := g.next(ctx)
		if err != nil {
			return nil, g.abort(parked, err)
		}
		handle(ev)
	}
	close(g.done)

	return e.resolveGroup(outcomes)
}

func (e *Engine) resolveGroup(outcomes []*branchOutcome) ([]any, error) {
	results := make([]any, len(outcomes))
	var responses []protocol.StepResponse
	var err error
	for i, out := range outcomes {
		if out.repanic != nil {
			panic(out.repanic)
		}
		results[i] = out.result
		responses = append(responses, out.responses...)
		err = multierr.Append(err, out.err)
	}
	if len(responses) > 0 {
		e.logger.Debug("parallel group staged steps", tag.Count(len(responses)))
		panic(&responseInterrupt{responses: responses})
	}
	e.markParallelStaged()
	return results, err
}

func (g *group) runBranch(ctx context.Context, index int, fn func(ctx context.Context) (any, error)) {
	out := &branchOutcome{}
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case *responseInterrupt:
				out.responses = v.responses
			case *skipInterrupt:
				// another step is targeted, the branch has nothing to contribute
			case *hookInterrupt, *branchPanic:
				out.repanic = v
			default:
				out.repanic = &branchPanic{value: r, stack: string(debug.Stack())}
			}
		}
		g.send(branchEvent{branch: index, outcome: out})
	}()
	out.result, out.err = fn(context.WithValue(ctx, branchKey{}, branchRef{group: g, index: index}))
}

// next waits for the running branch to park or finish
func (g *group) next(ctx context.Context) (branchEvent, error) {
	select {
	case ev := <-g.events:
		return ev, nil
	case <-ctx.Done():
		return branchEvent{}, ctx.Err()
	}
}

func (g *group) send(ev branchEvent) bool {
	select {
	case g.events <- ev:
		return true
	case <-g.done:
		return false
	}
}

// park blocks the branch until the coordinator releases its report. It returns
// false when the group was abandoned.
func (g *group) park(index int, r *parkedReport) bool {
	if !g.send(branchEvent{branch: index, report: r}) {
		return false
	}
	select {
	case ok := <-r.release:
		return ok
	case <-g.done:
		return false
	}
}

func (g *group) abort(parked []*parkedReport, err error) error {
	close(g.done)
	for _, r := range parked {
		r.release <- false
	}
	g.engine.logger.Warn("parallel group abandoned", tag.Error(err), tag.Count(len(parked)))
	return err
}
