// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package step

import "context"

// Parallel runs fns as parallel branches. Steps discovered in several branches
// are reported to the orchestrator together and run concurrently by it.
// The results are in the order of fns; branch errors are combined.
//
// Memoized steps are released in the orchestrator's stack order within one
// group only. A Parallel nested in a branch is coordinated by its own group and
// settles its memoized steps before the outer group launches the next branch.
func Parallel(ctx context.Context, fns ...func(ctx context.Context) (any, error)) ([]any, error) {
	e, err := fromContext(ctx)
	if err != nil {
		return nil, err
	}
	return e.Parallel(ctx, fns...)
}
