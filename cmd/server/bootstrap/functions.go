// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xcherryio/durable/common/errs"
	"github.com/xcherryio/durable/common/ptr"
	"github.com/xcherryio/durable/function"
	"github.com/xcherryio/durable/middleware"
	"github.com/xcherryio/durable/persistence"
	"github.com/xcherryio/durable/protocol"
	"github.com/xcherryio/durable/step"
)

type signupData struct {
	UserId string `json:"user_id"`
	Email  string `json:"email"`
}

type reportSection struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// DemoFunctions are served by the example server. When a state driver is given the
// report function is async and offloads its step outputs to it.
func DemoFunctions(stateDriver persistence.StateDriver) []*function.Function {
	onboarding, err := function.New(function.Config{
		ID:       "user-onboarding",
		Name:     "User onboarding",
		Triggers: []function.Trigger{function.EventTrigger("user/signed.up")},
		Cancel:   []function.Cancel{{Event: "user/deleted", If: "event.data.user_id == async.data.user_id"}},
	}, onboardUser)
	if err != nil {
		panic(err)
	}

	reportConfig := function.Config{
		ID:          "daily-report",
		Triggers:    []function.Trigger{function.CronTrigger("0 6 * * *")},
		Concurrency: []protocol.Concurrency{{Limit: 1}},
	}
	var report *function.Function
	if stateDriver != nil {
		reportConfig.Middleware = []middleware.Factory{middleware.NewRemoteState(stateDriver)}
		report, err = function.NewAsync(reportConfig, buildReport)
	} else {
		report, err = function.New(reportConfig, buildReport)
	}
	if err != nil {
		panic(err)
	}
	return []*function.Function{onboarding, report}
}

func onboardUser(ctx context.Context, input function.Input) (any, error) {
	var user signupData
	if err := input.Event.Decode(&user); err != nil {
		return nil, errs.NoRetryError(fmt.Errorf("invalid signup event: %w", err))
	}
	input.Logger.Info("onboarding user")

	greeting, err := step.Run(ctx, "compose-greeting", func(ctx context.Context) (string, error) {
		name, _, _ := strings.Cut(user.Email, "@")
		return "Welcome, " + name, nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := step.SendEvent(ctx, "send-welcome", protocol.Event{
		Name: "email/send",
		Data: map[string]any{"to": user.Email, "body": greeting},
	}); err != nil {
		return nil, err
	}

	activation, err := step.WaitForEvent[map[string]any](ctx, "wait-for-activation", step.WaitForEventOpts{
		Event:   "user/activated",
		If:      ptr.Any("event.data.user_id == async.data.user_id"),
		Timeout: 72 * time.Hour,
	})
	if errors.Is(err, errs.ErrEventNotReceived) {
		return map[string]any{"user_id": user.UserId, "activated": false}, nil
	}
	if err != nil {
		return nil, err
	}

	if err := step.Sleep(ctx, "cool-down", 24*time.Hour); err != nil {
		return nil, err
	}
	return map[string]any{"user_id": user.UserId, "activated": true, "activation": activation}, nil
}

func buildReport(ctx context.Context, input function.Input) (any, error) {
	results, err := step.Parallel(ctx,
		func(ctx context.Context) (any, error) {
			return step.Run(ctx, "count-signups", func(ctx context.Context) (reportSection, error) {
				return reportSection{Name: "signups", Count: 0}, nil
			})
		},
		func(ctx context.Context) (any, error) {
			return step.Run(ctx, "count-activations", func(ctx context.Context) (reportSection, error) {
				return reportSection{Name: "activations", Count: 0}, nil
			})
		},
	)
	if err != nil {
		return nil, err
	}
	return step.Run(ctx, "publish-report", func(ctx context.Context) (map[string]any, error) {
		report := map[string]any{}
		for _, r := range results {
			section := r.(reportSection)
			report[section.Name] = section.Count
		}
		return report, nil
	})
}
