// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package step

import (
	"context"
	"fmt"

	"github.com/xcherryio/durable/protocol"
)

// SendEvent sends events as a step, so that they are sent once even when the
// function is replayed. It returns the event ids.
func SendEvent(ctx context.Context, id string, events ...protocol.Event) ([]string, error) {
	e, err := fromContext(ctx)
	if err != nil {
		return nil, err
	}
	for _, evt := range events {
		if err := evt.Validate(); err != nil {
			return nil, err
		}
	}
	return Run(ctx, id, func(ctx context.Context) ([]string, error) {
		sender := e.EventSender()
		if sender == nil {
			return nil, fmt.Errorf("no event sender is configured")
		}
		return sender.Send(ctx, events...)
	})
}
