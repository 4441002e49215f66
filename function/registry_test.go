// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package function

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xcherryio/durable/common/errs"
)

func TestRegistryResolve(t *testing.T) {
	fn, err := New(Config{ID: "sendWelcomeEmail", Triggers: []Trigger{EventTrigger("user/created")}}, noop)
	require.NoError(t, err)
	registry, err := NewRegistry("my-app", fn)
	require.NoError(t, err)
	assert.Equal(t, 1, registry.Len())

	found, err := registry.Resolve("my-app-send-welcome-email")
	require.NoError(t, err)
	assert.Same(t, fn, found)

	found, err = registry.Resolve("my-app-sendWelcomeEmail")
	require.NoError(t, err)
	assert.Same(t, fn, found)

	_, err = registry.Resolve("my-app-unknown")
	var protoErr *errs.ProtocolError
	require.True(t, errors.As(err, &protoErr))
	assert.Equal(t, errs.CodeFunctionNotFound, protoErr.Code)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	a, err := New(Config{ID: "Send Welcome", Triggers: []Trigger{EventTrigger("a")}}, noop)
	require.NoError(t, err)
	b, err := New(Config{ID: "send-welcome", Triggers: []Trigger{EventTrigger("b")}}, noop)
	require.NoError(t, err)

	_, err = NewRegistry("app", a, b)
	assert.Error(t, err)
}

func TestRegistryConfigsKeepOrder(t *testing.T) {
	a, err := New(Config{ID: "b-fn", Triggers: []Trigger{EventTrigger("a")}}, noop)
	require.NoError(t, err)
	b, err := New(Config{ID: "a-fn", Triggers: []Trigger{CronTrigger("0 * * * *")}}, noop)
	require.NoError(t, err)
	registry, err := NewRegistry("app", a, b)
	require.NoError(t, err)

	configs := registry.Configs("http://localhost:8080/api/inngest")
	require.Len(t, configs, 2)
	assert.Equal(t, "app-b-fn", configs[0].ID)
	assert.Equal(t, "app-a-fn", configs[1].ID)
	assert.Equal(t, "0 * * * *", configs[1].Triggers[0].Cron)
}
