// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package log

import (
	"sync/atomic"

	"github.com/xcherryio/durable/common/log/tag"
)

// GatedLogger drops Debug/Info/Warn/Error while it is disabled. Loggers derived
// through WithTags share the same gate.
type GatedLogger struct {
	delegate Logger
	enabled  *atomic.Bool
}

var _ Logger = (*GatedLogger)(nil)

func NewGatedLogger(delegate Logger) *GatedLogger {
	enabled := &atomic.Bool{}
	enabled.Store(true)
	return &GatedLogger{
		delegate: delegate,
		enabled:  enabled,
	}
}

func (g *GatedLogger) Enable() {
	g.enabled.Store(true)
}

func (g *GatedLogger) Disable() {
	g.enabled.Store(false)
}

func (g *GatedLogger) IsEnabled() bool {
	return g.enabled.Load()
}

func (g *GatedLogger) Debug(msg string, tags ...tag.Tag) {
	if g.enabled.Load() {
		g.delegate.Debug(msg, tags...)
	}
}

func (g *GatedLogger) Info(msg string, tags ...tag.Tag) {
	if g.enabled.Load() {
		g.delegate.Info(msg, tags...)
	}
}

func (g *GatedLogger) Warn(msg string, tags ...tag.Tag) {
	if g.enabled.Load() {
		g.delegate.Warn(msg, tags...)
	}
}

func (g *GatedLogger) Error(msg string, tags ...tag.Tag) {
	if g.enabled.Load() {
		g.delegate.Error(msg, tags...)
	}
}

// Fatal is never gated
func (g *GatedLogger) Fatal(msg string, tags ...tag.Tag) {
	g.delegate.Fatal(msg, tags...)
}

func (g *GatedLogger) WithTags(tags ...tag.Tag) Logger {
	return &GatedLogger{
		delegate: g.delegate.WithTags(tags...),
		enabled:  g.enabled,
	}
}
