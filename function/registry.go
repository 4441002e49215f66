// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package function

import (
	"fmt"
	"net/http"

	"github.com/xcherryio/durable/common/errs"
	"github.com/xcherryio/durable/protocol"
)

// Registry holds the functions served by one app. It is read-only once built
// and shared by all invocations.
type Registry struct {
	appID     string
	functions []*Function
	byID      map[string]*Function
	byLegacy  map[string]*Function
}

func NewRegistry(appID string, functions ...*Function) (*Registry, error) {
	r := &Registry{
		appID:    appID,
		byID:     map[string]*Function{},
		byLegacy: map[string]*Function{},
	}
	for _, fn := range functions {
		fqID := fn.FullyQualifiedID(appID)
		if _, ok := r.byID[fqID]; ok {
			return nil, fmt.Errorf("duplicate function id %v", fqID)
		}
		r.byID[fqID] = fn
		r.byLegacy[fn.LegacyID(appID)] = fn
		r.functions = append(r.functions, fn)
	}
	return r, nil
}

func (r *Registry) AppID() string {
	return r.appID
}

func (r *Registry) Len() int {
	return len(r.functions)
}

// Resolve finds a function by its fully qualified id, then by its legacy id
func (r *Registry) Resolve(fnId string) (*Function, error) {
	if fn, ok := r.byID[fnId]; ok {
		return fn, nil
	}
	if fn, ok := r.byLegacy[fnId]; ok {
		return fn, nil
	}
	return nil, errs.NewProtocolError(http.StatusNotFound, errs.CodeFunctionNotFound,
		"function %v is not served by app %v", fnId, r.appID)
}

// Configs describes every function for registration, in definition order
func (r *Registry) Configs(serveURL string) []protocol.FunctionConfig {
	configs := make([]protocol.FunctionConfig, 0, len(r.functions))
	for _, fn := range r.functions {
		configs = append(configs, fn.RegistrationConfig(r.appID, serveURL))
	}
	return configs
}
