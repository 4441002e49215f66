// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package protocol

const DeployTypePing = "ping"

// FunctionConfig is the registration form of one function.
type FunctionConfig struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Triggers    []Trigger             `json:"triggers"`
	Steps       map[string]StepConfig `json:"steps"`
	Concurrency []Concurrency         `json:"concurrency,omitempty"`
	BatchEvents *BatchEvents          `json:"batchEvents,omitempty"`
	Idempotency *string               `json:"idempotency,omitempty"`
	Cancel      []Cancel              `json:"cancel,omitempty"`
}

type Trigger struct {
	Event      string `json:"event,omitempty"`
	Expression string `json:"expression,omitempty"`
	Cron       string `json:"cron,omitempty"`
}

type StepConfig struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Runtime StepRuntime `json:"runtime"`
	Retries *Retries    `json:"retries,omitempty"`
}

type StepRuntime struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type Retries struct {
	Attempts int `json:"attempts"`
}

type Concurrency struct {
	Limit int    `json:"limit"`
	Key   string `json:"key,omitempty"`
	Scope string `json:"scope,omitempty"`
}

type BatchEvents struct {
	MaxSize int    `json:"maxSize"`
	Timeout string `json:"timeout"`
}

type Cancel struct {
	Event   string `json:"event"`
	If      string `json:"if,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

// RegisterRequest is sent to the orchestrator's register endpoint on out-of-band sync.
type RegisterRequest struct {
	AppName    string           `json:"appname"`
	DeployType string           `json:"deploy_type"`
	Framework  string           `json:"framework"`
	Functions  []FunctionConfig `json:"functions"`
	SDK        string           `json:"sdk"`
	URL        string           `json:"url"`
	V          string           `json:"v"`
}

type RegisterResponse struct {
	Error    string `json:"error,omitempty"`
	Message  string `json:"message,omitempty"`
	Modified bool   `json:"modified"`
}

type InBandSyncRequest struct {
	URL string `json:"url"`
}

// InBandSyncResponse is returned (signed) when the orchestrator asks for an in-band sync.
type InBandSyncResponse struct {
	AppID       string                  `json:"app_id"`
	Env         *string                 `json:"env"`
	Framework   string                  `json:"framework"`
	Functions   []FunctionConfig        `json:"functions"`
	Inspection  AuthenticatedInspection `json:"inspection"`
	SDKAuthor   string                  `json:"sdk_author"`
	SDKLanguage string                  `json:"sdk_language"`
	SDKVersion  string                  `json:"sdk_version"`
	URL         string                  `json:"url"`
}

// UnauthenticatedInspection is the reduced introspection body anyone may read.
type UnauthenticatedInspection struct {
	SchemaVersion           string `json:"schema_version"`
	AuthenticationSucceeded *bool  `json:"authentication_succeeded"`
	FunctionCount           int    `json:"function_count"`
	HasEventKey             bool   `json:"has_event_key"`
	HasSigningKey           bool   `json:"has_signing_key"`
	HasSigningKeyFallback   bool   `json:"has_signing_key_fallback"`
	Mode                    string `json:"mode"`
}

// AuthenticatedInspection is returned only to callers holding the signing key.
type AuthenticatedInspection struct {
	UnauthenticatedInspection
	APIOrigin              string  `json:"api_origin"`
	AppID                  string  `json:"app_id"`
	Env                    *string `json:"env"`
	EventAPIOrigin         string  `json:"event_api_origin"`
	EventKeyHash           *string `json:"event_key_hash"`
	Framework              string  `json:"framework"`
	SDKLanguage            string  `json:"sdk_language"`
	SDKVersion             string  `json:"sdk_version"`
	ServeOrigin            *string `json:"serve_origin"`
	ServePath              *string `json:"serve_path"`
	SigningKeyHash         *string `json:"signing_key_hash"`
	SigningKeyFallbackHash *string `json:"signing_key_fallback_hash"`
}

// SendEventResponse is the event API response
type SendEventResponse struct {
	IDs    []string `json:"ids"`
	Status int      `json:"status"`
	Error  string   `json:"error,omitempty"`
}
