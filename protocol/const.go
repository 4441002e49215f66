// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package protocol

const (
	SDKLanguage = "go"
	SDKVersion  = "0.1.0"
	SDKAuthor   = "xcherryio"

	// RequestVersion is the version of the invoke request/response contract
	RequestVersion = "1"
	// RegistrationVersion is the version of the registration payload
	RegistrationVersion = "0.1"
	// InspectionSchemaVersion is the version of the introspection body
	InspectionSchemaVersion = "2024-05-24"
)

const (
	HeaderSignature      = "X-Inngest-Signature"
	HeaderSDK            = "X-Inngest-SDK"
	HeaderFramework      = "X-Inngest-Framework"
	HeaderNoRetry        = "X-Inngest-No-Retry"
	HeaderRetryAfter     = "Retry-After"
	HeaderReqVersion     = "X-Inngest-Req-Version"
	HeaderServerKind     = "X-Inngest-Server-Kind"
	HeaderExpectedServer = "X-Inngest-Expected-Server-Kind"
	HeaderSyncKind       = "X-Inngest-Sync-Kind"
	HeaderAuthorization  = "Authorization"
	HeaderContentType    = "Content-Type"
	HeaderUserAgent      = "User-Agent"
	HeaderEnv            = "X-Inngest-Env"
)

const (
	QueryParamFunctionId = "fnId"
	QueryParamStepId     = "stepId"
	QueryParamDeployId   = "deployId"

	// StepIdSentinel is the stepId value meaning "no target step"
	StepIdSentinel = "step"
)

const (
	ServerKindCloud = "cloud"
	ServerKindDev   = "dev"

	SyncKindInBand    = "in_band"
	SyncKindOutOfBand = "out_of_band"
)

// SDKHeaderValue is the value of the SDK header, e.g. "go:v0.1.0"
func SDKHeaderValue() string {
	return SDKLanguage + ":v" + SDKVersion
}
