// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package urlautofix

import (
	"os"
	"strings"
)

type FixServeUrlFunc func(url string) string

var serveUrlFixer FixServeUrlFunc = DefaultFixServeUrlFunc

func SetServeUrlFixer(fixer FixServeUrlFunc) {
	serveUrlFixer = fixer
}

// FixServeUrl rewrites the URL the orchestrator is told to call, e.g. when the
// orchestrator runs in a container and cannot reach localhost.
func FixServeUrl(url string) string {
	return serveUrlFixer(url)
}

func DefaultFixServeUrlFunc(url string) string {
	autofixUrl := os.Getenv("AUTO_FIX_LOCALHOST_SERVE_URL")
	if autofixUrl != "" {
		url = strings.Replace(url, "localhost", autofixUrl, 1)
		url = strings.Replace(url, "127.0.0.1", autofixUrl, 1)
	}

	return url
}
