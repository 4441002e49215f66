// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package urlautofix

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultFixServeUrlFunc(t *testing.T) {
	t.Setenv("AUTO_FIX_LOCALHOST_SERVE_URL", "host.docker.internal")
	assert.Equal(t, "http://host.docker.internal:8080/api/inngest", FixServeUrl("http://localhost:8080/api/inngest"))
	assert.Equal(t, "http://host.docker.internal:8080/api/inngest", FixServeUrl("http://127.0.0.1:8080/api/inngest"))

	t.Setenv("AUTO_FIX_LOCALHOST_SERVE_URL", "")
	assert.Equal(t, "http://localhost:8080/api/inngest", FixServeUrl("http://localhost:8080/api/inngest"))
}
