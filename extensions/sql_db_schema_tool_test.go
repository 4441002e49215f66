// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package extensions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xcherryio/durable/config"
)

func TestValidateConnectConfig(t *testing.T) {
	assert.NoError(t, ValidateConnectConfig(&config.SQL{ConnectAddr: "127.0.0.1:5432", DatabaseName: "durable"}))
	assert.Error(t, ValidateConnectConfig(&config.SQL{ConnectAddr: "127.0.0.1", DatabaseName: "durable"}))
	assert.Error(t, ValidateConnectConfig(&config.SQL{ConnectAddr: ":5432", DatabaseName: "durable"}))
	assert.Error(t, ValidateConnectConfig(&config.SQL{ConnectAddr: "127.0.0.1:5432"}))
}

func TestUnknownExtension(t *testing.T) {
	_, err := NewSQLSession(&config.SQL{DBExtensionName: "oracle"})
	assert.Error(t, err)
	_, err = NewSQLAdminSession(&config.SQL{DBExtensionName: "oracle"})
	assert.Error(t, err)
}
