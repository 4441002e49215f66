// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package httperror

import (
	"github.com/go-resty/resty/v2"

	"github.com/xcherryio/durable/common/log"
	"github.com/xcherryio/durable/common/log/tag"
)

// CheckHttpResponseAndError returns true when the call failed, either in transport or with an error status
func CheckHttpResponseAndError(err error, resp *resty.Response, logger log.Logger) bool {
	status := 0
	if resp != nil {
		status = resp.StatusCode()
	}
	logger.Debug("check http response and error", tag.Error(err), tag.StatusCode(status))

	if err != nil || (resp != nil && resp.IsError()) {
		return true
	}
	return false
}
