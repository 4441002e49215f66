// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"errors"

	"github.com/lib/pq"
)

// ErrDupEntry indicates a duplicate primary key i.e. the row already exists,
// check http://www.postgresql.org/docs/9.3/static/errcodes-appendix.html
const ErrDupEntry = "23505"

const ErrInsufficientResources = "53000"
const ErrTooManyConnections = "53300"

func (d dbSession) IsDupEntryError(err error) bool {
	var sqlErr *pq.Error
	ok := errors.As(err, &sqlErr)
	return ok && sqlErr.Code == ErrDupEntry
}

func (d dbSession) IsTimeoutError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func (d dbSession) IsThrottlingError(err error) bool {
	var sqlErr *pq.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code == ErrTooManyConnections ||
			sqlErr.Code == ErrInsufficientResources
	}
	return false
}
