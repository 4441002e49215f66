// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// MustNewUUID returns the string form of a new time-ordered (v7) UUID
func MustNewUUID() string {
	newUuid, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return newUuid.String()
}

// ParseUUID validates s and returns its canonical string form
func ParseUUID(s string) (string, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid UUID string: %s, %w", s, err)
	}
	return parsed.String(), nil
}
