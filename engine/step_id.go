// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sync"
)

// stepCounter counts occurrences of each step id within one invocation
type stepCounter struct {
	sync.Mutex
	seen map[string]int
}

func newStepCounter() *stepCounter {
	return &stepCounter{seen: map[string]int{}}
}

// increment returns the 1-based occurrence of name
func (c *stepCounter) increment(name string) int {
	c.Lock()
	defer c.Unlock()
	c.seen[name]++
	return c.seen[name]
}

// HashStepID returns the hashed id of the n-th occurrence of a step id.
// The first occurrence hashes the plain id, later ones hash "<id>:<n-1>".
func HashStepID(name string, n int) string {
	key := name
	if n > 1 {
		key = fmt.Sprintf("%s:%d", name, n-1)
	}
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}
