// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"math"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/xcherryio/durable/config"
)

// Default: 3 attempts with 1 second initial interval, 10 seconds max interval, and 2 backoff factor
var defaultRetryPolicy = config.RetryPolicy{
	InitialInterval:    time.Second,
	BackoffCoefficient: 2,
	MaximumInterval:    10 * time.Second,
	MaximumAttempts:    3,
}

// GetNextBackoff returns how long to wait after the given number of failed attempts
func GetNextBackoff(completedAttempts int, policy config.RetryPolicy) (nextBackoff time.Duration, shouldRetry bool) {
	policy = setDefaultRetryPolicyValue(policy)
	if completedAttempts >= policy.MaximumAttempts {
		return 0, false
	}
	next := time.Duration(float64(policy.InitialInterval) * math.Pow(policy.BackoffCoefficient, float64(completedAttempts-1)))
	if next > policy.MaximumInterval {
		next = policy.MaximumInterval
	}
	return next, true
}

func setDefaultRetryPolicyValue(policy config.RetryPolicy) config.RetryPolicy {
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = defaultRetryPolicy.InitialInterval
	}
	if policy.BackoffCoefficient < 1 {
		policy.BackoffCoefficient = defaultRetryPolicy.BackoffCoefficient
	}
	if policy.MaximumInterval < policy.InitialInterval {
		policy.MaximumInterval = policy.InitialInterval
	}
	if policy.MaximumAttempts <= 0 {
		policy.MaximumAttempts = 1
	}
	return policy
}

// withRetries retries transport errors, 5xx and 429 responses. 401 is not retried
// here, the caller moves on to the fallback key instead.
func withRetries(httpClient *resty.Client, policy config.RetryPolicy) *resty.Client {
	policy = setDefaultRetryPolicyValue(policy)
	return httpClient.
		SetRetryCount(policy.MaximumAttempts - 1).
		SetRetryWaitTime(policy.InitialInterval).
		SetRetryMaxWaitTime(policy.MaximumInterval).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			attempt := 1
			if resp != nil && resp.Request != nil {
				attempt = resp.Request.Attempt
			}
			next, _ := GetNextBackoff(attempt, policy)
			return next, nil
		}).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode() >= http.StatusInternalServerError ||
				resp.StatusCode() == http.StatusTooManyRequests
		})
}
