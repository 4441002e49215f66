// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

// Package signing signs and verifies the messages exchanged with the orchestrator.
//
// A signature header is "t=<unix ms>&s=<hex hmac>", the MAC being HMAC-SHA256
// over the body followed by the t value, keyed with the signing key stripped of
// its "signkey-<env>-" prefix.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"time"
)

// DefaultMaxAge is how old a signed request may be
const DefaultMaxAge = 5 * time.Minute

// timestamps below this are read as seconds
const millisThreshold = 1_000_000_000_000

var keyPrefix = regexp.MustCompile(`^signkey-\w+-`)

var (
	ErrSignatureMissing   = errors.New("signature header is missing")
	ErrSignatureMalformed = errors.New("signature header is malformed")
	ErrSignatureExpired   = errors.New("signature has expired")
	ErrSignatureMismatch  = errors.New("signature does not match")
	ErrKeyMissing         = errors.New("signing key is not configured")
)

func normalizeKey(key string) []byte {
	return []byte(keyPrefix.ReplaceAllString(key, ""))
}

func mac(key string, body []byte, ts string) string {
	h := hmac.New(sha256.New, normalizeKey(key))
	h.Write(body)
	h.Write([]byte(ts))
	return hex.EncodeToString(h.Sum(nil))
}

// Sign returns the signature header value for body signed at now
func Sign(key string, body []byte, now time.Time) string {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	return "t=" + ts + "&s=" + mac(key, body, ts)
}

// Verify checks the signature header against one key
func Verify(header string, body []byte, key string, maxAge time.Duration, now time.Time) error {
	if key == "" {
		return ErrKeyMissing
	}
	if header == "" {
		return ErrSignatureMissing
	}
	values, err := url.ParseQuery(header)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureMalformed, err)
	}
	ts, sig := values.Get("t"), values.Get("s")
	if ts == "" || sig == "" {
		return ErrSignatureMalformed
	}
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid timestamp", ErrSignatureMalformed)
	}
	signedAt := time.UnixMilli(n)
	if n < millisThreshold {
		signedAt = time.Unix(n, 0)
	}
	if maxAge > 0 && now.Sub(signedAt) > maxAge {
		return ErrSignatureExpired
	}
	if !hmac.Equal([]byte(sig), []byte(mac(key, body, ts))) {
		return ErrSignatureMismatch
	}
	return nil
}

// VerifyWithFallback tries the primary key, then the fallback key, and
// returns the key that matched.
func VerifyWithFallback(header string, body []byte, key, fallback string, maxAge time.Duration, now time.Time) (string, error) {
	err := Verify(header, body, key, maxAge, now)
	if err == nil {
		return key, nil
	}
	if fallback == "" || !errors.Is(err, ErrSignatureMismatch) {
		return "", err
	}
	if fallbackErr := Verify(header, body, fallback, maxAge, now); fallbackErr != nil {
		return "", fallbackErr
	}
	return fallback, nil
}

// HashedKey returns the bearer token form of a signing key:
// the prefix followed by the hex SHA-256 of the hex-decoded key.
func HashedKey(key string) (string, error) {
	if key == "" {
		return "", ErrKeyMissing
	}
	prefix := keyPrefix.FindString(key)
	decoded, err := hex.DecodeString(string(normalizeKey(key)))
	if err != nil {
		return "", fmt.Errorf("signing key is not hex encoded: %w", err)
	}
	sum := sha256.Sum256(decoded)
	return prefix + hex.EncodeToString(sum[:]), nil
}
