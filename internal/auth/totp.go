// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"time"
)

// Time-based one-time codes for the local provider's second factor:
// HMAC-SHA1 over a 30 second counter, truncated to 6 digits, with one
// step of clock skew accepted in either direction.
const (
	factorStep   = 30 * time.Second
	factorDigits = 1000000
	factorSkew   = 1
)

// newFactorSecret returns a fresh base32 provisioning secret.
func newFactorSecret() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate factor secret: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

// factorCode computes the code for the counter step containing t.
func factorCode(secret string, t time.Time) (string, error) {
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("malformed factor secret: %w", err)
	}

	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], uint64(t.Unix())/uint64(factorStep/time.Second))

	mac := hmac.New(sha1.New, key)
	mac.Write(counter[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	return fmt.Sprintf("%06d", code%factorDigits), nil
}

// verifyFactorCode checks a submitted code against the secret at time t,
// tolerating factorSkew steps of drift.
func verifyFactorCode(secret, code string, t time.Time) bool {
	for i := -factorSkew; i <= factorSkew; i++ {
		expected, err := factorCode(secret, t.Add(time.Duration(i)*factorStep))
		if err != nil {
			return false
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return true
		}
	}
	return false
}
