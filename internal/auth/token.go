// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token verification errors. Both a bad signature and an expiry in the
// past are terminal rejections.
var (
	// ErrMalformed indicates the token could not be parsed at all.
	ErrMalformed = errors.New("malformed token")

	// ErrInvalidSignature indicates the signature does not match the
	// current signing secret.
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrExpired indicates the token's expiry lies in the past.
	ErrExpired = errors.New("token expired")
)

// SessionClaims is the payload of a session token: subject, group claims
// and millisecond-precision issue/expiry instants.
type SessionClaims struct {
	Subject  string   `json:"id"`
	Groups   []string `json:"groups"`
	IssuedAt int64    `json:"iat"`
	Expiry   int64    `json:"expiry"`
}

// ExpiryTime returns the expiry as a time.Time.
func (c *SessionClaims) ExpiryTime() time.Time {
	return time.UnixMilli(c.Expiry)
}

// Expiry is validated here rather than through the library's registered
// claims, so jwt.Claims accessors all report "not present".

// GetExpirationTime implements jwt.Claims.
func (c *SessionClaims) GetExpirationTime() (*jwt.NumericDate, error) { return nil, nil }

// GetIssuedAt implements jwt.Claims.
func (c *SessionClaims) GetIssuedAt() (*jwt.NumericDate, error) { return nil, nil }

// GetNotBefore implements jwt.Claims.
func (c *SessionClaims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }

// GetIssuer implements jwt.Claims.
func (c *SessionClaims) GetIssuer() (string, error) { return "", nil }

// GetSubject implements jwt.Claims.
func (c *SessionClaims) GetSubject() (string, error) { return c.Subject, nil }

// GetAudience implements jwt.Claims.
func (c *SessionClaims) GetAudience() (jwt.ClaimStrings, error) { return nil, nil }

// TokenCodec signs and verifies session tokens with HMAC-SHA256. The
// signing secret is resolved lazily from the SecretStore on first use;
// the generation path is race free (see SecretStore).
type TokenCodec struct {
	store SecretStore
	ttl   time.Duration

	mu     sync.Mutex
	secret []byte

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewTokenCodec creates a codec with the given secret store and default
// session lifetime.
func NewTokenCodec(store SecretStore, ttl time.Duration) *TokenCodec {
	return &TokenCodec{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Secret returns the signing secret, generating and persisting one on
// first use. Safe for concurrent callers.
func (c *TokenCodec) Secret(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.secret != nil {
		return c.secret, nil
	}
	secret, err := resolveSecret(ctx, c.store)
	if err != nil {
		return nil, err
	}
	c.secret = secret
	return secret, nil
}

// Mint signs a session token for the subject with the default lifetime.
func (c *TokenCodec) Mint(ctx context.Context, subject string, groups []string) (string, error) {
	now := c.now()
	return c.MintAt(ctx, subject, groups, now, now.Add(c.ttl))
}

// MintAt signs a session token with explicit issue and expiry instants.
// Providers that inherit an upstream token's lifetime use this form.
func (c *TokenCodec) MintAt(ctx context.Context, subject string, groups []string, issuedAt, expiry time.Time) (string, error) {
	if !expiry.After(issuedAt) {
		return "", fmt.Errorf("token expiry %v is not after issue time %v", expiry, issuedAt)
	}

	secret, err := c.Secret(ctx)
	if err != nil {
		return "", err
	}

	claims := &SessionClaims{
		Subject:  subject,
		Groups:   groups,
		IssuedAt: issuedAt.UnixMilli(),
		Expiry:   expiry.UnixMilli(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the token's signature against the current secret and its
// expiry against the clock. The claims are returned only when both hold.
func (c *TokenCodec) Verify(ctx context.Context, tokenString string) (*SessionClaims, error) {
	secret, err := c.Secret(ctx)
	if err != nil {
		return nil, err
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return nil, ErrInvalidSignature
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !token.Valid {
		return nil, ErrInvalidSignature
	}

	// Expiry in the past invalidates the token regardless of signature.
	if !c.now().Before(claims.ExpiryTime()) {
		return nil, ErrExpired
	}

	return claims, nil
}
