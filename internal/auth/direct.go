// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/mithril-gateway/mithril/internal/config"
)

// DirectTokenProvider validates an upstream-issued bearer token carried
// in a cookie. The token is introspected with a PUT against the verify
// endpoint and the caller's permission type is checked with a GET.
type DirectTokenProvider struct {
	cfg      *config.Config
	upstream *config.UpstreamConfig
	client   *upstreamClient
}

// NewDirectTokenProvider creates the direct-token provider.
func NewDirectTokenProvider(cfg *config.Config, client *upstreamClient) *DirectTokenProvider {
	return &DirectTokenProvider{
		cfg:      cfg,
		upstream: &cfg.Token,
		client:   client,
	}
}

// Name implements Provider.
func (p *DirectTokenProvider) Name() string { return config.ProviderToken }

// CredentialName implements Provider.
func (p *DirectTokenProvider) CredentialName() string { return p.upstream.TokenName }

// HasCredential implements Provider.
func (p *DirectTokenProvider) HasCredential(r *http.Request) bool {
	c, err := r.Cookie(p.upstream.TokenName)
	return err == nil && c.Value != ""
}

// AllowSessionOnly implements Provider. The upstream token must travel
// with the session on every request.
func (p *DirectTokenProvider) AllowSessionOnly() bool { return false }

// RedirectURL implements Provider.
func (p *DirectTokenProvider) RedirectURL() string { return p.upstream.RedirectURL }

// introspectRequest is the verify endpoint's PUT body.
type introspectRequest struct {
	Token string `json:"token"`
}

// introspectResponse is the verify endpoint's body. Both fields are
// optional; absent values fall back to a fixed identity.
type introspectResponse struct {
	Login  string   `json:"login"`
	Groups []string `json:"groups"`
}

// Authenticate implements Provider.
func (p *DirectTokenProvider) Authenticate(ctx context.Context, r *http.Request) (*Identity, error) {
	cookie, err := r.Cookie(p.upstream.TokenName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoCredential
	}
	token := cookie.Value

	body, err := json.Marshal(introspectRequest{Token: token})
	if err != nil {
		return nil, fmt.Errorf("failed to encode introspection request: %w", err)
	}

	result, err := p.client.do(ctx, http.MethodPut, p.upstream.VerifyPath, body, nil)
	if err != nil {
		return nil, err
	}
	if result.status != http.StatusOK {
		return nil, fmt.Errorf("%w: verify endpoint returned status %d", ErrUpstreamRejected, result.status)
	}

	identity := &Identity{Subject: "user", Groups: []string{"default"}}
	var introspect introspectResponse
	if err := json.Unmarshal(result.body, &introspect); err == nil {
		if introspect.Login != "" {
			identity.Subject = introspect.Login
		}
		if len(introspect.Groups) > 0 {
			identity.Groups = introspect.Groups
		}
	}

	result, err = p.client.do(ctx, http.MethodGet, p.permissionPath(), nil, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	})
	if err != nil {
		return nil, err
	}
	if result.status != http.StatusOK {
		return nil, fmt.Errorf("%w: permission type %q not granted (status %d)",
			ErrUpstreamRejected, p.upstream.PermissionType, result.status)
	}

	identity.IssuedAt, identity.Expiry = upstreamLifetime(token)
	return identity, nil
}

// permissionPath is the permission endpoint with the required type as
// its final segment.
func (p *DirectTokenProvider) permissionPath() string {
	return p.upstream.PermissionPath + "/" + p.upstream.PermissionType
}

// upstreamLifetime extracts iat/exp from the upstream token when it
// parses as a JWT, so the minted session dies no later than the
// credential it was derived from. The signature is not checked here;
// the verify endpoint is the authority on validity.
func upstreamLifetime(token string) (issuedAt, expiry time.Time) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, time.Time{}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, time.Time{}
	}
	expiry = exp.Time

	issuedAt = time.Now()
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		issuedAt = iat.Time
	}
	return issuedAt, expiry
}
