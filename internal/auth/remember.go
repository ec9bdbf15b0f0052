// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/mithril-gateway/mithril/internal/config"
)

// RememberProvider validates an upstream remember-me cookie. The cookie
// itself carries no identity, so the subject comes from the upstream
// verify endpoint and the group set from its account endpoint.
type RememberProvider struct {
	cfg      *config.Config
	upstream *config.UpstreamConfig
	client   *upstreamClient
}

// NewRememberProvider creates the remember-me cookie provider.
func NewRememberProvider(cfg *config.Config, client *upstreamClient) *RememberProvider {
	return &RememberProvider{
		cfg:      cfg,
		upstream: &cfg.Remember,
		client:   client,
	}
}

// Name implements Provider.
func (p *RememberProvider) Name() string { return config.ProviderRemember }

// CredentialName implements Provider.
func (p *RememberProvider) CredentialName() string { return p.upstream.TokenName }

// HasCredential implements Provider.
func (p *RememberProvider) HasCredential(r *http.Request) bool {
	c, err := r.Cookie(p.upstream.TokenName)
	return err == nil && c.Value != ""
}

// AllowSessionOnly implements Provider. A session token without the
// remember-me cookie alongside it is not accepted.
func (p *RememberProvider) AllowSessionOnly() bool { return false }

// RedirectURL implements Provider.
func (p *RememberProvider) RedirectURL() string { return p.upstream.RedirectURL }

// verifyResponse is the upstream verify endpoint's body.
type verifyResponse struct {
	Login string `json:"login"`
}

// accountResponse is the upstream account endpoint's body.
type accountResponse struct {
	Capabilities []string `json:"capabilities"`
}

// Authenticate implements Provider. The cookie is validated against the
// verify endpoint, which also yields the login name; the account
// endpoint yields the capability set, which must include the configured
// permission type when one is set.
func (p *RememberProvider) Authenticate(ctx context.Context, r *http.Request) (*Identity, error) {
	cookie, err := r.Cookie(p.upstream.TokenName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoCredential
	}
	credential := &http.Cookie{Name: p.upstream.TokenName, Value: cookie.Value}

	result, err := p.client.do(ctx, http.MethodGet, p.upstream.VerifyPath, nil, func(req *http.Request) {
		req.AddCookie(credential)
	})
	if err != nil {
		return nil, err
	}
	if result.status != http.StatusOK {
		return nil, fmt.Errorf("%w: verify endpoint returned status %d", ErrUpstreamRejected, result.status)
	}

	var verify verifyResponse
	if err := json.Unmarshal(result.body, &verify); err != nil {
		return nil, fmt.Errorf("%w: malformed verify response: %v", ErrUpstreamRejected, err)
	}

	result, err = p.client.do(ctx, http.MethodGet, p.upstream.AccountPath, nil, func(req *http.Request) {
		req.AddCookie(credential)
	})
	if err != nil {
		return nil, err
	}
	if result.status != http.StatusOK {
		return nil, fmt.Errorf("%w: account endpoint returned status %d", ErrUpstreamRejected, result.status)
	}

	var account accountResponse
	if err := json.Unmarshal(result.body, &account); err != nil {
		return nil, fmt.Errorf("%w: malformed account response: %v", ErrUpstreamRejected, err)
	}
	if required := p.upstream.PermissionType; required != "" && account.Capabilities != nil {
		if !contains(account.Capabilities, required) {
			return nil, fmt.Errorf("%w: missing capability %q", ErrUpstreamRejected, required)
		}
	}

	return &Identity{Subject: verify.Login, Groups: account.Capabilities}, nil
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
