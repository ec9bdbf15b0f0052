// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/mithril-gateway/mithril/internal/config"
)

// VerificationRequiredError rejects a first login from a subject whose
// second factor is still unverified. It carries the provisioning secret
// the client needs to enroll an authenticator.
type VerificationRequiredError struct {
	Secret string
}

func (e *VerificationRequiredError) Error() string {
	return "second factor verification required"
}

// LocalProvider authenticates username/password pairs against the local
// user store. It carries no per-request upstream credential: once a
// session token is minted through the login endpoint, the session alone
// admits requests.
type LocalProvider struct {
	cfg   *config.Config
	store *FileUserStore

	now func() time.Time
}

// NewLocalProvider creates the local credential provider.
func NewLocalProvider(cfg *config.Config, store *FileUserStore) *LocalProvider {
	return &LocalProvider{
		cfg:   cfg,
		store: store,
		now:   time.Now,
	}
}

// Name implements Provider.
func (p *LocalProvider) Name() string { return config.ProviderLocal }

// CredentialName implements Provider. The local provider has no
// upstream cookie.
func (p *LocalProvider) CredentialName() string { return "" }

// HasCredential implements Provider.
func (p *LocalProvider) HasCredential(*http.Request) bool { return false }

// Authenticate implements Provider. Local credentials only arrive
// through the login endpoint, never on ordinary requests.
func (p *LocalProvider) Authenticate(context.Context, *http.Request) (*Identity, error) {
	return nil, ErrNoCredential
}

// AllowSessionOnly implements Provider.
func (p *LocalProvider) AllowSessionOnly() bool { return true }

// RedirectURL implements Provider.
func (p *LocalProvider) RedirectURL() string {
	return p.cfg.Auth.LoginPath
}

// Login validates a username/password pair and the second factor, and
// resolves the user's identity.
//
// A subject whose factor is unverified gets VerificationRequiredError
// with the provisioning secret; submitting a valid code on a later
// attempt marks the factor verified. Once verified, a valid code is
// required on every login.
func (p *LocalProvider) Login(username, password, code string) (*Identity, error) {
	user, err := p.store.Authenticate(username, password)
	if err != nil {
		return nil, err
	}

	if sf := user.SecondFactor; sf != nil {
		switch {
		case !sf.Verified && code == "":
			return nil, &VerificationRequiredError{Secret: sf.Secret}
		case !verifyFactorCode(sf.Secret, code, p.now()):
			return nil, ErrBadCredentials
		case !sf.Verified:
			if err := p.store.MarkFactorVerified(username); err != nil {
				return nil, err
			}
		}
	}

	return &Identity{Subject: user.Username, Groups: user.Groups}, nil
}
