// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mithril-gateway/mithril/internal/config"
	"github.com/mithril-gateway/mithril/internal/logging"
)

// Provider errors surfaced to the gate. The gate never distinguishes
// them in the response; they exist for logs and tests.
var (
	// ErrNoCredential indicates the request carries no upstream
	// credential this provider recognizes.
	ErrNoCredential = errors.New("no credential present")

	// ErrUpstreamRejected indicates the upstream identity system
	// examined the credential and refused it.
	ErrUpstreamRejected = errors.New("upstream rejected credential")

	// ErrUnreachable indicates the upstream identity system could not
	// be reached at all.
	ErrUnreachable = errors.New("upstream unreachable")
)

// Identity is a validated principal: who the caller is and which groups
// they carry. IssuedAt/Expiry are zero unless the provider inherits a
// lifetime from the upstream credential itself.
type Identity struct {
	Subject  string
	Groups   []string
	IssuedAt time.Time
	Expiry   time.Time
}

// Provider validates one species of upstream credential and resolves it
// to an Identity. Exactly one provider is active per deployment.
type Provider interface {
	// Name is the provider's config enum value.
	Name() string

	// CredentialName is the cookie or header name the upstream
	// credential travels under.
	CredentialName() string

	// HasCredential reports whether the request carries the upstream
	// credential, without validating it.
	HasCredential(r *http.Request) bool

	// Authenticate validates the request's upstream credential against
	// the identity system and resolves the caller's identity.
	Authenticate(ctx context.Context, r *http.Request) (*Identity, error)

	// AllowSessionOnly reports whether a valid session token admits the
	// request even when the upstream credential is absent. Only the
	// local provider does; cookie and token providers require their
	// upstream credential alongside the session.
	AllowSessionOnly() bool

	// RedirectURL is where rejected requests are sent.
	RedirectURL() string
}

// NewProvider constructs the deployment's single active provider from
// config. The config layer has already rejected unknown names.
func NewProvider(cfg *config.Config) (Provider, error) {
	switch cfg.Auth.Provider {
	case config.ProviderLocal:
		store, err := NewFileUserStore(cfg.Auth.UserFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open user store: %w", err)
		}
		if err := seedBootstrapUser(cfg, store); err != nil {
			return nil, err
		}
		return NewLocalProvider(cfg, store), nil
	case config.ProviderRemember:
		return NewRememberProvider(cfg, newUpstreamClient(&cfg.Remember)), nil
	case config.ProviderToken:
		return NewDirectTokenProvider(cfg, newUpstreamClient(&cfg.Token)), nil
	default:
		return nil, fmt.Errorf("unknown auth provider %q", cfg.Auth.Provider)
	}
}

// seedBootstrapUser creates the configured bootstrap user on first start.
// An existing user of the same name is left untouched, so a changed
// bootstrap password never silently rewrites a live account.
func seedBootstrapUser(cfg *config.Config, store *FileUserStore) error {
	if cfg.Auth.BootstrapUser == "" {
		return nil
	}
	if store.Get(cfg.Auth.BootstrapUser) != nil {
		return nil
	}
	if _, err := store.Create(cfg.Auth.BootstrapUser, cfg.Auth.BootstrapPassword); err != nil {
		return fmt.Errorf("failed to seed bootstrap user: %w", err)
	}
	logging.Info().Str("username", cfg.Auth.BootstrapUser).Msg("bootstrap user created")
	return nil
}
