// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for errors. Provider-specific settings
// are only validated for the active provider.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateAuth,
		c.validateProvider,
		c.validateProxy,
	}

	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("server.base_path must start with '/', got %q", c.Server.BasePath)
	}
	return nil
}

func (c *Config) validateAuth() error {
	if c.Auth.TokenName == "" {
		return fmt.Errorf("auth.token_name is required")
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttl must be positive")
	}
	if c.Auth.Secret == "" && c.Auth.SecretFile == "" {
		return fmt.Errorf("auth.secret_file is required when auth.secret is not set")
	}
	switch strings.ToLower(c.Auth.Cookie.SameSite) {
	case "", "lax", "strict", "none":
	default:
		return fmt.Errorf("auth.cookie.same_site must be lax, strict or none, got %q", c.Auth.Cookie.SameSite)
	}
	return nil
}

func (c *Config) validateProvider() error {
	validators := map[string]func() error{
		ProviderLocal:    c.validateLocalProvider,
		ProviderRemember: func() error { return c.validateUpstream("remember", &c.Remember) },
		ProviderToken:    func() error { return c.validateUpstream("token", &c.Token) },
	}

	validate, exists := validators[c.Auth.Provider]
	if !exists {
		return fmt.Errorf("auth.provider must be one of local, remember, token; got %q", c.Auth.Provider)
	}
	return validate()
}

func (c *Config) validateLocalProvider() error {
	if c.Auth.UserFile == "" {
		return fmt.Errorf("auth.user_file is required for the local provider")
	}
	if c.Auth.BootstrapUser != "" && c.Auth.BootstrapPassword == "" {
		return fmt.Errorf("auth.bootstrap_password is required when auth.bootstrap_user is set")
	}
	return nil
}

func (c *Config) validateUpstream(name string, u *UpstreamConfig) error {
	if u.Host == "" {
		return fmt.Errorf("%s.host is required for the %s provider", name, name)
	}
	if u.Port < 1 || u.Port > 65535 {
		return fmt.Errorf("%s.port must be 1-65535, got %d", name, u.Port)
	}
	if u.Protocol != "http" && u.Protocol != "https" {
		return fmt.Errorf("%s.protocol must be http or https, got %q", name, u.Protocol)
	}
	if u.TokenName == "" {
		return fmt.Errorf("%s.token_name is required", name)
	}
	if u.Timeout <= 0 {
		return fmt.Errorf("%s.timeout must be positive", name)
	}
	return nil
}

func (c *Config) validateProxy() error {
	if !c.Proxy.Enabled {
		return nil
	}
	if c.Proxy.Remote == "" {
		return fmt.Errorf("proxy.remote is required when proxy.enabled is true")
	}
	if _, err := url.Parse(c.Proxy.Remote); err != nil {
		return fmt.Errorf("proxy.remote is not a valid URL: %w", err)
	}
	switch c.Proxy.Enforcement {
	case EnforcementObserve, EnforcementStrip, EnforcementReject:
	default:
		return fmt.Errorf("proxy.enforcement must be observe, strip or reject, got %q", c.Proxy.Enforcement)
	}
	return nil
}

// BaseURL returns the upstream base URL, e.g. "http://host:8080".
func (u *UpstreamConfig) BaseURL() string {
	return fmt.Sprintf("%s://%s:%d", u.Protocol, u.Host, u.Port)
}
