// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

// Package config loads and validates gateway configuration via Koanf v2
// with layered sources: built-in defaults, an optional YAML file and
// environment variable overrides.
package config

import "time"

// Config is the root configuration for the gateway.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Auth     AuthConfig     `koanf:"auth"`
	Remember UpstreamConfig `koanf:"remember"`
	Token    UpstreamConfig `koanf:"token"`
	Proxy    ProxyConfig    `koanf:"proxy"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host     string        `koanf:"host"`
	Port     int           `koanf:"port"`
	Timeout  time.Duration `koanf:"timeout"`
	BasePath string        `koanf:"base_path"`

	CORSOrigins []string `koanf:"cors_origins"`

	// Login rate limiting (brute force prevention).
	LoginRateLimit    int           `koanf:"login_rate_limit"`
	LoginRateWindow   time.Duration `koanf:"login_rate_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// AuthConfig holds the authentication core settings.
type AuthConfig struct {
	// Provider selects the active identity provider: local, remember or token.
	// Exactly one provider is active per deployment.
	Provider string `koanf:"provider"`

	// TokenName is the session cookie name.
	TokenName string `koanf:"token_name"`

	// Secret is the base64-encoded token signing secret. When empty a
	// 64-byte secret is generated on startup and persisted to SecretFile.
	Secret     string `koanf:"secret"`
	SecretFile string `koanf:"secret_file"`

	// SessionTTL is the session token lifetime when the provider does not
	// supply its own expiry.
	SessionTTL time.Duration `koanf:"session_ttl"`

	// UserFile is the JSON user store for the local provider.
	UserFile string `koanf:"user_file"`

	// BootstrapUser, when set, is created in the user store on first
	// start so a fresh deployment has an account to log in with.
	BootstrapUser     string `koanf:"bootstrap_user"`
	BootstrapPassword string `koanf:"bootstrap_password"`

	// LoginPath is the fallback redirect target when the active provider
	// has no redirect URL configured. Relative to the base path.
	LoginPath string `koanf:"login_path"`

	Cookie CookieConfig `koanf:"cookie"`
}

// CookieConfig holds session cookie attributes.
type CookieConfig struct {
	Path         string `koanf:"path"`
	Domain       string `koanf:"domain"`
	HTTPOnly     bool   `koanf:"http_only"`
	Secure       bool   `koanf:"secure"`
	SameSite     string `koanf:"same_site"`
	ClearInvalid bool   `koanf:"clear_invalid"`
}

// UpstreamConfig describes one upstream identity endpoint (remember-me
// validation service or direct-token introspection service).
type UpstreamConfig struct {
	Protocol string `koanf:"protocol"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`

	// TokenName is the cookie (or header) carrying the upstream credential.
	TokenName string `koanf:"token_name"`

	// RedirectURL is where unauthenticated callers are sent. Takes
	// precedence over the generic login path.
	RedirectURL string `koanf:"redirect_url"`

	// PermissionType is the capability the identity must carry. Empty
	// disables the permission check.
	PermissionType string `koanf:"permission_type"`

	// Endpoint paths on the upstream host.
	VerifyPath     string `koanf:"verify_path"`
	AccountPath    string `koanf:"account_path"`
	PermissionPath string `koanf:"permission_path"`

	Timeout time.Duration `koanf:"timeout"`
}

// ProxyConfig holds reverse proxy settings for the downstream application.
type ProxyConfig struct {
	Enabled bool   `koanf:"enabled"`
	Remote  string `koanf:"remote"`

	// SearchPath is the path prefix of multi-search requests whose bodies
	// pass through the query authorization filter.
	SearchPath string `koanf:"search_path"`

	// Enforcement selects what happens to unauthorized search statements:
	// observe (verdict logged, body forwarded untouched), strip (statement
	// removed), reject (whole request refused).
	Enforcement string `koanf:"enforcement"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Providers recognized by AuthConfig.Provider.
const (
	ProviderLocal    = "local"
	ProviderRemember = "remember"
	ProviderToken    = "token"
)

// Enforcement modes recognized by ProxyConfig.Enforcement.
const (
	EnforcementObserve = "observe"
	EnforcementStrip   = "strip"
	EnforcementReject  = "reject"
)
