// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/mithril/config.yaml",
	"/etc/mithril/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "MITHRIL_CONFIG"

// defaultConfig returns a Config with all defaults applied. Upstream
// endpoint paths default to the services the gateway was built against.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5602,
			Timeout:         30 * time.Second,
			BasePath:        "",
			CORSOrigins:     []string{},
			LoginRateLimit:  5,
			LoginRateWindow: 5 * time.Minute,
		},
		Auth: AuthConfig{
			Provider:   ProviderLocal,
			TokenName:  "mithrilToken",
			Secret:     "",
			SecretFile: "/data/mithril/secret",
			SessionTTL: 7 * 24 * time.Hour,
			UserFile:   "/data/mithril/users.json",
			LoginPath:  "/login",
			Cookie: CookieConfig{
				Path:         "/",
				HTTPOnly:     true,
				Secure:       false,
				SameSite:     "lax",
				ClearInvalid: true,
			},
		},
		Remember: UpstreamConfig{
			Protocol:    "http",
			Host:        "",
			Port:        8080,
			TokenName:   "ACTIVITI_REMEMBER_ME",
			VerifyPath:  "/insight-app/app/rest/authenticate",
			AccountPath: "/insight-app/app/rest/account",
			Timeout:     10 * time.Second,
		},
		Token: UpstreamConfig{
			Protocol:       "http",
			Host:           "",
			Port:           8090,
			TokenName:      "acmToken",
			VerifyPath:     "/acmserver/api/auth",
			PermissionPath: "/acmserver/api/permissiontypes",
			Timeout:        10 * time.Second,
		},
		Proxy: ProxyConfig{
			Enabled:     false,
			Remote:      "",
			SearchPath:  "/elasticsearch/_msearch",
			Enforcement: EnforcementObserve,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration with layered sources, highest priority last:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are config paths parsed as comma-separated slices when
// they arrive as strings from the environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice when sourced from YAML.
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unknown variables are ignored so unrelated environment noise cannot
// shadow config keys.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

var envMappings = map[string]string{
	"mithril_host":                "server.host",
	"mithril_port":                "server.port",
	"mithril_timeout":             "server.timeout",
	"mithril_base_path":           "server.base_path",
	"mithril_cors_origins":        "server.cors_origins",
	"mithril_login_rate_limit":    "server.login_rate_limit",
	"mithril_login_rate_window":   "server.login_rate_window",
	"mithril_rate_limit_disabled": "server.rate_limit_disabled",

	"mithril_auth_provider":   "auth.provider",
	"mithril_token_name":      "auth.token_name",
	"mithril_secret":          "auth.secret",
	"mithril_secret_file":     "auth.secret_file",
	"mithril_session_ttl":     "auth.session_ttl",
	"mithril_user_file":       "auth.user_file",
	"mithril_bootstrap_user":  "auth.bootstrap_user",
	"mithril_bootstrap_pass":  "auth.bootstrap_password",
	"mithril_login_path":      "auth.login_path",
	"mithril_cookie_path":     "auth.cookie.path",
	"mithril_cookie_domain":   "auth.cookie.domain",
	"mithril_cookie_secure":   "auth.cookie.secure",
	"mithril_cookie_samesite": "auth.cookie.same_site",

	"mithril_remember_protocol":     "remember.protocol",
	"mithril_remember_host":         "remember.host",
	"mithril_remember_port":         "remember.port",
	"mithril_remember_token_name":   "remember.token_name",
	"mithril_remember_redirect_url": "remember.redirect_url",
	"mithril_remember_permission":   "remember.permission_type",
	"mithril_remember_timeout":      "remember.timeout",

	"mithril_token_protocol":     "token.protocol",
	"mithril_token_host":         "token.host",
	"mithril_token_port":         "token.port",
	"mithril_token_token_name":   "token.token_name",
	"mithril_token_redirect_url": "token.redirect_url",
	"mithril_token_permission":   "token.permission_type",
	"mithril_token_timeout":      "token.timeout",

	"mithril_proxy_enabled":     "proxy.enabled",
	"mithril_proxy_remote":      "proxy.remote",
	"mithril_proxy_search_path": "proxy.search_path",
	"mithril_proxy_enforcement": "proxy.enforcement",

	"mithril_log_level":  "logging.level",
	"mithril_log_format": "logging.format",
	"mithril_log_caller": "logging.caller",
}
