// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

package auth

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/mithril-gateway/mithril/internal/config"
)

func newDirectConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Token = config.UpstreamConfig{
		TokenName:      "acmToken",
		RedirectURL:    "/acm",
		PermissionType: "auditmanager",
		VerifyPath:     "/acmserver/api/auth",
		PermissionPath: "/acmserver/api/permissiontypes",
	}
	return cfg
}

func newDirectUpstream(t *testing.T, verify func(w http.ResponseWriter, body []byte), permission http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/acmserver/api/auth" && r.Method == http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			verify(w, body)
		case strings.HasPrefix(r.URL.Path, "/acmserver/api/permissiontypes/"):
			permission(w, r)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestDirectTokenProvider_Authenticate(t *testing.T) {
	var introspected, bearer, permissionPath string
	server := newDirectUpstream(t,
		func(w http.ResponseWriter, body []byte) {
			var req struct {
				Token string `json:"token"`
			}
			_ = json.Unmarshal(body, &req)
			introspected = req.Token
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"login":"carol","groups":["audit","sales"]}`))
		},
		func(w http.ResponseWriter, r *http.Request) {
			bearer = r.Header.Get("Authorization")
			permissionPath = r.URL.Path
			w.WriteHeader(http.StatusOK)
		},
	)
	defer server.Close()

	cfg := newDirectConfig()
	upstreamConfigFor(t, server, &cfg.Token)
	provider := NewDirectTokenProvider(cfg, newUpstreamClient(&cfg.Token))

	req := httptest.NewRequest(http.MethodGet, "/app", nil)
	req.AddCookie(&http.Cookie{Name: "acmToken", Value: "opaque-upstream-token"})

	identity, err := provider.Authenticate(req.Context(), req)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if identity.Subject != "carol" {
		t.Errorf("Expected subject carol, got %q", identity.Subject)
	}
	if !reflect.DeepEqual(identity.Groups, []string{"audit", "sales"}) {
		t.Errorf("Expected groups from verify response, got %v", identity.Groups)
	}
	if introspected != "opaque-upstream-token" {
		t.Errorf("Expected the cookie value introspected, got %q", introspected)
	}
	if bearer != "Bearer opaque-upstream-token" {
		t.Errorf("Expected bearer header on permission check, got %q", bearer)
	}
	if permissionPath != "/acmserver/api/permissiontypes/auditmanager" {
		t.Errorf("Expected permission type in path, got %q", permissionPath)
	}

	// An opaque token carries no lifetime to inherit.
	if !identity.Expiry.IsZero() {
		t.Errorf("Expected zero expiry for an opaque token, got %v", identity.Expiry)
	}
}

func TestDirectTokenProvider_FallbackIdentity(t *testing.T) {
	server := newDirectUpstream(t,
		func(w http.ResponseWriter, _ []byte) {
			w.WriteHeader(http.StatusOK)
		},
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	)
	defer server.Close()

	cfg := newDirectConfig()
	upstreamConfigFor(t, server, &cfg.Token)
	provider := NewDirectTokenProvider(cfg, newUpstreamClient(&cfg.Token))

	req := httptest.NewRequest(http.MethodGet, "/app", nil)
	req.AddCookie(&http.Cookie{Name: "acmToken", Value: "opaque"})

	identity, err := provider.Authenticate(req.Context(), req)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if identity.Subject != "user" || !reflect.DeepEqual(identity.Groups, []string{"default"}) {
		t.Errorf("Expected fallback identity, got %+v", identity)
	}
}

func TestDirectTokenProvider_InheritsUpstreamLifetime(t *testing.T) {
	issued := time.Now().Add(-time.Minute).Truncate(time.Second)
	expiry := issued.Add(15 * time.Minute)
	upstreamToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "carol",
		"iat": issued.Unix(),
		"exp": expiry.Unix(),
	}).SignedString([]byte("upstream-only-secret"))
	if err != nil {
		t.Fatalf("failed to sign upstream token: %v", err)
	}

	server := newDirectUpstream(t,
		func(w http.ResponseWriter, _ []byte) { w.WriteHeader(http.StatusOK) },
		func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) },
	)
	defer server.Close()

	cfg := newDirectConfig()
	upstreamConfigFor(t, server, &cfg.Token)
	provider := NewDirectTokenProvider(cfg, newUpstreamClient(&cfg.Token))

	req := httptest.NewRequest(http.MethodGet, "/app", nil)
	req.AddCookie(&http.Cookie{Name: "acmToken", Value: upstreamToken})

	identity, err := provider.Authenticate(req.Context(), req)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !identity.Expiry.Equal(expiry) {
		t.Errorf("Expected inherited expiry %v, got %v", expiry, identity.Expiry)
	}
	if !identity.IssuedAt.Equal(issued) {
		t.Errorf("Expected inherited iat %v, got %v", issued, identity.IssuedAt)
	}
}

func TestDirectTokenProvider_PermissionDenied(t *testing.T) {
	server := newDirectUpstream(t,
		func(w http.ResponseWriter, _ []byte) { w.WriteHeader(http.StatusOK) },
		func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusForbidden) },
	)
	defer server.Close()

	cfg := newDirectConfig()
	upstreamConfigFor(t, server, &cfg.Token)
	provider := NewDirectTokenProvider(cfg, newUpstreamClient(&cfg.Token))

	req := httptest.NewRequest(http.MethodGet, "/app", nil)
	req.AddCookie(&http.Cookie{Name: "acmToken", Value: "opaque"})

	if _, err := provider.Authenticate(req.Context(), req); !errors.Is(err, ErrUpstreamRejected) {
		t.Errorf("Expected ErrUpstreamRejected, got %v", err)
	}
}

func TestDirectTokenProvider_InvalidToken(t *testing.T) {
	server := newDirectUpstream(t,
		func(w http.ResponseWriter, _ []byte) { w.WriteHeader(http.StatusUnauthorized) },
		func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) },
	)
	defer server.Close()

	cfg := newDirectConfig()
	upstreamConfigFor(t, server, &cfg.Token)
	provider := NewDirectTokenProvider(cfg, newUpstreamClient(&cfg.Token))

	req := httptest.NewRequest(http.MethodGet, "/app", nil)
	req.AddCookie(&http.Cookie{Name: "acmToken", Value: "forged"})

	if _, err := provider.Authenticate(req.Context(), req); !errors.Is(err, ErrUpstreamRejected) {
		t.Errorf("Expected ErrUpstreamRejected, got %v", err)
	}
}
