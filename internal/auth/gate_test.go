// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/mithril-gateway/mithril/internal/config"
)

// fakeProvider counts upstream calls and returns a fixed identity.
type fakeProvider struct {
	name             string
	credential       string
	allowSessionOnly bool
	redirect         string

	identity *Identity
	authErr  error
	calls    int
}

func (p *fakeProvider) Name() string           { return p.name }
func (p *fakeProvider) CredentialName() string { return p.credential }
func (p *fakeProvider) HasCredential(r *http.Request) bool {
	if p.credential == "" {
		return false
	}
	c, err := r.Cookie(p.credential)
	return err == nil && c.Value != ""
}
func (p *fakeProvider) Authenticate(_ context.Context, _ *http.Request) (*Identity, error) {
	p.calls++
	if p.authErr != nil {
		return nil, p.authErr
	}
	return p.identity, nil
}
func (p *fakeProvider) AllowSessionOnly() bool { return p.allowSessionOnly }
func (p *fakeProvider) RedirectURL() string    { return p.redirect }

func newTestJar() *CookieJar {
	return NewCookieJar("mithrilToken", &config.CookieConfig{
		Path:     "/",
		HTTPOnly: true,
		SameSite: "lax",
	})
}

// okHandler records whether the request reached it and with what claims.
type okHandler struct {
	reached bool
	claims  *SessionClaims
}

func (h *okHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.reached = true
	h.claims, _ = ClaimsFromContext(r.Context())
	w.WriteHeader(http.StatusOK)
}

func TestGate_BothCredentialsSkipUpstream(t *testing.T) {
	codec := newTestCodec(t, time.Hour)
	provider := &fakeProvider{name: "token", credential: "acmToken", redirect: "/entry"}
	gate := NewGate(provider, codec, newTestJar(), "/login")
	t.Cleanup(gate.Stop)

	token, err := codec.Mint(context.Background(), "alice", []string{"sales"})
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	next := &okHandler{}
	req := httptest.NewRequest(http.MethodGet, "/app", nil)
	req.AddCookie(&http.Cookie{Name: "mithrilToken", Value: token})
	req.AddCookie(&http.Cookie{Name: "acmToken", Value: "upstream-value"})
	rec := httptest.NewRecorder()

	gate.Middleware(next).ServeHTTP(rec, req)

	if !next.reached {
		t.Fatalf("Expected admission, got status %d", rec.Code)
	}
	if provider.calls != 0 {
		t.Errorf("Expected zero upstream calls, got %d", provider.calls)
	}
	if next.claims == nil || next.claims.Subject != "alice" {
		t.Errorf("Expected claims for alice on the context, got %+v", next.claims)
	}
}

func TestGate_UpstreamOnlyMintsOnce(t *testing.T) {
	codec := newTestCodec(t, time.Hour)
	provider := &fakeProvider{
		name:       "token",
		credential: "acmToken",
		redirect:   "/entry",
		identity:   &Identity{Subject: "bob", Groups: []string{"finance"}},
	}
	gate := NewGate(provider, codec, newTestJar(), "/login")
	t.Cleanup(gate.Stop)

	next := &okHandler{}
	req := httptest.NewRequest(http.MethodGet, "/app", nil)
	req.AddCookie(&http.Cookie{Name: "acmToken", Value: "upstream-value"})
	rec := httptest.NewRecorder()

	gate.Middleware(next).ServeHTTP(rec, req)

	if !next.reached {
		t.Fatalf("Expected admission, got status %d", rec.Code)
	}
	if provider.calls != 1 {
		t.Errorf("Expected exactly one upstream call, got %d", provider.calls)
	}
	if !reflect.DeepEqual(next.claims.Groups, []string{"finance"}) {
		t.Errorf("Expected groups [finance], got %v", next.claims.Groups)
	}

	// The fresh session travels on the response and on the same request.
	var minted string
	for _, c := range rec.Result().Cookies() {
		if c.Name == "mithrilToken" && c.Value != "" {
			minted = c.Value
		}
	}
	if minted == "" {
		t.Fatal("Expected a session cookie on the response")
	}
	if c, err := req.Cookie("mithrilToken"); err != nil || c.Value != minted {
		t.Error("Expected the minted token injected into the request cookies")
	}
	if _, err := codec.Verify(context.Background(), minted); err != nil {
		t.Errorf("Minted token failed verification: %v", err)
	}
}

func TestGate_InheritedExpiry(t *testing.T) {
	codec := newTestCodec(t, time.Hour)
	issued := time.Now().Truncate(time.Millisecond)
	expiry := issued.Add(10 * time.Minute)
	provider := &fakeProvider{
		name:       "token",
		credential: "acmToken",
		identity:   &Identity{Subject: "bob", Groups: []string{"default"}, IssuedAt: issued, Expiry: expiry},
	}
	gate := NewGate(provider, codec, newTestJar(), "/login")
	t.Cleanup(gate.Stop)

	next := &okHandler{}
	req := httptest.NewRequest(http.MethodGet, "/app", nil)
	req.AddCookie(&http.Cookie{Name: "acmToken", Value: "upstream-value"})
	gate.Middleware(next).ServeHTTP(httptest.NewRecorder(), req)

	if !next.reached {
		t.Fatal("Expected admission")
	}
	if next.claims.Expiry != expiry.UnixMilli() {
		t.Errorf("Expected inherited expiry %d, got %d", expiry.UnixMilli(), next.claims.Expiry)
	}
	if next.claims.IssuedAt != issued.UnixMilli() {
		t.Errorf("Expected inherited iat %d, got %d", issued.UnixMilli(), next.claims.IssuedAt)
	}
}

func TestGate_RejectRedirectsAndClearsCookie(t *testing.T) {
	codec := newTestCodec(t, time.Hour)

	tests := []struct {
		name     string
		provider *fakeProvider
		setup    func(t *testing.T, req *http.Request)
		wantURL  string
	}{
		{
			name:     "no credentials",
			provider: &fakeProvider{name: "token", credential: "acmToken", redirect: "/entry"},
			setup:    func(*testing.T, *http.Request) {},
			wantURL:  "/entry",
		},
		{
			name:     "fallback login path",
			provider: &fakeProvider{name: "token", credential: "acmToken"},
			setup:    func(*testing.T, *http.Request) {},
			wantURL:  "/login",
		},
		{
			name:     "upstream rejected",
			provider: &fakeProvider{name: "token", credential: "acmToken", redirect: "/entry", authErr: ErrUpstreamRejected},
			setup: func(_ *testing.T, req *http.Request) {
				req.AddCookie(&http.Cookie{Name: "acmToken", Value: "bad"})
			},
			wantURL: "/entry",
		},
		{
			name:     "expired session",
			provider: &fakeProvider{name: "token", credential: "acmToken", redirect: "/entry"},
			setup: func(t *testing.T, req *http.Request) {
				issued := time.Now().Add(-2 * time.Hour)
				token, err := codec.MintAt(context.Background(), "alice", nil, issued, issued.Add(time.Hour))
				if err != nil {
					t.Fatalf("MintAt failed: %v", err)
				}
				req.AddCookie(&http.Cookie{Name: "mithrilToken", Value: token})
				req.AddCookie(&http.Cookie{Name: "acmToken", Value: "upstream-value"})
			},
			wantURL: "/entry",
		},
		{
			name:     "session without upstream credential",
			provider: &fakeProvider{name: "token", credential: "acmToken", redirect: "/entry"},
			setup: func(t *testing.T, req *http.Request) {
				token, err := codec.Mint(context.Background(), "alice", nil)
				if err != nil {
					t.Fatalf("Mint failed: %v", err)
				}
				req.AddCookie(&http.Cookie{Name: "mithrilToken", Value: token})
			},
			wantURL: "/entry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(tt.provider, codec, newTestJar(), "/login")
			t.Cleanup(gate.Stop)
			next := &okHandler{}
			req := httptest.NewRequest(http.MethodGet, "/app", nil)
			tt.setup(t, req)
			rec := httptest.NewRecorder()

			gate.Middleware(next).ServeHTTP(rec, req)

			if next.reached {
				t.Fatal("Expected rejection, request reached the handler")
			}
			if rec.Code != http.StatusFound {
				t.Fatalf("Expected 302, got %d", rec.Code)
			}
			if got := rec.Header().Get("Location"); got != tt.wantURL {
				t.Errorf("Expected redirect to %q, got %q", tt.wantURL, got)
			}

			cleared := false
			for _, c := range rec.Result().Cookies() {
				if c.Name == "mithrilToken" && c.Value == "" && c.MaxAge < 0 {
					cleared = true
				}
			}
			if !cleared {
				t.Error("Expected the session cookie to be cleared")
			}
		})
	}
}

func TestGate_SessionOnlyProviderAdmits(t *testing.T) {
	codec := newTestCodec(t, time.Hour)
	provider := &fakeProvider{name: "local", allowSessionOnly: true, redirect: "/login"}
	gate := NewGate(provider, codec, newTestJar(), "/login")
	t.Cleanup(gate.Stop)

	token, err := codec.Mint(context.Background(), "alice", []string{"default"})
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	next := &okHandler{}
	req := httptest.NewRequest(http.MethodGet, "/app", nil)
	req.AddCookie(&http.Cookie{Name: "mithrilToken", Value: token})

	gate.Middleware(next).ServeHTTP(httptest.NewRecorder(), req)

	if !next.reached {
		t.Error("Expected session-only admission for the local provider")
	}
}
