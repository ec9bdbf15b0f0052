// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

package auth

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/mithril-gateway/mithril/internal/logging"
)

// State is a position in the per-request authentication decision.
// Admitted and Rejected are terminal; Rejected is reachable from every
// other state.
type State int

const (
	StateNoCredential State = iota
	StateUpstreamValidating
	StateMinting
	StateAdmitted
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateNoCredential:
		return "no_credential"
	case StateUpstreamValidating:
		return "upstream_validating"
	case StateMinting:
		return "minting"
	case StateAdmitted:
		return "admitted"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type claimsContextKey struct{}

// ContextWithClaims attaches verified session claims to the context.
func ContextWithClaims(ctx context.Context, claims *SessionClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext returns the verified session claims attached by the
// gate, if any.
func ClaimsFromContext(ctx context.Context) (*SessionClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*SessionClaims)
	return claims, ok
}

// Gate is the authentication state machine. Every request re-derives
// its state from the credentials it carries; nothing persists between
// requests server side.
type Gate struct {
	provider Provider
	codec    *TokenCodec
	session  *CookieJar

	// loginPath is the fallback redirect when the provider has no
	// entry point of its own.
	loginPath string

	// rejectLog bounds per-IP reject logging; clients stuck in a
	// redirect loop would otherwise flood the log.
	rejectLog *RateLimiter
}

// NewGate wires the state machine to the active provider, token codec
// and session cookie jar.
func NewGate(provider Provider, codec *TokenCodec, session *CookieJar, loginPath string) *Gate {
	return &Gate{
		provider:  provider,
		codec:     codec,
		session:   session,
		loginPath: loginPath,
		rejectLog: NewRateLimiter(20, 3*time.Second),
	}
}

// Stop ends the reject-log limiter's cleanup goroutine.
func (g *Gate) Stop() {
	g.rejectLog.Stop()
}

// Middleware runs the state machine in front of next. Admitted requests
// proceed with verified claims on the context; everything else gets its
// session cookie cleared and a redirect to the login entry point. The
// cause is logged, never sent to the client.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		claims, state, err := g.decide(w, r)
		authDuration.Observe(time.Since(start).Seconds())
		authDecisions.WithLabelValues(g.provider.Name(), state.String()).Inc()

		if state != StateAdmitted {
			g.reject(w, r, state, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
	})
}

// decide runs the transition policy and returns the terminal state. The
// state at the failure point is reported alongside the error so logs
// can tell a dead upstream from a forged token.
func (g *Gate) decide(w http.ResponseWriter, r *http.Request) (*SessionClaims, State, error) {
	ctx := r.Context()

	sessionToken, hasSession := g.session.Get(r)
	hasUpstream := g.provider.HasCredential(r)

	switch {
	case hasSession && hasUpstream:
		// Both credentials present: the session token alone decides,
		// with no upstream round trip.
		claims, err := g.codec.Verify(ctx, sessionToken)
		if err != nil {
			return nil, StateRejected, err
		}
		return claims, StateAdmitted, nil

	case hasUpstream:
		identity, err := g.provider.Authenticate(ctx, r)
		if err != nil {
			return nil, StateUpstreamValidating, err
		}

		// A cancelled request must not mint.
		if err := ctx.Err(); err != nil {
			return nil, StateMinting, err
		}

		token, expiry, err := g.mint(ctx, identity)
		if err != nil {
			return nil, StateMinting, err
		}
		g.session.Set(w, token, expiry)
		g.session.Inject(r, token)

		claims, err := g.codec.Verify(ctx, token)
		if err != nil {
			return nil, StateMinting, err
		}
		tokensMinted.WithLabelValues(g.provider.Name()).Inc()
		return claims, StateAdmitted, nil

	case hasSession && g.provider.AllowSessionOnly():
		claims, err := g.codec.Verify(ctx, sessionToken)
		if err != nil {
			return nil, StateRejected, err
		}
		return claims, StateAdmitted, nil

	default:
		return nil, StateNoCredential, ErrNoCredential
	}
}

func (g *Gate) mint(ctx context.Context, identity *Identity) (string, time.Time, error) {
	if !identity.Expiry.IsZero() {
		issuedAt := identity.IssuedAt
		if issuedAt.IsZero() {
			issuedAt = time.Now()
		}
		token, err := g.codec.MintAt(ctx, identity.Subject, identity.Groups, issuedAt, identity.Expiry)
		return token, identity.Expiry, err
	}

	expiry := time.Now().Add(g.codec.ttl)
	token, err := g.codec.Mint(ctx, identity.Subject, identity.Groups)
	return token, expiry, err
}

// reject clears any stale session cookie and issues the redirect. All
// failure modes collapse into this one observable outcome.
func (g *Gate) reject(w http.ResponseWriter, r *http.Request, state State, err error) {
	if g.rejectLog.Allow(clientIP(r)) {
		logging.Ctx(r.Context()).Warn().
			Err(err).
			Str("provider", g.provider.Name()).
			Str("state", state.String()).
			Str("path", r.URL.Path).
			Msg("authentication rejected")
	}

	g.session.Clear(w)
	http.Redirect(w, r, g.redirectURL(), http.StatusFound)
}

func (g *Gate) redirectURL() string {
	if url := g.provider.RedirectURL(); url != "" {
		return url
	}
	return g.loginPath
}

// clientIP is the remote address without the port. The router's RealIP
// middleware has already rewritten it from forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
