// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

package auth

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/mithril-gateway/mithril/internal/logging"
	"github.com/mithril-gateway/mithril/internal/validation"
)

// Handlers serves the authentication endpoints: login, logout and
// groups. Login exists only for the local provider; the other two are
// provider independent.
type Handlers struct {
	provider Provider
	local    *LocalProvider
	codec    *TokenCodec
	session  *CookieJar
	upstream *CookieJar
}

// NewHandlers wires the endpoint handlers. upstream may be nil when the
// active provider carries no upstream cookie.
func NewHandlers(provider Provider, codec *TokenCodec, session, upstream *CookieJar) *Handlers {
	h := &Handlers{
		provider: provider,
		codec:    codec,
		session:  session,
		upstream: upstream,
	}
	if local, ok := provider.(*LocalProvider); ok {
		h.local = local
	}
	return h
}

// loginRequest is the login endpoint's body. Code is only consulted
// when the subject has a second factor.
type loginRequest struct {
	Username string `json:"username" validate:"required,min=1,max=128"`
	Password string `json:"password" validate:"required,min=1,max=1024"`
	Code     string `json:"code" validate:"omitempty,len=6,numeric"`
}

// Login authenticates a username/password pair and mints a session.
// Responds 200 with the session cookie set, 401 on any credential
// failure, or 428 with a provisioning secret when the subject's second
// factor still needs verification.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if h.local == nil {
		respondStatus(w, http.StatusUnauthorized, map[string]string{"error": "login not supported by active provider"})
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondStatus(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		respondStatus(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	identity, err := h.local.Login(req.Username, req.Password, req.Code)
	if err != nil {
		var verification *VerificationRequiredError
		if errors.As(err, &verification) {
			loginAttempts.WithLabelValues("verification_required").Inc()
			respondStatus(w, http.StatusPreconditionRequired, map[string]string{
				"error":  "second factor verification required",
				"secret": verification.Secret,
			})
			return
		}

		loginAttempts.WithLabelValues("rejected").Inc()
		logging.Ctx(r.Context()).Warn().Err(err).Str("username", req.Username).Msg("login rejected")
		respondStatus(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	token, err := h.codec.Mint(r.Context(), identity.Subject, identity.Groups)
	if err != nil {
		loginAttempts.WithLabelValues("rejected").Inc()
		logging.Ctx(r.Context()).Error().Err(err).Msg("failed to mint session after login")
		respondStatus(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	claims, err := h.codec.Verify(r.Context(), token)
	if err != nil {
		loginAttempts.WithLabelValues("rejected").Inc()
		logging.Ctx(r.Context()).Error().Err(err).Msg("freshly minted session failed verification")
		respondStatus(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	h.session.Set(w, token, claims.ExpiryTime())
	loginAttempts.WithLabelValues("admitted").Inc()
	tokensMinted.WithLabelValues(h.provider.Name()).Inc()
	respondStatus(w, http.StatusOK, map[string]interface{}{
		"id":     claims.Subject,
		"groups": claims.Groups,
	})
}

// Logout clears the session cookie and, when the provider has one, the
// upstream credential cookie.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.session.Clear(w)
	if h.upstream != nil {
		h.upstream.Clear(w)
	}
	respondStatus(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Groups returns the verified session's group claims. The gate has
// already run; absent claims mean a routing mistake, not a client
// error.
func (h *Handlers) Groups(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		logging.Ctx(r.Context()).Error().Msg("groups endpoint reached without verified claims")
		respondStatus(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}
	respondStatus(w, http.StatusOK, map[string]interface{}{"groups": claims.Groups})
}

func respondStatus(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	data, err := json.Marshal(body)
	if err != nil {
		logging.Error().Err(err).Msg("failed to marshal auth response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("failed to write auth response")
	}
}
