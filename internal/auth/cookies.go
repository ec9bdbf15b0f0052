// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

package auth

import (
	"net/http"
	"time"

	"github.com/mithril-gateway/mithril/internal/config"
)

// CookieJar reads, writes and clears one named cookie with the
// deployment's cookie attributes.
type CookieJar struct {
	name     string
	path     string
	domain   string
	httpOnly bool
	secure   bool
	sameSite http.SameSite
}

// NewCookieJar creates a jar for the named cookie.
func NewCookieJar(name string, cfg *config.CookieConfig) *CookieJar {
	return &CookieJar{
		name:     name,
		path:     cfg.Path,
		domain:   cfg.Domain,
		httpOnly: cfg.HTTPOnly,
		secure:   cfg.Secure,
		sameSite: parseSameSite(cfg.SameSite),
	}
}

// Name returns the cookie's name.
func (j *CookieJar) Name() string { return j.name }

// Get returns the cookie's value from the request.
func (j *CookieJar) Get(r *http.Request) (string, bool) {
	c, err := r.Cookie(j.name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// Set attaches the cookie to the response, expiring alongside the
// value it carries.
func (j *CookieJar) Set(w http.ResponseWriter, value string, expiry time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     j.name,
		Value:    value,
		Path:     j.path,
		Domain:   j.domain,
		Expires:  expiry,
		HttpOnly: j.httpOnly,
		Secure:   j.secure,
		SameSite: j.sameSite,
	})
}

// Inject folds the cookie into the request's own Cookie header so a
// downstream handler sees it on the request that minted it.
func (j *CookieJar) Inject(r *http.Request, value string) {
	r.AddCookie(&http.Cookie{Name: j.name, Value: value})
}

// Clear overwrites the cookie with an immediately expiring tombstone.
func (j *CookieJar) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     j.name,
		Value:    "",
		Path:     j.path,
		Domain:   j.domain,
		MaxAge:   -1,
		HttpOnly: j.httpOnly,
		Secure:   j.secure,
		SameSite: j.sameSite,
	})
}

func parseSameSite(v string) http.SameSite {
	switch v {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}
