// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

package proxy

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"

	"github.com/mithril-gateway/mithril/internal/auth"
	"github.com/mithril-gateway/mithril/internal/config"
	"github.com/mithril-gateway/mithril/internal/filter"
	"github.com/mithril-gateway/mithril/internal/logging"
)

// maxSearchBody bounds how much of a multi-search body is buffered for
// authorization.
const maxSearchBody = 10 << 20

// Handler forwards requests to the downstream application, running
// multi-search bodies through the authorization filter first.
type Handler struct {
	reverse    *httputil.ReverseProxy
	filter     *filter.Filter
	searchPath string
}

// New creates the proxy handler for the configured downstream remote.
func New(cfg *config.ProxyConfig, f *filter.Filter) (*Handler, error) {
	target, err := url.Parse(cfg.Remote)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy remote %q: %w", cfg.Remote, err)
	}

	reverse := httputil.NewSingleHostReverseProxy(target)
	reverse.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("downstream request failed")
		w.WriteHeader(http.StatusBadGateway)
	}

	return &Handler{
		reverse:    reverse,
		filter:     f,
		searchPath: cfg.SearchPath,
	}, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.isSearch(r) {
		if !h.authorizeSearch(w, r) {
			return
		}
	}
	h.reverse.ServeHTTP(w, r)
}

func (h *Handler) isSearch(r *http.Request) bool {
	return h.searchPath != "" && strings.HasPrefix(r.URL.Path, h.searchPath)
}

// authorizeSearch buffers the body, runs the filter with the caller's
// verified groups and rewrites the request. The return value reports
// whether forwarding should continue.
func (h *Handler) authorizeSearch(w http.ResponseWriter, r *http.Request) bool {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		// The gate runs first on every proxied route; missing claims
		// mean a wiring error, and the filter fails closed.
		logging.Ctx(r.Context()).Error().Msg("search request reached filter without verified claims")
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return false
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSearchBody))
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("failed to read search body")
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return false
	}
	_ = r.Body.Close()

	result := h.filter.Apply(body, claims.Groups)
	if result.Reject {
		http.Error(w, "not authorized for requested indices", http.StatusForbidden)
		return false
	}

	r.Body = io.NopCloser(bytes.NewReader(result.Body))
	r.ContentLength = int64(len(result.Body))
	r.Header.Set("Content-Length", strconv.Itoa(len(result.Body)))
	return true
}
