// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

// Package api assembles the gateway's HTTP surface: the authentication
// endpoints, the metrics endpoint and the authenticated proxy catch-all.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mithril-gateway/mithril/internal/auth"
	"github.com/mithril-gateway/mithril/internal/config"
	"github.com/mithril-gateway/mithril/internal/middleware"
)

// Router builds the gateway's http.Handler.
type Router struct {
	cfg      *config.Config
	gate     *auth.Gate
	handlers *auth.Handlers
	proxy    http.Handler
}

// NewRouter wires the router. proxy may be nil when proxying is
// disabled; only the auth endpoints are served then.
func NewRouter(cfg *config.Config, gate *auth.Gate, handlers *auth.Handlers, proxy http.Handler) *Router {
	return &Router{
		cfg:      cfg,
		gate:     gate,
		handlers: handlers,
		proxy:    proxy,
	}
}

// Handler assembles the route tree.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics)

	if len(rt.cfg.Server.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.cfg.Server.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           86400,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route(rt.cfg.Server.BasePath+"/auth", func(r chi.Router) {
		// Login carries the strictest limit; it is the only endpoint
		// that accepts raw passwords.
		r.With(rt.loginRateLimit()).Post("/login", rt.handlers.Login)
		r.Post("/logout", rt.handlers.Logout)
		r.With(rt.gate.Middleware).Get("/groups", rt.handlers.Groups)
	})

	if rt.proxy != nil {
		r.With(rt.gate.Middleware).Handle("/*", rt.proxy)
	}

	return r
}

func (rt *Router) loginRateLimit() func(http.Handler) http.Handler {
	if rt.cfg.Server.RateLimitDisabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		rt.cfg.Server.LoginRateLimit,
		rt.cfg.Server.LoginRateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)
}
