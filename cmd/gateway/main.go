// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

// Package main is the entry point for the Mithril gateway.
//
// Mithril sits in front of a downstream search/analytics application
// and mediates every request: upstream credentials are exchanged for
// signed session tokens, each request is admitted or redirected by the
// authentication gate, and multi-search request bodies are authorized
// against the caller's group claims before they reach the downstream
// system.
//
// Startup order:
//
//  1. Configuration: layered load from defaults, config.yaml and
//     MITHRIL_* environment variables (Koanf v2)
//  2. Logging: zerolog, console or JSON format
//  3. Signing secret: loaded from config or generated once and
//     persisted; a persistence failure is fatal
//  4. Identity provider: exactly one of local, remember or token
//  5. HTTP server: auth endpoints, metrics and the authenticated
//     reverse proxy
//
// Shutdown on SIGINT/SIGTERM drains in-flight requests for up to ten
// seconds.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/mithril-gateway/mithril/internal/api"
	"github.com/mithril-gateway/mithril/internal/auth"
	"github.com/mithril-gateway/mithril/internal/config"
	"github.com/mithril-gateway/mithril/internal/filter"
	"github.com/mithril-gateway/mithril/internal/logging"
	"github.com/mithril-gateway/mithril/internal/proxy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("provider", cfg.Auth.Provider).
		Str("enforcement", cfg.Proxy.Enforcement).
		Bool("proxy_enabled", cfg.Proxy.Enabled).
		Msg("configuration loaded")

	codec, err := newCodec(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to resolve signing secret")
	}

	provider, err := auth.NewProvider(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to construct identity provider")
	}
	logging.Info().Str("provider", provider.Name()).Msg("identity provider ready")

	session := auth.NewCookieJar(cfg.Auth.TokenName, &cfg.Auth.Cookie)
	var upstream *auth.CookieJar
	if name := provider.CredentialName(); name != "" {
		upstream = auth.NewCookieJar(name, &cfg.Auth.Cookie)
	}

	gate := auth.NewGate(provider, codec, session, cfg.Auth.LoginPath)
	defer gate.Stop()
	handlers := auth.NewHandlers(provider, codec, session, upstream)

	var downstream http.Handler
	if cfg.Proxy.Enabled {
		downstream, err = proxy.New(&cfg.Proxy, filter.New(cfg.Proxy.Enforcement))
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to construct reverse proxy")
		}
		logging.Info().
			Str("remote", cfg.Proxy.Remote).
			Str("search_path", cfg.Proxy.SearchPath).
			Msg("reverse proxy ready")
	}

	router := api.NewRouter(cfg, gate, handlers, downstream)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", server.Addr).Msg("gateway listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logging.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("shutdown did not drain cleanly")
	}
	logging.Info().Msg("gateway stopped")
}

// newCodec resolves the signing secret eagerly so a store that cannot
// persist fails the process before a single token is minted.
func newCodec(cfg *config.Config) (*auth.TokenCodec, error) {
	var store auth.SecretStore
	if cfg.Auth.Secret != "" {
		static, err := auth.NewStaticSecretStore(cfg.Auth.Secret)
		if err != nil {
			return nil, err
		}
		store = static
	} else {
		store = auth.NewFileSecretStore(cfg.Auth.SecretFile)
	}

	codec := auth.NewTokenCodec(store, cfg.Auth.SessionTTL)
	if _, err := codec.Secret(context.Background()); err != nil {
		return nil, err
	}
	return codec, nil
}
