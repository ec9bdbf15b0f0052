// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

// Package middleware carries the gateway's request-scoped HTTP
// middleware: request IDs for log correlation and Prometheus request
// instrumentation.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mithril-gateway/mithril/internal/logging"
)

// RequestID assigns each request a unique ID, honoring one supplied by
// an upstream proxy. The ID travels on the response header and in the
// request context for logging.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
