// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mithril_auth_decisions_total",
			Help: "Authentication state machine outcomes per request",
		},
		[]string{"provider", "state"},
	)

	authDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mithril_auth_decision_duration_seconds",
			Help:    "Time spent deciding whether to admit a request",
			Buckets: prometheus.DefBuckets,
		},
	)

	tokensMinted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mithril_session_tokens_minted_total",
			Help: "Session tokens minted after successful upstream validation",
		},
		[]string{"provider"},
	)

	loginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mithril_login_attempts_total",
			Help: "Login endpoint outcomes",
		},
		[]string{"outcome"}, // "admitted", "rejected", "verification_required"
	)

	upstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mithril_upstream_requests_total",
			Help: "Requests against the upstream identity system",
		},
		[]string{"method", "outcome"}, // outcome: "success", "failure", "rejected"
	)

	upstreamBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mithril_upstream_breaker_state",
			Help: "Identity upstream circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"breaker"},
	)
)
