// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

package filter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var searchVerdicts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mithril_search_authorization_verdicts_total",
		Help: "Authorization verdicts over multi-search request bodies",
	},
	[]string{"mode", "verdict"},
)
