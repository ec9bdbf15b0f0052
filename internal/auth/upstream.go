// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mithril-gateway/mithril/internal/config"
	"github.com/mithril-gateway/mithril/internal/logging"
)

// upstreamResult carries an upstream response back through the breaker.
// Any HTTP status is a successful round trip; only transport failures
// count against the circuit.
type upstreamResult struct {
	status int
	body   []byte
}

// upstreamClient performs requests against an upstream identity system
// behind a circuit breaker. When the upstream is down the breaker fails
// fast instead of letting every request wait out the full timeout.
type upstreamClient struct {
	base    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*upstreamResult]
}

func newUpstreamClient(cfg *config.UpstreamConfig) *upstreamClient {
	name := "identity-" + cfg.Host

	breaker := gobreaker.NewCircuitBreaker[*upstreamResult](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("identity upstream circuit state change")
			upstreamBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})

	return &upstreamClient{
		base: cfg.BaseURL(),
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		breaker: breaker,
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

// do performs one request against the upstream. decorate attaches the
// credential (cookie or header) before the request is sent. A transport
// error or an open circuit maps to ErrUnreachable.
func (c *upstreamClient) do(ctx context.Context, method, path string, body []byte, decorate func(*http.Request)) (*upstreamResult, error) {
	result, err := c.breaker.Execute(func() (*upstreamResult, error) {
		var reader io.Reader = http.NoBody
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create upstream request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if decorate != nil {
			decorate(req)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("failed to read upstream response: %w", err)
		}
		return &upstreamResult{status: resp.StatusCode, body: body}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			upstreamRequests.WithLabelValues(method, "rejected").Inc()
		} else {
			upstreamRequests.WithLabelValues(method, "failure").Inc()
		}
		return nil, errors.Join(ErrUnreachable, err)
	}

	upstreamRequests.WithLabelValues(method, "success").Inc()
	return result, nil
}
