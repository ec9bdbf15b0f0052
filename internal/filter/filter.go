// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

package filter

import (
	"bytes"

	"github.com/goccy/go-json"

	"github.com/mithril-gateway/mithril/internal/config"
	"github.com/mithril-gateway/mithril/internal/logging"
)

// Result is the outcome of filtering one multi-search body.
type Result struct {
	// Authorized is the verdict over the whole batch: every index
	// named by every statement is covered by the caller's groups.
	Authorized bool

	// Body is what should be forwarded downstream. Equal to the input
	// in observe mode; possibly reduced in strip mode.
	Body []byte

	// Reject is set in reject mode when the verdict is unauthorized;
	// the caller responds 403 instead of forwarding.
	Reject bool
}

// Filter authorizes multi-search payloads: newline-separated JSON
// statements whose index fields must all be covered by the caller's
// group set. Enforcement is configurable; the verdict is always
// computed and reported.
type Filter struct {
	mode string
}

// New creates a filter with the given enforcement mode.
func New(mode string) *Filter {
	return &Filter{mode: mode}
}

// Mode returns the enforcement mode.
func (f *Filter) Mode() string { return f.mode }

// Apply evaluates the body against the caller's groups and applies the
// enforcement mode. A malformed line fails the whole batch closed; an
// empty body is vacuously authorized.
func (f *Filter) Apply(body []byte, groups []string) Result {
	authorized, kept := evaluate(body, groups)

	verdict := "authorized"
	if !authorized {
		verdict = "unauthorized"
	}
	searchVerdicts.WithLabelValues(f.mode, verdict).Inc()

	if authorized {
		return Result{Authorized: true, Body: body}
	}

	logging.Debug().
		Str("mode", f.mode).
		Msg("multi-search body not covered by caller groups")

	switch f.mode {
	case config.EnforcementStrip:
		return Result{Authorized: false, Body: kept}
	case config.EnforcementReject:
		return Result{Authorized: false, Body: body, Reject: true}
	default:
		return Result{Authorized: false, Body: body}
	}
}

// evaluate walks the statement lines and reports the batch verdict
// together with the statements that survive strip mode. Every non-empty
// line that names indices is checked; the header/payload pairing only
// decides what is kept or dropped together in strip mode.
func evaluate(body []byte, groups []string) (authorized bool, kept []byte) {
	lines := bytes.Split(body, []byte("\n"))

	authorized = true
	var out [][]byte

	for i := 0; i < len(lines); i++ {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 {
			continue
		}

		allowed, ok := lineAllowed(line, groups)
		if !ok {
			// Fail closed: an unparseable line denies the whole batch
			// and nothing after it is forwarded in strip mode.
			return false, nil
		}

		// The line after a header is its search payload; the pair is
		// kept or dropped as one in strip mode.
		var payload []byte
		if i+1 < len(lines) {
			if next := bytes.TrimSpace(lines[i+1]); len(next) > 0 {
				payloadAllowed, ok := lineAllowed(next, groups)
				if !ok {
					return false, nil
				}
				allowed = allowed && payloadAllowed
				payload = next
				i++
			}
		}

		if !allowed {
			authorized = false
			continue
		}
		out = append(out, line)
		if payload != nil {
			out = append(out, payload)
		}
	}

	if len(out) == 0 {
		return authorized, nil
	}
	return authorized, append(bytes.Join(out, []byte("\n")), '\n')
}

// lineAllowed checks one statement line. ok is false when the line is
// not valid JSON or its index field is neither a string nor a list;
// allowed reports whether every index the line names is covered.
func lineAllowed(line []byte, groups []string) (allowed, ok bool) {
	var statement map[string]json.RawMessage
	if err := json.Unmarshal(line, &statement); err != nil {
		if !json.Valid(line) {
			return false, false
		}
		// Valid JSON that is not an object names no indices.
		return true, true
	}

	raw, present := statement["index"]
	if !present {
		return true, true
	}
	indices, ok := indexNames(raw)
	if !ok {
		return false, false
	}
	return covered(indices, groups), true
}

// indexNames decodes an index field that is either a string or a list
// of strings. Anything else is malformed.
func indexNames(raw json.RawMessage) ([]string, bool) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, true
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, true
	}
	return nil, false
}

// covered reports whether every index is an exact member of groups.
func covered(indices, groups []string) bool {
	for _, index := range indices {
		member := false
		for _, group := range groups {
			if index == group {
				member = true
				break
			}
		}
		if !member {
			return false
		}
	}
	return true
}
