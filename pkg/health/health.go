// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package health carries generation provider health snapshots between the
// provider layer and its consumers (HTTP status, doctor).
package health

import "time"

// Metrics is a point-in-time snapshot of one provider's health, safe to
// serialize to JSON.
type Metrics struct {
	Provider      string     `json:"provider,omitempty"`
	Available     bool       `json:"available"`
	FailureCount  int64      `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}

// CountAvailable returns how many of ms are available.
func CountAvailable(ms []Metrics) int {
	n := 0
	for _, m := range ms {
		if m.Available {
			n++
		}
	}
	return n
}
