// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package health_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/wikiqa/pkg/health"
)

func TestCountAvailable(t *testing.T) {
	assert.Equal(t, 0, health.CountAvailable(nil))
	assert.Equal(t, 1, health.CountAvailable([]health.Metrics{
		{Provider: "google", Available: true},
		{Provider: "openai", Available: false, FailureCount: 2},
	}))
}

func TestMetrics_JSONOmitsUnsetTimes(t *testing.T) {
	b, err := json.Marshal(health.Metrics{Provider: "google", Available: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"provider":"google","available":true,"failure_count":0}`, string(b))

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b, err = json.Marshal(health.Metrics{FailureCount: 1, LastFailureAt: &at})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"last_failure_at":"2026-01-02T03:04:05Z"`)
}
