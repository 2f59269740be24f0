// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"io"
	"net/http"
	"strings"

	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

const (
	NameAnthropic = "anthropic"
	NameOpenAI    = "openai"
	NameGoogle    = "google"
)

// KeyCheck describes where to validate a provider's API key.
type KeyCheck struct {
	Provider string
	Key      string
	// BaseURL overrides the provider's public API root (OpenAI-compatible
	// local servers, tests).
	BaseURL string
}

// ValidateKey makes a lightweight call to the provider's models endpoint to
// confirm the API key is accepted.
func ValidateKey(ctx context.Context, client *http.Client, check KeyCheck) error {
	var (
		url     string
		headers = map[string]string{}
	)

	switch check.Provider {
	case NameAnthropic:
		url = baseOr(check.BaseURL, "https://api.anthropic.com/v1") + "/models"
		headers["x-api-key"] = check.Key
		headers["anthropic-version"] = "2023-06-01"
	case NameOpenAI:
		url = baseOr(check.BaseURL, "https://api.openai.com/v1") + "/models"
		headers["Authorization"] = "Bearer " + check.Key
	case NameGoogle:
		// The Generative Language API only accepts the key as a query parameter.
		url = baseOr(check.BaseURL, "https://generativelanguage.googleapis.com/v1") + "/models?key=" + check.Key
	default:
		return wikierr.Errorf(wikierr.CodeProviderKeyInvalid, "unknown provider: %s", check.Provider)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return wikierr.Errorf(wikierr.CodeProviderKeyCheckFailed, "building validation request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return wikierr.Errorf(wikierr.CodeProviderKeyCheckFailed, "validating %s key: %w", check.Provider, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return wikierr.Errorf(wikierr.CodeProviderKeyInvalid, "invalid %s API key (HTTP %d)", check.Provider, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return wikierr.Errorf(wikierr.CodeProviderKeyCheckFailed, "%s validation failed (HTTP %d)", check.Provider, resp.StatusCode)
	}
	return nil
}

func baseOr(base, fallback string) string {
	if base == "" {
		return fallback
	}
	return strings.TrimRight(base, "/")
}
