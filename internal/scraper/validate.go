// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package scraper

import (
	"net/url"
	"strings"

	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

// DefaultAllowedPrefix is the only page family accepted out of the box.
const DefaultAllowedPrefix = "https://en.wikipedia.org/wiki/"

// ValidateURL checks that raw is an absolute http(s) URL starting with one of
// the allowed prefixes.
func ValidateURL(raw string, allowedPrefixes []string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return wikierr.New(wikierr.CodeRequestInvalidInput, "url is required")
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return wikierr.New(wikierr.CodeRequestInvalidInput, "url must be an absolute http(s) URL",
			wikierr.FieldURL(raw))
	}

	if len(allowedPrefixes) == 0 {
		allowedPrefixes = []string{DefaultAllowedPrefix}
	}
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(raw, prefix) {
			return nil
		}
	}
	return wikierr.New(wikierr.CodeRequestInvalidInput,
		"Invalid URL. Please provide a valid Wikipedia URL.",
		wikierr.FieldURL(raw))
}
