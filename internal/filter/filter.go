// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package filter cleans generated answers before they are returned.
//
// Both modes are lossy: digits (marker_split) and terminal punctuation (both
// modes) are removed from the answer.
package filter

import (
	"regexp"
	"strings"
	"unicode"

	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

// Mode selects the post-filter policy.
type Mode string

const (
	// ModeWholeResponse keeps letters, digits, apostrophes and whitespace of
	// the entire response. Suited to generators that answer in one sentence.
	ModeWholeResponse Mode = "whole_response"
	// ModeMarkerSplit carves the answer out of the tail of an echoed prompt.
	ModeMarkerSplit Mode = "marker_split"
)

const (
	DefaultMarker   = "Context:"
	DefaultFallback = "I'm sorry, I couldn't find an answer to your question based on the provided context."
)

var markerDisallowed = regexp.MustCompile(`[^a-zA-Z,;\s]+`)

// Config is the deployment-level filter selection.
type Config struct {
	Mode     Mode
	Marker   string
	Fallback string
}

// Filter applies one post-filter policy.
type Filter struct {
	mode     Mode
	marker   string
	fallback string
}

// New builds a Filter, applying defaults for an empty marker or fallback.
func New(cfg Config) (*Filter, error) {
	f := &Filter{mode: cfg.Mode, marker: cfg.Marker, fallback: cfg.Fallback}
	if f.mode == "" {
		f.mode = ModeWholeResponse
	}
	if f.marker == "" {
		f.marker = DefaultMarker
	}
	if f.fallback == "" {
		f.fallback = DefaultFallback
	}

	switch f.mode {
	case ModeWholeResponse, ModeMarkerSplit:
	default:
		return nil, wikierr.Errorf(wikierr.CodeFilterConfigInvalid, "unknown filter mode %q", cfg.Mode)
	}
	return f, nil
}

func (f *Filter) Mode() Mode {
	return f.mode
}

// Fallback is the answer substituted when marker_split leaves nothing.
func (f *Filter) Fallback() string {
	return f.fallback
}

// Apply returns the cleaned answer.
func (f *Filter) Apply(text string) string {
	if f.mode == ModeMarkerSplit {
		return f.markerSplit(text)
	}
	return WholeResponse(text)
}

// WholeResponse drops every rune that is not a letter, a number (² and ½
// included), an apostrophe or whitespace.
func WholeResponse(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '\'' || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, text)
}

func (f *Filter) markerSplit(text string) string {
	segment := text
	if idx := strings.LastIndex(text, f.marker); idx >= 0 {
		segment = text[idx+len(f.marker):]
	}

	answer := markerDisallowed.ReplaceAllString(strings.TrimSpace(segment), "")
	if strings.TrimSpace(answer) == "" {
		return f.fallback
	}
	return answer
}
