// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

// defaultAddress is where client commands expect `wikiqa start` to listen.
var defaultAddress = envOr("WIKIQA_ADDRESS", "127.0.0.1:8000")

// defaultHTTPClient is used by every client command. Loads scrape, embed and
// index before answering, so the timeout is generous. Overridden in tests.
var defaultHTTPClient = &http.Client{
	Timeout: 3 * time.Minute,
}

// apiClient talks to a running wikiqa server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(addr string) *apiClient {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &apiClient{baseURL: strings.TrimRight(base, "/"), http: defaultHTTPClient}
}

// problem is the RFC 9457 body huma returns for errors.
type problem struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func (c *apiClient) getJSON(ctx context.Context, path string, dest any) error {
	return c.do(ctx, http.MethodGet, path, nil, dest)
}

func (c *apiClient) postJSON(ctx context.Context, path string, body, dest any) error {
	return c.do(ctx, http.MethodPost, path, body, dest)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return wikierr.Errorf(wikierr.CodeCLIInputInvalid, "encoding request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return wikierr.Errorf(wikierr.CodeCLIRequestFailure, "building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isDialError(err) {
			return wikierr.New(wikierr.CodeCLIServerNotRunning,
				"wikiqa server is not running at "+c.baseURL+" (start it with 'wikiqa start')")
		}
		return wikierr.Errorf(wikierr.CodeCLIRequestFailure, "request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var p problem
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &p) == nil && p.Detail != "" {
			msg = p.Detail
		}
		return wikierr.New(wikierr.CodeCLIRequestFailure, msg, wikierr.Field("status", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return wikierr.Errorf(wikierr.CodeCLIResponseInvalid, "invalid response: %w", err)
	}
	return nil
}

// isDialError returns true if err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
