// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package anthropic_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sigil-dev/wikiqa/internal/provider"
	"github.com/sigil-dev/wikiqa/internal/provider/anthropic"
	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type singleRouter struct{ p provider.Provider }

func (r singleRouter) Route(context.Context, string) (provider.Provider, string, error) {
	return r.p, "claude-haiku-4-5", nil
}

func (singleRouter) Close() error { return nil }

func writeEvent(w http.ResponseWriter, name, data string) {
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}

func TestAnthropicProvider_ListModels(t *testing.T) {
	p := mustNewProvider(t, "")

	models, err := p.ListModels(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, models)
	for _, m := range models {
		assert.Equal(t, "anthropic", m.Provider, "model %s should have provider=anthropic", m.ID)
		assert.NotEmpty(t, m.Name)
		assert.True(t, m.Capabilities.SupportsStreaming)
	}
}

func TestAnthropicProvider_MissingAPIKey(t *testing.T) {
	_, err := anthropic.New(anthropic.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
	assert.True(t, wikierr.IsInvalidInput(err))
	assert.True(t, wikierr.HasCode(err, wikierr.CodeProviderRequestInvalid))
}

func TestAnthropicProvider_StatusAndClose(t *testing.T) {
	p := mustNewProvider(t, "")

	status, err := p.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "anthropic", status.Provider)
	assert.True(t, status.Available)
	assert.NoError(t, p.Close())
}

func TestAnthropicProvider_UnknownRole(t *testing.T) {
	p := mustNewProvider(t, "")
	_, err := p.Chat(context.Background(), provider.ChatRequest{
		Model:    "claude-haiku-4-5",
		Messages: []provider.Message{{Role: "tool", Content: "x"}},
	})
	require.Error(t, err)
	assert.True(t, wikierr.HasCode(err, wikierr.CodeProviderRequestInvalid))
}

func TestAnthropicProvider_GenerateStreamsText(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, "message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-haiku-4-5","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":12,"output_tokens":1}}}`)
		writeEvent(w, "content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`)
		writeEvent(w, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"The tower is"}}`)
		writeEvent(w, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" in Paris"}}`)
		writeEvent(w, "content_block_stop", `{"type":"content_block_stop","index":0}`)
		writeEvent(w, "message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":5}}`)
		writeEvent(w, "message_stop", `{"type":"message_stop"}`)
	}))
	defer srv.Close()

	p := mustNewProvider(t, srv.URL+"/")
	text, err := provider.Generate(context.Background(), singleRouter{p}, "", "Where is the tower?", provider.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "The tower is in Paris", text)

	assert.Equal(t, "claude-haiku-4-5", body["model"])
	assert.InDelta(t, 1024, body["max_tokens"], 0)
	assert.True(t, p.Available(context.Background()))
}

func TestAnthropicProvider_UpstreamErrorMarksUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer srv.Close()

	p := mustNewProvider(t, srv.URL+"/")
	_, err := provider.Generate(context.Background(), singleRouter{p}, "", "hello", provider.GenerateOptions{})
	require.Error(t, err)
	assert.True(t, wikierr.HasCode(err, wikierr.CodeGenerationProviderFailure))
	assert.False(t, p.Available(context.Background()))
	assert.Equal(t, int64(1), p.HealthMetrics().FailureCount)
}

// mustNewProvider creates a provider with a dummy API key for unit tests.
func mustNewProvider(t *testing.T, baseURL string) *anthropic.Provider {
	t.Helper()
	p, err := anthropic.New(anthropic.Config{
		APIKey:  "test-key-not-real",
		BaseURL: baseURL,
	})
	require.NoError(t, err)
	return p
}
