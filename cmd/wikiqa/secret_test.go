// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"testing"

	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretSet(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		stdin string
		want  string
	}{
		{name: "value argument", args: []string{"secret", "set", "google-api-key", "AIza-123"}, want: "AIza-123"},
		{name: "value from stdin", args: []string{"secret", "set", "google-api-key"}, stdin: "AIza-456\n", want: "AIza-456"},
		{name: "stdin without newline", args: []string{"secret", "set", "google-api-key"}, stdin: "AIza-789", want: "AIza-789"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			store := newMockSecretStore()
			withSecretStore(t, store)

			out, err := executeWithInput(t, tt.stdin, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, store.data["google-api-key"])
			assert.Contains(t, out, "keyring://wikiqa/google-api-key")
		})
	}
}

func TestSecretSet_EmptyValue(t *testing.T) {
	isolate(t)
	withSecretStore(t, newMockSecretStore())

	_, err := executeWithInput(t, "\n", "secret", "set", "google-api-key")
	require.Error(t, err)
	assert.True(t, wikierr.HasCode(err, wikierr.CodeCLIInputInvalid))
}

func TestSecretGet(t *testing.T) {
	tests := []struct {
		name  string
		value string
		args  []string
		want  string
	}{
		{name: "masked", value: "sk-abcdefghijkl", args: []string{"secret", "get", "openai-api-key"}, want: "***********ijkl\n"},
		{name: "short values fully masked", value: "short", args: []string{"secret", "get", "openai-api-key"}, want: "*****\n"},
		{name: "reveal", value: "sk-abcdefghijkl", args: []string{"secret", "get", "openai-api-key", "--reveal"}, want: "sk-abcdefghijkl\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			withSecretStore(t, newMockSecretStore("openai-api-key", tt.value))

			out, err := execute(t, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestSecretGet_NotFound(t *testing.T) {
	isolate(t)
	withSecretStore(t, newMockSecretStore())

	_, err := execute(t, "secret", "get", "missing")
	require.Error(t, err)
	assert.True(t, wikierr.IsNotFound(err))
}

func TestSecretList(t *testing.T) {
	tests := []struct {
		name string
		kv   []string
		want string
	}{
		{name: "empty store", want: "No secrets stored.\n"},
		{name: "single key", kv: []string{"anthropic-api-key", "x"}, want: "anthropic-api-key\n"},
		{name: "sorted keys", kv: []string{"openai-api-key", "x", "google-api-key", "y"}, want: "google-api-key\nopenai-api-key\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			withSecretStore(t, newMockSecretStore(tt.kv...))

			out, err := execute(t, "secret", "list")
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestSecretDelete(t *testing.T) {
	isolate(t)
	store := newMockSecretStore("google-api-key", "x")
	withSecretStore(t, store)

	out, err := execute(t, "secret", "delete", "google-api-key")
	require.NoError(t, err)
	assert.Equal(t, "Deleted secret: google-api-key\n", out)
	assert.Empty(t, store.data)

	_, err = execute(t, "secret", "delete", "google-api-key")
	require.Error(t, err)
	assert.True(t, wikierr.HasCode(err, wikierr.CodeSecretNotFound))
	assert.Contains(t, err.Error(), `"google-api-key"`)
}

func TestSecretSet_ReferencedFromConfig(t *testing.T) {
	dir := isolate(t)
	store := newMockSecretStore()
	withSecretStore(t, store)
	writeConfig(t, dir, `
providers:
  openai:
    api_key: "keyring://wikiqa/openai-api-key"
generation:
  model: openai/gpt-4o-mini
`)

	// Unresolvable until the key is stored.
	out, err := execute(t, "doctor", "--skip-keys", "--address", closedAddr(t))
	require.NoError(t, err)
	assert.Contains(t, out, "invalid:")

	_, err = execute(t, "secret", "set", "openai-api-key", "sk-from-keyring")
	require.NoError(t, err)

	out, err = execute(t, "doctor", "--skip-keys", "--address", closedAddr(t))
	require.NoError(t, err)
	assert.Contains(t, out, "openai (key set)")
}
