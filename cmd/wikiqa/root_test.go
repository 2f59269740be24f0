// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sigil-dev/wikiqa/internal/config"
	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Help(t *testing.T) {
	isolate(t)
	out, err := execute(t, "--help")
	require.NoError(t, err)

	for _, sub := range []string{"init", "start", "load", "ask", "status", "secret", "doctor", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"config", "data-dir", "env-file", "verbose"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "c", root.PersistentFlags().Lookup("config").Shorthand)
	assert.Equal(t, "v", root.PersistentFlags().Lookup("verbose").Shorthand)
}

func TestVersionCommand(t *testing.T) {
	isolate(t)
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "wikiqa dev")
}

func TestRoot_BootstrapsDefaultConfig(t *testing.T) {
	isolate(t)
	_, err := execute(t, "version")
	require.NoError(t, err)

	path, err := config.DefaultConfigPath()
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestStartCommand_MissingConfigFile(t *testing.T) {
	isolate(t)
	_, err := execute(t, "start", "--config", "/nonexistent/path.yaml")
	require.Error(t, err)
	assert.True(t, wikierr.HasCode(err, wikierr.CodeConfigLoadReadFailure), "got %s", wikierr.CodeOf(err))
}

func TestStartCommand_InvalidConfig(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "index:\n  top_k: 0\n")

	_, err := execute(t, "start", "--config", path)
	require.Error(t, err)
	assert.True(t, wikierr.HasCode(err, wikierr.CodeConfigValidateInvalidValue))
	assert.Contains(t, err.Error(), "index.top_k")
}

func TestStartCommand_BadListenFlag(t *testing.T) {
	isolate(t)
	_, err := execute(t, "start", "--listen", "not-an-address")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "networking.listen")
}

func TestRoot_EnvFileFeedsConfig(t *testing.T) {
	dir := isolate(t)
	// Register the variable for restoration, then clear it so the
	// dotenv file is the only source.
	t.Setenv("WIKIQA_INDEX_TOP_K", "")
	require.NoError(t, os.Unsetenv("WIKIQA_INDEX_TOP_K"))

	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("WIKIQA_INDEX_TOP_K=0\n"), 0o600))

	_, err := execute(t, "start", "--env-file", envFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index.top_k")
}

func TestEnvOr(t *testing.T) {
	t.Setenv("WIKIQA_TEST_ENV_OR", "")
	assert.Equal(t, "fallback", envOr("WIKIQA_TEST_ENV_OR", "fallback"))

	t.Setenv("WIKIQA_TEST_ENV_OR", "set")
	assert.Equal(t, "set", envOr("WIKIQA_TEST_ENV_OR", "fallback"))
}
