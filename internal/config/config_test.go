// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/wikiqa/internal/config"
	"github.com/sigil-dev/wikiqa/internal/secrets"
	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

// isolate points HOME at a temp dir so discovery and bootstrap never touch
// the real user config.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wikiqa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultValues(t *testing.T) {
	isolate(t)

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8000", cfg.Networking.Listen)
	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.Equal(t, 384, cfg.Embedding.Dimensions)
	assert.Equal(t, "google/gemini-2.5-flash", cfg.Generation.Model)
	assert.Equal(t, 100, cfg.Generation.MaxNewTokens)
	assert.Equal(t, 60*time.Second, cfg.Generation.Timeout)
	assert.Nil(t, cfg.Generation.Temperature)
	assert.Equal(t, "memory", cfg.Index.Backend)
	assert.Equal(t, "wikipedia_content", cfg.Index.Collection)
	assert.Equal(t, 5, cfg.Index.TopK)
	assert.Equal(t, 500, cfg.Chunking.Size)
	assert.Equal(t, 50, cfg.Chunking.Overlap)
	assert.Equal(t, 512, cfg.Context.MaxTokens)
	assert.Equal(t, "whole_response", cfg.Filter.Mode)
	assert.Equal(t, []string{"https://en.wikipedia.org/wiki/"}, cfg.Scrape.AllowedPrefixes)
	assert.Equal(t, 30*time.Second, cfg.Scrape.Timeout)
}

func TestLoad_BootstrapsDefaultFile(t *testing.T) {
	home := isolate(t)

	_, err := config.Load("")
	require.NoError(t, err)

	path := filepath.Join(home, ".config", "wikiqa", "wikiqa.yaml")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfigYAML, data)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestBootstrapConfig_KeepsExistingFile(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, ".config", "wikiqa", "wikiqa.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte("data_dir: mine\n"), 0o600))

	assert.Empty(t, config.BootstrapConfig())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "data_dir: mine\n", string(data))
}

func TestDefaultConfigYAML_PassesValidation(t *testing.T) {
	isolate(t)
	path := writeConfig(t, string(config.DefaultConfigYAML))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sentence", cfg.Generation.Prompt)
	assert.Equal(t, "auto", cfg.Context.Tokenizer)
}

func TestLoad_FromFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
networking:
  listen: "0.0.0.0:9999"
providers:
  openai:
    endpoint: "http://127.0.0.1:8080/v1/"
generation:
  model: "openai/distilgpt2"
  prompt: completion
  temperature: 0.7
filter:
  mode: marker_split
index:
  backend: sqlite
  top_k: 2
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.Networking.Listen)
	assert.Equal(t, "http://127.0.0.1:8080/v1/", cfg.Provider("openai").Endpoint)
	assert.Equal(t, "openai/distilgpt2", cfg.Generation.Model)
	require.NotNil(t, cfg.Generation.Temperature)
	assert.InDelta(t, 0.7, *cfg.Generation.Temperature, 1e-6)
	assert.Equal(t, "marker_split", cfg.Filter.Mode)
	assert.Equal(t, "sqlite", cfg.Index.Backend)
	assert.Equal(t, 2, cfg.Index.TopK)
	assert.Equal(t, filepath.Join("data", "wikiqa.db"), cfg.IndexPath())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)

	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, wikierr.HasCode(err, wikierr.CodeConfigLoadReadFailure))
}

func TestLoad_EnvOverride(t *testing.T) {
	isolate(t)
	t.Setenv("WIKIQA_NETWORKING_LISTEN", "10.0.0.1:8080")
	t.Setenv("WIKIQA_INDEX_TOP_K", "3")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8080", cfg.Networking.Listen)
	assert.Equal(t, 3, cfg.Index.TopK)
}

func TestLoad_ValidationCalledAtLoadTime(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
index:
  backend: milvus
chunking:
  overlap: 600
`)

	_, err := config.Load(path)
	require.Error(t, err)
	assert.True(t, wikierr.HasCode(err, wikierr.CodeConfigValidateInvalidValue))
	assert.Contains(t, err.Error(), "index.backend")
	assert.Contains(t, err.Error(), "chunking")
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("WIKIQA_TEST_DOTENV=from-file\n"), 0o600))
	t.Setenv("WIKIQA_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("WIKIQA_TEST_DOTENV"))

	require.NoError(t, config.LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("WIKIQA_TEST_DOTENV"))

	require.NoError(t, config.LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("WIKIQA_TEST_DOTENV=from-file\n"), 0o600))
	t.Setenv("WIKIQA_TEST_DOTENV", "from-env")

	require.NoError(t, config.LoadDotEnv(path))
	assert.Equal(t, "from-env", os.Getenv("WIKIQA_TEST_DOTENV"))
}

// memStore is an in-memory secrets.Store.
type memStore map[string]string

func (m memStore) Store(service, key, value string) error {
	m[service+"/"+key] = value
	return nil
}

func (m memStore) Retrieve(service, key string) (string, error) {
	v, ok := m[service+"/"+key]
	if !ok {
		return "", wikierr.New(wikierr.CodeSecretNotFound, "secret not found")
	}
	return v, nil
}

func (m memStore) Delete(service, key string) error {
	delete(m, service+"/"+key)
	return nil
}

func (m memStore) List(service string) ([]string, error) {
	var keys []string
	for k := range m {
		if s, key, _ := strings.Cut(k, "/"); s == service {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func newViper(t *testing.T, content string) *viper.Viper {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(content)))
	return v
}

func TestFromViper_ResolvesKeyringReferences(t *testing.T) {
	store := memStore{"wikiqa/google-api-key": "g-secret"}
	v := newViper(t, `
providers:
  google:
    api_key: "keyring://wikiqa/google-api-key"
embedding:
  provider: google
  dimensions: 768
`)

	cfg, err := config.FromViper(v, store)
	require.NoError(t, err)
	assert.Equal(t, "g-secret", cfg.Provider("google").APIKey)
	assert.Equal(t, "google", cfg.Embedding.Provider)
}

func TestFromViper_UnresolvableReference(t *testing.T) {
	v := newViper(t, `
providers:
  google:
    api_key: "keyring://wikiqa/missing"
`)

	_, err := config.FromViper(v, memStore{})
	require.Error(t, err)
	assert.True(t, wikierr.HasCode(err, wikierr.CodeSecretResolveFailure))
	assert.Contains(t, err.Error(), "providers.google.api_key")
}

// validConfig returns a config that passes all validation.
func validConfig() *config.Config {
	temp := float32(0.5)
	return &config.Config{
		Networking: config.NetworkingConfig{Listen: "127.0.0.1:8000", RateLimitRPS: 5, RateLimitBurst: 10},
		Providers: map[string]config.ProviderConfig{
			"google": {APIKey: "g-key"},
			"openai": {APIKey: "o-key"},
		},
		Embedding:  config.EmbeddingConfig{Provider: "openai", Model: "text-embedding-3-small", Dimensions: 1536},
		Generation: config.GenerationConfig{Model: "google/gemini-2.5-flash", Failover: []string{"openai/gpt-4.1-mini"}, MaxNewTokens: 100, Temperature: &temp, Timeout: time.Minute, Prompt: "sentence"},
		Index:      config.IndexConfig{Backend: "sqlite", Collection: "wikipedia_content", Metric: "l2", TopK: 5},
		Chunking:   config.ChunkingConfig{Strategy: "window", Size: 500, Overlap: 50},
		Context:    config.ContextConfig{MaxTokens: 512, Tokenizer: "auto"},
		Filter:     config.FilterConfig{Mode: "whole_response"},
		Scrape:     config.ScrapeConfig{AllowedPrefixes: []string{"https://en.wikipedia.org/wiki/"}, Timeout: 30 * time.Second, RequestsPerSecond: 1},
		DataDir:    "data",
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.Empty(t, validConfig().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr string
	}{
		{"empty listen", func(c *config.Config) { c.Networking.Listen = "" }, "networking.listen must not be empty"},
		{"listen without port", func(c *config.Config) { c.Networking.Listen = "localhost" }, "host:port"},
		{"listen port out of range", func(c *config.Config) { c.Networking.Listen = ":70000" }, "between 1 and 65535"},
		{"negative rate limit", func(c *config.Config) { c.Networking.RateLimitRPS = -1 }, "rate_limit_rps"},
		{"zero burst", func(c *config.Config) { c.Networking.RateLimitBurst = 0 }, "rate_limit_burst"},
		{"unknown embedding provider", func(c *config.Config) { c.Embedding.Provider = "cohere" }, "embedding.provider must be one of"},
		{"embedding provider without credentials", func(c *config.Config) { delete(c.Providers, "openai"); c.Generation.Failover = nil }, "no credentials"},
		{"zero dimensions", func(c *config.Config) { c.Embedding.Dimensions = 0 }, "embedding.dimensions"},
		{"model without provider", func(c *config.Config) { c.Generation.Model = "gemini" }, "provider/model"},
		{"unknown generation provider", func(c *config.Config) { c.Generation.Model = "mistral/large" }, "unknown provider"},
		{"unconfigured generation provider", func(c *config.Config) { c.Generation.Model = "anthropic/claude-haiku-4-5" }, "not configured"},
		{"bad failover", func(c *config.Config) { c.Generation.Failover = []string{"nope"} }, "generation.failover[0]"},
		{"zero max tokens", func(c *config.Config) { c.Generation.MaxNewTokens = 0 }, "max_new_tokens"},
		{"temperature too high", func(c *config.Config) { temp := float32(3); c.Generation.Temperature = &temp }, "temperature"},
		{"zero generation timeout", func(c *config.Config) { c.Generation.Timeout = 0 }, "generation.timeout"},
		{"broken prompt", func(c *config.Config) { c.Generation.Prompt = "{{.Query" }, "generation.prompt"},
		{"unknown backend", func(c *config.Config) { c.Index.Backend = "milvus" }, "index.backend"},
		{"empty collection", func(c *config.Config) { c.Index.Collection = "" }, "index.collection"},
		{"cosine metric", func(c *config.Config) { c.Index.Metric = "cosine" }, "index.metric"},
		{"zero top k", func(c *config.Config) { c.Index.TopK = 0 }, "index.top_k"},
		{"overlap not below size", func(c *config.Config) { c.Chunking.Overlap = 500 }, "chunking"},
		{"unknown strategy", func(c *config.Config) { c.Chunking.Strategy = "sentences" }, "chunking"},
		{"zero context budget", func(c *config.Config) { c.Context.MaxTokens = 0 }, "context.max_tokens"},
		{"unknown tokenizer", func(c *config.Config) { c.Context.Tokenizer = "bpe" }, "context.tokenizer"},
		{"unknown filter", func(c *config.Config) { c.Filter.Mode = "regex" }, "filter"},
		{"no allowed prefixes", func(c *config.Config) { c.Scrape.AllowedPrefixes = nil }, "scrape.allowed_prefixes must not be empty"},
		{"relative prefix", func(c *config.Config) { c.Scrape.AllowedPrefixes = []string{"/wiki/"} }, "absolute http(s) URL"},
		{"zero scrape timeout", func(c *config.Config) { c.Scrape.Timeout = 0 }, "scrape.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			errs := cfg.Validate()
			require.NotEmpty(t, errs)

			var msgs []string
			for _, err := range errs {
				assert.True(t, wikierr.HasCode(err, wikierr.CodeConfigValidateInvalidValue))
				msgs = append(msgs, err.Error())
			}
			assert.Contains(t, strings.Join(msgs, "\n"), tt.wantErr)
		})
	}
}

func TestValidate_Tokenizers(t *testing.T) {
	for _, name := range []string{"auto", "words", "tiktoken", "gemini"} {
		cfg := validConfig()
		cfg.Context.Tokenizer = name
		assert.Empty(t, cfg.Validate(), name)
	}
}

func TestDefaults_TokenizerFollowsModel(t *testing.T) {
	v := newViper(t, "data_dir: data\n")
	assert.Equal(t, "auto", v.GetString("context.tokenizer"))
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Networking.Listen = ""
	cfg.Index.TopK = 0
	cfg.Context.Tokenizer = "bpe"

	assert.Len(t, cfg.Validate(), 3)
}

func TestValidate_NoProvidersSection(t *testing.T) {
	cfg := validConfig()
	cfg.Providers = nil
	cfg.Embedding.Provider = "hash"

	assert.Empty(t, cfg.Validate())
}

func TestIndexPath(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, filepath.Join("data", "wikiqa.db"), cfg.IndexPath())

	cfg.Index.Path = "/var/lib/wikiqa/index.db"
	assert.Equal(t, "/var/lib/wikiqa/index.db", cfg.IndexPath())
}

var _ secrets.Store = memStore{}
