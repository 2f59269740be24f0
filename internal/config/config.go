// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package config loads wikiqa settings from defaults, a wikiqa.yaml file,
// WIKIQA_* environment variables and command-line flags, in increasing order
// of precedence.
package config

import (
	"errors"
	"io/fs"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/sigil-dev/wikiqa/internal/chunker"
	"github.com/sigil-dev/wikiqa/internal/filter"
	"github.com/sigil-dev/wikiqa/internal/index"
	"github.com/sigil-dev/wikiqa/internal/prompt"
	"github.com/sigil-dev/wikiqa/internal/scraper"
	"github.com/sigil-dev/wikiqa/internal/secrets"
	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

// EnvPrefix prefixes every environment override, e.g. WIKIQA_INDEX_BACKEND.
const EnvPrefix = "WIKIQA"

// Config is the top-level wikiqa configuration.
type Config struct {
	Networking NetworkingConfig          `mapstructure:"networking"`
	Providers  map[string]ProviderConfig `mapstructure:"providers"`
	Embedding  EmbeddingConfig           `mapstructure:"embedding"`
	Generation GenerationConfig          `mapstructure:"generation"`
	Index      IndexConfig               `mapstructure:"index"`
	Chunking   ChunkingConfig            `mapstructure:"chunking"`
	Context    ContextConfig             `mapstructure:"context"`
	Filter     FilterConfig              `mapstructure:"filter"`
	Scrape     ScrapeConfig              `mapstructure:"scrape"`
	DataDir    string                    `mapstructure:"data_dir"`
}

// NetworkingConfig controls the HTTP listener.
type NetworkingConfig struct {
	Listen         string   `mapstructure:"listen"`
	CORSOrigins    []string `mapstructure:"cors_origins"`
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
}

// ProviderConfig holds credentials and endpoint for a model provider.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// EmbeddingConfig selects the embedding provider. Dimensions is fixed for
// the lifetime of a persistent collection.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// GenerationConfig selects and tunes the answer generator.
type GenerationConfig struct {
	Model        string        `mapstructure:"model"`
	Failover     []string      `mapstructure:"failover"`
	MaxNewTokens int           `mapstructure:"max_new_tokens"`
	Temperature  *float32      `mapstructure:"temperature"`
	Timeout      time.Duration `mapstructure:"timeout"`
	// Prompt is a builtin template name or a literal text/template body.
	Prompt string `mapstructure:"prompt"`
}

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	Backend    string `mapstructure:"backend"`
	Collection string `mapstructure:"collection"`
	Path       string `mapstructure:"path"`
	Metric     string `mapstructure:"metric"`
	TopK       int    `mapstructure:"top_k"`
}

// ChunkingConfig controls how pages are cut into chunks.
type ChunkingConfig struct {
	Strategy string `mapstructure:"strategy"`
	Size     int    `mapstructure:"size"`
	Overlap  int    `mapstructure:"overlap"`
}

// ContextConfig bounds the retrieved context.
type ContextConfig struct {
	MaxTokens int    `mapstructure:"max_tokens"`
	Tokenizer string `mapstructure:"tokenizer"`
}

type FilterConfig struct {
	Mode     string `mapstructure:"mode"`
	Marker   string `mapstructure:"marker"`
	Fallback string `mapstructure:"fallback"`
}

// ScrapeConfig controls page fetching.
type ScrapeConfig struct {
	AllowedPrefixes   []string      `mapstructure:"allowed_prefixes"`
	Timeout           time.Duration `mapstructure:"timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("networking.listen", "127.0.0.1:8000")
	v.SetDefault("networking.cors_origins", []string{})
	v.SetDefault("networking.rate_limit_rps", 5.0)
	v.SetDefault("networking.rate_limit_burst", 10)

	v.SetDefault("embedding.provider", "hash")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.dimensions", 384)

	v.SetDefault("generation.model", "google/gemini-2.5-flash")
	v.SetDefault("generation.failover", []string{})
	v.SetDefault("generation.max_new_tokens", 100)
	v.SetDefault("generation.timeout", 60*time.Second)
	v.SetDefault("generation.prompt", prompt.TemplateSentence)

	v.SetDefault("index.backend", index.DefaultBackend)
	v.SetDefault("index.collection", index.DefaultCollection)
	v.SetDefault("index.path", "")
	v.SetDefault("index.metric", index.MetricL2)
	v.SetDefault("index.top_k", index.DefaultTopK)

	v.SetDefault("chunking.strategy", string(chunker.StrategyWindow))
	v.SetDefault("chunking.size", chunker.DefaultSize)
	v.SetDefault("chunking.overlap", chunker.DefaultOverlap)

	v.SetDefault("context.max_tokens", prompt.DefaultMaxTokens)
	v.SetDefault("context.tokenizer", prompt.TokenizerAuto)

	v.SetDefault("filter.mode", string(filter.ModeWholeResponse))
	v.SetDefault("filter.marker", filter.DefaultMarker)
	v.SetDefault("filter.fallback", filter.DefaultFallback)

	v.SetDefault("scrape.allowed_prefixes", []string{scraper.DefaultAllowedPrefix})
	v.SetDefault("scrape.timeout", scraper.DefaultTimeout)
	v.SetDefault("scrape.user_agent", scraper.DefaultUserAgent)
	v.SetDefault("scrape.requests_per_second", 1.0)

	v.SetDefault("data_dir", "data")
}

// SetupEnv maps WIKIQA_SECTION_KEY variables onto section.key.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// LoadDotEnv loads a .env file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return wikierr.Errorf(wikierr.CodeConfigParseInvalidFormat, "loading %s: %w", path, err)
}

// ReadFile reads the config file into v. An explicit path must exist.
// Otherwise wikiqa.yaml is searched for in the working directory,
// ~/.config/wikiqa and /etc/wikiqa; when none exists a commented default is
// written to ~/.config/wikiqa. Returns the file used, or "" for defaults only.
func ReadFile(v *viper.Viper, path string) (string, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return "", wikierr.Errorf(wikierr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
		return path, nil
	}

	// No SetConfigType: viper would otherwise also try the bare name, which
	// collides with a ./wikiqa binary.
	v.SetConfigName("wikiqa")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/wikiqa")
	v.AddConfigPath("/etc/wikiqa")

	err := v.ReadInConfig()
	if err == nil {
		return v.ConfigFileUsed(), nil
	}
	var notFound viper.ConfigFileNotFoundError
	if !errors.As(err, &notFound) {
		return "", wikierr.Errorf(wikierr.CodeConfigParseInvalidFormat, "reading config: %w", err)
	}

	written := BootstrapConfig()
	if written == "" {
		return "", nil
	}
	v.SetConfigFile(written)
	if err := v.ReadInConfig(); err != nil {
		return "", wikierr.Errorf(wikierr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
	}
	return written, nil
}

// FromViper resolves keyring references, decodes v and validates the result.
func FromViper(v *viper.Viper, store secrets.Store) (*Config, error) {
	if store != nil {
		if err := secrets.ResolveViper(v, store); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, wikierr.Errorf(wikierr.CodeConfigParseInvalidFormat, "decoding config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, wikierr.Errorf(wikierr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}
	return &cfg, nil
}

// Load builds a Config from path (or the discovered file), the environment
// and the OS keyring.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(""); err != nil {
		return nil, err
	}

	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	used, err := ReadFile(v, path)
	if err != nil {
		return nil, err
	}
	WarnInsecurePermissions(used)

	return FromViper(v, secrets.NewKeyringStore())
}

// Provider returns the settings for name, or the zero value.
func (c *Config) Provider(name string) ProviderConfig {
	return c.Providers[name]
}

// IndexPath is the sqlite database file, defaulting into DataDir.
func (c *Config) IndexPath() string {
	if c.Index.Path != "" {
		return c.Index.Path
	}
	return filepath.Join(c.DataDir, "wikiqa.db")
}

// Validate checks the configuration for logical errors, collecting every
// issue rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateGeneration()...)
	errs = append(errs, c.validateIndex()...)
	errs = append(errs, c.validatePipeline()...)
	errs = append(errs, c.validateScrape()...)

	return errs
}

func invalid(format string, args ...any) error {
	return wikierr.Errorf(wikierr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		errs = append(errs, invalid("networking.listen must not be empty"))
	} else if _, portStr, err := net.SplitHostPort(c.Networking.Listen); err != nil {
		errs = append(errs, invalid("networking.listen must be a valid host:port address, got %q: %w",
			c.Networking.Listen, err))
	} else if port, err := strconv.Atoi(portStr); err != nil {
		errs = append(errs, invalid("networking.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, invalid("networking.listen port must be between 1 and 65535, got %d", port))
	}

	if c.Networking.RateLimitRPS < 0 {
		errs = append(errs, invalid("networking.rate_limit_rps must not be negative, got %g", c.Networking.RateLimitRPS))
	}
	if c.Networking.RateLimitRPS > 0 && c.Networking.RateLimitBurst < 1 {
		errs = append(errs, invalid("networking.rate_limit_burst must be at least 1 when rate limiting, got %d",
			c.Networking.RateLimitBurst))
	}

	return errs
}

func (c *Config) validateEmbedding() []error {
	var errs []error

	switch c.Embedding.Provider {
	case "hash":
	case "openai", "google":
		if c.Providers != nil {
			pc, ok := c.Providers[c.Embedding.Provider]
			if !ok || (pc.APIKey == "" && pc.Endpoint == "") {
				errs = append(errs, invalid("embedding.provider %q has no credentials under providers.%s",
					c.Embedding.Provider, c.Embedding.Provider))
			}
		}
	default:
		errs = append(errs, invalid("embedding.provider must be one of [hash, openai, google], got %q",
			c.Embedding.Provider))
	}

	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, invalid("embedding.dimensions must be greater than 0, got %d", c.Embedding.Dimensions))
	}

	return errs
}

var generationProviders = map[string]bool{"anthropic": true, "google": true, "openai": true}

func (c *Config) validateModelRef(field, ref string) error {
	if !strings.Contains(ref, "/") {
		return invalid("%s must be in \"provider/model\" format, got %q", field, ref)
	}
	name := providerFromModel(ref)
	if !generationProviders[name] {
		return invalid("%s %q names unknown provider %q", field, ref, name)
	}
	// A nil map means no providers section at all (fresh install), which is
	// only caught when the server wires providers.
	if c.Providers != nil {
		if _, ok := c.Providers[name]; !ok {
			return invalid("%s %q references provider %q which is not configured", field, ref, name)
		}
	}
	return nil
}

func (c *Config) validateGeneration() []error {
	var errs []error
	g := c.Generation

	if g.Model == "" {
		errs = append(errs, invalid("generation.model must not be empty"))
	} else if err := c.validateModelRef("generation.model", g.Model); err != nil {
		errs = append(errs, err)
	}

	for i, ref := range g.Failover {
		if err := c.validateModelRef("generation.failover["+strconv.Itoa(i)+"]", ref); err != nil {
			errs = append(errs, err)
		}
	}

	if g.MaxNewTokens <= 0 {
		errs = append(errs, invalid("generation.max_new_tokens must be greater than 0, got %d", g.MaxNewTokens))
	}
	if g.Temperature != nil && (*g.Temperature < 0 || *g.Temperature > 2) {
		errs = append(errs, invalid("generation.temperature must be between 0 and 2, got %g", *g.Temperature))
	}
	if g.Timeout <= 0 {
		errs = append(errs, invalid("generation.timeout must be positive, got %s", g.Timeout))
	}
	if _, err := prompt.ParseTemplate(g.Prompt); err != nil {
		errs = append(errs, invalid("generation.prompt: %s", err))
	}

	return errs
}

func (c *Config) validateIndex() []error {
	var errs []error

	switch c.Index.Backend {
	case "memory", "sqlite":
	default:
		errs = append(errs, invalid("index.backend must be one of [memory, sqlite], got %q", c.Index.Backend))
	}
	if c.Index.Collection == "" {
		errs = append(errs, invalid("index.collection must not be empty"))
	}
	if c.Index.Metric != index.MetricL2 {
		errs = append(errs, invalid("index.metric must be l2, got %q", c.Index.Metric))
	}
	if c.Index.TopK < 1 {
		errs = append(errs, invalid("index.top_k must be at least 1, got %d", c.Index.TopK))
	}

	return errs
}

// validatePipeline checks chunking, context and filter settings with the same
// rules their packages enforce at construction.
func (c *Config) validatePipeline() []error {
	var errs []error

	if err := c.ChunkerConfig().Validate(); err != nil {
		errs = append(errs, invalid("chunking: %s", err))
	}

	if c.Context.MaxTokens <= 0 {
		errs = append(errs, invalid("context.max_tokens must be greater than 0, got %d", c.Context.MaxTokens))
	}
	switch c.Context.Tokenizer {
	case prompt.TokenizerAuto, prompt.TokenizerWords, prompt.TokenizerTiktoken, prompt.TokenizerGemini:
	default:
		errs = append(errs, invalid("context.tokenizer must be one of [%s, %s, %s, %s], got %q",
			prompt.TokenizerAuto, prompt.TokenizerWords, prompt.TokenizerTiktoken, prompt.TokenizerGemini,
			c.Context.Tokenizer))
	}

	if _, err := filter.New(c.FilterConfig()); err != nil {
		errs = append(errs, invalid("filter: %s", err))
	}

	return errs
}

func (c *Config) validateScrape() []error {
	var errs []error

	if len(c.Scrape.AllowedPrefixes) == 0 {
		errs = append(errs, invalid("scrape.allowed_prefixes must not be empty"))
	}
	for i, p := range c.Scrape.AllowedPrefixes {
		u, err := url.Parse(p)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, invalid("scrape.allowed_prefixes[%d] must be an absolute http(s) URL, got %q", i, p))
		}
	}
	if c.Scrape.Timeout <= 0 {
		errs = append(errs, invalid("scrape.timeout must be positive, got %s", c.Scrape.Timeout))
	}
	if c.Scrape.RequestsPerSecond < 0 {
		errs = append(errs, invalid("scrape.requests_per_second must not be negative, got %g", c.Scrape.RequestsPerSecond))
	}

	return errs
}

// ChunkerConfig converts the chunking section.
func (c *Config) ChunkerConfig() chunker.Config {
	return chunker.Config{
		Size:     c.Chunking.Size,
		Overlap:  c.Chunking.Overlap,
		Strategy: chunker.Strategy(c.Chunking.Strategy),
	}
}

// FilterConfig converts the filter section.
func (c *Config) FilterConfig() filter.Config {
	return filter.Config{
		Mode:     filter.Mode(c.Filter.Mode),
		Marker:   c.Filter.Marker,
		Fallback: c.Filter.Fallback,
	}
}

// providerFromModel extracts the provider prefix from a "provider/model" string.
func providerFromModel(model string) string {
	if idx := strings.Index(model, "/"); idx > 0 {
		return model[:idx]
	}
	return model
}
