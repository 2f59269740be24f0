// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"github.com/sigil-dev/wikiqa/internal/chunker"
	"github.com/sigil-dev/wikiqa/internal/config"
	"github.com/sigil-dev/wikiqa/internal/embedding"
	"github.com/sigil-dev/wikiqa/internal/filter"
	"github.com/sigil-dev/wikiqa/internal/index"
	_ "github.com/sigil-dev/wikiqa/internal/index/sqlite" // register sqlite backend
	"github.com/sigil-dev/wikiqa/internal/prompt"
	"github.com/sigil-dev/wikiqa/internal/provider"
	anthropicprov "github.com/sigil-dev/wikiqa/internal/provider/anthropic"
	googleprov "github.com/sigil-dev/wikiqa/internal/provider/google"
	openaiprov "github.com/sigil-dev/wikiqa/internal/provider/openai"
	"github.com/sigil-dev/wikiqa/internal/rag"
	"github.com/sigil-dev/wikiqa/internal/scraper"
	"github.com/sigil-dev/wikiqa/internal/server"
	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

// App holds the wired subsystems and manages their lifecycle.
type App struct {
	Server     *server.Server
	Service    *rag.Service
	Registry   *provider.Registry
	Collection *index.Collection
}

const embedCheckTimeout = 30 * time.Second

// Wire builds every subsystem from cfg and connects them.
func Wire(ctx context.Context, cfg *config.Config) (*App, error) {
	reg := provider.NewRegistry()
	registerBuiltinProviders(cfg, reg)

	fail := func(err error, msg string, closers ...interface{ Close() error }) (*App, error) {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, wikierr.Reclassify(err, wikierr.CodeCLISetupFailure, msg)
	}

	if err := routeModels(cfg, reg); err != nil {
		return fail(err, "configuring model routing", reg)
	}

	embedProvider := cfg.Provider(cfg.Embedding.Provider)
	embedder, err := embedding.New(ctx, embedding.Config{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		APIKey:     embedProvider.APIKey,
		BaseURL:    embedProvider.Endpoint,
	})
	if err != nil {
		return fail(err, "creating embedder", reg)
	}
	if err := checkEmbeddingDimension(ctx, cfg, embedder); err != nil {
		_ = reg.Close()
		return nil, err
	}

	collection, err := openIndex(cfg)
	if err != nil {
		return fail(err, "opening index", reg)
	}

	ch, err := chunker.New(cfg.ChunkerConfig())
	if err != nil {
		return fail(err, "creating chunker", reg, collection)
	}
	tok, err := prompt.NewTokenizer(cfg.Context.Tokenizer, cfg.Generation.Model)
	if err != nil {
		return fail(err, "creating tokenizer", reg, collection)
	}
	asm, err := prompt.NewAssembler(tok, cfg.Context.MaxTokens)
	if err != nil {
		return fail(err, "creating context assembler", reg, collection)
	}
	tmpl, err := prompt.ParseTemplate(cfg.Generation.Prompt)
	if err != nil {
		return fail(err, "parsing prompt template", reg, collection)
	}
	flt, err := filter.New(cfg.FilterConfig())
	if err != nil {
		return fail(err, "creating response filter", reg, collection)
	}

	svc, err := rag.New(rag.Deps{
		Fetcher: scraper.NewHTTPFetcher(scraper.Config{
			Timeout:           cfg.Scrape.Timeout,
			UserAgent:         cfg.Scrape.UserAgent,
			RequestsPerSecond: cfg.Scrape.RequestsPerSecond,
		}),
		Chunker:    ch,
		Embedder:   embedder,
		Collection: collection,
		Generator:  reg,
		Assembler:  asm,
		Prompt:     tmpl,
		Filter:     flt,
	}, rag.Options{
		TopK:            cfg.Index.TopK,
		MaxNewTokens:    cfg.Generation.MaxNewTokens,
		Temperature:     cfg.Generation.Temperature,
		AllowedPrefixes: cfg.Scrape.AllowedPrefixes,
		ScrapeTimeout:   cfg.Scrape.Timeout,
		GenerateTimeout: cfg.Generation.Timeout,
		Logger:          slog.Default(),
	})
	if err != nil {
		return fail(err, "creating rag service", reg, collection)
	}

	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Networking.Listen,
		CORSOrigins: cfg.Networking.CORSOrigins,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: cfg.Networking.RateLimitRPS,
			Burst:             cfg.Networking.RateLimitBurst,
		},
		Version:   version,
		Service:   svc,
		Providers: reg,
	})
	if err != nil {
		return fail(err, "creating server", reg, collection)
	}

	slog.Info("wired wikiqa",
		"index", cfg.Index.Backend,
		"collection", collection.Name(),
		"embedding", embedder.Model(),
		"generation", cfg.Generation.Model,
		"providers", reg.Names(),
	)

	return &App{
		Server:     srv,
		Service:    svc,
		Registry:   reg,
		Collection: collection,
	}, nil
}

// checkEmbeddingDimension compares a remote provider's real output length
// with embedding.dimensions. A mismatch stops startup. An unreachable
// provider only warns; the gateway repeats the check on every load.
func checkEmbeddingDimension(ctx context.Context, cfg *config.Config, e embedding.Embedder) error {
	if cfg.Embedding.Provider == embedding.ProviderHash || cfg.Embedding.Provider == "" {
		return nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, embedCheckTimeout)
	defer cancel()

	err := embedding.NewGateway(e).CheckDimension(checkCtx)
	switch {
	case err == nil:
		return nil
	case wikierr.HasCode(err, wikierr.CodeIndexDimensionMismatch):
		return wikierr.With(err,
			wikierr.FieldProvider(cfg.Embedding.Provider),
			wikierr.Field("model", e.Model()),
			wikierr.Field("configured", cfg.Embedding.Dimensions))
	default:
		slog.Warn("embedding dimension unchecked at startup",
			"provider", cfg.Embedding.Provider, "error", err)
		return nil
	}
}

// openIndex opens the configured collection, creating the data directory for
// persistent backends.
func openIndex(cfg *config.Config) (*index.Collection, error) {
	path := cfg.IndexPath()
	if cfg.Index.Backend != index.DefaultBackend {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, wikierr.Errorf(wikierr.CodeCLISetupFailure, "creating data directory: %w", err)
		}
	}
	return index.Open(index.Config{
		Backend:    cfg.Index.Backend,
		Collection: cfg.Index.Collection,
		Path:       path,
		Metric:     cfg.Index.Metric,
		Dimension:  cfg.Embedding.Dimensions,
	})
}

// Start runs the HTTP server and blocks until the context is cancelled.
func (a *App) Start(ctx context.Context) error {
	return a.Server.Start(ctx)
}

// Close releases all resources held by the app.
func (a *App) Close() error {
	type closer interface{ Close() error }
	closers := []closer{a.Server, a.Registry, a.Collection}

	var errs []error
	for _, c := range closers {
		if c != nil {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// routeModels sets the default model and failover chain. Refs whose provider
// is not registered are skipped with a warning so the server can still load
// pages; queries then fail with a routing error until a provider is added.
func routeModels(cfg *config.Config, reg *provider.Registry) error {
	registered := reg.Names()
	isRegistered := func(ref string) bool {
		name, _ := provider.ParseRef(ref)
		return slices.Contains(registered, name)
	}

	if isRegistered(cfg.Generation.Model) {
		if err := reg.SetDefault(cfg.Generation.Model); err != nil {
			return err
		}
	} else {
		slog.Warn("generation provider not configured, queries will fail until it is", "model", cfg.Generation.Model)
	}

	var chain []string
	for _, ref := range cfg.Generation.Failover {
		if !isRegistered(ref) {
			slog.Warn("skipping failover model without a configured provider", "model", ref)
			continue
		}
		chain = append(chain, ref)
	}
	if len(chain) > 0 {
		return reg.SetFailover(chain)
	}
	return nil
}

// providerFactory builds a provider.Provider from a ProviderConfig.
type providerFactory func(config.ProviderConfig) (provider.Provider, error)

// builtinProviderFactories maps provider names to their constructors.
// Declared as a variable so tests can inject failing factories.
var builtinProviderFactories = map[string]providerFactory{
	provider.NameAnthropic: func(pc config.ProviderConfig) (provider.Provider, error) {
		return anthropicprov.New(anthropicprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	provider.NameGoogle: func(pc config.ProviderConfig) (provider.Provider, error) {
		return googleprov.New(googleprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	provider.NameOpenAI: func(pc config.ProviderConfig) (provider.Provider, error) {
		return openaiprov.New(openaiprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
}

// registerBuiltinProviders registers every configured provider that has
// credentials or a self-hosted endpoint. Anything else is logged and skipped.
func registerBuiltinProviders(cfg *config.Config, reg *provider.Registry) {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pc := cfg.Providers[name]
		if pc.APIKey == "" && pc.Endpoint == "" {
			slog.Warn("skipping provider without api_key or endpoint", "provider", name)
			continue
		}
		factory, ok := builtinProviderFactories[name]
		if !ok {
			slog.Warn("unknown provider in config, skipping", "provider", name)
			continue
		}
		p, err := factory(pc)
		if err != nil {
			slog.Warn("failed to create provider", "provider", name, "error", err)
			continue
		}
		reg.Register(name, p)
		slog.Debug("registered provider", "provider", name)
	}
}
