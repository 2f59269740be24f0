// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package embedding turns chunk texts and queries into fixed-dimension
// vectors through an external embedding provider.
package embedding

import (
	"context"

	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

// Embedder converts texts to vectors, one per input and in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension is the length of every vector the embedder returns.
	Dimension() int
	Model() string
}

const (
	ProviderOpenAI = "openai"
	ProviderGoogle = "google"
	ProviderHash   = "hash"
)

// Config selects and configures an embedding provider.
type Config struct {
	Provider   string
	Model      string
	Dimensions int
	APIKey     string
	BaseURL    string
}

// New builds the embedder named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	if cfg.Dimensions <= 0 {
		return nil, wikierr.Errorf(wikierr.CodeEmbeddingRequestInvalid,
			"embedding dimensions must be positive, got %d", cfg.Dimensions)
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAI(cfg)
	case ProviderGoogle:
		return NewGoogle(ctx, cfg)
	case ProviderHash, "":
		return NewHash(cfg.Dimensions), nil
	default:
		return nil, wikierr.New(wikierr.CodeEmbeddingRequestInvalid, "unknown embedding provider",
			wikierr.FieldProvider(cfg.Provider))
	}
}
