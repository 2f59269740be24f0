// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embedding

import (
	"context"
	"errors"

	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

// Gateway enforces the embedding contract on top of a provider: one vector
// per input, in order, each of the declared dimension. Provider failures are
// reported as embedding failures and never retried.
type Gateway struct {
	embedder Embedder
}

var _ Embedder = (*Gateway)(nil)

func NewGateway(e Embedder) *Gateway {
	return &Gateway{embedder: e}
}

func (g *Gateway) Dimension() int { return g.embedder.Dimension() }

func (g *Gateway) Model() string { return g.embedder.Model() }

func (g *Gateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors, err := g.embedder.Embed(ctx, texts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, wikierr.Reclassify(err, wikierr.CodeEmbeddingTimeout, "embedding request timed out",
				wikierr.Field("model", g.Model()))
		}
		return nil, wikierr.Reclassify(err, wikierr.CodeEmbeddingProviderFailure, "embedding provider failed",
			wikierr.Field("model", g.Model()))
	}

	if len(vectors) != len(texts) {
		return nil, wikierr.Errorf(wikierr.CodeEmbeddingProviderFailure,
			"embedding provider returned %d vectors for %d inputs", len(vectors), len(texts))
	}
	dim := g.Dimension()
	for i, v := range vectors {
		if len(v) != dim {
			return nil, wikierr.New(wikierr.CodeIndexDimensionMismatch, "embedding has unexpected dimension",
				wikierr.Field("index", i),
				wikierr.Field("expected", dim),
				wikierr.Field("actual", len(v)),
			)
		}
	}
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (g *Gateway) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := g.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// CheckDimension embeds a short text once. Providers that ignore or cannot
// honour the requested dimensionality fail here with a dimension mismatch.
func (g *Gateway) CheckDimension(ctx context.Context) error {
	_, err := g.EmbedQuery(ctx, "dimension check")
	return err
}
