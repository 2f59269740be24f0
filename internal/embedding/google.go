// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embedding

import (
	"context"

	"google.golang.org/genai"

	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

const (
	googleMaxBatch     = 100
	googleDefaultModel = "gemini-embedding-001"
)

// Google embeds through the Gemini API. Truncated outputs are not unit
// length, so vectors are normalized before they reach L2 search.
type Google struct {
	client *genai.Client
	model  string
	dim    int
}

func NewGoogle(ctx context.Context, cfg Config) (*Google, error) {
	if cfg.APIKey == "" {
		return nil, wikierr.New(wikierr.CodeEmbeddingRequestInvalid, "google: missing api_key",
			wikierr.FieldProvider(ProviderGoogle))
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, wikierr.Wrapf(err, wikierr.CodeProviderUpstreamFailure, "google: creating client")
	}

	model := cfg.Model
	if model == "" {
		model = googleDefaultModel
	}
	return &Google{client: client, model: model, dim: cfg.Dimensions}, nil
}

func (g *Google) Dimension() int { return g.dim }

func (g *Google) Model() string { return g.model }

func (g *Google) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	dim := int32(g.dim)
	embedCfg := &genai.EmbedContentConfig{OutputDimensionality: &dim}

	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += googleMaxBatch {
		end := min(i+googleMaxBatch, len(texts))

		contents := make([]*genai.Content, 0, end-i)
		for _, text := range texts[i:end] {
			contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
		}

		result, err := g.client.Models.EmbedContent(ctx, g.model, contents, embedCfg)
		if err != nil {
			return nil, wikierr.Wrap(err, wikierr.CodeProviderUpstreamFailure, "google: embed content",
				wikierr.FieldProvider(ProviderGoogle))
		}
		if result == nil || len(result.Embeddings) != end-i {
			return nil, wikierr.Errorf(wikierr.CodeProviderResponseInvalid,
				"google: expected %d embeddings", end-i)
		}
		for _, e := range result.Embeddings {
			normalize(e.Values)
			out = append(out, e.Values)
		}
	}
	return out, nil
}
