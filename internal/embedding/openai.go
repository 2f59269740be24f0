// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embedding

import (
	"context"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

const (
	openAIMaxBatch     = 2048
	openAIDefaultModel = "text-embedding-3-small"
)

// OpenAI embeds through the OpenAI embeddings endpoint, or any
// OpenAI-compatible server when BaseURL is set.
type OpenAI struct {
	client openaisdk.Client
	model  string
	dim    int
	// sendDimensions is false for servers that reject the dimensions field.
	sendDimensions bool
}

func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, wikierr.New(wikierr.CodeEmbeddingRequestInvalid, "openai: missing api_key",
			wikierr.FieldProvider(ProviderOpenAI))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = openAIDefaultModel
	}

	return &OpenAI{
		client:         openaisdk.NewClient(opts...),
		model:          model,
		dim:            cfg.Dimensions,
		sendDimensions: cfg.BaseURL == "",
	}, nil
}

func (o *OpenAI) Dimension() int { return o.dim }

func (o *OpenAI) Model() string { return o.model }

func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := 0; i < len(texts); i += openAIMaxBatch {
		end := min(i+openAIMaxBatch, len(texts))
		vecs, err := o.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		copy(out[i:], vecs)
	}
	return out, nil
}

func (o *OpenAI) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	params := openaisdk.EmbeddingNewParams{
		Model:          o.model,
		Input:          openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		EncodingFormat: openaisdk.EmbeddingNewParamsEncodingFormatFloat,
	}
	if o.sendDimensions {
		params.Dimensions = openaisdk.Int(int64(o.dim))
	}

	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, wikierr.Wrap(err, wikierr.CodeProviderUpstreamFailure, "openai: embeddings request",
			wikierr.FieldProvider(ProviderOpenAI))
	}

	vecs := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= int64(len(texts)) {
			return nil, wikierr.Errorf(wikierr.CodeProviderResponseInvalid,
				"openai: embedding index %d out of range for batch of %d", item.Index, len(texts))
		}
		vec := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float32(v)
		}
		vecs[item.Index] = vec
	}
	for i, v := range vecs {
		if v == nil {
			return nil, wikierr.Errorf(wikierr.CodeProviderResponseInvalid,
				"openai: missing embedding for input %d", i)
		}
	}
	return vecs, nil
}
