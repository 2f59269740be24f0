// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"errors"
	"strings"

	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

// GenerateOptions tune a single synchronous generation.
type GenerateOptions struct {
	MaxTokens   int
	Temperature *float32
}

// Generate routes modelRef, sends prompt as one user message and collects the
// streamed text. Failures are never retried here. Providers that track health
// mark themselves unhealthy on failure, so the next request fails over.
func Generate(ctx context.Context, router Router, modelRef, prompt string, opts GenerateOptions) (string, error) {
	p, model, err := router.Route(ctx, modelRef)
	if err != nil {
		return "", wikierr.Reclassify(err, wikierr.CodeGenerationProviderFailure, "routing generation request")
	}

	text, err := collect(ctx, p, ChatRequest{
		Model:    model,
		Messages: []Message{{Role: MessageRoleUser, Content: prompt}},
		Options: ChatOptions{
			MaxTokens:   opts.MaxTokens,
			Temperature: opts.Temperature,
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", wikierr.Reclassify(err, wikierr.CodeGenerationTimeout, "generation timed out",
				wikierr.FieldProvider(p.Name()))
		}
		return "", wikierr.Reclassify(err, wikierr.CodeGenerationProviderFailure, "generation failed",
			wikierr.FieldProvider(p.Name()))
	}
	return text, nil
}

func collect(ctx context.Context, p Provider, req ChatRequest) (string, error) {
	events, err := p.Chat(ctx, req)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return sb.String(), nil
			}
			switch ev.Type {
			case EventTypeTextDelta:
				sb.WriteString(ev.Text)
			case EventTypeError:
				return "", errors.New(ev.Error)
			case EventTypeDone:
				return sb.String(), nil
			}
		}
	}
}
