// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"

	"github.com/sigil-dev/wikiqa/internal/rag"
	"github.com/sigil-dev/wikiqa/pkg/health"
)

// QAService is the load/query pipeline behind the HTTP surface.
// *rag.Service implements it.
type QAService interface {
	Load(ctx context.Context, url string) (*rag.LoadResult, error)
	Query(ctx context.Context, query string) (*rag.QueryResult, error)
	Status(ctx context.Context) (*rag.Status, error)
}

// ProviderSet reports generation provider health. *provider.Registry
// implements it.
type ProviderSet interface {
	Health(ctx context.Context) []health.Metrics
}

var _ QAService = (*rag.Service)(nil)
