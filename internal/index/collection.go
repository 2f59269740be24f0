// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package index

import (
	"context"
	"sync"

	"github.com/sigil-dev/wikiqa/internal/chunker"
	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

// Collection is the shared, lock-guarded handle request handlers use.
// Mutations hold the write lock and searches the read lock, so a reset or
// replace waits for in-flight searches and blocks new ones until it commits.
type Collection struct {
	name    string
	backend Backend

	mu sync.RWMutex
}

func NewCollection(name string, backend Backend) *Collection {
	return &Collection{name: name, backend: backend}
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) Dimension() int { return c.backend.Dimension() }

// Insert appends chunks with their vectors.
func (c *Collection) Insert(ctx context.Context, chunks []chunker.Chunk, vectors [][]float32) error {
	entries, err := c.validate(chunks, vectors)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.backend.Insert(ctx, entries); err != nil {
		return wikierr.With(err, wikierr.FieldCollection(c.name))
	}
	return nil
}

// Replace swaps the collection's contents for chunks in one commit. A failed
// replace leaves the previous contents in place.
func (c *Collection) Replace(ctx context.Context, chunks []chunker.Chunk, vectors [][]float32) error {
	entries, err := c.validate(chunks, vectors)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.backend.Replace(ctx, entries); err != nil {
		return wikierr.With(err, wikierr.FieldCollection(c.name))
	}
	return nil
}

// Search returns the k entries nearest to query. It fails with a not-ready
// error when nothing has been loaded.
func (c *Collection) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if k < 1 {
		return nil, wikierr.Errorf(wikierr.CodeIndexSearchInvalid, "k must be at least 1, got %d", k)
	}
	if len(query) != c.Dimension() {
		return nil, wikierr.New(wikierr.CodeIndexDimensionMismatch, "query vector has unexpected dimension",
			wikierr.FieldCollection(c.name),
			wikierr.Field("expected", c.Dimension()),
			wikierr.Field("actual", len(query)),
		)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	n, err := c.backend.Count(ctx)
	if err != nil {
		return nil, wikierr.With(err, wikierr.FieldCollection(c.name))
	}
	if n == 0 {
		return nil, wikierr.New(wikierr.CodeIndexNotReady,
			"No data loaded. Please load data first using /load.", wikierr.FieldCollection(c.name))
	}

	results, err := c.backend.Search(ctx, query, k)
	if err != nil {
		return nil, wikierr.With(err, wikierr.FieldCollection(c.name))
	}
	return results, nil
}

func (c *Collection) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.backend.Reset(ctx); err != nil {
		return wikierr.With(err, wikierr.FieldCollection(c.name))
	}
	return nil
}

// Len reports the number of stored entries.
func (c *Collection) Len(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backend.Count(ctx)
}

func (c *Collection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend.Close()
}

func (c *Collection) validate(chunks []chunker.Chunk, vectors [][]float32) ([]Entry, error) {
	if len(chunks) != len(vectors) {
		return nil, wikierr.Errorf(wikierr.CodeIndexInsertInvalid,
			"got %d chunks but %d vectors", len(chunks), len(vectors))
	}
	dim := c.Dimension()
	for i, v := range vectors {
		if len(v) != dim {
			return nil, wikierr.New(wikierr.CodeIndexDimensionMismatch, "vector has unexpected dimension",
				wikierr.FieldCollection(c.name),
				wikierr.Field("index", i),
				wikierr.Field("expected", dim),
				wikierr.Field("actual", len(v)),
			)
		}
	}
	return entriesFrom(chunks, vectors), nil
}
