// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package index owns the vector collection that load requests fill and
// query requests search.
package index

import (
	"context"

	"github.com/sigil-dev/wikiqa/internal/chunker"
)

// MetricL2 is the only supported distance metric: Euclidean distance.
const MetricL2 = "l2"

// Entry pairs an embedding with the chunk it was computed from.
type Entry struct {
	Text         string
	Sequence     int
	SourceOffset int
	Vector       []float32
}

// Result is one search hit. Distance is Euclidean; lower is closer.
type Result struct {
	Text         string
	Sequence     int
	SourceOffset int
	Distance     float32
}

// Backend is a vector store holding one collection. Backends are not
// required to be safe for concurrent mutation; Collection serialises access.
type Backend interface {
	// Replace atomically drops all entries and stores entries in their place.
	Replace(ctx context.Context, entries []Entry) error
	// Insert appends entries; either all are committed or none are.
	Insert(ctx context.Context, entries []Entry) error
	// Search returns up to k nearest entries in ascending distance, ties in
	// insertion order.
	Search(ctx context.Context, query []float32, k int) ([]Result, error)
	Reset(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	Dimension() int
	Close() error
}

func entriesFrom(chunks []chunker.Chunk, vectors [][]float32) []Entry {
	entries := make([]Entry, len(chunks))
	for i, ch := range chunks {
		entries[i] = Entry{
			Text:         ch.Text,
			Sequence:     ch.Sequence,
			SourceOffset: ch.SourceOffset,
			Vector:       vectors[i],
		}
	}
	return entries
}
