// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package index

import (
	"cmp"
	"context"
	"math"
	"slices"
)

func init() {
	RegisterBackend(DefaultBackend, func(cfg Config) (Backend, error) {
		return NewMemory(cfg.Dimension), nil
	})
}

var _ Backend = (*Memory)(nil)

// Memory is an exact flat L2 index. Every mutation builds a new entry slice
// and swaps it in, so a failed mutation never leaves partial state.
type Memory struct {
	dim     int
	entries []Entry
}

func NewMemory(dim int) *Memory {
	return &Memory{dim: dim}
}

func (m *Memory) Dimension() int { return m.dim }

func (m *Memory) Replace(ctx context.Context, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.entries = cloneEntries(nil, entries)
	return nil
}

func (m *Memory) Insert(ctx context.Context, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.entries = cloneEntries(m.entries, entries)
	return nil
}

func (m *Memory) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]Result, len(m.entries))
	for i, e := range m.entries {
		results[i] = Result{
			Text:         e.Text,
			Sequence:     e.Sequence,
			SourceOffset: e.SourceOffset,
			Distance:     L2(query, e.Vector),
		}
	}
	slices.SortStableFunc(results, func(a, b Result) int {
		return cmp.Compare(a.Distance, b.Distance)
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.entries = nil
	return nil
}

func (m *Memory) Count(_ context.Context) (int, error) {
	return len(m.entries), nil
}

func (m *Memory) Close() error {
	m.entries = nil
	return nil
}

// L2 is the Euclidean distance between a and b.
func L2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

func cloneEntries(dst, src []Entry) []Entry {
	out := make([]Entry, len(dst), len(dst)+len(src))
	copy(out, dst)
	for _, e := range src {
		e.Vector = slices.Clone(e.Vector)
		out = append(out, e)
	}
	return out
}
